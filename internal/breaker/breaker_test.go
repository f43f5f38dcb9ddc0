package breaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestClosedStaysClosedUnderThreshold(t *testing.T) {
	b := New(3, time.Minute)
	for i := 0; i < 2; i++ {
		err := b.Call(func() error { return errBoom })
		assert.Equal(t, errBoom, err)
	}
	assert.Equal(t, Closed, b.State())
}

func TestTripsOpenAtThreshold(t *testing.T) {
	b := New(3, time.Minute)
	for i := 0; i < 3; i++ {
		_ = b.Call(func() error { return errBoom })
	}
	assert.Equal(t, Open, b.State())
}

func TestOpenRefusesCallsBeforeTimeout(t *testing.T) {
	b := New(1, time.Minute)
	_ = b.Call(func() error { return errBoom })
	require.Equal(t, Open, b.State())

	called := false
	err := b.Call(func() error { called = true; return nil })
	assert.False(t, called)
	assert.IsType(t, ErrOpen{}, err)
}

func TestHalfOpenAdmitsSingleProbe(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	_ = b.Call(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	var admitted int32
	var wg sync.WaitGroup
	block := make(chan struct{})
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Call(func() error {
				atomic.AddInt32(&admitted, 1)
				<-block
				return nil
			})
			if err != nil {
				assert.IsType(t, ErrOpen{}, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&admitted))
	close(block)
	wg.Wait()
}

func TestSuccessfulProbeClosesBreaker(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	_ = b.Call(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	err := b.Call(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, Closed, b.State())
}

func TestFailedProbeReopensBreaker(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	_ = b.Call(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, HalfOpen, b.State())

	err := b.Call(func() error { return errBoom })
	assert.Equal(t, errBoom, err)
	assert.Equal(t, Open, b.State())
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	b := New(2, time.Minute)
	_ = b.Call(func() error { return errBoom })
	_ = b.Call(func() error { return nil })
	_ = b.Call(func() error { return errBoom })
	assert.Equal(t, Closed, b.State())
}
