package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehonix-edge/gatewaysupervisord/internal/metrics"
)

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) Send(kind string, body map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, kind)
}

func (s *recordingSink) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range s.events {
		if k == kind {
			n++
		}
	}
	return n
}

func newTestOrchestrator(cfg Config) (*Orchestrator, *recordingSink) {
	sink := &recordingSink{}
	if cfg.WatchdogInterval == 0 {
		cfg.WatchdogInterval = 20 * time.Millisecond
	}
	return New(cfg, sink, metrics.New(), zerolog.Nop()), sink
}

func TestStartPauseResumeRoundTrip(t *testing.T) {
	o, _ := newTestOrchestrator(Config{MaxRestarts: 1})
	require.NoError(t, o.Register(Spec{Name: "sleeper", Command: []string{"/bin/sleep", "5"}}))
	require.NoError(t, o.StartAll())
	defer o.StopAll(time.Second)

	alive, err := o.IsAlive("sleeper")
	require.NoError(t, err)
	assert.True(t, alive)

	require.NoError(t, o.Pause("sleeper"))
	require.NoError(t, o.Pause("sleeper")) // idempotent
	st, err := o.State("sleeper")
	require.NoError(t, err)
	assert.Equal(t, StatePaused, st)

	require.NoError(t, o.Resume("sleeper"))
	require.NoError(t, o.Resume("sleeper")) // idempotent
	st, err = o.State("sleeper")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st)
}

func TestRegisterRejectsConflictingDuplicate(t *testing.T) {
	o, _ := newTestOrchestrator(Config{})
	require.NoError(t, o.Register(Spec{Name: "w", Command: []string{"/bin/sleep", "5"}}))
	require.NoError(t, o.Register(Spec{Name: "w", Command: []string{"/bin/sleep", "5"}})) // identical, ok

	err := o.Register(Spec{Name: "w", Command: []string{"/bin/sleep", "10"}})
	assert.Error(t, err)
}

func TestUnknownWorkerOperationsError(t *testing.T) {
	o, _ := newTestOrchestrator(Config{})
	_, err := o.IsAlive("nope")
	assert.Error(t, err)
	assert.Error(t, o.Pause("nope"))
	assert.Error(t, o.Start("nope"))
}

func TestRestartCeilingGivesUp(t *testing.T) {
	o, sink := newTestOrchestrator(Config{MaxRestarts: 2, WatchdogInterval: 10 * time.Millisecond})
	require.NoError(t, o.Register(Spec{Name: "failer", Command: []string{"/bin/false"}}))
	require.NoError(t, o.StartAll())
	defer o.StopAll(time.Second)

	require.Eventually(t, func() bool {
		st, err := o.State("failer")
		return err == nil && st == StateGaveUp
	}, 2*time.Second, 10*time.Millisecond)

	rc, err := o.RestartCount("failer")
	require.NoError(t, err)
	assert.Equal(t, 2, rc) // two restarts performed, counter capped at MaxRestarts

	assert.Equal(t, 1, sink.count("worker_gave_up"))
}

func TestStopAllTerminatesRunningWorkers(t *testing.T) {
	o, _ := newTestOrchestrator(Config{MaxRestarts: 5})
	require.NoError(t, o.Register(Spec{Name: "sleeper", Command: []string{"/bin/sleep", "30"}}))
	require.NoError(t, o.StartAll())

	o.StopAll(2 * time.Second)

	st, err := o.State("sleeper")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, st)
}

func TestOnOverheatSkipsEssentialWorkers(t *testing.T) {
	o, _ := newTestOrchestrator(Config{MaxRestarts: 5})
	require.NoError(t, o.Register(Spec{Name: "w1", Command: []string{"/bin/sleep", "10"}, Essential: false}))
	require.NoError(t, o.Register(Spec{Name: "w2", Command: []string{"/bin/sleep", "10"}, Essential: true}))
	require.NoError(t, o.StartAll())
	defer o.StopAll(time.Second)

	o.OnOverheat()

	st1, _ := o.State("w1")
	st2, _ := o.State("w2")
	assert.Equal(t, StatePaused, st1)
	assert.Equal(t, StateRunning, st2)

	o.OnRecover()
	st1, _ = o.State("w1")
	assert.Equal(t, StateRunning, st1)
}

func TestOnRecoverLeavesManuallyPausedWorkersAlone(t *testing.T) {
	o, _ := newTestOrchestrator(Config{MaxRestarts: 5})
	require.NoError(t, o.Register(Spec{Name: "w1", Command: []string{"/bin/sleep", "10"}}))
	require.NoError(t, o.StartAll())
	defer o.StopAll(time.Second)

	require.NoError(t, o.Pause("w1")) // manual pause
	o.OnRecover()

	st, _ := o.State("w1")
	assert.Equal(t, StatePaused, st)
}
