package queue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry_queue.db")
	q, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueuePeekRemoveRoundTrip(t *testing.T) {
	q := openTestQueue(t)

	id1, err := q.Enqueue([]byte(`{"n":1}`), 100)
	require.NoError(t, err)
	id2, err := q.Enqueue([]byte(`{"n":2}`), 101)
	require.NoError(t, err)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := q.Peek(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, id1, entries[0].ID)
	assert.Equal(t, id2, entries[1].ID)
	assert.Equal(t, `{"n":1}`, string(entries[0].Payload))

	require.NoError(t, q.Remove(id1))
	n, err = q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries, err = q.Peek(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id2, entries[0].ID)
}

func TestPeekRespectsLimitAndFIFOOrder(t *testing.T) {
	q := openTestQueue(t)
	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := q.Enqueue([]byte("p"), int64(i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	entries, err := q.Peek(3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, ids[i], e.ID)
	}
}

func TestIncrementAttemptPersists(t *testing.T) {
	q := openTestQueue(t)
	id, err := q.Enqueue([]byte("p"), 0)
	require.NoError(t, err)

	require.NoError(t, q.IncrementAttempt(id))
	require.NoError(t, q.IncrementAttempt(id))

	entries, err := q.Peek(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].AttemptCount)
}

func TestLenOnEmptyQueue(t *testing.T) {
	q := openTestQueue(t)
	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
