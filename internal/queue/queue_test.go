package queue

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capsMatcher удовлетворяет entry, если все её теги есть в наборе.
type capsMatcher map[string]bool

func (m capsMatcher) CanSatisfy(required []string, _ int) bool {
	for _, tag := range required {
		if !m[tag] {
			return false
		}
	}
	return true
}

func entry(priority int, caps ...string) Entry {
	return Entry{JobID: uuid.New(), Priority: priority, RequiredCapabilities: caps, WorkerCount: 1}
}

func ids(entries []Entry) []uuid.UUID {
	out := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		out[i] = e.JobID
	}
	return out
}

func TestEnqueue_PriorityThenFIFO(t *testing.T) {
	q := New()

	low := entry(1)
	midA := entry(5)
	high := entry(10)
	midB := entry(5)

	q.Enqueue(low)
	q.Enqueue(midA)
	q.Enqueue(high)
	q.Enqueue(midB)

	assert.Equal(t, []uuid.UUID{high.JobID, midA.JobID, midB.JobID, low.JobID}, ids(q.PeekAll()))
	assert.Equal(t, 4, q.Size())
}

func TestPeekReady_SkipsUnsatisfiable(t *testing.T) {
	q := New()

	gpu := entry(10, "gpu")
	render := entry(5, "render")
	q.Enqueue(gpu)
	q.Enqueue(render)

	got, ok := q.PeekReady(capsMatcher{"render": true})
	require.True(t, ok)
	assert.Equal(t, render.JobID, got.JobID)

	// Peek не удаляет
	assert.Equal(t, 2, q.Size())

	got, ok = q.PeekReady(capsMatcher{"render": true, "gpu": true})
	require.True(t, ok)
	assert.Equal(t, gpu.JobID, got.JobID, "higher priority wins when both are dispatchable")

	_, ok = q.PeekReady(capsMatcher{})
	assert.False(t, ok)
}

func TestRemoveAndClear(t *testing.T) {
	q := New()
	a, b := entry(1), entry(2)
	q.Enqueue(a)
	q.Enqueue(b)

	assert.True(t, q.Remove(a.JobID))
	assert.False(t, q.Remove(a.JobID))
	assert.Equal(t, 1, q.Size())

	removed := q.Clear()
	assert.Equal(t, []uuid.UUID{b.JobID}, ids(removed))
	assert.Equal(t, 0, q.Size())
}

func TestEnqueue_CopiesCapabilities(t *testing.T) {
	q := New()
	caps := []string{"render"}
	e := Entry{JobID: uuid.New(), Priority: 1, RequiredCapabilities: caps}
	q.Enqueue(e)

	caps[0] = "mutated"
	assert.Equal(t, "render", q.PeekAll()[0].RequiredCapabilities[0])
}
