package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shaiso/Foundry/internal/domain"
)

func TestAggregator_IncrementalMeans(t *testing.T) {
	a := New()

	a.Record(Record{Status: domain.JobStatusCompleted, Duration: 2 * time.Second, Passed: true})
	a.Record(Record{Status: domain.JobStatusCompleted, Duration: 4 * time.Second, Passed: false})
	a.Record(Record{Status: domain.JobStatusFailed, Duration: 6 * time.Second})

	s := a.Snapshot()
	assert.EqualValues(t, 3, s.TotalProcessed)
	assert.InDelta(t, float64(4*time.Second), float64(s.AverageProcessingTime), float64(time.Microsecond))
	assert.InDelta(t, 1.0/3.0, s.SuccessRate, 1e-9)
	assert.EqualValues(t, 2, s.Completed)
	assert.EqualValues(t, 1, s.Failed)
	assert.EqualValues(t, 0, s.Stopped)
}

func TestAggregator_EmptySnapshot(t *testing.T) {
	s := New().Snapshot()
	assert.Zero(t, s.TotalProcessed)
	assert.Zero(t, s.SuccessRate)
}

func TestRecordFromJob(t *testing.T) {
	j := domain.NewJob(&domain.JobSpec{Stages: domain.DefaultStages()}, time.Now())
	j.MarkProcessing([]string{"w1"})
	score := 0.95
	j.MarkCompleted(&score, true)

	r := RecordFromJob(j)
	assert.True(t, r.Passed)
	assert.Equal(t, domain.JobStatusCompleted, r.Status)

	stopped := domain.NewJob(&domain.JobSpec{Stages: domain.DefaultStages()}, time.Now())
	stopped.MarkProcessing([]string{"w1"})
	stopped.MarkStopped("emergency halt")
	assert.False(t, RecordFromJob(stopped).Passed)
}

func TestAggregator_ConcurrentRecords(t *testing.T) {
	a := New()
	const n = 500

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Record(Record{Status: domain.JobStatusCompleted, Duration: time.Second, Passed: true})
			_ = a.Snapshot()
		}()
	}
	wg.Wait()

	s := a.Snapshot()
	assert.EqualValues(t, n, s.TotalProcessed)
	assert.InDelta(t, 1.0, s.SuccessRate, 1e-9)
	assert.InDelta(t, float64(time.Second), float64(s.AverageProcessingTime), float64(time.Microsecond))
}
