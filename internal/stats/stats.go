// Package stats агрегирует статистику завершённых job.
//
// Все метрики — скользящие средние, обновляемые инкрементально:
//
//	avg' = avg + (x - avg) / n
//
// Запись и чтение идут под коротким мьютексом; Snapshot возвращает копию
// и не удерживает блокировку дольше копирования.
package stats

import (
	"sync"
	"time"

	"github.com/shaiso/Foundry/internal/domain"
)

// Record — данные одного терминального job.
type Record struct {
	Status   domain.JobStatus
	Duration time.Duration
	Passed   bool
}

// RecordFromJob собирает Record из терминального job.
func RecordFromJob(j *domain.Job) Record {
	return Record{
		Status:   j.Status,
		Duration: j.Duration(),
		Passed:   j.Status == domain.JobStatusCompleted && j.Success,
	}
}

// Aggregator — накопитель статистики.
type Aggregator struct {
	mu        sync.Mutex
	total     int64
	avgNanos  float64
	passRate  float64
	completed int64
	failed    int64
	stopped   int64
}

// New создаёт пустой Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Record учитывает один терминальный job.
func (a *Aggregator) Record(r Record) {
	passed := 0.0
	if r.Passed {
		passed = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	n := float64(a.total)
	a.avgNanos += (float64(r.Duration) - a.avgNanos) / n
	a.passRate += (passed - a.passRate) / n

	switch r.Status {
	case domain.JobStatusCompleted:
		a.completed++
	case domain.JobStatusFailed:
		a.failed++
	case domain.JobStatusStopped:
		a.stopped++
	}
}

// Snapshot возвращает копию текущей статистики.
func (a *Aggregator) Snapshot() domain.SystemStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return domain.SystemStats{
		TotalProcessed:        a.total,
		AverageProcessingTime: time.Duration(a.avgNanos),
		SuccessRate:           a.passRate,
		Completed:             a.completed,
		Failed:                a.failed,
		Stopped:               a.stopped,
	}
}
