package orchestrator

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Foundry/internal/domain"
)

// jobState — состояние одного job в памяти оркестратора.
//
// jobState живёт в Orchestrator.jobs от Submit до терминального статуса,
// после чего снимок job переезжает в кэш недавних.
//
// Реализует pipeline.Tracker: executor продвигает job по стадиям через него.
type jobState struct {
	mu  sync.Mutex
	job *domain.Job

	// workers — зарезервированные workers. В job.AssignedWorkers они
	// очищаются при переходе в терминальный статус, здесь остаются
	// до освобождения.
	workers []string

	// cancel отменяет контекст executor'а.
	cancel context.CancelFunc

	// released — workers уже освобождены (обычным завершением или halt).
	released bool
}

func newJobState(job *domain.Job) *jobState {
	return &jobState{job: job}
}

// JobID возвращает ID job.
func (s *jobState) JobID() uuid.UUID {
	return s.job.ID
}

// Payload возвращает payload job. Payload не меняется после Submit.
func (s *jobState) Payload() map[string]any {
	return s.job.Payload
}

// Workers возвращает назначенных workers.
func (s *jobState) Workers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.workers)
}

// EnterStage продвигает прогресс. false — job больше не PROCESSING.
func (s *jobState) EnterStage(index int, name domain.StageName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job.Status != domain.JobStatusProcessing {
		return false
	}
	s.job.EnterStage(index, name)
	return true
}

// Stopped сообщает, остановлен ли job извне (emergency halt).
func (s *jobState) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job.Status == domain.JobStatusStopped
}

// status возвращает текущий статус.
func (s *jobState) status() domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job.Status
}

// snapshot возвращает копию job.
func (s *jobState) snapshot() domain.JobSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job.Snapshot()
}

// start переводит job в PROCESSING.
func (s *jobState) start(workers []string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.job.MarkProcessing(workers) {
		return false
	}
	s.workers = slices.Clone(workers)
	s.cancel = cancel
	return true
}

// halt останавливает PROCESSING job: помечает STOPPED, считает workers
// освобождёнными (их нагрузку сбрасывает ResetAll) и отменяет executor.
func (s *jobState) halt(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job.Status != domain.JobStatusProcessing {
		return false
	}
	s.job.MarkStopped(reason)
	s.released = true
	if s.cancel != nil {
		s.cancel()
	}
	return true
}

// recentCache — ограниченный кэш снимков терминальных job.
// Вытесняет самые старые записи.
type recentCache struct {
	limit int
	order []uuid.UUID
	items map[uuid.UUID]domain.JobSnapshot
}

func newRecentCache(limit int) *recentCache {
	return &recentCache{
		limit: limit,
		items: make(map[uuid.UUID]domain.JobSnapshot, limit),
	}
}

func (c *recentCache) put(snap domain.JobSnapshot) {
	if _, ok := c.items[snap.ID]; !ok {
		c.order = append(c.order, snap.ID)
	}
	c.items[snap.ID] = snap

	for len(c.order) > c.limit {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *recentCache) get(id uuid.UUID) (domain.JobSnapshot, bool) {
	snap, ok := c.items[id]
	return snap, ok
}

// list возвращает снимки от новых к старым.
func (c *recentCache) list() []domain.JobSnapshot {
	out := make([]domain.JobSnapshot, 0, len(c.order))
	for i := len(c.order) - 1; i >= 0; i-- {
		out = append(out, c.items[c.order[i]])
	}
	return out
}
