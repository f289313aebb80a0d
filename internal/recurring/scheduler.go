package recurring

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Foundry/internal/domain"
)

const defaultTickInterval = time.Second

// Submitter принимает job. Реализуется orchestrator.Orchestrator.
type Submitter interface {
	Submit(ctx context.Context, spec domain.JobSpec) (uuid.UUID, error)
}

// Scheduler — планировщик периодических job.
type Scheduler struct {
	mu        sync.Mutex
	schedules []*Schedule
	submitter Submitter
	interval  time.Duration
	logger    *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules []Schedule
	Submitter Submitter
	Interval  time.Duration // период Run (default: 1s)
	Logger    *slog.Logger
}

// New создаёт Scheduler. Все расписания проверяются сразу;
// первое срабатывание считается от now.
func New(cfg Config, now time.Time) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultTickInterval
	}

	seen := make(map[string]bool, len(cfg.Schedules))
	schedules := make([]*Schedule, 0, len(cfg.Schedules))
	for i := range cfg.Schedules {
		s := cfg.Schedules[i]
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("%w: duplicate name %s", ErrInvalidSchedule, s.Name)
		}
		seen[s.Name] = true

		next, err := CalculateNextDue(&s, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		s.NextDueAt = next
		schedules = append(schedules, &s)
	}

	return &Scheduler{
		schedules: schedules,
		submitter: cfg.Submitter,
		interval:  interval,
		logger:    logger,
	}, nil
}

// Tick отправляет job для всех расписаний, срок которых наступил,
// и возвращает число отправленных.
//
// Ошибка одного расписания не блокирует остальные; при ошибке NextDueAt
// не сдвигается, и попытка повторится на следующем тике.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	submitted := 0
	for _, sched := range s.schedules {
		if !sched.IsDue(now) {
			continue
		}

		id, err := s.submitter.Submit(ctx, sched.Job)
		if err != nil {
			s.logger.Error("failed to submit scheduled job",
				"schedule", sched.Name,
				"error", err,
			)
			continue
		}

		next, err := CalculateNextDue(sched, now)
		if err != nil {
			s.logger.Error("failed to calculate next due, disabling schedule",
				"schedule", sched.Name,
				"error", err,
			)
			sched.Disabled = true
			next = time.Time{}
		}
		sched.recordRun(id, now, next)
		submitted++

		s.logger.Info("submitted scheduled job",
			"schedule", sched.Name,
			"job_id", id,
			"next_due_at", next,
		)
	}

	return submitted
}

// Run вызывает Tick с периодом interval, пока ctx не отменён.
func (s *Scheduler) Run(ctx context.Context) {
	if s.Len() == 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("recurring scheduler started",
		"schedules", s.Len(),
		"interval", s.interval,
	)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Len возвращает количество расписаний.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.schedules)
}

// Schedules возвращает копию расписаний с текущим состоянием.
func (s *Scheduler) Schedules() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		c := *sched
		c.Job.RequiredCapabilities = slices.Clone(sched.Job.RequiredCapabilities)
		c.Job.Stages = slices.Clone(sched.Job.Stages)
		out = append(out, c)
	}
	return out
}
