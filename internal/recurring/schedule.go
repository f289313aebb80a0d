package recurring

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Foundry/internal/domain"
)

// ErrInvalidSchedule — расписание не прошло проверку.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Schedule — расписание периодической отправки job.
//
// Расписание задаётся либо cron-выражением, либо интервалом:
//
//	schedules:
//	  - name: nightly-render
//	    cron: "0 3 * * *"
//	    timezone: Europe/Moscow
//	    job:
//	      required_capabilities: [render]
//	      stages: [INGEST, PROCESS, QUALITY_ASSURANCE]
type Schedule struct {
	// Name — уникальное имя расписания.
	Name string `yaml:"name" json:"name"`

	// CronExpr — cron-выражение ("минуты часы дни месяцы дни_недели").
	// Если задан, IntervalSec игнорируется.
	CronExpr string `yaml:"cron,omitempty" json:"cron,omitempty"`

	// IntervalSec — интервал между запусками.
	IntervalSec int `yaml:"interval_sec,omitempty" json:"interval_sec,omitempty"`

	// Timezone — часовой пояс для cron (default: UTC).
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`

	// Disabled — расписание пропускается.
	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	// Job — шаблон job, отправляемого при каждом срабатывании.
	Job domain.JobSpec `yaml:"job" json:"job"`

	// Состояние (в конфигурацию не входит)
	NextDueAt time.Time  `yaml:"-" json:"next_due_at"`
	LastRunAt *time.Time `yaml:"-" json:"last_run_at,omitempty"`
	LastJobID uuid.UUID  `yaml:"-" json:"last_job_id,omitempty"`
	RunCount  int        `yaml:"-" json:"run_count"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.IntervalSec > 0
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	return !s.Disabled && !s.NextDueAt.IsZero() && !now.Before(s.NextDueAt)
}

// Validate проверяет расписание и его шаблон job.
func (s *Schedule) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}
	if s.IsCron() {
		if err := ValidateCronExpr(s.CronExpr); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, s.Name, err)
		}
	} else if !s.IsInterval() {
		return fmt.Errorf("%w: %s: either cron or interval_sec is required", ErrInvalidSchedule, s.Name)
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("%w: %s: timezone: %v", ErrInvalidSchedule, s.Name, err)
		}
	}
	if err := s.Job.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSchedule, s.Name, err)
	}
	return nil
}

// recordRun фиксирует запуск и следующее время.
func (s *Schedule) recordRun(jobID uuid.UUID, at, next time.Time) {
	s.LastRunAt = &at
	s.LastJobID = jobID
	s.NextDueAt = next
	s.RunCount++
}
