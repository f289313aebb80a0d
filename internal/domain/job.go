package domain

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Job — единица работы, проходящая через pipeline.
//
// Job создаётся в Submit и живёт в памяти оркестратора до терминального
// статуса, после чего уходит в архив.
//
// Инварианты:
//   - статус меняется только вперёд (JobStatus.CanTransitionTo)
//   - AssignedWorkers непустой тогда и только тогда, когда Status == PROCESSING
//   - Progress не убывает и равен 100 только в COMPLETED
type Job struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// Priority — чем больше, тем раньше dispatch.
	Priority int `json:"priority"`

	// RequiredCapabilities — нормализованное множество тегов.
	RequiredCapabilities []string `json:"required_capabilities"`

	// WorkerCount — сколько workers резервируется под job.
	WorkerCount int `json:"worker_count"`

	// Payload — данные от builder'а.
	Payload map[string]any `json:"payload,omitempty"`

	// Stages — упорядоченный список стадий.
	Stages []StageName `json:"stages"`

	// Timeout — дедлайн pipeline (0 — без дедлайна).
	Timeout time.Duration `json:"timeout,omitempty"`

	// Status — текущий статус.
	Status JobStatus `json:"status"`

	// AssignedWorkers — зарезервированные workers (только в PROCESSING).
	AssignedWorkers []string `json:"assigned_workers,omitempty"`

	// CurrentStageIndex — индекс текущей стадии, -1 до старта pipeline.
	CurrentStageIndex int `json:"current_stage_index"`

	// CurrentStage — имя текущей стадии.
	CurrentStage StageName `json:"current_stage,omitempty"`

	// Progress — прогресс в процентах [0, 100].
	Progress float64 `json:"progress"`

	// QualityScore — оценка QUALITY_ASSURANCE в [0, 1].
	QualityScore *float64 `json:"quality_score,omitempty"`

	// Success — job завершён и прошёл порог качества.
	Success bool `json:"success"`

	// Outputs — объединённые outputs стадий.
	Outputs map[string]any `json:"outputs,omitempty"`

	// Error — текст ошибки для FAILED/STOPPED.
	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobSnapshot — неизменяемая копия Job для внешних читателей.
type JobSnapshot = Job

// NewJob создаёт job в статусе QUEUED из провалидированного spec.
func NewJob(spec *JobSpec, now time.Time) *Job {
	return &Job{
		ID:                   uuid.New(),
		Priority:             spec.EffectivePriority(),
		RequiredCapabilities: NormalizeCapabilities(spec.RequiredCapabilities),
		WorkerCount:          spec.EffectiveWorkerCount(),
		Payload:              maps.Clone(spec.Payload),
		Stages:               slices.Clone(spec.Stages),
		Timeout:              spec.Timeout(),
		Status:               JobStatusQueued,
		CurrentStageIndex:    -1,
		CreatedAt:            now,
	}
}

// Duration возвращает продолжительность обработки.
// Возвращает 0, если job не стартовал или ещё не завершён.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// IsFinished возвращает true, если job в терминальном статусе.
func (j *Job) IsFinished() bool {
	return j.Status.IsTerminal()
}

// MarkProcessing переводит job в PROCESSING с назначенными workers.
func (j *Job) MarkProcessing(workers []string) bool {
	if !j.Status.CanTransitionTo(JobStatusProcessing) || len(workers) == 0 {
		return false
	}
	now := time.Now()
	j.Status = JobStatusProcessing
	j.AssignedWorkers = slices.Clone(workers)
	j.StartedAt = &now
	return true
}

// EnterStage фиксирует вход в стадию index.
// Progress выставляется в index/total*100 и никогда не уменьшается.
func (j *Job) EnterStage(index int, name StageName) {
	j.CurrentStageIndex = index
	j.CurrentStage = name

	if total := len(j.Stages); total > 0 {
		progress := float64(index) / float64(total) * 100
		if progress > j.Progress {
			j.Progress = progress
		}
	}
}

// MarkCompleted переводит job в COMPLETED.
func (j *Job) MarkCompleted(score *float64, success bool) bool {
	if !j.Status.CanTransitionTo(JobStatusCompleted) {
		return false
	}
	j.finish(JobStatusCompleted)
	j.Progress = 100
	j.QualityScore = score
	j.Success = success
	return true
}

// MarkFailed переводит job в FAILED с ошибкой.
func (j *Job) MarkFailed(err string) bool {
	if !j.Status.CanTransitionTo(JobStatusFailed) {
		return false
	}
	j.finish(JobStatusFailed)
	j.Error = err
	return true
}

// MarkStopped переводит job в STOPPED (из QUEUED или PROCESSING).
func (j *Job) MarkStopped(reason string) bool {
	if !j.Status.CanTransitionTo(JobStatusStopped) {
		return false
	}
	j.finish(JobStatusStopped)
	j.Error = reason
	return true
}

func (j *Job) finish(status JobStatus) {
	now := time.Now()
	j.Status = status
	j.CompletedAt = &now
	j.AssignedWorkers = nil
}

// Snapshot возвращает глубокую копию job.
func (j *Job) Snapshot() JobSnapshot {
	s := *j
	s.RequiredCapabilities = slices.Clone(j.RequiredCapabilities)
	s.AssignedWorkers = slices.Clone(j.AssignedWorkers)
	s.Stages = slices.Clone(j.Stages)
	s.Payload = maps.Clone(j.Payload)
	s.Outputs = maps.Clone(j.Outputs)
	if j.QualityScore != nil {
		score := *j.QualityScore
		s.QualityScore = &score
	}
	return s
}

// CompletionEvent — событие о завершённом job для внешнего архива.
type CompletionEvent struct {
	JobID        uuid.UUID      `json:"job_id"`
	Status       JobStatus      `json:"status"`
	Success      bool           `json:"success"`
	QualityScore *float64       `json:"quality_score,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	Priority     int            `json:"priority"`
	Workers      []string       `json:"workers,omitempty"`
	Stages       []StageName    `json:"stages"`
	Error        string         `json:"error,omitempty"`
	Outputs      map[string]any `json:"outputs,omitempty"`
	CompletedAt  time.Time      `json:"completed_at"`
}

// NewCompletionEvent собирает событие из терминального job.
// workers — назначенные workers (в самом job они уже очищены).
func NewCompletionEvent(j *Job, workers []string) CompletionEvent {
	ev := CompletionEvent{
		JobID:      j.ID,
		Status:     j.Status,
		Success:    j.Success,
		DurationMs: j.Duration().Milliseconds(),
		Priority:   j.Priority,
		Workers:    slices.Clone(workers),
		Stages:     slices.Clone(j.Stages),
		Error:      j.Error,
		Outputs:    maps.Clone(j.Outputs),
	}
	if j.QualityScore != nil {
		score := *j.QualityScore
		ev.QualityScore = &score
	}
	if j.CompletedAt != nil {
		ev.CompletedAt = *j.CompletedAt
	}
	return ev
}
