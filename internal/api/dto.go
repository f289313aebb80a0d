package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Foundry/internal/domain"
	"github.com/shaiso/Foundry/internal/orchestrator"
	"github.com/shaiso/Foundry/internal/recurring"
)

// Job DTOs

// SubmitJobResponse — ответ на отправку job.
type SubmitJobResponse struct {
	ID     uuid.UUID        `json:"id"`
	Status domain.JobStatus `json:"status"`
}

// JobResponse — ответ с job.
type JobResponse struct {
	ID                   uuid.UUID          `json:"id"`
	Status               domain.JobStatus   `json:"status"`
	Priority             int                `json:"priority"`
	RequiredCapabilities []string           `json:"required_capabilities"`
	WorkerCount          int                `json:"worker_count"`
	Stages               []domain.StageName `json:"stages"`
	CurrentStage         domain.StageName   `json:"current_stage,omitempty"`
	Progress             float64            `json:"progress"`
	AssignedWorkers      []string           `json:"assigned_workers,omitempty"`
	QualityScore         *float64           `json:"quality_score,omitempty"`
	Success              bool               `json:"success"`
	Outputs              map[string]any     `json:"outputs,omitempty"`
	Error                string             `json:"error,omitempty"`
	DurationMs           int64              `json:"duration_ms,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	StartedAt            *time.Time         `json:"started_at,omitempty"`
	CompletedAt          *time.Time         `json:"completed_at,omitempty"`
}

// JobFromDomain конвертирует domain.JobSnapshot в JobResponse.
func JobFromDomain(j domain.JobSnapshot) JobResponse {
	return JobResponse{
		ID:                   j.ID,
		Status:               j.Status,
		Priority:             j.Priority,
		RequiredCapabilities: j.RequiredCapabilities,
		WorkerCount:          j.WorkerCount,
		Stages:               j.Stages,
		CurrentStage:         j.CurrentStage,
		Progress:             j.Progress,
		AssignedWorkers:      j.AssignedWorkers,
		QualityScore:         j.QualityScore,
		Success:              j.Success,
		Outputs:              j.Outputs,
		Error:                j.Error,
		DurationMs:           j.Duration().Milliseconds(),
		CreatedAt:            j.CreatedAt,
		StartedAt:            j.StartedAt,
		CompletedAt:          j.CompletedAt,
	}
}

// Worker DTOs

// WorkerResponse — ответ с worker.
type WorkerResponse struct {
	ID                string   `json:"id"`
	Capabilities      []string `json:"capabilities"`
	MaxConcurrentJobs int      `json:"max_concurrent_jobs"`
	CurrentLoad       int      `json:"current_load"`
	Available         bool     `json:"available"`
}

// WorkerFromDomain конвертирует domain.Worker в WorkerResponse.
func WorkerFromDomain(w domain.Worker) WorkerResponse {
	return WorkerResponse{
		ID:                w.ID,
		Capabilities:      w.Capabilities,
		MaxConcurrentJobs: w.MaxConcurrentJobs,
		CurrentLoad:       w.CurrentLoad,
		Available:         w.Available(),
	}
}

// System DTOs

// StatusResponse — снимок состояния системы.
type StatusResponse struct {
	QueuedCount              int              `json:"queued_count"`
	ProcessingCount          int              `json:"processing_count"`
	CompletedCount           int64            `json:"completed_count"`
	WorkerUtilizationPercent float64          `json:"worker_utilization_percent"`
	Workers                  []WorkerResponse `json:"workers"`
	Stats                    StatsResponse    `json:"stats"`
}

// StatsResponse — агрегированная статистика.
type StatsResponse struct {
	TotalProcessed          int64   `json:"total_processed"`
	AverageProcessingTimeMs int64   `json:"average_processing_time_ms"`
	SuccessRate             float64 `json:"success_rate"`
	Completed               int64   `json:"completed"`
	Failed                  int64   `json:"failed"`
	Stopped                 int64   `json:"stopped"`
}

// StatusFromDomain конвертирует orchestrator.SystemStatus в StatusResponse.
func StatusFromDomain(s orchestrator.SystemStatus) StatusResponse {
	workers := make([]WorkerResponse, len(s.Workers))
	for i, w := range s.Workers {
		workers[i] = WorkerFromDomain(w)
	}

	return StatusResponse{
		QueuedCount:              s.QueuedCount,
		ProcessingCount:          s.ProcessingCount,
		CompletedCount:           s.CompletedCount,
		WorkerUtilizationPercent: s.WorkerUtilizationPercent,
		Workers:                  workers,
		Stats: StatsResponse{
			TotalProcessed:          s.Stats.TotalProcessed,
			AverageProcessingTimeMs: s.Stats.AverageProcessingTime.Milliseconds(),
			SuccessRate:             s.Stats.SuccessRate,
			Completed:               s.Stats.Completed,
			Failed:                  s.Stats.Failed,
			Stopped:                 s.Stats.Stopped,
		},
	}
}

// HaltResponse — итог аварийной остановки.
type HaltResponse struct {
	StoppedProcessing int       `json:"stopped_processing"`
	ClearedQueued     int       `json:"cleared_queued"`
	HaltedAt          time.Time `json:"halted_at"`
}

// Schedule DTOs

// ScheduleResponse — ответ с расписанием.
type ScheduleResponse struct {
	Name        string     `json:"name"`
	CronExpr    string     `json:"cron_expr,omitempty"`
	IntervalSec int        `json:"interval_sec,omitempty"`
	Timezone    string     `json:"timezone,omitempty"`
	Enabled     bool       `json:"enabled"`
	NextDueAt   time.Time  `json:"next_due_at"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastJobID   *uuid.UUID `json:"last_job_id,omitempty"`
	RunCount    int        `json:"run_count"`
}

// ScheduleFromDomain конвертирует recurring.Schedule в ScheduleResponse.
func ScheduleFromDomain(s recurring.Schedule) ScheduleResponse {
	resp := ScheduleResponse{
		Name:        s.Name,
		CronExpr:    s.CronExpr,
		IntervalSec: s.IntervalSec,
		Timezone:    s.Timezone,
		Enabled:     !s.Disabled,
		NextDueAt:   s.NextDueAt,
		LastRunAt:   s.LastRunAt,
		RunCount:    s.RunCount,
	}
	if s.LastJobID != uuid.Nil {
		id := s.LastJobID
		resp.LastJobID = &id
	}
	return resp
}
