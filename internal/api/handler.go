package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Foundry/internal/domain"
	"github.com/shaiso/Foundry/internal/orchestrator"
	"github.com/shaiso/Foundry/internal/recurring"
	"github.com/shaiso/Foundry/internal/telemetry"
)

// Orchestrator — операции ядра, доступные через API.
type Orchestrator interface {
	Submit(ctx context.Context, spec domain.JobSpec) (uuid.UUID, error)
	GetStatus(id uuid.UUID) (domain.JobSnapshot, error)
	ListJobs(status domain.JobStatus) []domain.JobSnapshot
	GetSystemStatus() orchestrator.SystemStatus
	HaltAll(ctx context.Context) orchestrator.HaltReport
	RegisterWorker(desc domain.WorkerDescriptor) error
	Workers() []domain.Worker
}

// ArchiveLister отдаёт последние завершённые job (archive.Memory).
type ArchiveLister interface {
	List(limit int) []domain.CompletionEvent
}

// ScheduleLister отдаёт расписания (recurring.Scheduler).
type ScheduleLister interface {
	Schedules() []recurring.Schedule
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	orch      Orchestrator
	archive   ArchiveLister
	schedules ScheduleLister
	logger    *slog.Logger
	metrics   *telemetry.Metrics
}

// Config — конфигурация для создания Handler.
type Config struct {
	Orchestrator Orchestrator
	Archive      ArchiveLister  // опционально
	Schedules    ScheduleLister // опционально
	Logger       *slog.Logger
	Metrics      *telemetry.Metrics // опционально
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		orch:      cfg.Orchestrator,
		archive:   cfg.Archive,
		schedules: cfg.Schedules,
		logger:    logger,
		metrics:   cfg.Metrics,
	}
}
