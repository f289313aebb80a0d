package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shaiso/Foundry/internal/domain"
)

const (
	defaultArchiveLimit = 50
	maxArchiveLimit     = 500
)

// GetStatus возвращает снимок состояния системы.
// GET /api/v1/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	Success(w, r, StatusFromDomain(h.orch.GetSystemStatus()))
}

// Halt аварийно останавливает всю обработку.
// POST /api/v1/halt
func (h *Handler) Halt(w http.ResponseWriter, r *http.Request) {
	report := h.orch.HaltAll(r.Context())

	Success(w, r, HaltResponse{
		StoppedProcessing: report.StoppedProcessing,
		ClearedQueued:     report.ClearedQueued,
		HaltedAt:          report.HaltedAt,
	})
}

// ListWorkers возвращает workers с текущей нагрузкой.
// GET /api/v1/workers
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers := h.orch.Workers()

	result := make([]WorkerResponse, len(workers))
	for i, wk := range workers {
		result[i] = WorkerFromDomain(wk)
	}

	List(w, r, result, len(result))
}

// RegisterWorker регистрирует worker.
// POST /api/v1/workers
func (h *Handler) RegisterWorker(w http.ResponseWriter, r *http.Request) {
	var desc domain.WorkerDescriptor
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if HandleError(w, h.logger, h.orch.RegisterWorker(desc)) {
		return
	}

	Created(w, r, desc)
}

// ListArchive возвращает последние завершённые job.
// GET /api/v1/archive?limit=...
func (h *Handler) ListArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		List(w, r, []domain.CompletionEvent{}, 0)
		return
	}

	limit := defaultArchiveLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = min(n, maxArchiveLimit)
	}

	events := h.archive.List(limit)
	List(w, r, events, len(events))
}

// ListSchedules возвращает расписания периодических job.
// GET /api/v1/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	if h.schedules == nil {
		List(w, r, []ScheduleResponse{}, 0)
		return
	}

	schedules := h.schedules.Schedules()

	result := make([]ScheduleResponse, len(schedules))
	for i := range schedules {
		result[i] = ScheduleFromDomain(schedules[i])
	}

	List(w, r, result, len(result))
}
