package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shaiso/Foundry/internal/domain"
)

// SubmitJob принимает JobSpec и ставит job в очередь.
// POST /api/v1/jobs
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var spec domain.JobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	id, err := h.orch.Submit(r.Context(), spec)
	if HandleError(w, h.logger, err) {
		return
	}

	Accepted(w, r, SubmitJobResponse{ID: id, Status: domain.JobStatusQueued})
}

// GetJob возвращает снимок job.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return
	}

	job, err := h.orch.GetStatus(id)
	if HandleError(w, h.logger, err) {
		return
	}

	Success(w, r, JobFromDomain(job))
}

// ListJobs возвращает job с опциональным фильтром по статусу.
// GET /api/v1/jobs?status=...
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var status domain.JobStatus
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, ok := domain.ParseJobStatus(s)
		if !ok {
			BadRequest(w, "invalid status")
			return
		}
		status = parsed
	}

	jobs := h.orch.ListJobs(status)

	result := make([]JobResponse, len(jobs))
	for i := range jobs {
		result[i] = JobFromDomain(jobs[i])
	}

	List(w, r, result, len(result))
}
