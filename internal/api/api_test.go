package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Foundry/internal/archive"
	"github.com/shaiso/Foundry/internal/domain"
	"github.com/shaiso/Foundry/internal/orchestrator"
	"github.com/shaiso/Foundry/internal/pipeline"
	"github.com/shaiso/Foundry/internal/recurring"
	"github.com/shaiso/Foundry/internal/registry"
	"github.com/shaiso/Foundry/internal/telemetry"
)

// fakeOrchestrator — управляемая реализация Orchestrator.
type fakeOrchestrator struct {
	submitErr   error
	submitted   []domain.JobSpec
	jobs        map[uuid.UUID]domain.JobSnapshot
	registerErr error
	workers     []domain.Worker
	halted      int
}

func (f *fakeOrchestrator) Submit(_ context.Context, spec domain.JobSpec) (uuid.UUID, error) {
	if f.submitErr != nil {
		return uuid.Nil, f.submitErr
	}
	f.submitted = append(f.submitted, spec)
	return uuid.New(), nil
}

func (f *fakeOrchestrator) GetStatus(id uuid.UUID) (domain.JobSnapshot, error) {
	job, ok := f.jobs[id]
	if !ok {
		return domain.JobSnapshot{}, fmt.Errorf("%w: %s", orchestrator.ErrJobNotFound, id)
	}
	return job, nil
}

func (f *fakeOrchestrator) ListJobs(status domain.JobStatus) []domain.JobSnapshot {
	var out []domain.JobSnapshot
	for _, j := range f.jobs {
		if status == "" || j.Status == status {
			out = append(out, j)
		}
	}
	return out
}

func (f *fakeOrchestrator) GetSystemStatus() orchestrator.SystemStatus {
	return orchestrator.SystemStatus{
		QueuedCount:              2,
		ProcessingCount:          1,
		CompletedCount:           7,
		WorkerUtilizationPercent: 50,
		Workers:                  f.workers,
		Stats:                    domain.SystemStats{TotalProcessed: 7, AverageProcessingTime: 1500 * time.Millisecond},
	}
}

func (f *fakeOrchestrator) HaltAll(context.Context) orchestrator.HaltReport {
	f.halted++
	return orchestrator.HaltReport{StoppedProcessing: 1, ClearedQueued: 2, HaltedAt: time.Now()}
}

func (f *fakeOrchestrator) RegisterWorker(domain.WorkerDescriptor) error {
	return f.registerErr
}

func (f *fakeOrchestrator) Workers() []domain.Worker {
	return f.workers
}

type fakeSchedules []recurring.Schedule

func (s fakeSchedules) Schedules() []recurring.Schedule { return s }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	cfg.Logger = discardLogger()
	srv := httptest.NewServer(NewHandler(cfg).NewRouter(prometheus.NewRegistry()))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestSubmitJob(t *testing.T) {
	orch := &fakeOrchestrator{}
	srv := newServer(t, Config{Orchestrator: orch})

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/jobs",
		`{"required_capabilities":["render"],"priority":9,"stages":["INGEST","PROCESS"]}`)

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	data := body["data"].(map[string]any)
	_, err := uuid.Parse(data["id"].(string))
	assert.NoError(t, err)
	assert.Equal(t, "QUEUED", data["status"])

	require.Len(t, orch.submitted, 1)
	assert.Equal(t, 9, orch.submitted[0].EffectivePriority())
	assert.Equal(t, []domain.StageName{domain.StageIngest, domain.StageProcess}, orch.submitted[0].Stages)
}

func TestSubmitJob_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest, "BAD_REQUEST"},
		{"invalid spec", `{"stages":[]}`, fmt.Errorf("%w: stage list is empty", domain.ErrInvalidJobSpec), http.StatusBadRequest, "BAD_REQUEST"},
		{"stopped", `{"stages":["INGEST"]}`, orchestrator.ErrOrchestratorStopped, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"internal", `{"stages":["INGEST"]}`, fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, Config{Orchestrator: &fakeOrchestrator{submitErr: tt.err}})

			resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/jobs", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, errorCode(body))
		})
	}
}

func TestGetJob(t *testing.T) {
	id := uuid.New()
	score := 0.9
	orch := &fakeOrchestrator{jobs: map[uuid.UUID]domain.JobSnapshot{
		id: {ID: id, Status: domain.JobStatusCompleted, Progress: 100, QualityScore: &score, Success: true},
	}}
	srv := newServer(t, Config{Orchestrator: orch})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+id.String(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, id.String(), data["id"])
	assert.Equal(t, "COMPLETED", data["status"])
	assert.InDelta(t, 0.9, data["quality_score"], 1e-9)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListJobs_StatusFilter(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	orch := &fakeOrchestrator{jobs: map[uuid.UUID]domain.JobSnapshot{
		a: {ID: a, Status: domain.JobStatusQueued},
		b: {ID: b, Status: domain.JobStatusFailed},
	}}
	srv := newServer(t, Config{Orchestrator: orch})

	_, body := do(t, http.MethodGet, srv.URL+"/api/v1/jobs", "")
	assert.EqualValues(t, 2, body["total"])

	_, body = do(t, http.MethodGet, srv.URL+"/api/v1/jobs?status=FAILED", "")
	items := body["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, b.String(), items[0].(map[string]any)["id"])

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/v1/jobs?status=RUNNING", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetStatus(t *testing.T) {
	orch := &fakeOrchestrator{workers: []domain.Worker{
		{ID: "w1", Capabilities: []string{"render"}, MaxConcurrentJobs: 2, CurrentLoad: 1},
	}}
	srv := newServer(t, Config{Orchestrator: orch})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.EqualValues(t, 2, data["queued_count"])
	assert.EqualValues(t, 1, data["processing_count"])
	assert.EqualValues(t, 7, data["completed_count"])
	assert.EqualValues(t, 50, data["worker_utilization_percent"])

	stats := data["stats"].(map[string]any)
	assert.EqualValues(t, 1500, stats["average_processing_time_ms"])

	workers := data["workers"].([]any)
	require.Len(t, workers, 1)
	assert.Equal(t, true, workers[0].(map[string]any)["available"])
}

func TestHalt(t *testing.T) {
	orch := &fakeOrchestrator{}
	srv := newServer(t, Config{Orchestrator: orch})

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/halt", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, orch.halted)

	data := body["data"].(map[string]any)
	assert.EqualValues(t, 1, data["stopped_processing"])
	assert.EqualValues(t, 2, data["cleared_queued"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/halt", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRegisterWorker(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusCreated},
		{"invalid", fmt.Errorf("%w: empty id", registry.ErrInvalidWorker), http.StatusBadRequest},
		{"duplicate", fmt.Errorf("%w: w1", registry.ErrDuplicateID), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, Config{Orchestrator: &fakeOrchestrator{registerErr: tt.err}})

			resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/workers",
				`{"id":"w1","capabilities":["render"],"max_concurrent_jobs":1}`)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestListArchive(t *testing.T) {
	mem := archive.NewMemory(10)
	for i := 0; i < 3; i++ {
		require.NoError(t, mem.Store(context.Background(), domain.CompletionEvent{
			JobID:  uuid.New(),
			Status: domain.JobStatusCompleted,
		}))
	}
	srv := newServer(t, Config{Orchestrator: &fakeOrchestrator{}, Archive: mem})

	_, body := do(t, http.MethodGet, srv.URL+"/api/v1/archive?limit=2", "")
	assert.EqualValues(t, 2, body["total"])

	resp, _ := do(t, http.MethodGet, srv.URL+"/api/v1/archive?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListArchive_NotConfigured(t *testing.T) {
	srv := newServer(t, Config{Orchestrator: &fakeOrchestrator{}})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/archive", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])
}

func TestListSchedules(t *testing.T) {
	lastID := uuid.New()
	schedules := fakeSchedules{
		{Name: "nightly", CronExpr: "0 3 * * *", LastJobID: lastID, RunCount: 4},
		{Name: "poll", IntervalSec: 60, Disabled: true},
	}
	srv := newServer(t, Config{Orchestrator: &fakeOrchestrator{}, Schedules: schedules})

	_, body := do(t, http.MethodGet, srv.URL+"/api/v1/schedules", "")
	items := body["data"].([]any)
	require.Len(t, items, 2)

	first := items[0].(map[string]any)
	assert.Equal(t, "nightly", first["name"])
	assert.Equal(t, lastID.String(), first["last_job_id"])
	assert.Equal(t, true, first["enabled"])
	assert.Equal(t, false, items[1].(map[string]any)["enabled"])
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t, Config{Orchestrator: &fakeOrchestrator{}})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	srv := newServer(t, Config{Orchestrator: &fakeOrchestrator{}})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Recovery(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJSON_EncodeFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/x", nil)
	req = req.WithContext(telemetry.WithLogger(req.Context(), logger))
	rec := httptest.NewRecorder()

	Success(rec, req, map[string]float64{"quality_score": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_ERROR", errorCode(body))
	assert.Contains(t, logs.String(), "failed to encode response")
}

func TestInstrument(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	h := middleware.RequestID(Instrument(logger, metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		telemetry.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, `"request_id"`)
	}
	assert.Contains(t, lines[0], "inside handler")
	assert.Contains(t, lines[1], `"status":418`)

	n, err := testutil.GatherAndCount(reg, "foundry_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// Сквозной сценарий на настоящем оркестраторе.
func TestEndToEnd_SubmitAndComplete(t *testing.T) {
	logger := discardLogger()

	reg := registry.New(logger)
	require.NoError(t, reg.Register(domain.WorkerDescriptor{ID: "w1", Capabilities: []string{"render"}, MaxConcurrentJobs: 1}))

	mem := archive.NewMemory(10)
	orch := orchestrator.New(orchestrator.Config{
		Registry: reg,
		Executor: pipeline.NewExecutor(pipeline.Config{
			Stages: pipeline.NewDefaultRegistry(0, 0),
			Scorer: pipeline.FixedScorer(0.95),
			Logger: logger,
		}),
		Archive:      mem,
		PollInterval: 10 * time.Millisecond,
		Logger:       logger,
	})
	require.NoError(t, orch.Start(context.Background()))
	t.Cleanup(orch.Stop)

	srv := newServer(t, Config{Orchestrator: orch, Archive: mem})

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/jobs",
		`{"required_capabilities":["render"],"stages":["INGEST","QUALITY_ASSURANCE"]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := body["data"].(map[string]any)["id"].(string)

	require.Eventually(t, func() bool {
		_, body := do(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+id, "")
		data, _ := body["data"].(map[string]any)
		return data != nil && data["status"] == "COMPLETED"
	}, 5*time.Second, 10*time.Millisecond)

	_, body = do(t, http.MethodGet, srv.URL+"/api/v1/jobs/"+id, "")
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 100, data["progress"])
	assert.Equal(t, true, data["success"])

	require.Eventually(t, func() bool { return mem.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/jobs", `{"stages":["UNKNOWN"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
