package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Foundry/internal/domain"
)

// fakeTracker — Tracker для тестов, запоминает прогресс по стадиям.
type fakeTracker struct {
	mu       sync.Mutex
	id       uuid.UUID
	payload  map[string]any
	workers  []string
	entered  []domain.StageName
	progress []float64
	stopped  bool
	total    int
}

func newFakeTracker(total int) *fakeTracker {
	return &fakeTracker{
		id:      uuid.New(),
		payload: map[string]any{},
		workers: []string{"w1"},
		total:   total,
	}
}

func (f *fakeTracker) JobID() uuid.UUID        { return f.id }
func (f *fakeTracker) Payload() map[string]any { return f.payload }
func (f *fakeTracker) Workers() []string       { return f.workers }

func (f *fakeTracker) EnterStage(index int, name domain.StageName) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return false
	}
	f.entered = append(f.entered, name)
	f.progress = append(f.progress, float64(index)/float64(f.total)*100)
	return true
}

func (f *fakeTracker) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeTracker) stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func instantRegistry() *Registry {
	return NewDefaultRegistry(0, 0)
}

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if len(r.Names()) != 0 {
		t.Error("expected empty registry")
	}

	r.Register(domain.StageIngest, &SimulatedStage{})
	if !r.Has(domain.StageIngest) {
		t.Error("should have INGEST")
	}

	_, err := r.Get("UNKNOWN")
	if !errors.Is(err, ErrUnknownStage) {
		t.Errorf("expected ErrUnknownStage, got %v", err)
	}
}

func TestNewDefaultRegistry(t *testing.T) {
	r := instantRegistry()
	for _, name := range domain.DefaultStages() {
		if !r.Has(name) {
			t.Errorf("missing stage %s", name)
		}
	}
	if len(r.Names()) != len(domain.DefaultStages()) {
		t.Errorf("expected %d stages, got %d", len(domain.DefaultStages()), len(r.Names()))
	}
}

// Executor Tests

func TestExecutor_RunsStagesInOrder(t *testing.T) {
	exec := NewExecutor(Config{Stages: instantRegistry(), Scorer: FixedScorer(0.97)})
	stages := domain.DefaultStages()
	tr := newFakeTracker(len(stages))

	res := exec.Run(context.Background(), tr, stages)

	if res.Status != domain.JobStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (err=%v)", res.Status, res.Err)
	}
	if !res.Success {
		t.Error("expected success")
	}
	if res.QualityScore == nil || *res.QualityScore != 0.97 {
		t.Errorf("expected score 0.97, got %v", res.QualityScore)
	}

	if len(tr.entered) != len(stages) {
		t.Fatalf("expected %d stages entered, got %d", len(stages), len(tr.entered))
	}
	for i, name := range stages {
		if tr.entered[i] != name {
			t.Errorf("stage %d: expected %s, got %s", i, name, tr.entered[i])
		}
	}

	for i := 1; i < len(tr.progress); i++ {
		if tr.progress[i] < tr.progress[i-1] {
			t.Errorf("progress decreased: %v", tr.progress)
		}
		if tr.progress[i] >= 100 {
			t.Errorf("progress reached 100 before completion: %v", tr.progress)
		}
	}

	enhance, ok := res.Outputs[string(domain.StageEnhance)].(map[string]any)
	if !ok || enhance["enhanced"] != true {
		t.Errorf("expected ENHANCE outputs to be marked, got %v", res.Outputs)
	}
}

func TestExecutor_QualityBelowThreshold(t *testing.T) {
	exec := NewExecutor(Config{Stages: instantRegistry(), Scorer: FixedScorer(0.5)})
	stages := domain.DefaultStages()

	res := exec.Run(context.Background(), newFakeTracker(len(stages)), stages)

	if res.Status != domain.JobStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", res.Status)
	}
	if res.Success {
		t.Error("expected success=false below threshold")
	}
}

func TestExecutor_ScoreClamped(t *testing.T) {
	exec := NewExecutor(Config{Stages: instantRegistry(), Scorer: FixedScorer(1.7)})
	stages := []domain.StageName{domain.StageQualityAssurance}

	res := exec.Run(context.Background(), newFakeTracker(1), stages)

	if res.QualityScore == nil || *res.QualityScore != 1 {
		t.Errorf("expected clamped score 1, got %v", res.QualityScore)
	}
}

func TestExecutor_NonFiniteScoreFails(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		exec := NewExecutor(Config{Stages: instantRegistry(), Scorer: FixedScorer(v)})

		res := exec.Run(context.Background(), newFakeTracker(1), []domain.StageName{domain.StageQualityAssurance})

		if res.Status != domain.JobStatusFailed {
			t.Fatalf("score %v: expected FAILED, got %s", v, res.Status)
		}
		if !errors.Is(res.Err, ErrScoring) {
			t.Errorf("score %v: expected ErrScoring, got %v", v, res.Err)
		}
		if res.QualityScore != nil {
			t.Errorf("score %v: expected no quality score, got %v", v, *res.QualityScore)
		}
		if _, err := json.Marshal(res.Outputs); err != nil {
			t.Errorf("score %v: outputs must stay encodable: %v", v, err)
		}
	}
}

func TestExecutor_ZeroThresholdAcceptsAnyScore(t *testing.T) {
	zero := 0.0
	exec := NewExecutor(Config{Stages: instantRegistry(), Scorer: FixedScorer(0), PassThreshold: &zero})

	res := exec.Run(context.Background(), newFakeTracker(1), []domain.StageName{domain.StageQualityAssurance})

	if exec.PassThreshold() != 0 {
		t.Errorf("expected threshold 0, got %v", exec.PassThreshold())
	}
	if res.Status != domain.JobStatusCompleted || !res.Success {
		t.Errorf("expected successful completion, got %s success=%v", res.Status, res.Success)
	}
	if res.QualityScore == nil || *res.QualityScore != 0 {
		t.Errorf("expected score 0, got %v", res.QualityScore)
	}
}

func TestExecutor_NoQualityStage(t *testing.T) {
	exec := NewExecutor(Config{Stages: instantRegistry(), Scorer: FixedScorer(0)})
	stages := []domain.StageName{domain.StageIngest, domain.StageProcess}

	res := exec.Run(context.Background(), newFakeTracker(len(stages)), stages)

	if res.Status != domain.JobStatusCompleted || !res.Success {
		t.Errorf("expected successful completion, got %s success=%v", res.Status, res.Success)
	}
	if res.QualityScore != nil {
		t.Error("expected no quality score without QA stage")
	}
}

func TestExecutor_StageError(t *testing.T) {
	reg := instantRegistry()
	reg.Register(domain.StageProcess, StageFunc(func(context.Context, *StageContext) (*StageResult, error) {
		return nil, errors.New("render crashed")
	}))
	exec := NewExecutor(Config{Stages: reg, Scorer: FixedScorer(1)})
	stages := domain.DefaultStages()
	tr := newFakeTracker(len(stages))

	res := exec.Run(context.Background(), tr, stages)

	if res.Status != domain.JobStatusFailed {
		t.Fatalf("expected FAILED, got %s", res.Status)
	}
	if !errors.Is(res.Err, ErrStageExecution) {
		t.Errorf("expected ErrStageExecution, got %v", res.Err)
	}
	if tr.entered[len(tr.entered)-1] != domain.StageProcess {
		t.Errorf("expected to stop at PROCESS, entered %v", tr.entered)
	}
}

func TestExecutor_UnknownStage(t *testing.T) {
	exec := NewExecutor(Config{Stages: NewRegistry(), Scorer: FixedScorer(1)})

	res := exec.Run(context.Background(), newFakeTracker(1), []domain.StageName{"MYSTERY"})

	if res.Status != domain.JobStatusFailed {
		t.Fatalf("expected FAILED, got %s", res.Status)
	}
	if !errors.Is(res.Err, ErrStageExecution) {
		t.Errorf("expected ErrStageExecution, got %v", res.Err)
	}
}

func TestExecutor_StoppedBeforeNextStage(t *testing.T) {
	stages := domain.DefaultStages()
	tr := newFakeTracker(len(stages))

	reg := instantRegistry()
	reg.Register(domain.StageAnalyze, StageFunc(func(context.Context, *StageContext) (*StageResult, error) {
		tr.stop()
		return &StageResult{}, nil
	}))
	exec := NewExecutor(Config{Stages: reg, Scorer: FixedScorer(1)})

	res := exec.Run(context.Background(), tr, stages)

	if res.Status != domain.JobStatusStopped {
		t.Fatalf("expected STOPPED, got %s", res.Status)
	}
	if len(tr.entered) != 2 {
		t.Errorf("expected 2 stages entered, got %v", tr.entered)
	}
}

func TestExecutor_CancelledMidStage(t *testing.T) {
	stages := domain.DefaultStages()
	tr := newFakeTracker(len(stages))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := instantRegistry()
	reg.Register(domain.StageProcess, StageFunc(func(ctx context.Context, _ *StageContext) (*StageResult, error) {
		tr.stop()
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	exec := NewExecutor(Config{Stages: reg, Scorer: FixedScorer(1)})

	res := exec.Run(ctx, tr, stages)

	if res.Status != domain.JobStatusStopped {
		t.Fatalf("expected STOPPED, got %s (err=%v)", res.Status, res.Err)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	reg := instantRegistry()
	reg.Register(domain.StageIngest, &SimulatedStage{Min: time.Second, Max: time.Second})
	exec := NewExecutor(Config{Stages: reg, Scorer: FixedScorer(1)})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := exec.Run(ctx, newFakeTracker(1), []domain.StageName{domain.StageIngest})

	if res.Status != domain.JobStatusFailed {
		t.Fatalf("expected FAILED, got %s", res.Status)
	}
	if !errors.Is(res.Err, ErrJobTimeout) {
		t.Errorf("expected ErrJobTimeout, got %v", res.Err)
	}
}

func TestExecutor_ExpiredContextEntersNoStage(t *testing.T) {
	exec := NewExecutor(Config{Stages: instantRegistry(), Scorer: FixedScorer(1)})
	stages := domain.DefaultStages()
	tr := newFakeTracker(len(stages))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	res := exec.Run(ctx, tr, stages)

	if res.Status != domain.JobStatusFailed {
		t.Fatalf("expected FAILED, got %s", res.Status)
	}
	if !errors.Is(res.Err, ErrJobTimeout) {
		t.Errorf("expected ErrJobTimeout, got %v", res.Err)
	}
	if len(tr.entered) != 0 || len(tr.progress) != 0 {
		t.Errorf("expected no stage entered, got %v (progress %v)", tr.entered, tr.progress)
	}
}

func TestExecutor_Defaults(t *testing.T) {
	exec := NewExecutor(Config{})

	if exec.PassThreshold() != DefaultPassThreshold {
		t.Errorf("expected threshold %v, got %v", DefaultPassThreshold, exec.PassThreshold())
	}
	if !exec.Stages().Has(domain.StageQualityAssurance) {
		t.Error("default registry should contain QUALITY_ASSURANCE")
	}
}

// Stage Tests

func TestSimulatedStage_PayloadDuration(t *testing.T) {
	s := &SimulatedStage{Min: time.Hour, Max: 2 * time.Hour}
	sc := &StageContext{Stage: domain.StageIngest, Payload: map[string]any{"duration_ms": float64(5)}}

	res, err := s.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outputs["elapsed_ms"] != int64(5) {
		t.Errorf("expected elapsed_ms=5, got %v", res.Outputs["elapsed_ms"])
	}
}

func TestSimulatedStage_Cancel(t *testing.T) {
	s := &SimulatedStage{Min: time.Hour, Max: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx, &StageContext{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRandomScorer(t *testing.T) {
	s := NewRandomScorer()
	for range 100 {
		v, _ := s.Score(context.Background(), nil)
		if v < 0.95 || v > 1.0 {
			t.Fatalf("score out of range: %v", v)
		}
	}
}

func TestWebhookStage(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rendered": true}`))
	}))
	defer server.Close()

	s := &WebhookStage{URL: server.URL, Headers: map[string]string{"X-Token": "secret"}}
	sc := &StageContext{
		JobID:   uuid.New(),
		Stage:   domain.StageProcess,
		Workers: []string{"w1"},
		Payload: map[string]any{"scene": "forest"},
	}

	res, err := s.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outputs["status_code"] != http.StatusOK {
		t.Errorf("expected 200, got %v", res.Outputs["status_code"])
	}
	body, ok := res.Outputs["body"].(map[string]any)
	if !ok || body["rendered"] != true {
		t.Errorf("unexpected body: %v", res.Outputs["body"])
	}
	if got["stage"] != string(domain.StageProcess) {
		t.Errorf("expected stage in request, got %v", got["stage"])
	}
}

func TestWebhookStage_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	s := &WebhookStage{URL: server.URL}
	_, err := s.Run(context.Background(), &StageContext{})
	if !errors.Is(err, ErrWebhook) {
		t.Errorf("expected ErrWebhook, got %v", err)
	}
}

func TestWebhookStage_MissingURL(t *testing.T) {
	_, err := (&WebhookStage{}).Run(context.Background(), &StageContext{})
	if !errors.Is(err, ErrWebhook) {
		t.Errorf("expected ErrWebhook, got %v", err)
	}
}
