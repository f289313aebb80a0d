package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Foundry/internal/domain"
)

// fakeAPI записывает запросы и отвечает заготовленными телами.
type fakeAPI struct {
	lastMethod string
	lastPath   string
	lastBody   []byte
	status     int
	response   string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lastMethod = r.Method
	f.lastPath = r.URL.RequestURI()
	f.lastBody, _ = io.ReadAll(r.Body)

	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, f.response)
}

func run(t *testing.T, api *fakeAPI, stdin string, cmd func(func() *Client, func() *Output) *cobra.Command, args ...string) (string, string, error) {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	var stdout, stderr bytes.Buffer
	c := cmd(
		func() *Client { return NewClient(srv.URL) },
		func() *Output { return NewOutputTo(&stdout, &stderr, false) },
	)
	if args == nil {
		args = []string{}
	}
	c.SetArgs(args)
	c.SetIn(strings.NewReader(stdin))
	c.SetOut(&stdout)
	c.SetErr(&stderr)
	c.SilenceUsage = true
	c.SilenceErrors = true

	err := c.Execute()
	return stdout.String(), stderr.String(), err
}

func TestJobSubmit_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
required_capabilities: [render, gpu]
priority: 8
worker_count: 2
timeout_sec: 60
payload:
  scene: castle
stages: [INGEST, PROCESS, QUALITY_ASSURANCE]
`), 0o644))

	api := &fakeAPI{status: http.StatusAccepted, response: `{"data":{"id":"abc","status":"QUEUED"}}`}
	stdout, stderr, err := run(t, api, "", NewJobCmd, "submit", "-f", path, "--payload", "quality=high")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, api.lastMethod)
	assert.Equal(t, "/api/v1/jobs", api.lastPath)

	var sent JobSpecRequest
	require.NoError(t, json.Unmarshal(api.lastBody, &sent))
	assert.Equal(t, []string{"INGEST", "PROCESS", "QUALITY_ASSURANCE"}, sent.Stages)
	assert.Equal(t, []string{"render", "gpu"}, sent.RequiredCapabilities)
	require.NotNil(t, sent.Priority)
	assert.Equal(t, 8, *sent.Priority)
	assert.Equal(t, 2, sent.WorkerCount)
	assert.Equal(t, 60, sent.TimeoutSec)
	assert.Equal(t, "castle", sent.Payload["scene"])
	assert.Equal(t, "high", sent.Payload["quality"])

	assert.Contains(t, stderr, "Job submitted: abc")
	assert.Contains(t, stdout, "QUEUED")
}

func TestJobSubmit_FromFlags(t *testing.T) {
	api := &fakeAPI{status: http.StatusAccepted, response: `{"data":{"id":"abc","status":"QUEUED"}}`}
	_, _, err := run(t, api, "", NewJobCmd, "submit", "--stage", "INGEST,PROCESS", "--capability", "render")
	require.NoError(t, err)

	var sent JobSpecRequest
	require.NoError(t, json.Unmarshal(api.lastBody, &sent))
	assert.Equal(t, []string{"INGEST", "PROCESS"}, sent.Stages)
	assert.Nil(t, sent.Priority)
}

// fakeBroker запоминает опубликованные заявки.
type fakeBroker struct {
	url     string
	specs   []domain.JobSpec
	closed  bool
	dialErr error
}

func (b *fakeBroker) PublishJobSubmitted(_ context.Context, spec domain.JobSpec) error {
	b.specs = append(b.specs, spec)
	return nil
}

func (b *fakeBroker) Close() error {
	b.closed = true
	return nil
}

func (b *fakeBroker) jobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return newJobCmd(clientFn, outputFn, func(_ context.Context, url string) (BrokerSubmitter, error) {
		if b.dialErr != nil {
			return nil, b.dialErr
		}
		b.url = url
		return b, nil
	})
}

func TestJobSubmit_ViaBroker(t *testing.T) {
	api := &fakeAPI{}
	broker := &fakeBroker{}

	_, stderr, err := run(t, api, "", broker.jobCmd,
		"submit", "--broker", "amqp://localhost:5672/",
		"--stage", "INGEST,QUALITY_ASSURANCE", "--capability", "render", "--priority", "7")
	require.NoError(t, err)

	assert.Empty(t, api.lastMethod, "HTTP API must not be called")
	assert.Equal(t, "amqp://localhost:5672/", broker.url)
	assert.True(t, broker.closed)
	require.Len(t, broker.specs, 1)

	sent := broker.specs[0]
	assert.Equal(t, []domain.StageName{domain.StageIngest, domain.StageQualityAssurance}, sent.Stages)
	assert.Equal(t, []string{"render"}, sent.RequiredCapabilities)
	assert.Equal(t, 7, sent.EffectivePriority())
	assert.Contains(t, stderr, "published to broker")
}

func TestJobSubmit_ViaBrokerRejectsInvalidSpec(t *testing.T) {
	broker := &fakeBroker{}

	_, _, err := run(t, &fakeAPI{}, "", broker.jobCmd,
		"submit", "--broker", "amqp://localhost:5672/", "--stage", "INGEST,INGEST")
	assert.ErrorIs(t, err, domain.ErrInvalidJobSpec)
	assert.Empty(t, broker.specs)
	assert.Empty(t, broker.url, "invalid spec must not dial the broker")
}

func TestJobSubmit_ViaBrokerDialError(t *testing.T) {
	broker := &fakeBroker{dialErr: errors.New("connection refused")}

	_, _, err := run(t, &fakeAPI{}, "", broker.jobCmd,
		"submit", "--broker", "amqp://localhost:5672/", "--stage", "INGEST")
	assert.ErrorContains(t, err, "connection refused")
}

func TestJobSubmit_NoStages(t *testing.T) {
	_, _, err := run(t, &fakeAPI{}, "", NewJobCmd, "submit")
	assert.ErrorContains(t, err, "no stages")
}

func TestJobSubmit_APIError(t *testing.T) {
	api := &fakeAPI{
		status:   http.StatusBadRequest,
		response: `{"error":{"code":"BAD_REQUEST","message":"invalid job spec: unknown stage X"}}`,
	}
	_, _, err := run(t, api, "", NewJobCmd, "submit", "--stage", "X")
	assert.EqualError(t, err, "BAD_REQUEST: invalid job spec: unknown stage X")
}

func TestJobList(t *testing.T) {
	api := &fakeAPI{response: `{"data":[{"id":"j1","status":"PROCESSING","priority":5,"current_stage":"PROCESS","progress":50}],"total":1}`}
	stdout, _, err := run(t, api, "", NewJobCmd, "list", "--status", "processing")
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/jobs?status=PROCESSING", api.lastPath)
	assert.Contains(t, stdout, "j1")
	assert.Contains(t, stdout, "50%")
}

func TestJobShow(t *testing.T) {
	api := &fakeAPI{response: `{"data":{"id":"j1","status":"COMPLETED","progress":100,"quality_score":0.91,"success":true}}`}
	stdout, _, err := run(t, api, "", NewJobCmd, "show", "j1")
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/jobs/j1", api.lastPath)
	assert.Contains(t, stdout, "0.91")
	assert.Contains(t, stdout, "100%")
}

func TestHalt_Confirmation(t *testing.T) {
	api := &fakeAPI{response: `{"data":{"stopped_processing":2,"cleared_queued":3}}`}

	_, stderr, err := run(t, api, "n\n", NewHaltCmd)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Aborted")
	assert.Empty(t, api.lastMethod)

	_, stderr, err = run(t, api, "y\n", NewHaltCmd)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/halt", api.lastPath)
	assert.Contains(t, stderr, "2 processing stopped, 3 queued cleared")
}

func TestHalt_Yes(t *testing.T) {
	api := &fakeAPI{response: `{"data":{"stopped_processing":0,"cleared_queued":0}}`}
	_, _, err := run(t, api, "", NewHaltCmd, "--yes")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, api.lastMethod)
}

func TestWorkerRegister(t *testing.T) {
	api := &fakeAPI{status: http.StatusCreated, response: `{"data":{}}`}
	_, stderr, err := run(t, api, "", NewWorkerCmd, "register", "w9", "--capability", "render", "--max-jobs", "3")
	require.NoError(t, err)

	var sent RegisterWorkerRequest
	require.NoError(t, json.Unmarshal(api.lastBody, &sent))
	assert.Equal(t, RegisterWorkerRequest{ID: "w9", Capabilities: []string{"render"}, MaxConcurrentJobs: 3}, sent)
	assert.Contains(t, stderr, "Worker registered: w9")
}

func TestStatus(t *testing.T) {
	api := &fakeAPI{response: `{"data":{"queued_count":4,"processing_count":1,"completed_count":10,"worker_utilization_percent":25,"stats":{"success_rate":0.75}}}`}
	stdout, _, err := run(t, api, "", NewStatusCmd)
	require.NoError(t, err)
	assert.Contains(t, stdout, "25.0%")
	assert.Contains(t, stdout, "0.75")
}

func TestOutput_JSONMode(t *testing.T) {
	var stdout bytes.Buffer
	out := NewOutputTo(&stdout, io.Discard, true)
	out.List([]string{"A"}, [][]string{{"x"}}, map[string]int{"a": 1})

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.Equal(t, 1, decoded["a"])
}

func TestOutput_EmptyList(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(&stdout, &stderr, false)
	out.List([]string{"ID", "STATUS"}, nil, []string{})

	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "No results")
}

func TestOutput_Detail(t *testing.T) {
	var stdout bytes.Buffer
	out := NewOutputTo(&stdout, io.Discard, false)
	out.Detail([]Field{{"ID", "j1"}, {"Error", ""}}, nil)

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^ID:\s+j1$`, lines[0])
	assert.Regexp(t, `^Error:\s+-$`, lines[1])
}

func TestOutput_EncodeErrorReported(t *testing.T) {
	var stderr bytes.Buffer
	out := NewOutputTo(io.Discard, &stderr, true)
	out.Result(map[string]any{"score": math.NaN()})

	assert.Contains(t, stderr.String(), "encode output")
}

func TestJobList_Empty(t *testing.T) {
	api := &fakeAPI{response: `{"data":[],"total":0}`}
	stdout, stderr, err := run(t, api, "", NewJobCmd, "list")
	require.NoError(t, err)

	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "No results")
}
