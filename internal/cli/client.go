package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// JobResponse — job из API.
type JobResponse struct {
	ID                   string         `json:"id"`
	Status               string         `json:"status"`
	Priority             int            `json:"priority"`
	RequiredCapabilities []string       `json:"required_capabilities"`
	WorkerCount          int            `json:"worker_count"`
	Stages               []string       `json:"stages"`
	CurrentStage         string         `json:"current_stage,omitempty"`
	Progress             float64        `json:"progress"`
	AssignedWorkers      []string       `json:"assigned_workers,omitempty"`
	QualityScore         *float64       `json:"quality_score,omitempty"`
	Success              bool           `json:"success"`
	Outputs              map[string]any `json:"outputs,omitempty"`
	Error                string         `json:"error,omitempty"`
	DurationMs           int64          `json:"duration_ms,omitempty"`
	CreatedAt            string         `json:"created_at"`
	StartedAt            string         `json:"started_at,omitempty"`
	CompletedAt          string         `json:"completed_at,omitempty"`
}

// SubmitJobResponse — ответ на отправку job.
type SubmitJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// WorkerResponse — worker из API.
type WorkerResponse struct {
	ID                string   `json:"id"`
	Capabilities      []string `json:"capabilities"`
	MaxConcurrentJobs int      `json:"max_concurrent_jobs"`
	CurrentLoad       int      `json:"current_load"`
	Available         bool     `json:"available"`
}

// StatsResponse — агрегированная статистика из API.
type StatsResponse struct {
	TotalProcessed          int64   `json:"total_processed"`
	AverageProcessingTimeMs int64   `json:"average_processing_time_ms"`
	SuccessRate             float64 `json:"success_rate"`
	Completed               int64   `json:"completed"`
	Failed                  int64   `json:"failed"`
	Stopped                 int64   `json:"stopped"`
}

// StatusResponse — состояние системы из API.
type StatusResponse struct {
	QueuedCount              int              `json:"queued_count"`
	ProcessingCount          int              `json:"processing_count"`
	CompletedCount           int64            `json:"completed_count"`
	WorkerUtilizationPercent float64          `json:"worker_utilization_percent"`
	Workers                  []WorkerResponse `json:"workers"`
	Stats                    StatsResponse    `json:"stats"`
}

// HaltResponse — итог аварийной остановки.
type HaltResponse struct {
	StoppedProcessing int    `json:"stopped_processing"`
	ClearedQueued     int    `json:"cleared_queued"`
	HaltedAt          string `json:"halted_at"`
}

// CompletionResponse — завершённый job из архива.
type CompletionResponse struct {
	JobID        string   `json:"job_id"`
	Status       string   `json:"status"`
	Success      bool     `json:"success"`
	QualityScore *float64 `json:"quality_score,omitempty"`
	DurationMs   int64    `json:"duration_ms"`
	Priority     int      `json:"priority"`
	Workers      []string `json:"workers,omitempty"`
	Error        string   `json:"error,omitempty"`
	CompletedAt  string   `json:"completed_at"`
}

// ScheduleResponse — расписание из API.
type ScheduleResponse struct {
	Name        string `json:"name"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Enabled     bool   `json:"enabled"`
	NextDueAt   string `json:"next_due_at,omitempty"`
	LastRunAt   string `json:"last_run_at,omitempty"`
	LastJobID   string `json:"last_job_id,omitempty"`
	RunCount    int    `json:"run_count"`
}

// --- Request types ---

// JobSpecRequest — описание job. Читается из YAML (-f) или собирается из флагов.
type JobSpecRequest struct {
	RequiredCapabilities []string       `json:"required_capabilities,omitempty" yaml:"required_capabilities,omitempty"`
	Priority             *int           `json:"priority,omitempty" yaml:"priority,omitempty"`
	WorkerCount          int            `json:"worker_count,omitempty" yaml:"worker_count,omitempty"`
	Payload              map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
	Stages               []string       `json:"stages" yaml:"stages"`
	TimeoutSec           int            `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
}

// RegisterWorkerRequest — регистрация worker'а.
type RegisterWorkerRequest struct {
	ID                string   `json:"id"`
	Capabilities      []string `json:"capabilities"`
	MaxConcurrentJobs int      `json:"max_concurrent_jobs"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Foundry API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Jobs ---

// SubmitJob отправляет job в очередь.
func (c *Client) SubmitJob(spec JobSpecRequest) (*SubmitJobResponse, error) {
	var resp SubmitJobResponse
	err := c.post("/api/v1/jobs", spec, &resp)
	return &resp, err
}

// GetJob возвращает job по ID.
func (c *Client) GetJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.get("/api/v1/jobs/"+url.PathEscape(id), &job)
	return &job, err
}

// ListJobs возвращает job. Если status не пустой — фильтрует.
func (c *Client) ListJobs(status string) ([]JobResponse, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}

	var jobs []JobResponse
	err := c.list("/api/v1/jobs", params, &jobs)
	return jobs, err
}

// --- System ---

// Status возвращает состояние системы.
func (c *Client) Status() (*StatusResponse, error) {
	var status StatusResponse
	err := c.get("/api/v1/status", &status)
	return &status, err
}

// Halt аварийно останавливает обработку.
func (c *Client) Halt() (*HaltResponse, error) {
	var report HaltResponse
	err := c.post("/api/v1/halt", nil, &report)
	return &report, err
}

// --- Workers ---

// ListWorkers возвращает workers.
func (c *Client) ListWorkers() ([]WorkerResponse, error) {
	var workers []WorkerResponse
	err := c.list("/api/v1/workers", nil, &workers)
	return workers, err
}

// RegisterWorker регистрирует worker.
func (c *Client) RegisterWorker(req RegisterWorkerRequest) error {
	return c.post("/api/v1/workers", req, nil)
}

// --- Archive and schedules ---

// ListArchive возвращает последние завершённые job.
func (c *Client) ListArchive(limit int) ([]CompletionResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var events []CompletionResponse
	err := c.list("/api/v1/archive", params, &events)
	return events, err
}

// ListSchedules возвращает расписания.
func (c *Client) ListSchedules() ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", nil, &schedules)
	return schedules, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
