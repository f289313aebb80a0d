package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultWebhookTimeout = 30 * time.Second

// WebhookStage — стадия, отправляющая job во внешний сервис по HTTP.
//
// Тело запроса (JSON):
//
//	{"job_id": "...", "stage": "...", "workers": [...], "payload": {...}}
//
// HTTP >= 400 — ошибка стадии (job переходит в FAILED).
//
// Outputs:
//   - status_code (int): HTTP-код ответа
//   - body (any): тело ответа (JSON или строка)
type WebhookStage struct {
	URL     string
	Method  string
	Headers map[string]string
	Timeout time.Duration
	Client  *http.Client
}

// Run выполняет HTTP-запрос.
func (s *WebhookStage) Run(ctx context.Context, sc *StageContext) (*StageResult, error) {
	if s.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrWebhook)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"job_id":  sc.JobID,
		"stage":   sc.Stage,
		"workers": sc.Workers,
		"payload": sc.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal body: %v", ErrWebhook, err)
	}

	method := s.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, s.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrWebhook, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebhook, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrWebhook, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrWebhook, resp.StatusCode, truncate(string(respBody), 200))
	}

	// Парсим body: пробуем JSON, иначе строка
	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		parsed = string(respBody)
	}

	return &StageResult{Outputs: map[string]any{
		"status_code": resp.StatusCode,
		"body":        parsed,
	}}, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
