package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Foundry/internal/domain"
)

// completedJobsSchema — таблица архива завершённых job.
const completedJobsSchema = `
	CREATE TABLE IF NOT EXISTS completed_jobs (
		job_id        UUID PRIMARY KEY,
		status        TEXT NOT NULL,
		success       BOOLEAN NOT NULL,
		quality_score DOUBLE PRECISION,
		duration_ms   BIGINT NOT NULL,
		priority      INTEGER NOT NULL,
		workers       JSONB NOT NULL DEFAULT '[]',
		stages        JSONB NOT NULL DEFAULT '[]',
		outputs       JSONB,
		error         TEXT,
		completed_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_completed_jobs_completed_at ON completed_jobs (completed_at DESC);
`

// CompletionRepo — архив завершённых job в PostgreSQL.
//
// Реализует orchestrator.Archive.
type CompletionRepo struct {
	pool *pgxpool.Pool
}

// NewCompletionRepo создаёт новый CompletionRepo.
func NewCompletionRepo(pool *pgxpool.Pool) *CompletionRepo {
	return &CompletionRepo{pool: pool}
}

// Migrate создаёт таблицу, если её нет.
func (r *CompletionRepo) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, completedJobsSchema); err != nil {
		return fmt.Errorf("migrate completed_jobs: %w", err)
	}
	return nil
}

// Store сохраняет событие. Повторное сохранение того же job перезаписывает запись.
func (r *CompletionRepo) Store(ctx context.Context, ev domain.CompletionEvent) error {
	workersJSON, err := json.Marshal(nonNil(ev.Workers))
	if err != nil {
		return fmt.Errorf("marshal workers: %w", err)
	}
	stagesJSON, err := json.Marshal(ev.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	var outputsJSON []byte
	if ev.Outputs != nil {
		if outputsJSON, err = json.Marshal(ev.Outputs); err != nil {
			return fmt.Errorf("marshal outputs: %w", err)
		}
	}

	query := `
		INSERT INTO completed_jobs (job_id, status, success, quality_score, duration_ms,
		                            priority, workers, stages, outputs, error, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (job_id) DO UPDATE
		SET status = EXCLUDED.status, success = EXCLUDED.success,
		    quality_score = EXCLUDED.quality_score, duration_ms = EXCLUDED.duration_ms,
		    outputs = EXCLUDED.outputs, error = EXCLUDED.error,
		    completed_at = EXCLUDED.completed_at
	`
	_, err = r.pool.Exec(ctx, query,
		ev.JobID,
		string(ev.Status),
		ev.Success,
		ev.QualityScore,
		ev.DurationMs,
		ev.Priority,
		workersJSON,
		stagesJSON,
		outputsJSON,
		nullString(ev.Error),
		ev.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert completed job: %w", err)
	}
	return nil
}

// GetByID возвращает событие по ID job.
func (r *CompletionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.CompletionEvent, error) {
	query := `
		SELECT job_id, status, success, quality_score, duration_ms, priority,
		       workers, stages, outputs, error, completed_at
		FROM completed_jobs
		WHERE job_id = $1
	`
	ev, err := scanCompletion(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ev, err
}

// List возвращает последние события, новые первыми.
func (r *CompletionRepo) List(ctx context.Context, limit int) ([]domain.CompletionEvent, error) {
	query := `
		SELECT job_id, status, success, quality_score, duration_ms, priority,
		       workers, stages, outputs, error, completed_at
		FROM completed_jobs
		ORDER BY completed_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list completed jobs: %w", err)
	}
	defer rows.Close()

	var events []domain.CompletionEvent
	for rows.Next() {
		ev, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// scanCompletion сканирует строку в CompletionEvent.
// pgx.Rows удовлетворяет pgx.Row, поэтому функция общая для QueryRow и Query.
func scanCompletion(row pgx.Row) (*domain.CompletionEvent, error) {
	var ev domain.CompletionEvent
	var status string
	var workersJSON, stagesJSON, outputsJSON []byte
	var jobError *string

	err := row.Scan(
		&ev.JobID,
		&status,
		&ev.Success,
		&ev.QualityScore,
		&ev.DurationMs,
		&ev.Priority,
		&workersJSON,
		&stagesJSON,
		&outputsJSON,
		&jobError,
		&ev.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan completed job: %w", err)
	}

	ev.Status = domain.JobStatus(status)
	if err := json.Unmarshal(workersJSON, &ev.Workers); err != nil {
		return nil, fmt.Errorf("unmarshal workers: %w", err)
	}
	if err := json.Unmarshal(stagesJSON, &ev.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	if outputsJSON != nil {
		if err := json.Unmarshal(outputsJSON, &ev.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	if jobError != nil {
		ev.Error = *jobError
	}

	return &ev, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nonNil заменяет nil-срез пустым, чтобы в JSONB не попал null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
