package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/shaiso/Foundry/internal/domain"
)

// ErrNotFound — события нет в архиве.
var ErrNotFound = errors.New("archived job not found")

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS completed_jobs (
  job_id        TEXT PRIMARY KEY,
  status        TEXT NOT NULL,
  success       INTEGER NOT NULL,
  quality_score REAL,
  duration_ms   INTEGER NOT NULL,
  priority      INTEGER NOT NULL,
  workers       TEXT NOT NULL,
  stages        TEXT NOT NULL,
  outputs       TEXT,
  error         TEXT,
  completed_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_completed_jobs_completed_at ON completed_jobs(completed_at);
`

// timeLayout — фиксированная ширина, чтобы ORDER BY по тексту совпадал с хронологией.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite — файловый архив завершённых job.
type SQLite struct {
	db *sql.DB
}

// NewSQLite открывает (или создаёт) файл архива и применяет схему.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Один writer: SQLite сериализует записи, лишние соединения дают SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close закрывает БД.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Store сохраняет событие (upsert по job_id).
func (s *SQLite) Store(ctx context.Context, ev domain.CompletionEvent) error {
	workers, err := json.Marshal(ev.Workers)
	if err != nil {
		return fmt.Errorf("marshal workers: %w", err)
	}
	stages, err := json.Marshal(ev.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	var outputs sql.NullString
	if ev.Outputs != nil {
		b, err := json.Marshal(ev.Outputs)
		if err != nil {
			return fmt.Errorf("marshal outputs: %w", err)
		}
		outputs = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO completed_jobs (job_id, status, success, quality_score, duration_ms, priority,
                            workers, stages, outputs, error, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO UPDATE SET
  status = excluded.status, success = excluded.success,
  quality_score = excluded.quality_score, duration_ms = excluded.duration_ms,
  outputs = excluded.outputs, error = excluded.error,
  completed_at = excluded.completed_at`,
		ev.JobID.String(),
		string(ev.Status),
		ev.Success,
		ev.QualityScore,
		ev.DurationMs,
		ev.Priority,
		string(workers),
		string(stages),
		outputs,
		sql.NullString{String: ev.Error, Valid: ev.Error != ""},
		ev.CompletedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert completed job: %w", err)
	}
	return nil
}

// GetByID возвращает событие по ID job.
func (s *SQLite) GetByID(ctx context.Context, id uuid.UUID) (*domain.CompletionEvent, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT job_id, status, success, quality_score, duration_ms, priority,
       workers, stages, outputs, error, completed_at
FROM completed_jobs WHERE job_id = ?`, id.String())

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ev, err
}

// List возвращает до limit событий, новые первыми.
func (s *SQLite) List(ctx context.Context, limit int) ([]domain.CompletionEvent, error) {
	if limit <= 0 {
		limit = -1 // LIMIT -1: без ограничения
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT job_id, status, success, quality_score, duration_ms, priority,
       workers, stages, outputs, error, completed_at
FROM completed_jobs ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list completed jobs: %w", err)
	}
	defer rows.Close()

	var events []domain.CompletionEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*domain.CompletionEvent, error) {
	var (
		ev          domain.CompletionEvent
		id, status  string
		workers     string
		stages      string
		outputs     sql.NullString
		jobError    sql.NullString
		score       sql.NullFloat64
		completedAt string
	)

	err := row.Scan(&id, &status, &ev.Success, &score, &ev.DurationMs, &ev.Priority,
		&workers, &stages, &outputs, &jobError, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan completed job: %w", err)
	}

	if ev.JobID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	ev.Status = domain.JobStatus(status)
	if score.Valid {
		v := score.Float64
		ev.QualityScore = &v
	}
	if err := json.Unmarshal([]byte(workers), &ev.Workers); err != nil {
		return nil, fmt.Errorf("unmarshal workers: %w", err)
	}
	if err := json.Unmarshal([]byte(stages), &ev.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	if outputs.Valid {
		if err := json.Unmarshal([]byte(outputs.String), &ev.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	ev.Error = jobError.String
	if ev.CompletedAt, err = time.Parse(timeLayout, completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}

	return &ev, nil
}
