// Package repo — хранилище архива завершённых job в PostgreSQL (pgx/v5).
package repo
