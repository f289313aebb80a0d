// Package archive — получатели событий о завершённых job.
//
// Все реализации удовлетворяют orchestrator.Archive:
//   - Memory         — ограниченное кольцо в памяти (для API /archive)
//   - SQLite         — файловый архив (mattn/go-sqlite3)
//   - EventPublisher — публикация job.completed в RabbitMQ
//   - Multi          — рассылка нескольким получателям
//
// PostgreSQL-архив — repo.CompletionRepo.
package archive
