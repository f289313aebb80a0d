// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики оркестратора
//
// Логгер и метрики внедряются в оркестратор и pipeline через Config,
// метрики экспортируются на /metrics endpoint.
package telemetry
