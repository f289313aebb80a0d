// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go        — Handler с DI (оркестратор, архив, расписания, logger)
//   - routes.go         — chi-роутер, /healthz и /metrics
//   - middleware.go     — middleware (logging, recovery)
//   - response.go       — унифицированные JSON-ответы и обработка ошибок
//   - dto.go            — Data Transfer Objects (request/response)
//   - job_handler.go    — обработчики для /jobs
//   - system_handler.go — /status, /halt, /workers, /archive, /schedules
//
// Ошибки ядра отображаются в HTTP статусы в HandleError:
// невалидный spec или worker → 400, неизвестный job → 404,
// конфликт ID worker'а → 409, остановленный оркестратор → 503.
package api
