// Package recurring отправляет job по расписанию.
//
// Расписания задаются в конфигурации (cron или интервал) и живут в памяти.
// Scheduler.Tick находит расписания с наступившим NextDueAt, отправляет
// шаблон job через Submitter и сдвигает NextDueAt.
//
// Структура:
//   - schedule.go  — Schedule и его проверка
//   - cron.go      — разбор cron-выражений и вычисление следующего времени
//   - scheduler.go — Scheduler (Tick, Run)
package recurring
