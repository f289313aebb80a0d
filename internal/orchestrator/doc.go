// Package orchestrator принимает job, распределяет их по workers и
// ведёт каждый job через pipeline.
//
// Orchestrator отвечает за:
//   - Приём и валидацию job (Submit, AMQP intake jobs.submitted)
//   - Dispatch: выбор job из очереди по приоритету и резервирование workers
//   - Запуск executor'а в отдельной горутине на каждый job
//   - Финализацию job: освобождение workers, статистику, архив
//   - Emergency halt (HaltAll)
//
// # Блокировки
//
// Порядок захвата: dispatchMu → jobState.mu → mu → registry/queue/stats.
// mu никогда не удерживается при захвате jobState.mu: под ним только
// копируются указатели. Registry, queue и stats держат свои мьютексы
// только внутри метода и никого не вызывают.
// Tick и HaltAll взаимно исключены через dispatchMu: halt не может
// пересечься с частично выполненным резервированием.
package orchestrator
