// Package cli реализует инструмент командной строки Foundry.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Foundry API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Foundry API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	jobs, err := client.ListJobs("PROCESSING")
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr:
// foundry job list --json | jq .
//
// ## Commands
//
//   - job: submit (-f spec.yaml или флаги; --broker URL — через AMQP), show, list
//   - worker: list, register
//   - status, halt, archive, schedules
//
// Фабричные функции (NewJobCmd и т.д.) принимают clientFn и outputFn:
// замыкания для ленивого создания Client и Output после парсинга
// PersistentFlags.
package cli
