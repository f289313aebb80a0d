// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (восстановление соединения и канала, метрики broker_*)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//
// Типы сообщений:
//   - job.submitted — заявка на job (потребитель: Orchestrator)
//   - job.completed — job завершён (потребители: внешние подписчики)
//
// Exchanges:
//   - foundry.jobs — события jobs
//   - foundry.dlq  — dead letter queue
package mq
