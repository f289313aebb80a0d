package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeJobs Exchange = "foundry.jobs"
	ExchangeDLQ  Exchange = "foundry.dlq"
)

// Queues — имена очередей.
const (
	QueueJobsSubmitted Queue = "jobs.submitted"
	QueueJobsCompleted Queue = "jobs.completed"
	QueueDLQJobs       Queue = "dlq.jobs"
)

// Routing keys.
const (
	RoutingKeySubmitted RoutingKey = "submitted"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQJobs   RoutingKey = "jobs"
)

// ExchangeDecl — объявление обменника.
type ExchangeDecl struct {
	Name Exchange
	Kind string
}

// QueueDecl — объявление очереди.
type QueueDecl struct {
	Name Queue
	Args amqp.Table
}

// Binding — привязка очереди к обменнику.
type Binding struct {
	Queue      Queue
	RoutingKey RoutingKey
	Exchange   Exchange
}

// Topology — полный набор объектов RabbitMQ, нужных Foundry.
type Topology struct {
	Exchanges []ExchangeDecl
	Queues    []QueueDecl
	Bindings  []Binding
}

// DefaultTopology возвращает топологию Foundry.
//
// jobs.submitted уходит в DLQ после nack без requeue (битые сообщения).
// jobs.completed — поток событий для внешних потребителей, без DLQ.
func DefaultTopology() Topology {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQJobs),
	}

	return Topology{
		Exchanges: []ExchangeDecl{
			{ExchangeJobs, "direct"},
			{ExchangeDLQ, "direct"},
		},
		Queues: []QueueDecl{
			{QueueJobsSubmitted, dlqArgs},
			{QueueJobsCompleted, nil},
			{QueueDLQJobs, nil},
		},
		Bindings: []Binding{
			{QueueJobsSubmitted, RoutingKeySubmitted, ExchangeJobs},
			{QueueJobsCompleted, RoutingKeyCompleted, ExchangeJobs},
			{QueueDLQJobs, RoutingKeyDLQJobs, ExchangeDLQ},
		},
	}
}

// SetupTopology объявляет exchanges, queues и bindings.
// Операция идемпотентна: повторный вызов с той же топологией ничего не меняет.
func SetupTopology(ctx context.Context, conn *Connection) error {
	t := DefaultTopology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range t.Exchanges {
			err := ch.ExchangeDeclare(
				string(ex.Name), // name
				ex.Kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.Name, err)
			}
		}

		for _, q := range t.Queues {
			_, err := ch.QueueDeclare(
				string(q.Name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.Args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.Name, err)
			}
		}

		for _, b := range t.Bindings {
			err := ch.QueueBind(
				string(b.Queue),      // queue name
				string(b.RoutingKey), // routing key
				string(b.Exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.Queue, b.Exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Foundry RabbitMQ Topology:

    foundry.jobs (direct)
    ├── jobs.submitted [routing: submitted]
    │       Consumer: Orchestrator (intake)
    │       DLQ: dlq.jobs
    └── jobs.completed [routing: completed]
            Consumer: external subscribers

    foundry.dlq (direct)
    └── dlq.jobs [routing: jobs]
            Manual processing
  `
}
