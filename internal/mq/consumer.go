package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler — функция обработки сообщения.
//
// nil — ack. Ошибка, обёрнутая в ErrReject, — nack без requeue (в DLQ).
// Любая другая ошибка — requeue, но только один раз: повторно доставленное
// сообщение, снова завершившееся ошибкой, уходит в DLQ.
type Handler func(ctx context.Context, msg *Delivery) error

// ErrReject помечает сообщение, повторная обработка которого бессмысленна.
var ErrReject = errors.New("message rejected")

// ackAction — решение по доставке.
type ackAction int

const (
	actionAck ackAction = iota
	actionRequeue
	actionReject
)

func (a ackAction) String() string {
	switch a {
	case actionAck:
		return "ack"
	case actionRequeue:
		return "requeue"
	default:
		return "reject"
	}
}

// decide выбирает действие по результату обработчика.
func decide(err error, redelivered bool) ackAction {
	switch {
	case err == nil:
		return actionAck
	case errors.Is(err, ErrReject), redelivered:
		return actionReject
	default:
		return actionRequeue
	}
}

// Delivery — доставленное сообщение.
type Delivery struct {
	Message     Message
	Redelivered bool
	Raw         amqp.Delivery
}

// Consumer читает одну очередь и передаёт сообщения Handler.
// Переживает переподключения: после ReconnectNotify подписка создаётся заново.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	accept   []MessageType
	handler  Handler
	prefetch int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	Queue   string
	Handler Handler

	// Accept — допустимые типы сообщений; остальные уходят в DLQ.
	// Пустой — принимаются все.
	Accept []MessageType

	// Prefetch — QoS канала (default: 1).
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		accept:   slices.Clone(cfg.Accept),
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start читает очередь, пока ctx не отменён или не вызван Stop.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started")
			err = c.drain(ctx, deliveries)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("subscription lost, waiting for reconnect", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// subscribe выставляет QoS и открывает подписку на очередь.
func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// manual ack, consumer tag генерирует брокер
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// drain обрабатывает сообщения, пока канал доставки открыт.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.settle(raw, c.process(ctx, raw))
		}
	}
}

// process разбирает сообщение и вызывает Handler.
func (c *Consumer) process(ctx context.Context, raw amqp.Delivery) ackAction {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("malformed message", "error", err, "body", string(raw.Body))
		return actionReject
	}

	logger := c.logger.With("message_id", msg.ID, "type", msg.Type)

	if len(c.accept) > 0 && !slices.Contains(c.accept, msg.Type) {
		logger.Warn("unexpected message type")
		return actionReject
	}

	err := c.handler(ctx, &Delivery{Message: msg, Redelivered: raw.Redelivered, Raw: raw})
	action := decide(err, raw.Redelivered)
	if err != nil {
		logger.Warn("handler failed",
			"error", err,
			"redelivered", raw.Redelivered,
			"action", action,
		)
	}
	return action
}

func (c *Consumer) settle(raw amqp.Delivery, action ackAction) {
	var err error
	switch action {
	case actionAck:
		err = raw.Ack(false)
	case actionRequeue:
		err = raw.Nack(false, true)
	default:
		err = raw.Nack(false, false)
	}
	if err != nil {
		c.logger.Error("failed to settle delivery", "action", action, "error", err)
	}
}

// ParsePayload приводит payload сообщения к типу T через JSON.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
