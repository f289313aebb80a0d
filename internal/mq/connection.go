package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Foundry/internal/telemetry"
)

var (
	// ErrNoChannel — канал не открыт (соединение закрыто или восстанавливается).
	ErrNoChannel = errors.New("no channel available")

	// ErrNoBrokerURL — адрес брокера не задан.
	ErrNoBrokerURL = errors.New("broker url is required")

	// ErrConnectionClosed — Close уже вызван.
	ErrConnectionClosed = errors.New("connection closed")
)

// Scope восстановления, метка broker_reconnects_total.
const (
	scopeConnection = "connection"
	scopeChannel    = "channel"
)

// Connection — соединение с брокером jobs.
//
// Следит за двумя уровнями отказа. Разрыв TCP соединения восстанавливается
// повторным dial с экспоненциальной задержкой. Закрытие только канала
// (channel-level исключение брокера) лечится открытием нового канала на
// живом соединении. Пока идёт восстановление, WithChannel возвращает
// ErrNoChannel, а gauge broker_connected равен 0. После восстановления
// ReconnectNotify сигналит consumer'ам пересоздать подписки.
type Connection struct {
	url        string
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	minBackoff time.Duration
	maxBackoff time.Duration

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	done      chan struct{}
	recovered chan struct{}
}

// ConnectionConfig — конфигурация Connection.
type ConnectionConfig struct {
	// URL — amqp:// адрес брокера. Обязателен.
	URL string

	// MinBackoff — первая задержка перед redial (default: 1s).
	MinBackoff time.Duration

	// MaxBackoff — потолок задержки (default: 30s).
	MaxBackoff time.Duration

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// NewConnection подключается к брокеру и запускает наблюдение за соединением.
func NewConnection(cfg ConnectionConfig) (*Connection, error) {
	if cfg.URL == "" {
		return nil, ErrNoBrokerURL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	minBackoff := cfg.MinBackoff
	if minBackoff <= 0 {
		minBackoff = time.Second
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}
	maxBackoff = max(maxBackoff, minBackoff)

	c := &Connection{
		url:        cfg.URL,
		logger:     logger.With("component", "amqp", "broker", redactURL(cfg.URL)),
		metrics:    cfg.Metrics,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		done:       make(chan struct{}),
		recovered:  make(chan struct{}, 1),
	}

	c.metrics.SetBrokerConnected(false)
	if err := c.open(); err != nil {
		return nil, err
	}
	c.logger.Info("connected to broker")

	go c.supervise()

	return c, nil
}

// open делает dial и открывает канал.
func (c *Connection) open() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrConnectionClosed
	}
	c.conn, c.channel = conn, ch
	c.mu.Unlock()

	c.metrics.SetBrokerConnected(true)
	return nil
}

// supervise ждёт закрытия соединения или канала и восстанавливает нужный уровень.
func (c *Connection) supervise() {
	for {
		c.mu.RLock()
		conn, ch, closed := c.conn, c.channel, c.closed
		c.mu.RUnlock()
		if closed || conn == nil || ch == nil {
			return
		}

		connLost := conn.NotifyClose(make(chan *amqp.Error, 1))
		chanLost := ch.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.done:
			return

		case err := <-connLost:
			if c.isClosed() {
				return
			}
			c.lost(scopeConnection, err)
			if !c.redial() {
				return
			}
			c.restored(scopeConnection)

		case err := <-chanLost:
			if c.isClosed() {
				return
			}
			c.lost(scopeChannel, err)
			if c.reopenChannel(conn) {
				c.restored(scopeChannel)
				continue
			}
			if !c.redial() {
				return
			}
			c.restored(scopeConnection)
		}
	}
}

// lost снимает канал, чтобы WithChannel не отдавал закрытый.
func (c *Connection) lost(scope string, err *amqp.Error) {
	c.mu.Lock()
	c.channel = nil
	c.mu.Unlock()

	c.metrics.SetBrokerConnected(false)
	if err != nil {
		c.logger.Warn("broker "+scope+" lost", "code", err.Code, "reason", err.Reason)
	} else {
		c.logger.Warn("broker " + scope + " lost")
	}
}

// reopenChannel открывает новый канал на живом соединении.
func (c *Connection) reopenChannel(conn *amqp.Connection) bool {
	if conn.IsClosed() {
		return false
	}

	ch, err := conn.Channel()
	if err != nil {
		c.logger.Warn("failed to reopen channel", "error", err)
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ch.Close()
		return false
	}
	c.channel = ch
	c.mu.Unlock()

	c.metrics.SetBrokerConnected(true)
	return true
}

// redial повторяет dial, пока не получится или не будет вызван Close.
func (c *Connection) redial() bool {
	c.mu.Lock()
	stale := c.conn
	c.conn = nil
	c.mu.Unlock()
	if stale != nil && !stale.IsClosed() {
		stale.Close()
	}

	delay := c.minBackoff
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-c.done:
			timer.Stop()
			return false
		case <-timer.C:
		}

		err := c.open()
		if err == nil {
			return true
		}
		if errors.Is(err, ErrConnectionClosed) {
			return false
		}

		c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
		delay = nextDelay(delay, c.maxBackoff)
	}
}

// restored учитывает восстановление и будит consumer'ов.
func (c *Connection) restored(scope string) {
	c.metrics.BrokerReconnect(scope)
	c.logger.Info("broker " + scope + " recovered")

	select {
	case c.recovered <- struct{}{}:
	default:
	}
}

// nextDelay удваивает задержку в пределах limit.
func nextDelay(d, limit time.Duration) time.Duration {
	return min(d*2, limit)
}

// redactURL убирает пароль из адреса брокера для логов.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}

func (c *Connection) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Channel возвращает текущий канал или nil во время восстановления.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify сигналит после каждого восстановления соединения или канала.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.recovered
}

// WithChannel выполняет fn с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := c.Channel()
	if ch == nil {
		return ErrNoChannel
	}
	return fn(ch)
}

// Close закрывает канал и соединение и останавливает восстановление.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn, ch := c.conn, c.channel
	c.conn, c.channel = nil, nil
	c.mu.Unlock()

	c.metrics.SetBrokerConnected(false)

	var errs []error
	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if conn != nil && !conn.IsClosed() {
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	c.logger.Info("broker connection closed")
	return nil
}
