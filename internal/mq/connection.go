package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Ошибки соединения.
var (
	// ErrNoChannel — канал не открыт (нет соединения или идёт переподключение).
	ErrNoChannel = errors.New("no channel available")

	// ErrConnectionClosed — соединение закрыто через Close.
	ErrConnectionClosed = errors.New("connection closed")
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// ConnectionConfig — параметры соединения с RabbitMQ.
type ConnectionConfig struct {
	// URL — адрес брокера.
	URL string

	// Confirm — перевести канал в режим publisher confirms.
	// Без него Publisher не ждёт подтверждения брокера.
	Confirm bool
}

// Connection — AMQP соединение с одним каналом и автоматическим reconnect.
//
// Synchronizer публикует редко и последовательно, поэтому одного канала
// достаточно. Доступ к каналу потокобезопасен.
type Connection struct {
	cfg    ConnectionConfig
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	// openChannel открывает канал на живом соединении (default: newChannel).
	openChannel func(conn *amqp.Connection) (*amqp.Channel, error)

	done chan struct{}
}

// NewConnection подключается к RabbitMQ и запускает наблюдение за соединением.
func NewConnection(cfg ConnectionConfig, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := c.dial(); err != nil {
		return nil, err
	}

	go c.watch()

	return c, nil
}

// dial открывает соединение и канал.
func (c *Connection) dial() error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := c.open(conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ", "confirm", c.cfg.Confirm)
	return nil
}

func (c *Connection) open(conn *amqp.Connection) (*amqp.Channel, error) {
	if c.openChannel != nil {
		return c.openChannel(conn)
	}
	return c.newChannel(conn)
}

// newChannel открывает канал и, если нужно, включает confirms.
func (c *Connection) newChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if c.cfg.Confirm {
		if err := ch.Confirm(false); err != nil {
			ch.Close()
			return nil, fmt.Errorf("enable confirms: %w", err)
		}
	}
	return ch, nil
}

// watch ждёт закрытия соединения или канала.
// Канал закрывается брокером отдельно от соединения (channel exception),
// тогда открывается новый канал на том же соединении.
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		conn := c.conn
		ch := c.channel
		c.mu.RUnlock()

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.done:
			return
		case err := <-chanClosed:
			if c.isClosed() {
				return
			}
			if !conn.IsClosed() {
				c.logger.Warn("RabbitMQ channel closed", "error", err)
				_, rerr := c.reopenChannel(ch)
				if rerr == nil {
					continue
				}
				c.logger.Warn("failed to reopen channel, reconnecting", "error", rerr)
				conn.Close()
			}
		case err := <-connClosed:
			if c.isClosed() {
				return
			}
			c.logger.Warn("RabbitMQ connection lost", "error", err)
		}

		if !c.redial() {
			return
		}
	}
}

func (c *Connection) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// reopenChannel открывает новый канал вместо stale, если соединение живо.
// Если канал уже заменили, возвращает текущий.
func (c *Connection) reopenChannel(stale *amqp.Channel) (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.channel != stale && c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	if c.conn == nil || c.conn.IsClosed() {
		return nil, ErrNoChannel
	}

	ch, err := c.open(c.conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoChannel, err)
	}
	c.channel = ch

	c.logger.Info("RabbitMQ channel reopened")
	return ch, nil
}

// redial переподключается с экспоненциальной задержкой.
// Возвращает false, если соединение закрыли во время ожидания.
func (c *Connection) redial() bool {
	delay := minReconnectDelay

	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		if err := c.dial(); err != nil {
			c.logger.Warn("reconnect failed", "error", err, "next_delay", delay)
			delay = min(delay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("reconnected to RabbitMQ")
		return true
	}
}

// WithChannel выполняет функцию с текущим каналом.
// Закрытый брокером канал переоткрывается, если соединение живо.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	closed := c.closed
	ch := c.channel
	c.mu.RUnlock()

	if closed {
		return ErrConnectionClosed
	}
	if ch == nil || ch.IsClosed() {
		var err error
		if ch, err = c.reopenChannel(ch); err != nil {
			return err
		}
	}

	return fn(ch)
}

// IsConnected проверяет, что соединение и канал открыты.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.conn != nil && !c.conn.IsClosed() &&
		c.channel != nil && !c.channel.IsClosed()
}

// Close закрывает канал и соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("RabbitMQ connection closed")
	return errors.Join(errs...)
}
