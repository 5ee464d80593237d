package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNacked — брокер не подтвердил публикацию.
var ErrNacked = errors.New("publish not acknowledged by broker")

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeSyncEnqueued MessageType = "synchronization.enqueued"
)

const defaultPublishTimeout = 5 * time.Second

// Message — конверт публикуемого сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// SyncJobPayload — ссылка на синхронизацию, которую должен выполнить воркер.
type SyncJobPayload struct {
	JobID uuid.UUID `json:"job_id"`
}

// NewSyncJobMessage создаёт сообщение о поставленной в очередь синхронизации.
func NewSyncJobMessage(jobID uuid.UUID, now time.Time) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeSyncEnqueued,
		Payload:   SyncJobPayload{JobID: jobID},
		Timestamp: now,
	}
}

// Publisher публикует ссылки на синхронизации в RabbitMQ.
type Publisher struct {
	conn    *Connection
	logger  *slog.Logger
	timeout time.Duration
}

// NewPublisher создаёт новый Publisher.
// timeout ограничивает публикацию вместе с ожиданием confirm (default: 5s).
func NewPublisher(conn *Connection, logger *slog.Logger, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:    conn,
		logger:  logger,
		timeout: timeout,
	}
}

// PublishSyncJob публикует ссылку на синхронизацию.
// Возвращает nil после подтверждения брокером (если канал в режиме confirm).
func (p *Publisher) PublishSyncJob(ctx context.Context, jobID uuid.UUID) error {
	return p.Publish(ctx, ExchangeSync, RoutingKeyPending, NewSyncJobMessage(jobID, time.Now()))
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	publishing, err := buildPublishing(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		dc, err := ch.PublishWithDeferredConfirmWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			publishing,
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		// dc == nil, если канал не в режиме confirm
		if dc != nil {
			ok, err := dc.WaitContext(ctx)
			if err != nil {
				return fmt.Errorf("wait confirm %s/%s: %w", exchange, routingKey, err)
			}
			if !ok {
				return fmt.Errorf("%w: %s/%s", ErrNacked, exchange, routingKey)
			}
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// buildPublishing сериализует сообщение в AMQP publishing.
func buildPublishing(msg *Message) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	}, nil
}
