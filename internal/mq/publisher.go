package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Cargomata/internal/domain"
)

// Message — событие прогресса заказа на проводе.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип события (совпадает с routing key).
	Type domain.EventType `json:"type"`

	// OrderID — заказ, к которому относится событие.
	OrderID string `json:"order_id"`

	// Payload — данные события.
	Payload map[string]any `json:"payload,omitempty"`

	// Timestamp — время публикации.
	Timestamp time.Time `json:"timestamp"`
}

// Publisher публикует события прогресса в exchange cargomata.events.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// PublishOrderEvent публикует событие заказа. Routing key — тип события,
// сообщение persistent (переживёт рестарт брокера).
func (p *Publisher) PublishOrderEvent(ctx context.Context, orderID string, typ domain.EventType, payload map[string]any) error {
	msg := Message{
		ID:        uuid.New().String(),
		Type:      typ,
		OrderID:   orderID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			ExchangeEvents, // exchange
			string(typ),    // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish %s: %w", typ, err)
		}

		p.logger.Debug("published event",
			"order_id", orderID,
			"type", typ,
			"message_id", msg.ID,
		)
		return nil
	})
}
