package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Топология шины событий.
const (
	// ExchangeEvents — topic exchange всех событий прогресса заказов.
	// Routing key сообщения равен типу события (order.submitted и т.д.).
	ExchangeEvents = "cargomata.events"

	// QueueOrdersProgress — durable-очередь, собирающая все события
	// для внешних потребителей (склад, биллинг, нотификации).
	QueueOrdersProgress = "orders.progress"

	// bindAllEvents — binding key очереди orders.progress.
	bindAllEvents = "#"
)

// SetupTopology объявляет exchange и очередь. Идемпотентно, вызывается
// при старте сервера и потребителей.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			ExchangeEvents, // name
			"topic",        // type
			true,           // durable
			false,          // auto-deleted
			false,          // internal
			false,          // no-wait
			nil,            // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
		}

		_, err = ch.QueueDeclare(
			QueueOrdersProgress, // name
			true,                // durable
			false,               // delete when unused
			false,               // exclusive
			false,               // no-wait
			nil,                 // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueOrdersProgress, err)
		}

		err = ch.QueueBind(
			QueueOrdersProgress, // queue name
			bindAllEvents,       // routing key
			ExchangeEvents,      // exchange
			false,               // no-wait
			nil,                 // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", QueueOrdersProgress, err)
		}

		return nil
	})
}
