// Package mq реализует шину событий прогресса заказов поверх RabbitMQ.
//
// Топология — один topic exchange cargomata.events, routing key равен
// типу события (order.submitted, step.completed, ...). Durable-очередь
// orders.progress собирает все события для внешних потребителей;
// CLI-подписчики создают эфемерные очереди через Subscribe.
//
// Шина не участвует в принятии решений сагой: публикация best-effort,
// состоянием истины остаётся БД.
package mq
