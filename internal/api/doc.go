// Package api реализует HTTP API приёма и отслеживания заказов.
//
// Приём заказа асинхронный: POST /orders валидирует запрос, персистирует
// заказ и отвечает 202 Accepted до начала саги. Статус и события читаются
// только из БД — ответы не зависят от того, какой процесс вёл сагу.
package api
