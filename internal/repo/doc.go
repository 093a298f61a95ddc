// Package repo реализует доступ к PostgreSQL через pgx.
//
// Репозитории:
//   - OrderRepo — заказы (таблица orders)
//   - EventRepo — append-only журнал событий (таблица order_events)
package repo
