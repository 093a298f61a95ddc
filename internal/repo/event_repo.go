package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Cargomata/internal/domain"
)

// EventRepo — репозиторий журнала событий заказа.
//
// Журнал append-only: записи только добавляются, ID — автоинкремент,
// поэтому порядок чтения для одного заказа совпадает с порядком записи.
type EventRepo struct {
	pool *pgxpool.Pool
}

// NewEventRepo создаёт новый EventRepo.
func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Append дописывает событие в журнал заказа.
func (r *EventRepo) Append(ctx context.Context, orderID string, typ domain.EventType, payload map[string]any) error {
	payloadJSON, err := marshalNullable(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO order_events (order_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err = r.pool.Exec(ctx, query, orderID, typ, payloadJSON, time.Now())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListByOrderID возвращает события заказа в порядке записи.
func (r *EventRepo) ListByOrderID(ctx context.Context, orderID string) ([]domain.Event, error) {
	query := `
		SELECT id, order_id, type, payload, created_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var payloadJSON []byte

		if err := rows.Scan(&ev.ID, &ev.OrderID, &ev.Type, &payloadJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		if payloadJSON != nil {
			if err := json.Unmarshal(payloadJSON, &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}

		events = append(events, ev)
	}
	return events, rows.Err()
}
