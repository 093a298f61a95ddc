package saga

import (
	"context"

	"github.com/shaiso/Cargomata/internal/domain"
)

// OrderStore — персистентное хранилище заказов, используемое координатором.
// Реализуется repo.OrderRepo; в тестах подменяется in-memory фейком.
type OrderStore interface {
	// GetByID возвращает заказ по ID.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// Update сохраняет текущее состояние заказа целиком.
	Update(ctx context.Context, order *domain.Order) error

	// ListUnfinished возвращает заказы в нетерминальных статусах.
	ListUnfinished(ctx context.Context, limit int) ([]domain.Order, error)
}

// EventLog — append-only журнал событий заказа.
type EventLog interface {
	// Append дописывает событие в журнал заказа.
	Append(ctx context.Context, orderID string, typ domain.EventType, payload map[string]any) error
}

// EventPublisher публикует события прогресса во внешнюю шину.
// Публикация best-effort: недоступность шины не влияет на сагу.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, orderID string, typ domain.EventType, payload map[string]any) error
}
