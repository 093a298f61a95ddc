package domain

import "time"

// EventType — тип события прогресса заказа.
type EventType string

const (
	// EventOrderSubmitted — заказ принят и персистирован.
	EventOrderSubmitted EventType = "order.submitted"

	// EventStepCompleted — шаг саги успешно завершён.
	EventStepCompleted EventType = "step.completed"

	// EventRetryScheduled — запланирована повторная попытка шага.
	EventRetryScheduled EventType = "retry.scheduled"

	// EventCompensationExecuted — компенсация шага выполнена.
	EventCompensationExecuted EventType = "compensation.executed"

	// EventCompensationFailed — best-effort компенсация упала.
	EventCompensationFailed EventType = "compensation.failed"

	// EventOrderReady — все шаги завершены, заказ готов к доставке.
	EventOrderReady EventType = "order.ready"

	// EventOrderFailed — сага завершилась с ошибкой.
	EventOrderFailed EventType = "order.failed"
)

// Event — запись audit-журнала заказа.
//
// События append-only: координатор дописывает их после каждого перехода,
// запись никогда не изменяется. Для одного заказа события каузально
// упорядочены; глобального порядка между заказами нет.
type Event struct {
	// ID — порядковый номер события (автоинкремент в БД).
	ID int64 `json:"id"`

	// OrderID — заказ, к которому относится событие.
	OrderID string `json:"order_id"`

	// Type — тип события.
	Type EventType `json:"type"`

	// Payload — данные события.
	Payload map[string]any `json:"payload,omitempty"`

	// CreatedAt — время записи.
	CreatedAt time.Time `json:"created_at"`
}
