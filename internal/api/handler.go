package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Cargomata/internal/breaker"
	"github.com/shaiso/Cargomata/internal/domain"
	"github.com/shaiso/Cargomata/internal/repo"
)

// OrderStore — операции с заказами, нужные API.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter repo.OrderFilter) ([]domain.Order, error)
}

// EventStore — журнал событий заказа.
type EventStore interface {
	Append(ctx context.Context, orderID string, typ domain.EventType, payload map[string]any) error
	ListByOrderID(ctx context.Context, orderID string) ([]domain.Event, error)
}

// Dispatcher передаёт принятый заказ координатору саги.
type Dispatcher interface {
	Submit(orderID string) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	orders     OrderStore
	events     EventStore
	dispatcher Dispatcher
	breakers   *breaker.Registry
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Orders     OrderStore
	Events     EventStore
	Dispatcher Dispatcher
	Breakers   *breaker.Registry
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		orders:     cfg.Orders,
		events:     cfg.Events,
		dispatcher: cfg.Dispatcher,
		breakers:   cfg.Breakers,
		logger:     logger,
	}
}
