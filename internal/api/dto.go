package api

import (
	"fmt"
	"time"

	"github.com/shaiso/Cargomata/internal/domain"
)

// SubmitOrderRequest — тело запроса POST /orders.
type SubmitOrderRequest struct {
	OrderID      string               `json:"order_id"`
	ClientID     string               `json:"client_id"`
	Priority     domain.Priority      `json:"priority,omitempty"`
	Items        []domain.LineItem    `json:"items"`
	Destinations []domain.Destination `json:"destinations"`
}

// Validate проверяет запрос. Сообщение об ошибке называет конкретное поле.
func (r *SubmitOrderRequest) Validate() error {
	if r.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if r.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("items must not be empty")
	}
	for i, item := range r.Items {
		if item.SKU == "" {
			return fmt.Errorf("items[%d].sku is required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("items[%d].quantity must be positive", i)
		}
	}
	if len(r.Destinations) == 0 {
		return fmt.Errorf("destinations must not be empty")
	}
	for i, dest := range r.Destinations {
		if dest.Address == "" {
			return fmt.Errorf("destinations[%d].address is required", i)
		}
	}
	if r.Priority != "" && !r.Priority.IsValid() {
		return fmt.Errorf("priority must be one of STANDARD, HIGH, URGENT")
	}
	return nil
}

// ToDomain строит новый заказ в статусе SUBMITTED.
func (r *SubmitOrderRequest) ToDomain(now time.Time) *domain.Order {
	priority := r.Priority
	if priority == "" {
		priority = domain.PriorityStandard
	}

	return &domain.Order{
		ID:           r.OrderID,
		ClientID:     r.ClientID,
		Priority:     priority,
		Items:        r.Items,
		Destinations: r.Destinations,
		Status:       domain.OrderStatusSubmitted,
		SubmittedAt:  now,
	}
}

// ProcessingInfo — блок асинхронной обработки в 202-ответе.
type ProcessingInfo struct {
	Mode                string    `json:"mode"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
	StatusEndpoint      string    `json:"status_endpoint"`
}

// AcceptedResponse — тело 202-ответа на POST /orders.
type AcceptedResponse struct {
	Status     string         `json:"status"`
	OrderID    string         `json:"order_id"`
	Processing ProcessingInfo `json:"processing"`
}

// AcceptedFromDomain строит 202-ответ для принятого заказа.
func AcceptedFromDomain(order *domain.Order) AcceptedResponse {
	return AcceptedResponse{
		Status:  "accepted",
		OrderID: order.ID,
		Processing: ProcessingInfo{
			Mode:                "ASYNCHRONOUS",
			EstimatedCompletion: order.EstimatedCompletion(order.SubmittedAt),
			StatusEndpoint:      fmt.Sprintf("/api/v1/orders/%s/status", order.ID),
		},
	}
}

// OrderResponse — полное представление заказа.
type OrderResponse struct {
	ID            string                      `json:"id"`
	ClientID      string                      `json:"client_id"`
	Priority      domain.Priority             `json:"priority"`
	Status        domain.OrderStatus          `json:"status"`
	Items         []domain.LineItem           `json:"items"`
	Destinations  []domain.Destination        `json:"destinations"`
	Contract      *domain.ContractResult      `json:"contract,omitempty"`
	Warehouse     *domain.WarehouseResult     `json:"warehouse,omitempty"`
	Route         *domain.RouteResult         `json:"route,omitempty"`
	Manifest      *domain.DeliveryManifest    `json:"manifest,omitempty"`
	Failure       *domain.FailureDetail       `json:"failure,omitempty"`
	Compensations []domain.CompensationRecord `json:"compensations,omitempty"`
	SubmittedAt   time.Time                   `json:"submitted_at"`
	ReadyAt       *time.Time                  `json:"ready_at,omitempty"`
	FailedAt      *time.Time                  `json:"failed_at,omitempty"`
}

// OrderFromDomain конвертирует доменный заказ в DTO.
func OrderFromDomain(order domain.Order) OrderResponse {
	return OrderResponse{
		ID:            order.ID,
		ClientID:      order.ClientID,
		Priority:      order.Priority,
		Status:        order.Status,
		Items:         order.Items,
		Destinations:  order.Destinations,
		Contract:      order.Contract,
		Warehouse:     order.Warehouse,
		Route:         order.Route,
		Manifest:      order.Manifest,
		Failure:       order.Failure,
		Compensations: order.Compensations,
		SubmittedAt:   order.SubmittedAt,
		ReadyAt:       order.ReadyAt,
		FailedAt:      order.FailedAt,
	}
}
