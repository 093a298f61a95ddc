package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shaiso/Cargomata/internal/domain"
	"github.com/shaiso/Cargomata/internal/repo"
)

// SubmitOrder принимает заказ в асинхронную обработку.
// POST /api/v1/orders
//
// Отвечает 202 сразу после персистирования заказа: результат обработки
// клиент узнаёт через status endpoint. Недоступность downstream-сервисов
// на приём не влияет.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	order := req.ToDomain(time.Now())

	if err := h.orders.Create(r.Context(), order); err != nil {
		if HandleRepoError(w, h.logger, err, "") {
			return
		}
	}

	h.logger.Info("order accepted",
		"order_id", order.ID,
		"client_id", order.ClientID,
		"priority", order.Priority,
	)

	// Журналируем приём. Best-effort: заказ уже персистирован.
	if err := h.events.Append(r.Context(), order.ID, domain.EventOrderSubmitted, map[string]any{
		"client_id": order.ClientID,
		"priority":  string(order.Priority),
	}); err != nil {
		h.logger.Error("failed to append order.submitted event",
			"order_id", order.ID,
			"error", err,
		)
	}

	// Fire-and-forget: отказ передачи не теряет заказ, его подхватит
	// polling координатора.
	if err := h.dispatcher.Submit(order.ID); err != nil {
		h.logger.Warn("failed to dispatch order, will be picked up by poll",
			"order_id", order.ID,
			"error", err,
		)
	}

	Accepted(w, AcceptedFromDomain(order))
}

// GetOrder возвращает заказ целиком.
// GET /api/v1/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "order not found") {
		return
	}

	Success(w, OrderFromDomain(*order))
}

// GetOrderStatus возвращает прогресс заказа.
// GET /api/v1/orders/{id}/status
//
// Прогресс выводится только из персистентного состояния — ответ
// одинаков на любом узле и после рестарта.
func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetByID(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "order not found") {
		return
	}

	Success(w, order.Progress())
}

// ListOrders возвращает список заказов с фильтрацией.
// GET /api/v1/orders?client_id=...&status=...&limit=...&offset=...
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := repo.OrderFilter{
		ClientID: r.URL.Query().Get("client_id"),
		Limit:    50,
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.OrderStatus(status)
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			BadRequest(w, "invalid offset")
			return
		}
		filter.Offset = offset
	}

	orders, err := h.orders.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]OrderResponse, len(orders))
	for i, order := range orders {
		result[i] = OrderFromDomain(order)
	}

	List(w, result, len(result))
}

// ListOrderEvents возвращает audit-журнал заказа в порядке записи.
// GET /api/v1/orders/{id}/events
func (h *Handler) ListOrderEvents(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")

	// Проверяем, что заказ существует: пустой журнал и отсутствующий
	// заказ — разные ответы.
	if _, err := h.orders.GetByID(r.Context(), orderID); err != nil {
		if HandleRepoError(w, h.logger, err, "order not found") {
			return
		}
	}

	events, err := h.events.ListByOrderID(r.Context(), orderID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, events, len(events))
}
