package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Cargomata/internal/breaker"
	"github.com/shaiso/Cargomata/internal/domain"
	"github.com/shaiso/Cargomata/internal/repo"
)

// --- Fakes ---

type fakeOrderStore struct {
	orders  map[string]*domain.Order
	listErr error
}

func newFakeOrderStore(orders ...*domain.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: make(map[string]*domain.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeOrderStore) Create(ctx context.Context, order *domain.Order) error {
	if _, exists := s.orders[order.ID]; exists {
		return repo.ErrAlreadyExists
	}
	s.orders[order.ID] = order
	return nil
}

func (s *fakeOrderStore) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return order, nil
}

func (s *fakeOrderStore) List(ctx context.Context, filter repo.OrderFilter) ([]domain.Order, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var result []domain.Order
	for _, o := range s.orders {
		if filter.ClientID != "" && o.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		result = append(result, *o)
	}
	return result, nil
}

type fakeEventStore struct {
	events map[string][]domain.Event
}

func (s *fakeEventStore) Append(ctx context.Context, orderID string, typ domain.EventType, payload map[string]any) error {
	s.events[orderID] = append(s.events[orderID], domain.Event{
		OrderID: orderID,
		Type:    typ,
		Payload: payload,
	})
	return nil
}

func (s *fakeEventStore) ListByOrderID(ctx context.Context, orderID string) ([]domain.Event, error) {
	return s.events[orderID], nil
}

type fakeDispatcher struct {
	submitted []string
	err       error
}

func (d *fakeDispatcher) Submit(orderID string) error {
	if d.err != nil {
		return d.err
	}
	d.submitted = append(d.submitted, orderID)
	return nil
}

// --- Setup ---

type apiEnv struct {
	mux        *http.ServeMux
	store      *fakeOrderStore
	events     *fakeEventStore
	dispatcher *fakeDispatcher
	breakers   *breaker.Registry
}

func newAPIEnv(t *testing.T, orders ...*domain.Order) *apiEnv {
	t.Helper()

	store := newFakeOrderStore(orders...)
	events := &fakeEventStore{events: make(map[string][]domain.Event)}
	dispatcher := &fakeDispatcher{}
	breakers := breaker.New(breaker.Config{})

	h := NewHandler(Config{
		Orders:     store,
		Events:     events,
		Dispatcher: dispatcher,
		Breakers:   breakers,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &apiEnv{mux, store, events, dispatcher, breakers}
}

func (e *apiEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return envelope.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()

	var envelope ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return envelope.Error
}

func storedOrder(id string, status domain.OrderStatus) *domain.Order {
	return &domain.Order{
		ID:           id,
		ClientID:     "client-1",
		Priority:     domain.PriorityStandard,
		Items:        []domain.LineItem{{SKU: "SKU-1", Quantity: 1}},
		Destinations: []domain.Destination{{Address: "1 Main St"}},
		Status:       status,
		SubmittedAt:  time.Now(),
	}
}

var errTest = errors.New("dispatcher unavailable")

const validSubmitBody = `{
	"order_id": "ord-1",
	"client_id": "client-1",
	"items": [{"sku": "SKU-1", "quantity": 2}],
	"destinations": [{"address": "1 Main St", "zone": "north"}]
}`

// --- Submit Tests ---

func TestSubmitOrder_Accepted(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", validSubmitBody)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	data := decodeData(t, rec)
	if data["status"] != "accepted" {
		t.Errorf("expected status accepted, got %v", data["status"])
	}
	if data["order_id"] != "ord-1" {
		t.Errorf("order_id mismatch: %v", data["order_id"])
	}

	processing, ok := data["processing"].(map[string]any)
	if !ok {
		t.Fatal("processing block should be present")
	}
	if processing["mode"] != "ASYNCHRONOUS" {
		t.Errorf("expected ASYNCHRONOUS mode, got %v", processing["mode"])
	}
	if processing["status_endpoint"] != "/api/v1/orders/ord-1/status" {
		t.Errorf("status_endpoint mismatch: %v", processing["status_endpoint"])
	}

	// Заказ персистирован в SUBMITTED с дефолтным приоритетом
	order, ok := env.store.orders["ord-1"]
	if !ok {
		t.Fatal("order should be persisted")
	}
	if order.Status != domain.OrderStatusSubmitted {
		t.Errorf("expected SUBMITTED, got %s", order.Status)
	}
	if order.Priority != domain.PriorityStandard {
		t.Errorf("expected default STANDARD priority, got %s", order.Priority)
	}

	// Заказ передан координатору
	if len(env.dispatcher.submitted) != 1 || env.dispatcher.submitted[0] != "ord-1" {
		t.Errorf("order should be dispatched, got %v", env.dispatcher.submitted)
	}

	// Приём зафиксирован в журнале
	if evs := env.events.events["ord-1"]; len(evs) != 1 || evs[0].Type != domain.EventOrderSubmitted {
		t.Errorf("order.submitted event should be journaled, got %v", evs)
	}
}

func TestSubmitOrder_InvalidBody(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/orders", "not json")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	detail := decodeError(t, rec)
	if detail.Code != ErrCodeBadRequest {
		t.Errorf("expected BAD_REQUEST, got %s", detail.Code)
	}
	if detail.Message != "invalid request body" {
		t.Errorf("message mismatch: %s", detail.Message)
	}
}

func TestSubmitOrder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{
			"missing order_id",
			`{"client_id": "c", "items": [{"sku": "S", "quantity": 1}], "destinations": [{"address": "a"}]}`,
			"order_id is required",
		},
		{
			"missing client_id",
			`{"order_id": "o", "items": [{"sku": "S", "quantity": 1}], "destinations": [{"address": "a"}]}`,
			"client_id is required",
		},
		{
			"empty items",
			`{"order_id": "o", "client_id": "c", "items": [], "destinations": [{"address": "a"}]}`,
			"items must not be empty",
		},
		{
			"zero quantity",
			`{"order_id": "o", "client_id": "c", "items": [{"sku": "S", "quantity": 0}], "destinations": [{"address": "a"}]}`,
			"items[0].quantity must be positive",
		},
		{
			"missing address",
			`{"order_id": "o", "client_id": "c", "items": [{"sku": "S", "quantity": 1}], "destinations": [{"city": "x"}]}`,
			"destinations[0].address is required",
		},
		{
			"bad priority",
			`{"order_id": "o", "client_id": "c", "priority": "ASAP", "items": [{"sku": "S", "quantity": 1}], "destinations": [{"address": "a"}]}`,
			"priority must be one of STANDARD, HIGH, URGENT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newAPIEnv(t)

			rec := env.do(t, http.MethodPost, "/api/v1/orders", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if detail := decodeError(t, rec); detail.Message != tt.message {
				t.Errorf("expected %q, got %q", tt.message, detail.Message)
			}
		})
	}
}

func TestSubmitOrder_Duplicate(t *testing.T) {
	env := newAPIEnv(t, storedOrder("ord-1", domain.OrderStatusSubmitted))

	rec := env.do(t, http.MethodPost, "/api/v1/orders", validSubmitBody)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != ErrCodeConflict {
		t.Errorf("expected CONFLICT, got %s", detail.Code)
	}
}

func TestSubmitOrder_DispatcherDownStillAccepted(t *testing.T) {
	env := newAPIEnv(t)
	env.dispatcher.err = errTest

	rec := env.do(t, http.MethodPost, "/api/v1/orders", validSubmitBody)

	// Отказ передачи координатору не отменяет приём: заказ
	// персистирован, его подхватит polling.
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 despite dispatcher failure, got %d", rec.Code)
	}
	if _, ok := env.store.orders["ord-1"]; !ok {
		t.Error("order should still be persisted")
	}
}

// --- Get / Status Tests ---

func TestGetOrder_NotFound(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/orders/missing", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Message != "order not found" {
		t.Errorf("message mismatch: %s", detail.Message)
	}
}

func TestGetOrderStatus_Progress(t *testing.T) {
	order := storedOrder("ord-1", domain.OrderStatusSubmitted)
	order.MarkCMSVerified(&domain.ContractResult{ContractID: "CTR-1", BillingStatus: "CLEARED"})

	env := newAPIEnv(t, order)

	rec := env.do(t, http.MethodGet, "/api/v1/orders/ord-1/status", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	data := decodeData(t, rec)
	if data["status"] != string(domain.OrderStatusCMSVerified) {
		t.Errorf("expected CMS_VERIFIED, got %v", data["status"])
	}
	if data["current_stage"] != string(domain.ServicePackageRegistration) {
		t.Errorf("current_stage mismatch: %v", data["current_stage"])
	}
	if data["completed_steps"] != float64(1) {
		t.Errorf("expected 1 completed step, got %v", data["completed_steps"])
	}
	if data["percentage"] != float64(33) {
		t.Errorf("expected 33%%, got %v", data["percentage"])
	}
}

func TestGetOrderStatus_FailedIncludesSuggestedAction(t *testing.T) {
	order := storedOrder("ord-1", domain.OrderStatusSubmitted)
	order.MarkFailed(&domain.FailureDetail{
		Service:         domain.ServicePackageRegistration,
		Step:            "register_package",
		Kind:            domain.FaultBusinessRule,
		Code:            domain.CodeInsufficientInventory,
		Message:         "out of stock",
		SuggestedAction: domain.SuggestedActionFor(domain.CodeInsufficientInventory),
		Attempts:        5,
	})

	env := newAPIEnv(t, order)

	rec := env.do(t, http.MethodGet, "/api/v1/orders/ord-1/status", "")

	data := decodeData(t, rec)
	failure, ok := data["failure"].(map[string]any)
	if !ok {
		t.Fatal("failure block should be present")
	}
	if failure["code"] != domain.CodeInsufficientInventory {
		t.Errorf("failure code mismatch: %v", failure["code"])
	}
	if failure["suggested_action"] == "" {
		t.Error("suggested_action should be filled")
	}
	if failure["attempts"] != float64(5) {
		t.Errorf("attempts mismatch: %v", failure["attempts"])
	}
}

// --- List Tests ---

func TestListOrders_FilterByClient(t *testing.T) {
	a := storedOrder("ord-1", domain.OrderStatusSubmitted)
	b := storedOrder("ord-2", domain.OrderStatusSubmitted)
	b.ClientID = "client-2"

	env := newAPIEnv(t, a, b)

	rec := env.do(t, http.MethodGet, "/api/v1/orders?client_id=client-2", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var envelope struct {
		Data  []OrderResponse `json:"data"`
		Total int             `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if envelope.Total != 1 || len(envelope.Data) != 1 {
		t.Fatalf("expected 1 order, got %d", len(envelope.Data))
	}
	if envelope.Data[0].ID != "ord-2" {
		t.Errorf("expected ord-2, got %s", envelope.Data[0].ID)
	}
}

func TestListOrders_InvalidLimit(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/orders?limit=abc", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Message != "invalid limit" {
		t.Errorf("message mismatch: %s", detail.Message)
	}
}

// --- Events Tests ---

func TestListOrderEvents_MissingOrder(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/orders/missing/events", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing order should be 404, got %d", rec.Code)
	}
}

func TestListOrderEvents_EmptyLogIsOK(t *testing.T) {
	env := newAPIEnv(t, storedOrder("ord-1", domain.OrderStatusSubmitted))

	rec := env.do(t, http.MethodGet, "/api/v1/orders/ord-1/events", "")

	// Существующий заказ с пустым журналом — не 404
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListOrderEvents_ReturnsLog(t *testing.T) {
	env := newAPIEnv(t, storedOrder("ord-1", domain.OrderStatusSubmitted))
	env.events.events["ord-1"] = []domain.Event{
		{ID: 1, OrderID: "ord-1", Type: domain.EventStepCompleted, CreatedAt: time.Now()},
		{ID: 2, OrderID: "ord-1", Type: domain.EventOrderReady, CreatedAt: time.Now()},
	}

	rec := env.do(t, http.MethodGet, "/api/v1/orders/ord-1/events", "")

	var envelope struct {
		Data  []domain.Event `json:"data"`
		Total int            `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if envelope.Total != 2 {
		t.Errorf("expected 2 events, got %d", envelope.Total)
	}
	if envelope.Data[0].Type != domain.EventStepCompleted {
		t.Errorf("event type mismatch: %s", envelope.Data[0].Type)
	}
}
