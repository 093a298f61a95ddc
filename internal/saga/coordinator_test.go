package saga

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Cargomata/internal/adapter"
	"github.com/shaiso/Cargomata/internal/breaker"
	"github.com/shaiso/Cargomata/internal/domain"
	"github.com/shaiso/Cargomata/internal/retry"
)

// --- Fakes ---

type fakeStore struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	updates int
}

func newFakeStore(orders ...*domain.Order) *fakeStore {
	s := &fakeStore{orders: make(map[string]*domain.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, errors.New("order not found")
	}
	return order, nil
}

func (s *fakeStore) Update(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
	s.updates++
	return nil
}

func (s *fakeStore) ListUnfinished(ctx context.Context, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var unfinished []domain.Order
	for _, o := range s.orders {
		if !o.IsFinished() {
			unfinished = append(unfinished, *o)
		}
	}
	return unfinished, nil
}

type recordedEvent struct {
	orderID string
	typ     domain.EventType
	payload map[string]any
}

type fakeEventLog struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (l *fakeEventLog) Append(ctx context.Context, orderID string, typ domain.EventType, payload map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, recordedEvent{orderID, typ, payload})
	return nil
}

func (l *fakeEventLog) types() []domain.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	types := make([]domain.EventType, len(l.events))
	for i, ev := range l.events {
		types[i] = ev.typ
	}
	return types
}

// fakeAdapter — скриптуемый адаптер: первые failTimes вызовов возвращают
// callErr, дальше успех.
type fakeAdapter struct {
	service   domain.ServiceID
	callErr   error
	failTimes int
	compErr   error

	mu        sync.Mutex
	calls     int
	compCalls int
}

func (f *fakeAdapter) Service() domain.ServiceID { return f.service }

func (f *fakeAdapter) Call(ctx context.Context, order *domain.Order) (*adapter.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.callErr != nil && (f.failTimes <= 0 || f.calls <= f.failTimes) {
		return nil, f.callErr
	}
	return successResult(f.service), nil
}

func (f *fakeAdapter) Compensate(ctx context.Context, order *domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compCalls++
	return f.compErr
}

func successResult(service domain.ServiceID) *adapter.Result {
	switch service {
	case domain.ServiceContractVerification:
		return &adapter.Result{Contract: &domain.ContractResult{ContractID: "CTR-1", BillingStatus: "CLEARED"}}
	case domain.ServicePackageRegistration:
		return &adapter.Result{Warehouse: &domain.WarehouseResult{PackageID: "PKG-1", Location: "A-1"}}
	default:
		return &adapter.Result{Route: &domain.RouteResult{RouteID: "RT-1", Driver: "d", Vehicle: "v", ETA: time.Now().Add(time.Hour)}}
	}
}

// --- Setup ---

type testEnv struct {
	coordinator *Coordinator
	store       *fakeStore
	events      *fakeEventLog
	cms         *fakeAdapter
	wms         *fakeAdapter
	ros         *fakeAdapter
}

func newTestEnv(t *testing.T, maxAttempts int, orders ...*domain.Order) *testEnv {
	t.Helper()

	store := newFakeStore(orders...)
	events := &fakeEventLog{}
	cms := &fakeAdapter{service: domain.ServiceContractVerification}
	wms := &fakeAdapter{service: domain.ServicePackageRegistration}
	ros := &fakeAdapter{service: domain.ServiceRouteOptimization}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	executor := retry.New(retry.Config{
		Breakers:    breaker.New(breaker.Config{}),
		MaxAttempts: maxAttempts,
		Logger:      logger,
		Sleep:       func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	})

	coordinator := New(Config{
		Orders:   store,
		Events:   events,
		Executor: executor,
		Adapters: map[domain.ServiceID]adapter.Adapter{
			domain.ServiceContractVerification: cms,
			domain.ServicePackageRegistration:  wms,
			domain.ServiceRouteOptimization:    ros,
		},
		Logger: logger,
	})

	return &testEnv{coordinator, store, events, cms, wms, ros}
}

func submittedOrder(id string) *domain.Order {
	return &domain.Order{
		ID:           id,
		ClientID:     "client-1",
		Priority:     domain.PriorityStandard,
		Items:        []domain.LineItem{{SKU: "SKU-1", Quantity: 1}},
		Destinations: []domain.Destination{{Address: "1 Main St"}},
		Status:       domain.OrderStatusSubmitted,
		SubmittedAt:  time.Now(),
	}
}

// --- Tests ---

func TestSaga_HappyPath(t *testing.T) {
	env := newTestEnv(t, 5, submittedOrder("ord-1"))

	env.coordinator.processOrder(context.Background(), "ord-1")

	order, _ := env.store.GetByID(context.Background(), "ord-1")
	if order.Status != domain.OrderStatusReadyForDelivery {
		t.Fatalf("expected READY_FOR_DELIVERY, got %s", order.Status)
	}
	if order.Manifest == nil {
		t.Fatal("manifest should be built")
	}
	if order.Manifest.ContractID != "CTR-1" || order.Manifest.PackageID != "PKG-1" || order.Manifest.RouteID != "RT-1" {
		t.Errorf("manifest should aggregate all three results: %+v", order.Manifest)
	}

	if env.cms.calls != 1 || env.wms.calls != 1 || env.ros.calls != 1 {
		t.Errorf("each service should be called once: %d/%d/%d", env.cms.calls, env.wms.calls, env.ros.calls)
	}
	if env.cms.compCalls+env.wms.compCalls+env.ros.compCalls != 0 {
		t.Error("no compensations on the happy path")
	}

	// Timestamps монотонны
	if order.CMSVerifiedAt == nil || order.WMSRegisteredAt == nil || order.ROSOptimizedAt == nil || order.ReadyAt == nil {
		t.Fatal("all step timestamps should be set")
	}
	if order.WMSRegisteredAt.Before(*order.CMSVerifiedAt) ||
		order.ROSOptimizedAt.Before(*order.WMSRegisteredAt) ||
		order.ReadyAt.Before(*order.ROSOptimizedAt) {
		t.Error("timestamps should be non-decreasing")
	}

	wantEvents := []domain.EventType{
		domain.EventStepCompleted,
		domain.EventStepCompleted,
		domain.EventStepCompleted,
		domain.EventOrderReady,
	}
	got := env.events.types()
	if len(got) != len(wantEvents) {
		t.Fatalf("expected events %v, got %v", wantEvents, got)
	}
	for i, want := range wantEvents {
		if got[i] != want {
			t.Errorf("event %d: expected %s, got %s", i, want, got[i])
		}
	}
}

func TestSaga_FailureAtWMS_CompensatesCMSOnly(t *testing.T) {
	env := newTestEnv(t, 2, submittedOrder("ord-1"))
	env.wms.callErr = &domain.Fault{
		Kind:    domain.FaultBusinessRule,
		Service: domain.ServicePackageRegistration,
		Code:    domain.CodeInsufficientInventory,
		Message: "sku SKU-1 is out of stock",
	}

	env.coordinator.processOrder(context.Background(), "ord-1")

	order, _ := env.store.GetByID(context.Background(), "ord-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("expected FAILED, got %s", order.Status)
	}

	if order.Failure == nil {
		t.Fatal("failure detail should be present")
	}
	if order.Failure.Service != domain.ServicePackageRegistration {
		t.Errorf("failure service mismatch: %s", order.Failure.Service)
	}
	if order.Failure.Step != StepRegisterPackage {
		t.Errorf("failure step mismatch: %s", order.Failure.Step)
	}
	if order.Failure.Code != domain.CodeInsufficientInventory {
		t.Errorf("failure code mismatch: %s", order.Failure.Code)
	}
	if order.Failure.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", order.Failure.Attempts)
	}
	if order.Failure.SuggestedAction == "" {
		t.Error("suggested action should be set")
	}

	// Компенсируется только выполненный шаг
	if env.cms.compCalls != 1 {
		t.Errorf("contract step should be compensated once, got %d", env.cms.compCalls)
	}
	if env.wms.compCalls != 0 {
		t.Error("the failed step itself must not be compensated")
	}
	if env.ros.calls != 0 {
		t.Error("route-optimization must not be reached")
	}

	if len(order.Compensations) != 1 || order.Compensations[0].Step != StepVerifyContract {
		t.Errorf("expected one compensation for verify_contract, got %+v", order.Compensations)
	}

	// Результат выполненного шага сохранён для аудита
	if order.Contract == nil {
		t.Error("contract result should be kept after failure")
	}

	got := env.events.types()
	wantEvents := []domain.EventType{
		domain.EventStepCompleted,       // verify_contract
		domain.EventRetryScheduled,      // между двумя попытками WMS
		domain.EventCompensationExecuted,
		domain.EventOrderFailed,
	}
	if len(got) != len(wantEvents) {
		t.Fatalf("expected events %v, got %v", wantEvents, got)
	}
	for i, want := range wantEvents {
		if got[i] != want {
			t.Errorf("event %d: expected %s, got %s", i, want, got[i])
		}
	}
}

func TestSaga_FailureAtROS_CompensatesInReverseOrder(t *testing.T) {
	env := newTestEnv(t, 1, submittedOrder("ord-1"))
	env.ros.callErr = &domain.Fault{
		Kind:    domain.FaultBusinessRule,
		Service: domain.ServiceRouteOptimization,
		Code:    domain.CodeNoDriversAvailable,
		Message: "no drivers",
	}

	env.coordinator.processOrder(context.Background(), "ord-1")

	order, _ := env.store.GetByID(context.Background(), "ord-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("expected FAILED, got %s", order.Status)
	}

	if len(order.Compensations) != 2 {
		t.Fatalf("expected 2 compensations, got %+v", order.Compensations)
	}
	if order.Compensations[0].Step != StepRegisterPackage {
		t.Errorf("first compensation should be register_package, got %s", order.Compensations[0].Step)
	}
	if order.Compensations[1].Step != StepVerifyContract {
		t.Errorf("second compensation should be verify_contract, got %s", order.Compensations[1].Step)
	}
	if env.wms.compCalls != 1 || env.cms.compCalls != 1 {
		t.Errorf("both completed steps should be compensated once: wms=%d cms=%d", env.wms.compCalls, env.cms.compCalls)
	}
	if env.ros.compCalls != 0 {
		t.Error("failed step must not be compensated")
	}
}

func TestSaga_CompensationFailureIsBestEffort(t *testing.T) {
	env := newTestEnv(t, 1, submittedOrder("ord-1"))
	env.ros.callErr = &domain.Fault{
		Kind:    domain.FaultConnection,
		Service: domain.ServiceRouteOptimization,
		Message: "down",
	}
	env.wms.compErr = errors.New("release failed")

	env.coordinator.processOrder(context.Background(), "ord-1")

	order, _ := env.store.GetByID(context.Background(), "ord-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("expected FAILED, got %s", order.Status)
	}

	// Откат не прерывается: обе компенсации зафиксированы, первая с ошибкой
	if len(order.Compensations) != 2 {
		t.Fatalf("expected 2 compensation records, got %+v", order.Compensations)
	}
	if order.Compensations[0].Error == "" {
		t.Error("failed compensation should record its error")
	}
	if order.Compensations[1].Error != "" {
		t.Error("successful compensation should have no error")
	}
	if env.cms.compCalls != 1 {
		t.Error("compensation chain should continue past a failure")
	}

	got := env.events.types()
	hasFailed := false
	for _, typ := range got {
		if typ == domain.EventCompensationFailed {
			hasFailed = true
		}
	}
	if !hasFailed {
		t.Errorf("compensation.failed event expected, got %v", got)
	}
}

func TestSaga_ResumeSkipsCompletedSteps(t *testing.T) {
	order := submittedOrder("ord-1")
	order.MarkCMSVerified(&domain.ContractResult{ContractID: "CTR-old", BillingStatus: "CLEARED"})

	env := newTestEnv(t, 5, order)

	env.coordinator.processOrder(context.Background(), "ord-1")

	got, _ := env.store.GetByID(context.Background(), "ord-1")
	if got.Status != domain.OrderStatusReadyForDelivery {
		t.Fatalf("expected READY_FOR_DELIVERY, got %s", got.Status)
	}

	// Выполненный шаг не вызывается повторно
	if env.cms.calls != 0 {
		t.Errorf("completed step must not be re-executed, got %d calls", env.cms.calls)
	}
	if env.wms.calls != 1 || env.ros.calls != 1 {
		t.Errorf("remaining steps should run once: wms=%d ros=%d", env.wms.calls, env.ros.calls)
	}
	if got.Manifest.ContractID != "CTR-old" {
		t.Errorf("resumed saga should keep the persisted result, got %s", got.Manifest.ContractID)
	}
}

func TestSaga_TerminalOrderIsNotTouched(t *testing.T) {
	order := submittedOrder("ord-1")
	order.Status = domain.OrderStatusFailed

	env := newTestEnv(t, 5, order)

	env.coordinator.processOrder(context.Background(), "ord-1")

	if env.cms.calls+env.wms.calls+env.ros.calls != 0 {
		t.Error("terminal orders must not trigger downstream calls")
	}
	if len(env.events.types()) != 0 {
		t.Error("terminal orders must not produce events")
	}
}

func TestSaga_BusinessRejectionIsRetried(t *testing.T) {
	env := newTestEnv(t, 3, submittedOrder("ord-1"))
	env.cms.callErr = &domain.Fault{
		Kind:    domain.FaultBusinessRule,
		Service: domain.ServiceContractVerification,
		Code:    domain.CodeCreditLimitExceeded,
		Message: "over limit",
	}

	env.coordinator.processOrder(context.Background(), "ord-1")

	// Бизнес-отказ ретраится так же, как транзиентный
	if env.cms.calls != 3 {
		t.Errorf("business rejection should consume all attempts, got %d calls", env.cms.calls)
	}

	order, _ := env.store.GetByID(context.Background(), "ord-1")
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("expected FAILED, got %s", order.Status)
	}
	if len(order.Compensations) != 0 {
		t.Errorf("no steps completed, nothing to compensate: %+v", order.Compensations)
	}
}

func TestSaga_TransientFailureThenSuccess(t *testing.T) {
	env := newTestEnv(t, 5, submittedOrder("ord-1"))
	env.wms.callErr = domain.NewConnectionFault(domain.ServicePackageRegistration, errors.New("timeout"))
	env.wms.failTimes = 2

	env.coordinator.processOrder(context.Background(), "ord-1")

	order, _ := env.store.GetByID(context.Background(), "ord-1")
	if order.Status != domain.OrderStatusReadyForDelivery {
		t.Fatalf("expected READY_FOR_DELIVERY after recovery, got %s", order.Status)
	}
	if env.wms.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", env.wms.calls)
	}

	// Два retry.scheduled события между попытками
	retries := 0
	for _, typ := range env.events.types() {
		if typ == domain.EventRetryScheduled {
			retries++
		}
	}
	if retries != 2 {
		t.Errorf("expected 2 retry.scheduled events, got %d", retries)
	}
}
