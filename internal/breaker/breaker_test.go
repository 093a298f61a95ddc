package breaker

import (
	"testing"
	"time"

	"github.com/shaiso/Cargomata/internal/domain"
)

const testService = domain.ServiceContractVerification

func TestRegistry_OpensAfterThreshold(t *testing.T) {
	r := New(Config{Threshold: 3})

	r.RecordFailure(testService)
	r.RecordFailure(testService)
	if !r.IsAvailable(testService) {
		t.Fatal("breaker should stay closed below threshold")
	}

	r.RecordFailure(testService)
	if r.IsAvailable(testService) {
		t.Fatal("breaker should open after 3 consecutive failures")
	}
}

func TestRegistry_SuccessResetsCounter(t *testing.T) {
	r := New(Config{Threshold: 3})

	r.RecordFailure(testService)
	r.RecordFailure(testService)
	r.RecordSuccess(testService)

	// Счётчик сброшен: двух новых отказов недостаточно
	r.RecordFailure(testService)
	r.RecordFailure(testService)
	if !r.IsAvailable(testService) {
		t.Fatal("success should reset the consecutive failure counter")
	}
}

func TestRegistry_CooldownClosesWithoutTrialCall(t *testing.T) {
	now := time.Now()
	r := New(Config{
		Threshold: 3,
		Cooldown:  60 * time.Second,
		Now:       func() time.Time { return now },
	})

	for i := 0; i < 3; i++ {
		r.RecordFailure(testService)
	}
	if r.IsAvailable(testService) {
		t.Fatal("breaker should be open")
	}

	// До истечения cooldown — всё ещё открыт
	now = now.Add(59 * time.Second)
	if r.IsAvailable(testService) {
		t.Fatal("breaker should stay open before cooldown elapses")
	}

	// После истечения cooldown закрывается сам, без пробного вызова
	now = now.Add(2 * time.Second)
	if !r.IsAvailable(testService) {
		t.Fatal("breaker should close after cooldown")
	}

	// Состояние полностью сброшено
	for _, s := range r.Snapshot() {
		if s.Service != testService {
			continue
		}
		if !s.Available {
			t.Error("snapshot should report service available")
		}
		if s.ConsecutiveFailures != 0 {
			t.Errorf("failure counter should be reset, got %d", s.ConsecutiveFailures)
		}
	}
}

func TestRegistry_ServicesAreIndependent(t *testing.T) {
	r := New(Config{Threshold: 3})

	for i := 0; i < 3; i++ {
		r.RecordFailure(domain.ServicePackageRegistration)
	}

	if r.IsAvailable(domain.ServicePackageRegistration) {
		t.Error("package-registration breaker should be open")
	}
	if !r.IsAvailable(domain.ServiceContractVerification) {
		t.Error("contract-verification breaker should be unaffected")
	}
	if !r.IsAvailable(domain.ServiceRouteOptimization) {
		t.Error("route-optimization breaker should be unaffected")
	}
}

func TestRegistry_SnapshotDoesNotMutate(t *testing.T) {
	now := time.Now()
	r := New(Config{
		Threshold: 3,
		Cooldown:  time.Second,
		Now:       func() time.Time { return now },
	})

	for i := 0; i < 3; i++ {
		r.RecordFailure(testService)
	}

	// Cooldown истёк, но Snapshot не должен сбросить breaker
	now = now.Add(2 * time.Second)
	for _, s := range r.Snapshot() {
		if s.Service == testService && s.Available {
			t.Error("snapshot should not apply the lazy cooldown reset")
		}
	}

	// А IsAvailable — должен
	if !r.IsAvailable(testService) {
		t.Error("IsAvailable should apply the lazy cooldown reset")
	}
}

func TestRegistry_Snapshot_OrderAndFields(t *testing.T) {
	r := New(Config{})
	r.RecordFailure(domain.ServiceRouteOptimization)

	states := r.Snapshot()
	if len(states) != len(domain.AllServices()) {
		t.Fatalf("expected %d states, got %d", len(domain.AllServices()), len(states))
	}

	for i, svc := range domain.AllServices() {
		if states[i].Service != svc {
			t.Errorf("state %d: expected service %s, got %s", i, svc, states[i].Service)
		}
	}

	last := states[len(states)-1]
	if last.ConsecutiveFailures != 1 {
		t.Errorf("expected 1 failure, got %d", last.ConsecutiveFailures)
	}
	if last.LastFailureAt == nil {
		t.Error("last_failure_at should be set after a failure")
	}
}
