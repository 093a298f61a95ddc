package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shaiso/Cargomata/internal/breaker"
	"github.com/shaiso/Cargomata/internal/domain"
)

func TestGetServiceHealth(t *testing.T) {
	env := newAPIEnv(t)
	for i := 0; i < 3; i++ {
		env.breakers.RecordFailure(domain.ServicePackageRegistration)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/services/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var envelope struct {
		Data []breaker.State `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(envelope.Data) != len(domain.AllServices()) {
		t.Fatalf("expected %d services, got %d", len(domain.AllServices()), len(envelope.Data))
	}

	for _, s := range envelope.Data {
		switch s.Service {
		case domain.ServicePackageRegistration:
			if s.Available {
				t.Error("package-registration should report unavailable")
			}
			if s.ConsecutiveFailures != 3 {
				t.Errorf("expected 3 failures, got %d", s.ConsecutiveFailures)
			}
			if s.LastFailureAt == nil {
				t.Error("last_failure_at should be set")
			}
		default:
			if !s.Available {
				t.Errorf("%s should report available", s.Service)
			}
		}
	}
}

func TestRecoverService_ClosesBreaker(t *testing.T) {
	env := newAPIEnv(t)
	for i := 0; i < 3; i++ {
		env.breakers.RecordFailure(domain.ServiceRouteOptimization)
	}
	if env.breakers.IsAvailable(domain.ServiceRouteOptimization) {
		t.Fatal("breaker should be open before recovery")
	}

	rec := env.do(t, http.MethodPost, "/api/v1/services/route-optimization/recover", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	data := decodeData(t, rec)
	if data["service"] != string(domain.ServiceRouteOptimization) {
		t.Errorf("service mismatch: %v", data["service"])
	}
	if data["available"] != true {
		t.Errorf("expected available=true, got %v", data["available"])
	}

	if !env.breakers.IsAvailable(domain.ServiceRouteOptimization) {
		t.Error("breaker should be closed after operator recovery")
	}
}

func TestRecoverService_UnknownService(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/services/billing/recover", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != ErrCodeBadRequest {
		t.Errorf("expected BAD_REQUEST, got %s", detail.Code)
	}
}
