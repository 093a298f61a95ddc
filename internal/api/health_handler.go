package api

import (
	"net/http"

	"github.com/shaiso/Cargomata/internal/domain"
)

// GetServiceHealth возвращает состояние circuit breaker'ов всех
// downstream-сервисов.
// GET /api/v1/services/health
func (h *Handler) GetServiceHealth(w http.ResponseWriter, r *http.Request) {
	Success(w, h.breakers.Snapshot())
}

// RecoverService принудительно закрывает circuit breaker сервиса.
// POST /api/v1/services/{service}/recover
//
// Административная операция: оператор знает, что backend восстановлен,
// и не хочет ждать cooldown.
func (h *Handler) RecoverService(w http.ResponseWriter, r *http.Request) {
	service := domain.ServiceID(r.PathValue("service"))
	if !service.IsValid() {
		BadRequest(w, "unknown service: "+string(service))
		return
	}

	h.breakers.RecordSuccess(service)

	h.logger.Info("service breaker reset by operator", "service", service)

	Success(w, map[string]any{
		"service":   service,
		"available": true,
	})
}
