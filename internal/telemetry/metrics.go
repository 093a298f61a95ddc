package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики. Экспортируются на /metrics endpoint сервера.
var (
	// OrdersTotal — завершённые саги по терминальному статусу.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cargomata_orders_total",
		Help: "Completed order sagas by terminal status",
	}, []string{"status"})

	// StepAttemptsTotal — попытки downstream-вызовов по сервису и исходу.
	StepAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cargomata_step_attempts_total",
		Help: "Downstream call attempts by service and outcome",
	}, []string{"service", "outcome"})

	// CompensationsTotal — выполненные компенсации по исходу.
	CompensationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cargomata_compensations_total",
		Help: "Compensation actions by outcome",
	}, []string{"outcome"})

	// BreakerOpen — открыт ли circuit breaker сервиса (1 — открыт).
	BreakerOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cargomata_breaker_open",
		Help: "Whether the circuit breaker for a service is open",
	}, []string{"service"})

	// SagaDuration — длительность саги от приёма до терминального статуса.
	SagaDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cargomata_saga_duration_seconds",
		Help:    "Order saga duration from submission to terminal status",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// Исходы для StepAttemptsTotal и CompensationsTotal.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeCircuitOpen = "circuit_open"
)
