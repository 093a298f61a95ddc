// Package breaker реализует реестр circuit breaker'ов по downstream-сервисам.
//
// Реестр — единственное состояние, разделяемое между конкурентными сагами:
// он отражает реальное здоровье backend'ов, а не прогресс отдельного
// заказа. Создаётся один раз на процесс и передаётся явно (dependency
// injection, не глобальная переменная) координатору и retry-executor'у.
package breaker

import (
	"sync"
	"time"

	"github.com/shaiso/Cargomata/internal/domain"
	"github.com/shaiso/Cargomata/internal/telemetry"
)

// Default configuration values.
const (
	defaultThreshold = 3
	defaultCooldown  = 60 * time.Second
)

// entry — состояние breaker'а одного сервиса.
//
// Инвариант: available == false только пока failures >= threshold И с
// момента lastFailure прошло меньше cooldown.
type entry struct {
	mu          sync.Mutex
	available   bool
	failures    int
	lastFailure time.Time // zero value — отказов не было
}

// Registry — реестр breaker'ов, по одному на сервис.
type Registry struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	entries map[domain.ServiceID]*entry
}

// Config — конфигурация Registry.
type Config struct {
	// Threshold — число последовательных отказов до открытия circuit
	// (default: 3).
	Threshold int

	// Cooldown — время, после которого открытый circuit закрывается
	// без пробного вызова (default: 60s).
	Cooldown time.Duration

	// Now — источник времени. Подменяется в тестах (default: time.Now).
	Now func() time.Time
}

// New создаёт Registry с entry для каждого из трёх сервисов.
func New(cfg Config) *Registry {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}

	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	entries := make(map[domain.ServiceID]*entry, len(domain.AllServices()))
	for _, svc := range domain.AllServices() {
		entries[svc] = &entry{available: true}
	}

	return &Registry{
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		entries:   entries,
	}
}

// IsAvailable сообщает, можно ли вызывать сервис.
//
// Если circuit открыт, но cooldown с момента последнего отказа истёк,
// breaker сбрасывается в закрытое состояние с нулевым счётчиком —
// без пробного вызова: исход решает следующий реальный вызов.
func (r *Registry) IsAvailable(service domain.ServiceID) bool {
	e := r.entries[service]
	if e == nil {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.available {
		return true
	}

	if r.now().Sub(e.lastFailure) >= r.cooldown {
		e.available = true
		e.failures = 0
		e.lastFailure = time.Time{}
		telemetry.BreakerOpen.WithLabelValues(string(service)).Set(0)
		return true
	}

	return false
}

// RecordSuccess сбрасывает состояние сервиса в здоровое. Идемпотентна.
func (r *Registry) RecordSuccess(service domain.ServiceID) {
	e := r.entries[service]
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.available = true
	e.failures = 0
	e.lastFailure = time.Time{}
	telemetry.BreakerOpen.WithLabelValues(string(service)).Set(0)
}

// RecordFailure фиксирует отказ сервиса; при достижении threshold
// последовательных отказов circuit открывается.
func (r *Registry) RecordFailure(service domain.ServiceID) {
	e := r.entries[service]
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.failures++
	e.lastFailure = r.now()
	if e.failures >= r.threshold {
		e.available = false
		telemetry.BreakerOpen.WithLabelValues(string(service)).Set(1)
	}
}

// State — снимок состояния breaker'а одного сервиса.
type State struct {
	Service             domain.ServiceID `json:"service"`
	Available           bool             `json:"available"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	LastFailureAt       *time.Time       `json:"last_failure_at,omitempty"`
}

// Snapshot возвращает состояние всех сервисов в порядке шагов саги.
// Снимок не мутирует состояние (в отличие от IsAvailable).
func (r *Registry) Snapshot() []State {
	states := make([]State, 0, len(r.entries))
	for _, svc := range domain.AllServices() {
		e := r.entries[svc]

		e.mu.Lock()
		s := State{
			Service:             svc,
			Available:           e.available,
			ConsecutiveFailures: e.failures,
		}
		if !e.lastFailure.IsZero() {
			ts := e.lastFailure
			s.LastFailureAt = &ts
		}
		e.mu.Unlock()

		states = append(states, s)
	}
	return states
}
