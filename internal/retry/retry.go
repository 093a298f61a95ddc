// Package retry реализует выполнение downstream-вызова с ограниченными
// повторами, экспоненциальной задержкой и гейтингом через circuit breaker.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Cargomata/internal/adapter"
	"github.com/shaiso/Cargomata/internal/breaker"
	"github.com/shaiso/Cargomata/internal/domain"
	"github.com/shaiso/Cargomata/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 2 * time.Second
)

// Operation — один downstream-вызов.
type Operation func(ctx context.Context) (*adapter.Result, error)

// Notifier получает уведомления о запланированных повторах.
// Координатор публикует их в progress-трекинг.
type Notifier interface {
	RetryScheduled(ctx context.Context, orderID string, service domain.ServiceID, attempt int, nextAttemptAt time.Time)
}

// TerminalError — терминальная ошибка после исчерпания попыток.
type TerminalError struct {
	// Service — сервис, вызов которого не удался.
	Service domain.ServiceID

	// Attempts — сколько попыток было сделано.
	Attempts int

	// Fault — классификация последней ошибки.
	Fault *domain.Fault
}

// Error реализует error.
func (e *TerminalError) Error() string {
	return fmt.Sprintf("call to %s failed terminally after %d attempts: %v",
		e.Service, e.Attempts, e.Fault)
}

// Unwrap возвращает последнюю ошибку.
func (e *TerminalError) Unwrap() error {
	return e.Fault
}

// Executor выполняет downstream-вызовы с retry.
//
// Перед каждой попыткой сверяется с breaker'ом: при открытом circuit
// попытка считается неудачной без обращения к downstream (fast-fail),
// но расходует бюджет попыток — circuit, открывшийся посреди серии,
// серию не прерывает, каждая попытка проверяет доступность заново.
type Executor struct {
	breakers    *breaker.Registry
	notifier    Notifier
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger

	// Подменяются в тестах.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Config — конфигурация Executor.
type Config struct {
	// Breakers — реестр circuit breaker'ов (обязателен).
	Breakers *breaker.Registry

	// Notifier — получатель уведомлений о повторах (опционально).
	Notifier Notifier

	// MaxAttempts — максимум попыток, включая первую (default: 5).
	// MaxAttempts=1 — без повторов.
	MaxAttempts int

	// BaseDelay — базовая задержка перед повтором (default: 2s).
	// Задержка после попытки i равна BaseDelay * 2^i.
	BaseDelay time.Duration

	// Logger — логгер (default: slog.Default).
	Logger *slog.Logger

	// Sleep — функция ожидания. Подменяется в тестах
	// (default: select на time.After и ctx.Done).
	Sleep func(ctx context.Context, d time.Duration) error

	// Now — источник времени (default: time.Now).
	Now func() time.Time
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Executor{
		breakers:    cfg.Breakers,
		notifier:    cfg.Notifier,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
		sleep:       sleep,
		now:         now,
	}
}

// SetNotifier устанавливает получателя уведомлений о повторах.
// Вызывается один раз при сборке координатора (executor создаётся до него).
func (e *Executor) SetNotifier(n Notifier) {
	e.notifier = n
}

// Do выполняет op с retry и breaker-гейтингом.
//
// Возвращает результат и число сделанных попыток. После исчерпания
// попыток возвращает *TerminalError с классификацией последней ошибки.
// Отмена контекста во время backoff-ожидания возвращает ctx.Err() —
// это не терминальный отказ заказа, сага возобновится после рестарта.
func (e *Executor) Do(ctx context.Context, orderID string, service domain.ServiceID, op Operation) (*adapter.Result, int, error) {
	var lastFault *domain.Fault

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if !e.breakers.IsAvailable(service) {
			// Fast-fail: попытка расходуется, downstream не вызывается,
			// состояние breaker'а не трогаем.
			lastFault = domain.NewCircuitOpenFault(service)
			telemetry.StepAttemptsTotal.WithLabelValues(string(service), telemetry.OutcomeCircuitOpen).Inc()
			e.logger.Debug("circuit open, attempt failed fast",
				"order_id", orderID,
				"service", service,
				"attempt", attempt+1,
			)
		} else {
			result, err := op(ctx)
			if err == nil {
				e.breakers.RecordSuccess(service)
				telemetry.StepAttemptsTotal.WithLabelValues(string(service), telemetry.OutcomeSuccess).Inc()
				return result, attempt + 1, nil
			}

			e.breakers.RecordFailure(service)
			lastFault = domain.AsFault(service, err)
			telemetry.StepAttemptsTotal.WithLabelValues(string(service), telemetry.OutcomeFailure).Inc()
			e.logger.Warn("downstream call failed",
				"order_id", orderID,
				"service", service,
				"attempt", attempt+1,
				"kind", lastFault.Kind,
				"error", lastFault.Message,
			)
		}

		if attempt == e.maxAttempts-1 {
			break
		}

		// Backoff: baseDelay * 2^attempt (2s, 4s, 8s, 16s при дефолтах).
		delay := e.baseDelay << uint(attempt)
		nextAt := e.now().Add(delay)

		if e.notifier != nil {
			e.notifier.RetryScheduled(ctx, orderID, service, attempt+1, nextAt)
		}

		e.logger.Debug("retry scheduled",
			"order_id", orderID,
			"service", service,
			"attempt", attempt+1,
			"delay", delay,
		)

		if err := e.sleep(ctx, delay); err != nil {
			return nil, attempt + 1, err
		}
	}

	return nil, e.maxAttempts, &TerminalError{
		Service:  service,
		Attempts: e.maxAttempts,
		Fault:    lastFault,
	}
}

// sleepCtx ждёт d с учётом отмены контекста.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
