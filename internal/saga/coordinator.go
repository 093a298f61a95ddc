package saga

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Cargomata/internal/adapter"
	"github.com/shaiso/Cargomata/internal/domain"
	"github.com/shaiso/Cargomata/internal/retry"
	"github.com/shaiso/Cargomata/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
)

// Coordinator выполняет саги заказов.
//
// Coordinator — центральный компонент системы, который:
//   - Принимает новые заказы через Submit (после 202-ответа API)
//   - Периодически подхватывает незавершённые заказы из БД (polling),
//     в том числе оставшиеся после рестарта процесса
//   - Ведёт заказ по шагам саги, персистируя каждый переход
//   - При терминальном отказе компенсирует выполненные шаги в обратном
//     порядке и переводит заказ в FAILED
//   - Дописывает audit-события и публикует их во внешнюю шину
type Coordinator struct {
	// Storage
	orders OrderStore
	events EventLog

	// MQ (опционально, best-effort)
	publisher EventPublisher

	// Execution
	executor *retry.Executor
	adapters map[domain.ServiceID]adapter.Adapter

	// Active orders — заказы в обработке (orderID → struct{})
	active map[string]struct{}
	mu     sync.RWMutex

	// Configuration
	pollInterval time.Duration
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	runCtx     context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Coordinator.
type Config struct {
	// Storage
	Orders OrderStore
	Events EventLog

	// Publisher — шина событий (опционально; nil — режим без MQ).
	Publisher EventPublisher

	// Executor — retry-исполнитель downstream-вызовов.
	Executor *retry.Executor

	// Adapters — адаптеры downstream-сервисов по ServiceID.
	Adapters map[domain.ServiceID]adapter.Adapter

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество заказов за один poll (default: 100)

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Coordinator и регистрирует его получателем
// retry-уведомлений у executor'а.
func New(cfg Config) *Coordinator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		orders:       cfg.Orders,
		events:       cfg.Events,
		publisher:    cfg.Publisher,
		executor:     cfg.Executor,
		adapters:     cfg.Adapters,
		active:       make(map[string]struct{}),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}

	if c.executor != nil {
		c.executor.SetNotifier(c)
	}

	return c
}

// Start запускает Coordinator.
//
// Запускает polling-горутину. Первый poll выполняется сразу — так
// подхватываются заказы, оставшиеся незавершёнными после рестарта.
func (c *Coordinator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.runCtx = ctx
	c.cancelFunc = cancel

	c.logger.Info("starting saga coordinator",
		"poll_interval", c.pollInterval,
		"batch_size", c.batchSize,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.pollLoop(ctx)
	}()

	c.logger.Info("saga coordinator started")
	return nil
}

// Stop останавливает Coordinator и дожидается завершения горутин.
// Прерванные саги возобновятся polling'ом после следующего старта.
func (c *Coordinator) Stop() {
	c.stoppedMu.Lock()
	c.stopped = true
	c.stoppedMu.Unlock()

	c.logger.Info("stopping saga coordinator...")

	if c.cancelFunc != nil {
		c.cancelFunc()
	}

	c.wg.Wait()

	c.logger.Info("saga coordinator stopped",
		"active_orders", c.ActiveCount(),
	)
}

// IsStopped проверяет, остановлен ли Coordinator.
func (c *Coordinator) IsStopped() bool {
	c.stoppedMu.RLock()
	defer c.stoppedMu.RUnlock()
	return c.stopped
}

// Submit передаёт принятый заказ в обработку (fire-and-forget).
//
// Вызывается API-обработчиком после персистирования заказа и отправки
// 202-ответа. Возвращает ошибку только если координатор остановлен —
// сам заказ при этом не теряется, его подхватит polling.
func (c *Coordinator) Submit(orderID string) error {
	if c.IsStopped() || c.runCtx == nil {
		return ErrCoordinatorStopped
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.processOrder(c.runCtx, orderID)
	}()

	return nil
}

// pollLoop — цикл polling незавершённых заказов.
func (c *Coordinator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем заказы, оставшиеся
	// незавершёнными пока были выключены)
	c.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (c *Coordinator) poll(ctx context.Context) {
	orders, err := c.orders.ListUnfinished(ctx, c.batchSize)
	if err != nil {
		c.logger.Error("failed to list unfinished orders", "error", err)
		return
	}

	if len(orders) == 0 {
		return
	}

	c.logger.Debug("poll found unfinished orders", "count", len(orders))

	for i := range orders {
		order := &orders[i]

		// Пропускаем уже обрабатываемые
		if c.isActive(order.ID) {
			continue
		}

		c.processOrder(ctx, order.ID)
	}
}

// isActive проверяет, находится ли заказ в обработке.
func (c *Coordinator) isActive(orderID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.active[orderID]
	return exists
}

// addActive добавляет заказ в активные.
func (c *Coordinator) addActive(orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.active[orderID]; exists {
		return ErrOrderAlreadyActive
	}

	c.active[orderID] = struct{}{}
	return nil
}

// removeActive удаляет заказ из активных.
func (c *Coordinator) removeActive(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, orderID)
}

// ActiveCount возвращает количество заказов в обработке.
func (c *Coordinator) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.active)
}

// processOrder загружает заказ и выполняет (или возобновляет) его сагу.
func (c *Coordinator) processOrder(ctx context.Context, orderID string) {
	if err := c.addActive(orderID); err != nil {
		return
	}
	defer c.removeActive(orderID)

	logger := c.logger.With("order_id", orderID)
	ctx = telemetry.WithLogger(ctx, logger)

	order, err := c.orders.GetByID(ctx, orderID)
	if err != nil {
		logger.Error("failed to load order", "error", err)
		return
	}

	if order.IsFinished() {
		return
	}

	if err := c.runSaga(ctx, order); err != nil {
		// Отмена контекста — не отказ заказа: сага возобновится после
		// следующего старта с первого невыполненного шага.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Info("saga interrupted, will resume on next poll")
			return
		}
		logger.Error("saga failed", "error", err)
	}
}

// runSaga ведёт заказ по шагам. Выполненные шаги (по персистентным
// timestamp'ам) пропускаются — повторный вызов downstream не делается.
func (c *Coordinator) runSaga(ctx context.Context, order *domain.Order) error {
	logger := telemetry.FromContext(ctx)

	for i := range sagaSteps {
		st := &sagaSteps[i]

		if st.done(order) {
			continue
		}

		ad, ok := c.adapters[st.service]
		if !ok {
			return ErrMissingAdapter
		}

		logger.Info("executing saga step",
			"step", st.name,
			"service", st.service,
		)

		result, attempts, err := c.executor.Do(ctx, order.ID, st.service, func(ctx context.Context) (*adapter.Result, error) {
			return ad.Call(ctx, order)
		})
		if err != nil {
			var terminal *retry.TerminalError
			if errors.As(err, &terminal) {
				return c.failOrder(ctx, order, st, terminal)
			}
			return err
		}

		if err := st.apply(order, result); err != nil {
			// Сервис ответил успехом без полезного результата — считаем
			// это отказом соединения и останавливаем сагу.
			terminal := &retry.TerminalError{
				Service:  st.service,
				Attempts: attempts,
				Fault:    domain.NewConnectionFault(st.service, err),
			}
			return c.failOrder(ctx, order, st, terminal)
		}

		if err := c.orders.Update(ctx, order); err != nil {
			return err
		}

		c.recordEvent(ctx, order.ID, domain.EventStepCompleted, map[string]any{
			"step":     st.name,
			"service":  string(st.service),
			"status":   string(order.Status),
			"attempts": attempts,
		})

		logger.Info("saga step completed",
			"step", st.name,
			"status", order.Status,
			"attempts", attempts,
		)
	}

	return c.finalize(ctx, order)
}

// finalize переводит заказ в READY_FOR_DELIVERY и формирует manifest.
func (c *Coordinator) finalize(ctx context.Context, order *domain.Order) error {
	logger := telemetry.FromContext(ctx)

	order.MarkReady()

	if err := c.orders.Update(ctx, order); err != nil {
		return err
	}

	c.recordEvent(ctx, order.ID, domain.EventOrderReady, map[string]any{
		"route_id":   order.Manifest.RouteID,
		"driver":     order.Manifest.Driver,
		"vehicle":    order.Manifest.Vehicle,
		"eta":        order.Manifest.ETA,
		"package_id": order.Manifest.PackageID,
	})

	telemetry.OrdersTotal.WithLabelValues(string(domain.OrderStatusReadyForDelivery)).Inc()
	telemetry.SagaDuration.Observe(time.Since(order.SubmittedAt).Seconds())

	logger.Info("order ready for delivery",
		"route_id", order.Manifest.RouteID,
		"driver", order.Manifest.Driver,
	)
	return nil
}

// failOrder компенсирует выполненные шаги и переводит заказ в FAILED.
func (c *Coordinator) failOrder(ctx context.Context, order *domain.Order, failed *step, terminal *retry.TerminalError) error {
	logger := telemetry.FromContext(ctx)

	logger.Warn("saga step failed terminally",
		"step", failed.name,
		"service", failed.service,
		"attempts", terminal.Attempts,
		"kind", terminal.Fault.Kind,
		"code", terminal.Fault.Code,
	)

	c.compensate(ctx, order)

	order.MarkFailed(&domain.FailureDetail{
		Service:         terminal.Service,
		Step:            failed.name,
		Kind:            terminal.Fault.Kind,
		Code:            terminal.Fault.Code,
		Message:         terminal.Fault.Message,
		SuggestedAction: terminal.Fault.SuggestedAction,
		Attempts:        terminal.Attempts,
		Details:         terminal.Fault.Details,
	})

	if err := c.orders.Update(ctx, order); err != nil {
		return err
	}

	c.recordEvent(ctx, order.ID, domain.EventOrderFailed, map[string]any{
		"step":             failed.name,
		"service":          string(terminal.Service),
		"kind":             string(terminal.Fault.Kind),
		"code":             terminal.Fault.Code,
		"message":          terminal.Fault.Message,
		"suggested_action": terminal.Fault.SuggestedAction,
		"attempts":         terminal.Attempts,
	})

	telemetry.OrdersTotal.WithLabelValues(string(domain.OrderStatusFailed)).Inc()
	telemetry.SagaDuration.Observe(time.Since(order.SubmittedAt).Seconds())

	logger.Info("order failed",
		"compensations", len(order.Compensations),
	)
	return nil
}

// compensate выполняет обратные операции для выполненных шагов
// в обратном порядке. Best-effort: ошибка компенсации логируется и
// фиксируется в журнале заказа, но не прерывает откат.
func (c *Coordinator) compensate(ctx context.Context, order *domain.Order) {
	logger := telemetry.FromContext(ctx)

	for i := len(sagaSteps) - 1; i >= 0; i-- {
		st := &sagaSteps[i]

		if !st.done(order) {
			continue
		}

		ad, ok := c.adapters[st.service]
		if !ok {
			logger.Error("no adapter for compensation", "step", st.name)
			continue
		}

		err := ad.Compensate(ctx, order)
		order.AddCompensation(st.name, err)

		if err != nil {
			telemetry.CompensationsTotal.WithLabelValues(telemetry.OutcomeFailure).Inc()
			logger.Error("compensation failed",
				"step", st.name,
				"service", st.service,
				"error", err,
			)
			c.recordEvent(ctx, order.ID, domain.EventCompensationFailed, map[string]any{
				"step":    st.name,
				"service": string(st.service),
				"error":   err.Error(),
			})
			continue
		}

		telemetry.CompensationsTotal.WithLabelValues(telemetry.OutcomeSuccess).Inc()
		logger.Info("compensation executed",
			"step", st.name,
			"service", st.service,
		)
		c.recordEvent(ctx, order.ID, domain.EventCompensationExecuted, map[string]any{
			"step":    st.name,
			"service": string(st.service),
		})
	}
}

// RetryScheduled реализует retry.Notifier: фиксирует запланированный
// повтор в журнале событий и публикует его в шину.
func (c *Coordinator) RetryScheduled(ctx context.Context, orderID string, service domain.ServiceID, attempt int, nextAttemptAt time.Time) {
	c.recordEvent(ctx, orderID, domain.EventRetryScheduled, map[string]any{
		"service":         string(service),
		"attempt":         attempt,
		"next_attempt_at": nextAttemptAt,
	})
}

// recordEvent дописывает событие в журнал и публикует его в шину.
// Обе операции best-effort относительно саги: ошибка логируется.
func (c *Coordinator) recordEvent(ctx context.Context, orderID string, typ domain.EventType, payload map[string]any) {
	logger := telemetry.FromContext(ctx)

	if c.events != nil {
		if err := c.events.Append(ctx, orderID, typ, payload); err != nil {
			logger.Error("failed to append event",
				"event_type", typ,
				"error", err,
			)
		}
	}

	if c.publisher != nil {
		if err := c.publisher.PublishOrderEvent(ctx, orderID, typ, payload); err != nil {
			logger.Warn("failed to publish event",
				"event_type", typ,
				"error", err,
			)
		}
	}
}
