package saga

import "errors"

// Ошибки координатора.
var (
	// ErrOrderNotFound — заказ не найден в БД.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderAlreadyActive — заказ уже обрабатывается.
	ErrOrderAlreadyActive = errors.New("order already being processed")

	// ErrOrderFinished — заказ уже в терминальном статусе.
	ErrOrderFinished = errors.New("order already finished")

	// ErrCoordinatorStopped — координатор остановлен.
	ErrCoordinatorStopped = errors.New("coordinator stopped")

	// ErrMissingAdapter — для сервиса шага не зарегистрирован адаптер.
	ErrMissingAdapter = errors.New("no adapter registered for service")
)
