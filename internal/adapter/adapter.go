// Package adapter определяет единый контракт вызова downstream-сервисов
// и его HTTP/JSON реализацию.
//
// Адаптер переводит между единым контрактом координатора и протоколом
// конкретного сервиса. Ошибки возвращаются как *domain.Fault со
// структурной классификацией — координатору не нужно знать протокол.
package adapter

import (
	"context"

	"github.com/shaiso/Cargomata/internal/domain"
)

// Result — результат успешного вызова адаптера.
//
// Заполняется ровно одно поле, соответствующее сервису адаптера.
// Координатор берёт нужный блок через step-таблицу.
type Result struct {
	// Contract — результат contract-verification.
	Contract *domain.ContractResult

	// Warehouse — результат package-registration.
	Warehouse *domain.WarehouseResult

	// Route — результат route-optimization.
	Route *domain.RouteResult
}

// Adapter — единый контракт downstream-сервиса.
//
// Call обязан быть безопасным для повторного вызова с тем же order id:
// шаги ретраятся, и downstream не должен дублировать side-effect'ы
// (контракт на стороне адаптера/сервиса, координатором не проверяется).
//
// Compensate — обратная операция для выполненного шага (отмена контракта,
// освобождение складской ячейки, снятие маршрута). Вызывается best-effort
// при откате саги.
type Adapter interface {
	// Service возвращает идентификатор сервиса адаптера.
	Service() domain.ServiceID

	// Call выполняет операцию шага для заказа.
	Call(ctx context.Context, order *domain.Order) (*Result, error)

	// Compensate выполняет обратную операцию для заказа.
	Compensate(ctx context.Context, order *domain.Order) error
}
