package domain

// ServiceID — идентификатор downstream-сервиса.
//
// Система работает ровно с тремя backend-сервисами:
//   - contract-verification (CMS) — проверка контракта и биллинга клиента
//   - package-registration (WMS) — регистрация груза на складе
//   - route-optimization (ROS) — построение маршрута доставки
type ServiceID string

const (
	// ServiceContractVerification — сервис проверки контрактов (CMS).
	ServiceContractVerification ServiceID = "contract-verification"

	// ServicePackageRegistration — складской сервис (WMS).
	ServicePackageRegistration ServiceID = "package-registration"

	// ServiceRouteOptimization — сервис оптимизации маршрутов (ROS).
	ServiceRouteOptimization ServiceID = "route-optimization"
)

// AllServices возвращает список всех downstream-сервисов в порядке шагов саги.
func AllServices() []ServiceID {
	return []ServiceID{
		ServiceContractVerification,
		ServicePackageRegistration,
		ServiceRouteOptimization,
	}
}

// IsValid проверяет, что ServiceID — один из трёх известных сервисов.
func (s ServiceID) IsValid() bool {
	switch s {
	case ServiceContractVerification, ServicePackageRegistration, ServiceRouteOptimization:
		return true
	default:
		return false
	}
}

// OrderStatus — статус транзакции заказа.
//
// Жизненный цикл (строго монотонный вперёд, кроме FAILED):
//
//	SUBMITTED → CMS_VERIFIED → WMS_REGISTERED → ROS_OPTIMIZED → READY_FOR_DELIVERY
//	любой нетерминальный статус → FAILED
//
// CANCELLED — административный статус до старта саги; после начала
// выполнения сага не отменяется.
type OrderStatus string

const (
	// OrderStatusSubmitted — заказ принят, сага ещё не начала шаги.
	OrderStatusSubmitted OrderStatus = "SUBMITTED"

	// OrderStatusCMSVerified — контракт проверен (шаг 1 завершён).
	OrderStatusCMSVerified OrderStatus = "CMS_VERIFIED"

	// OrderStatusWMSRegistered — груз зарегистрирован на складе (шаг 2 завершён).
	OrderStatusWMSRegistered OrderStatus = "WMS_REGISTERED"

	// OrderStatusROSOptimized — маршрут построен (шаг 3 завершён).
	OrderStatusROSOptimized OrderStatus = "ROS_OPTIMIZED"

	// OrderStatusReadyForDelivery — все шаги завершены, manifest сформирован.
	OrderStatusReadyForDelivery OrderStatus = "READY_FOR_DELIVERY"

	// OrderStatusFailed — сага завершилась с ошибкой после компенсаций.
	OrderStatusFailed OrderStatus = "FAILED"

	// OrderStatusCancelled — заказ отменён до начала обработки.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusReadyForDelivery, OrderStatusFailed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// rank — позиция статуса в монотонной последовательности.
func (s OrderStatus) rank() int {
	switch s {
	case OrderStatusSubmitted:
		return 0
	case OrderStatusCMSVerified:
		return 1
	case OrderStatusWMSRegistered:
		return 2
	case OrderStatusROSOptimized:
		return 3
	case OrderStatusReadyForDelivery:
		return 4
	default:
		return -1
	}
}

// CanTransitionTo проверяет допустимость перехода статуса.
//
// Разрешены только переходы строго вперёд по последовательности,
// плюс переход в FAILED из любого нетерминального статуса.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == OrderStatusFailed {
		return true
	}
	if next == OrderStatusCancelled {
		return s == OrderStatusSubmitted
	}
	return next.rank() == s.rank()+1
}

// Priority — приоритет заказа.
type Priority string

const (
	// PriorityStandard — обычная доставка.
	PriorityStandard Priority = "STANDARD"

	// PriorityHigh — ускоренная доставка.
	PriorityHigh Priority = "HIGH"

	// PriorityUrgent — срочная доставка.
	PriorityUrgent Priority = "URGENT"
)

// IsValid проверяет, что приоритет — одно из известных значений.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityStandard, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}
