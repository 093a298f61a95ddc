package domain

import "fmt"

// FaultKind — классификация ошибок downstream-вызовов.
//
// Kind возвращается адаптерами структурно — координатор никогда не
// разбирает текст ошибки.
type FaultKind string

const (
	// FaultValidation — некорректный payload заказа. Отклоняется синхронно,
	// в сагу не попадает.
	FaultValidation FaultKind = "VALIDATION"

	// FaultBusinessRule — явный отказ downstream-сервиса по бизнес-правилу
	// (нет товара, превышен кредитный лимит, нет водителей и т.п.).
	FaultBusinessRule FaultKind = "BUSINESS_RULE"

	// FaultConnection — транзиентная ошибка соединения или таймаут.
	FaultConnection FaultKind = "CONNECTION"

	// FaultCircuitOpen — circuit breaker открыт, вызов не выполнялся.
	FaultCircuitOpen FaultKind = "CIRCUIT_OPEN"

	// FaultCompensation — упала best-effort компенсация шага.
	FaultCompensation FaultKind = "COMPENSATION"
)

// Коды бизнес-отказов, известные системе.
const (
	CodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	CodeCreditLimitExceeded   = "CREDIT_LIMIT_EXCEEDED"
	CodeInvalidSKU            = "INVALID_SKU"
	CodeClientSuspended       = "CLIENT_SUSPENDED"
	CodeNoDriversAvailable    = "NO_DRIVERS_AVAILABLE"
	CodeCapacityExceeded      = "CAPACITY_EXCEEDED"
	CodeRestrictedZone        = "RESTRICTED_ZONE"
	CodeConnectionFailure     = "CONNECTION_FAILURE"
	CodeCircuitOpen           = "CIRCUIT_OPEN"
)

// suggestedActions — рекомендации оператору по коду отказа.
var suggestedActions = map[string]string{
	CodeInsufficientInventory: "Replenish stock for the affected SKUs or split the order, then resubmit",
	CodeCreditLimitExceeded:   "Request a credit limit increase for the client or settle outstanding invoices",
	CodeInvalidSKU:            "Correct the SKU in the order payload and resubmit",
	CodeClientSuspended:       "Reactivate the client account in CMS before resubmitting",
	CodeNoDriversAvailable:    "Wait for driver availability or lower the order priority",
	CodeCapacityExceeded:      "Reschedule the delivery window or split destinations across orders",
	CodeRestrictedZone:        "Remove the restricted destination or obtain a delivery permit",
	CodeConnectionFailure:     "Check network connectivity and the downstream service health, then retry",
	CodeCircuitOpen:           "Wait for the circuit cooldown or force-recover the service via the API",
}

// SuggestedActionFor возвращает рекомендацию оператору по коду отказа.
// Для неизвестных кодов возвращает общую рекомендацию.
func SuggestedActionFor(code string) string {
	if action, ok := suggestedActions[code]; ok {
		return action
	}
	return "Inspect the order failure details and contact the downstream service operator"
}

// Fault — структурированная ошибка downstream-вызова.
//
// Адаптер обязан классифицировать собственные ошибки в FaultKind и
// приложить машиночитаемые детали (затронутые SKU, суммы и т.п.), чтобы
// координатор мог отдать их наружу без знания протокола.
type Fault struct {
	// Kind — классификация ошибки.
	Kind FaultKind `json:"kind"`

	// Service — сервис, вернувший ошибку.
	Service ServiceID `json:"service"`

	// Code — машиночитаемый код отказа.
	Code string `json:"code,omitempty"`

	// Message — человекочитаемое описание.
	Message string `json:"message"`

	// Details — детали от сервиса (affected_skus, shortfall и т.п.).
	Details map[string]any `json:"details,omitempty"`

	// SuggestedAction — рекомендация оператору.
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// Error реализует error.
func (f *Fault) Error() string {
	if f.Code != "" {
		return fmt.Sprintf("%s [%s/%s]: %s", f.Kind, f.Service, f.Code, f.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", f.Kind, f.Service, f.Message)
}

// NewConnectionFault создаёт Fault для транзиентной ошибки соединения.
// Таймаут вызова классифицируется так же.
func NewConnectionFault(service ServiceID, err error) *Fault {
	return &Fault{
		Kind:            FaultConnection,
		Service:         service,
		Code:            CodeConnectionFailure,
		Message:         err.Error(),
		SuggestedAction: SuggestedActionFor(CodeConnectionFailure),
	}
}

// NewCircuitOpenFault создаёт Fault для fast-fail при открытом circuit.
func NewCircuitOpenFault(service ServiceID) *Fault {
	return &Fault{
		Kind:            FaultCircuitOpen,
		Service:         service,
		Code:            CodeCircuitOpen,
		Message:         fmt.Sprintf("circuit open for %s, call not attempted", service),
		SuggestedAction: SuggestedActionFor(CodeCircuitOpen),
	}
}

// AsFault извлекает *Fault из произвольной ошибки.
// Для не-Fault ошибок возвращает connection-классификацию — транспортные
// сбои без структуры считаются транзиентными.
func AsFault(service ServiceID, err error) *Fault {
	if f, ok := err.(*Fault); ok {
		return f
	}
	return NewConnectionFault(service, err)
}
