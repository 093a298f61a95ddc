package domain

import (
	"time"
)

// LineItem — позиция заказа.
type LineItem struct {
	// SKU — артикул товара.
	SKU string `json:"sku"`

	// Quantity — количество единиц.
	Quantity int `json:"quantity"`

	// Description — описание позиции (опционально).
	Description string `json:"description,omitempty"`
}

// Destination — пункт доставки.
type Destination struct {
	// Address — адрес доставки.
	Address string `json:"address"`

	// City — город.
	City string `json:"city,omitempty"`

	// Zone — зона доставки (используется ROS при построении маршрута).
	Zone string `json:"zone,omitempty"`
}

// ContractResult — результат шага verify_contract (CMS).
// Заполняется ровно один раз при успехе шага, далее неизменяем.
type ContractResult struct {
	// ContractID — идентификатор контракта в CMS.
	ContractID string `json:"contract_id"`

	// BillingStatus — статус биллинга клиента (например, "CLEARED").
	BillingStatus string `json:"billing_status"`
}

// WarehouseResult — результат шага register_package (WMS).
type WarehouseResult struct {
	// PackageID — идентификатор груза на складе.
	PackageID string `json:"package_id"`

	// Location — складская ячейка/зона.
	Location string `json:"location"`
}

// RouteResult — результат шага optimize_route (ROS).
type RouteResult struct {
	// RouteID — идентификатор маршрута.
	RouteID string `json:"route_id"`

	// Driver — назначенный водитель.
	Driver string `json:"driver"`

	// Vehicle — назначенное транспортное средство.
	Vehicle string `json:"vehicle"`

	// ETA — расчётное время доставки.
	ETA time.Time `json:"eta"`
}

// FailureDetail — структурированное описание терминальной ошибки саги.
//
// Сохраняется в заказе при переходе в FAILED и отдаётся в status endpoint
// дословно, чтобы оператор мог действовать без чтения логов.
type FailureDetail struct {
	// Service — сервис, на котором сага остановилась.
	Service ServiceID `json:"service"`

	// Step — имя шага саги.
	Step string `json:"step"`

	// Kind — классификация ошибки.
	Kind FaultKind `json:"kind"`

	// Code — машиночитаемый код ошибки (например, CREDIT_LIMIT_EXCEEDED).
	Code string `json:"code,omitempty"`

	// Message — текст последней ошибки.
	Message string `json:"message"`

	// SuggestedAction — рекомендация оператору.
	SuggestedAction string `json:"suggested_action"`

	// Attempts — сколько попыток было сделано до остановки.
	Attempts int `json:"attempts"`

	// Details — детали от downstream-сервиса (SKU, суммы и т.п.).
	Details map[string]any `json:"details,omitempty"`
}

// CompensationRecord — отметка о выполненной (или упавшей) компенсации шага.
type CompensationRecord struct {
	// Step — имя компенсированного шага.
	Step string `json:"step"`

	// ExecutedAt — время выполнения компенсации.
	ExecutedAt time.Time `json:"executed_at"`

	// Error — текст ошибки, если компенсация не удалась (best-effort).
	Error string `json:"error,omitempty"`
}

// DeliveryManifest — итоговая сводка по заказу, готовому к доставке.
// Формируется при переходе в READY_FOR_DELIVERY из трёх result-блоков.
type DeliveryManifest struct {
	ContractID    string    `json:"contract_id"`
	BillingStatus string    `json:"billing_status"`
	PackageID     string    `json:"package_id"`
	Location      string    `json:"location"`
	RouteID       string    `json:"route_id"`
	Driver        string    `json:"driver"`
	Vehicle       string    `json:"vehicle"`
	ETA           time.Time `json:"eta"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Order — транзакция заказа, единица работы саги.
//
// Order создаётся при приёме запроса (SUBMITTED) и мутируется только
// координатором саги (или его компенсационным путём). Записи никогда не
// удаляются — заказ остаётся как audit-запись.
//
// Инвариант: result-блок и timestamp шага non-nil тогда и только тогда,
// когда статус достиг (или прошёл) соответствующую стадию.
type Order struct {
	// ID — идентификатор заказа. Задаётся клиентом, уникален.
	ID string `json:"id"`

	// ClientID — идентификатор клиента.
	ClientID string `json:"client_id"`

	// Priority — приоритет доставки.
	Priority Priority `json:"priority"`

	// Items — позиции заказа (непустой список).
	Items []LineItem `json:"items"`

	// Destinations — пункты доставки (непустой список).
	Destinations []Destination `json:"destinations"`

	// Status — текущий статус транзакции.
	Status OrderStatus `json:"status"`

	// Contract — результат шага 1. Nil до успеха шага.
	Contract *ContractResult `json:"contract,omitempty"`

	// Warehouse — результат шага 2. Nil до успеха шага.
	Warehouse *WarehouseResult `json:"warehouse,omitempty"`

	// Route — результат шага 3. Nil до успеха шага.
	Route *RouteResult `json:"route,omitempty"`

	// Manifest — сводка доставки. Заполняется при READY_FOR_DELIVERY.
	Manifest *DeliveryManifest `json:"manifest,omitempty"`

	// Failure — детали терминальной ошибки. Заполняется при FAILED.
	Failure *FailureDetail `json:"failure,omitempty"`

	// Compensations — журнал выполненных компенсаций (в порядке выполнения,
	// т.е. в обратном порядке шагов).
	Compensations []CompensationRecord `json:"compensations,omitempty"`

	// --- Timestamps: по одному на переход, каждый ставится ровно один раз ---

	// SubmittedAt — время приёма заказа.
	SubmittedAt time.Time `json:"submitted_at"`

	// CMSVerifiedAt — время успеха шага 1.
	CMSVerifiedAt *time.Time `json:"cms_verified_at,omitempty"`

	// WMSRegisteredAt — время успеха шага 2.
	WMSRegisteredAt *time.Time `json:"wms_registered_at,omitempty"`

	// ROSOptimizedAt — время успеха шага 3.
	ROSOptimizedAt *time.Time `json:"ros_optimized_at,omitempty"`

	// ReadyAt — время финализации (READY_FOR_DELIVERY).
	ReadyAt *time.Time `json:"ready_at,omitempty"`

	// FailedAt — время перехода в FAILED.
	FailedAt *time.Time `json:"failed_at,omitempty"`
}

// IsFinished возвращает true, если заказ в терминальном статусе.
func (o *Order) IsFinished() bool {
	return o.Status.IsTerminal()
}

// MarkCMSVerified фиксирует успех шага 1.
func (o *Order) MarkCMSVerified(res *ContractResult) {
	now := time.Now()
	o.Status = OrderStatusCMSVerified
	o.Contract = res
	o.CMSVerifiedAt = &now
}

// MarkWMSRegistered фиксирует успех шага 2.
func (o *Order) MarkWMSRegistered(res *WarehouseResult) {
	now := time.Now()
	o.Status = OrderStatusWMSRegistered
	o.Warehouse = res
	o.WMSRegisteredAt = &now
}

// MarkROSOptimized фиксирует успех шага 3.
func (o *Order) MarkROSOptimized(res *RouteResult) {
	now := time.Now()
	o.Status = OrderStatusROSOptimized
	o.Route = res
	o.ROSOptimizedAt = &now
}

// MarkReady финализирует заказ: формирует manifest из трёх result-блоков
// и переводит статус в READY_FOR_DELIVERY.
func (o *Order) MarkReady() {
	now := time.Now()
	o.Status = OrderStatusReadyForDelivery
	o.ReadyAt = &now
	o.Manifest = &DeliveryManifest{
		ContractID:    o.Contract.ContractID,
		BillingStatus: o.Contract.BillingStatus,
		PackageID:     o.Warehouse.PackageID,
		Location:      o.Warehouse.Location,
		RouteID:       o.Route.RouteID,
		Driver:        o.Route.Driver,
		Vehicle:       o.Route.Vehicle,
		ETA:           o.Route.ETA,
		GeneratedAt:   now,
	}
}

// MarkFailed переводит заказ в FAILED со структурированными деталями.
func (o *Order) MarkFailed(detail *FailureDetail) {
	now := time.Now()
	o.Status = OrderStatusFailed
	o.Failure = detail
	o.FailedAt = &now
}

// AddCompensation добавляет запись в журнал компенсаций.
func (o *Order) AddCompensation(step string, compErr error) {
	rec := CompensationRecord{
		Step:       step,
		ExecutedAt: time.Now(),
	}
	if compErr != nil {
		rec.Error = compErr.Error()
	}
	o.Compensations = append(o.Compensations, rec)
}

// TotalSteps — количество шагов саги.
const TotalSteps = 3

// CompletedSteps возвращает число завершённых шагов, считая только
// по персистентным timestamp'ам (не по статусу).
func (o *Order) CompletedSteps() int {
	n := 0
	for _, ts := range []*time.Time{o.CMSVerifiedAt, o.WMSRegisteredAt, o.ROSOptimizedAt} {
		if ts != nil {
			n++
		}
	}
	return n
}

// Stage-имена для клиентского представления прогресса.
const (
	StageQueued            = "queued"
	StageReadyForDelivery  = "ready-for-delivery"
	stageContract          = string(ServiceContractVerification)
	stagePackage           = string(ServicePackageRegistration)
	stageRoute             = string(ServiceRouteOptimization)
)

// Progress — клиентское представление прогресса заказа.
//
// Выводится только из персистентного состояния заказа — работает после
// рестарта процесса и на узле, который заказ не обрабатывал.
type Progress struct {
	OrderID        string         `json:"order_id"`
	Status         OrderStatus    `json:"status"`
	CurrentStage   string         `json:"current_stage"`
	CompletedSteps int            `json:"completed_steps"`
	TotalSteps     int            `json:"total_steps"`
	Percentage     int            `json:"percentage"`
	Failure        *FailureDetail `json:"failure,omitempty"`
}

// Progress вычисляет представление прогресса.
//
// Правила деривации:
//   - completed_steps — число non-nil timestamp'ов шагов
//   - current_stage — первый незавершённый шаг в фиксированном порядке;
//     "ready-for-delivery", если все три завершены; "queued", если ни один
//     не завершён и заказ ещё SUBMITTED
//   - percentage = round(completed/3*100)
func (o *Order) Progress() Progress {
	completed := o.CompletedSteps()

	var stage string
	switch {
	case o.CMSVerifiedAt == nil:
		stage = stageContract
		if o.Status == OrderStatusSubmitted {
			stage = StageQueued
		}
	case o.WMSRegisteredAt == nil:
		stage = stagePackage
	case o.ROSOptimizedAt == nil:
		stage = stageRoute
	default:
		stage = StageReadyForDelivery
	}

	return Progress{
		OrderID:        o.ID,
		Status:         o.Status,
		CurrentStage:   stage,
		CompletedSteps: completed,
		TotalSteps:     TotalSteps,
		Percentage:     (completed*100 + TotalSteps/2) / TotalSteps,
		Failure:        o.Failure,
	}
}

// EstimatedCompletion возвращает расчётное время завершения обработки
// в зависимости от приоритета. Используется в 202-ответе API.
func (o *Order) EstimatedCompletion(from time.Time) time.Time {
	switch o.Priority {
	case PriorityUrgent:
		return from.Add(1 * time.Minute)
	case PriorityHigh:
		return from.Add(3 * time.Minute)
	default:
		return from.Add(5 * time.Minute)
	}
}
