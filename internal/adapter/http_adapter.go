package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Cargomata/internal/domain"
)

// defaultCallTimeout — таймаут одного downstream-вызова.
// Таймаут считается отказом соединения (CONNECTION) для retry и breaker'а.
const defaultCallTimeout = 10 * time.Second

// HTTPAdapter — адаптер downstream-сервиса поверх HTTP/JSON.
//
// Протокол:
//
//	POST {callURL}       body: заказ целиком
//	POST {compensateURL} body: {"order_id": ...}
//
// Ответ сервиса:
//
//	200: {"ok": true, ...поля результата шага}
//	4xx/5xx: {"ok": false, "error": {"kind", "code", "message",
//	          "details", "suggested_action"}}
type HTTPAdapter struct {
	service       domain.ServiceID
	callURL       string
	compensateURL string
	client        *http.Client
	timeout       time.Duration
}

// HTTPConfig — конфигурация HTTPAdapter.
type HTTPConfig struct {
	// Service — сервис адаптера.
	Service domain.ServiceID

	// CallURL — endpoint операции шага.
	CallURL string

	// CompensateURL — endpoint обратной операции.
	CompensateURL string

	// Timeout — таймаут одного вызова (default: 10s).
	Timeout time.Duration

	// Client — HTTP-клиент (default: http.DefaultClient).
	Client *http.Client
}

// NewHTTP создаёт HTTPAdapter.
func NewHTTP(cfg HTTPConfig) *HTTPAdapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPAdapter{
		service:       cfg.Service,
		callURL:       cfg.CallURL,
		compensateURL: cfg.CompensateURL,
		client:        client,
		timeout:       timeout,
	}
}

// NewContractVerification создаёт адаптер CMS (шаг verify_contract).
func NewContractVerification(baseURL string) *HTTPAdapter {
	return NewHTTP(HTTPConfig{
		Service:       domain.ServiceContractVerification,
		CallURL:       baseURL + "/cms/verify",
		CompensateURL: baseURL + "/cms/cancel",
	})
}

// NewPackageRegistration создаёт адаптер WMS (шаг register_package).
func NewPackageRegistration(baseURL string) *HTTPAdapter {
	return NewHTTP(HTTPConfig{
		Service:       domain.ServicePackageRegistration,
		CallURL:       baseURL + "/wms/register",
		CompensateURL: baseURL + "/wms/release",
	})
}

// NewRouteOptimization создаёт адаптер ROS (шаг optimize_route).
func NewRouteOptimization(baseURL string) *HTTPAdapter {
	return NewHTTP(HTTPConfig{
		Service:       domain.ServiceRouteOptimization,
		CallURL:       baseURL + "/ros/optimize",
		CompensateURL: baseURL + "/ros/release",
	})
}

// Service возвращает идентификатор сервиса.
func (a *HTTPAdapter) Service() domain.ServiceID {
	return a.service
}

// wireError — тело ошибки downstream-сервиса.
type wireError struct {
	Kind            string         `json:"kind"`
	Code            string         `json:"code"`
	Message         string         `json:"message"`
	Details         map[string]any `json:"details,omitempty"`
	SuggestedAction string         `json:"suggested_action,omitempty"`
}

// wireResponse — тело ответа downstream-сервиса.
// Поля результата всех трёх сервисов flatten'ятся в один тип;
// заполненные зависят от сервиса.
type wireResponse struct {
	OK    bool       `json:"ok"`
	Error *wireError `json:"error,omitempty"`

	// contract-verification
	ContractID    string `json:"contract_id,omitempty"`
	BillingStatus string `json:"billing_status,omitempty"`

	// package-registration
	PackageID string `json:"package_id,omitempty"`
	Location  string `json:"location,omitempty"`

	// route-optimization
	RouteID string    `json:"route_id,omitempty"`
	Driver  string    `json:"driver,omitempty"`
	Vehicle string    `json:"vehicle,omitempty"`
	ETA     time.Time `json:"eta,omitzero"`
}

// Call выполняет операцию шага.
func (a *HTTPAdapter) Call(ctx context.Context, order *domain.Order) (*Result, error) {
	resp, err := a.post(ctx, a.callURL, order)
	if err != nil {
		return nil, err
	}

	switch a.service {
	case domain.ServiceContractVerification:
		return &Result{Contract: &domain.ContractResult{
			ContractID:    resp.ContractID,
			BillingStatus: resp.BillingStatus,
		}}, nil
	case domain.ServicePackageRegistration:
		return &Result{Warehouse: &domain.WarehouseResult{
			PackageID: resp.PackageID,
			Location:  resp.Location,
		}}, nil
	case domain.ServiceRouteOptimization:
		return &Result{Route: &domain.RouteResult{
			RouteID: resp.RouteID,
			Driver:  resp.Driver,
			Vehicle: resp.Vehicle,
			ETA:     resp.ETA,
		}}, nil
	default:
		return nil, fmt.Errorf("unknown adapter service: %s", a.service)
	}
}

// Compensate выполняет обратную операцию.
func (a *HTTPAdapter) Compensate(ctx context.Context, order *domain.Order) error {
	_, err := a.post(ctx, a.compensateURL, map[string]string{"order_id": order.ID})
	return err
}

// post выполняет POST с таймаутом и классифицирует ошибки в *domain.Fault.
func (a *HTTPAdapter) post(ctx context.Context, url string, body any) (*wireResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, domain.NewConnectionFault(a.service, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.NewConnectionFault(a.service, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		// Транспортная ошибка или таймаут — транзиентный отказ.
		return nil, domain.NewConnectionFault(a.service, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewConnectionFault(a.service, fmt.Errorf("read response: %w", err))
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, domain.NewConnectionFault(a.service,
			fmt.Errorf("malformed response (HTTP %d): %w", resp.StatusCode, err))
	}

	if wire.OK {
		return &wire, nil
	}

	return nil, a.faultFromWire(resp.StatusCode, wire.Error)
}

// faultFromWire строит *domain.Fault из тела ошибки сервиса.
func (a *HTTPAdapter) faultFromWire(statusCode int, we *wireError) *domain.Fault {
	if we == nil {
		// Тело без деталей: 5xx — транзиентная ошибка, остальное —
		// немотивированный отказ сервиса.
		return domain.NewConnectionFault(a.service, fmt.Errorf("HTTP %d without error detail", statusCode))
	}

	kind := domain.FaultKind(we.Kind)
	switch kind {
	case domain.FaultBusinessRule, domain.FaultConnection, domain.FaultValidation:
	default:
		// Неизвестный kind от сервиса — считаем бизнес-отказом: сервис
		// ответил осмысленно, но вне известной таксономии.
		kind = domain.FaultBusinessRule
	}

	action := we.SuggestedAction
	if action == "" {
		action = domain.SuggestedActionFor(we.Code)
	}

	return &domain.Fault{
		Kind:            kind,
		Service:         a.service,
		Code:            we.Code,
		Message:         we.Message,
		Details:         we.Details,
		SuggestedAction: action,
	}
}
