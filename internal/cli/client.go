package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// OrderResponse — заказ из API.
type OrderResponse struct {
	ID            string           `json:"id"`
	ClientID      string           `json:"client_id"`
	Priority      string           `json:"priority"`
	Status        string           `json:"status"`
	Items         []map[string]any `json:"items"`
	Destinations  []map[string]any `json:"destinations"`
	Contract      map[string]any   `json:"contract,omitempty"`
	Warehouse     map[string]any   `json:"warehouse,omitempty"`
	Route         map[string]any   `json:"route,omitempty"`
	Manifest      map[string]any   `json:"manifest,omitempty"`
	Failure       *FailureDetail   `json:"failure,omitempty"`
	Compensations []map[string]any `json:"compensations,omitempty"`
	SubmittedAt   string           `json:"submitted_at"`
	ReadyAt       string           `json:"ready_at,omitempty"`
	FailedAt      string           `json:"failed_at,omitempty"`
}

// FailureDetail — детали отказа из API.
type FailureDetail struct {
	Service         string `json:"service"`
	Step            string `json:"step"`
	Kind            string `json:"kind"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message"`
	SuggestedAction string `json:"suggested_action"`
	Attempts        int    `json:"attempts"`
}

// ProgressResponse — прогресс заказа из API.
type ProgressResponse struct {
	OrderID        string         `json:"order_id"`
	Status         string         `json:"status"`
	CurrentStage   string         `json:"current_stage"`
	CompletedSteps int            `json:"completed_steps"`
	TotalSteps     int            `json:"total_steps"`
	Percentage     int            `json:"percentage"`
	Failure        *FailureDetail `json:"failure,omitempty"`
}

// AcceptedResponse — 202-ответ на подачу заказа.
type AcceptedResponse struct {
	Status     string `json:"status"`
	OrderID    string `json:"order_id"`
	Processing struct {
		Mode                string `json:"mode"`
		EstimatedCompletion string `json:"estimated_completion"`
		StatusEndpoint      string `json:"status_endpoint"`
	} `json:"processing"`
}

// EventResponse — событие журнала заказа из API.
type EventResponse struct {
	ID        int64          `json:"id"`
	OrderID   string         `json:"order_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// ServiceHealth — состояние breaker'а сервиса из API.
type ServiceHealth struct {
	Service             string `json:"service"`
	Available           bool   `json:"available"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastFailureAt       string `json:"last_failure_at,omitempty"`
}

// --- Request types ---

// SubmitOrderRequest — подача заказа.
type SubmitOrderRequest struct {
	OrderID      string           `json:"order_id"`
	ClientID     string           `json:"client_id"`
	Priority     string           `json:"priority,omitempty"`
	Items        []map[string]any `json:"items"`
	Destinations []map[string]any `json:"destinations"`
}

// ListOrdersOpts — параметры фильтрации заказов.
type ListOrdersOpts struct {
	ClientID string
	Status   string
	Limit    int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Cargomata API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Orders ---

// SubmitOrder подаёт заказ в обработку.
func (c *Client) SubmitOrder(req SubmitOrderRequest) (*AcceptedResponse, error) {
	var accepted AcceptedResponse
	err := c.post("/api/v1/orders", req, &accepted)
	return &accepted, err
}

// GetOrder возвращает заказ по ID.
func (c *Client) GetOrder(id string) (*OrderResponse, error) {
	var order OrderResponse
	err := c.get("/api/v1/orders/"+id, &order)
	return &order, err
}

// GetStatus возвращает прогресс заказа.
func (c *Client) GetStatus(id string) (*ProgressResponse, error) {
	var progress ProgressResponse
	err := c.get("/api/v1/orders/"+id+"/status", &progress)
	return &progress, err
}

// ListOrders возвращает список заказов с фильтрацией.
func (c *Client) ListOrders(opts ListOrdersOpts) ([]OrderResponse, error) {
	params := url.Values{}
	if opts.ClientID != "" {
		params.Set("client_id", opts.ClientID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var orders []OrderResponse
	err := c.list("/api/v1/orders", params, &orders)
	return orders, err
}

// ListEvents возвращает журнал событий заказа.
func (c *Client) ListEvents(orderID string) ([]EventResponse, error) {
	var events []EventResponse
	err := c.list("/api/v1/orders/"+orderID+"/events", nil, &events)
	return events, err
}

// --- Services ---

// ServiceHealthAll возвращает состояние breaker'ов всех сервисов.
func (c *Client) ServiceHealthAll() ([]ServiceHealth, error) {
	var health []ServiceHealth
	err := c.get("/api/v1/services/health", &health)
	return health, err
}

// RecoverService принудительно закрывает breaker сервиса.
func (c *Client) RecoverService(service string) error {
	return c.post("/api/v1/services/"+service+"/recover", nil, nil)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
