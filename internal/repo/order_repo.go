package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Cargomata/internal/domain"
)

const orderColumns = `
	id, client_id, priority, items, destinations, status,
	contract, warehouse, route, manifest, failure, compensations,
	submitted_at, cms_verified_at, wms_registered_at, ros_optimized_at,
	ready_at, failed_at
`

// OrderRepo — репозиторий заказов.
type OrderRepo struct {
	pool *pgxpool.Pool
}

// NewOrderRepo создаёт новый OrderRepo.
func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create создаёт новый заказ. Возвращает ErrAlreadyExists при
// конфликте по ID.
func (r *OrderRepo) Create(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	destinationsJSON, err := json.Marshal(order.Destinations)
	if err != nil {
		return fmt.Errorf("marshal destinations: %w", err)
	}

	query := `
		INSERT INTO orders (id, client_id, priority, items, destinations, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		order.ID,
		order.ClientID,
		order.Priority,
		itemsJSON,
		destinationsJSON,
		order.Status,
		order.SubmittedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID возвращает заказ по ID.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(r.pool.QueryRow(ctx, query, id))
}

// Update сохраняет состояние заказа целиком.
//
// Заказ мутируется единственной горутиной-сагой, поэтому пишем агрегат
// одним UPDATE после каждого перехода, без частичных апдейтов.
func (r *OrderRepo) Update(ctx context.Context, order *domain.Order) error {
	contractJSON, err := marshalNullable(order.Contract)
	if err != nil {
		return fmt.Errorf("marshal contract: %w", err)
	}
	warehouseJSON, err := marshalNullable(order.Warehouse)
	if err != nil {
		return fmt.Errorf("marshal warehouse: %w", err)
	}
	routeJSON, err := marshalNullable(order.Route)
	if err != nil {
		return fmt.Errorf("marshal route: %w", err)
	}
	manifestJSON, err := marshalNullable(order.Manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	failureJSON, err := marshalNullable(order.Failure)
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}
	compensationsJSON, err := marshalNullable(order.Compensations)
	if err != nil {
		return fmt.Errorf("marshal compensations: %w", err)
	}

	query := `
		UPDATE orders
		SET status = $2, contract = $3, warehouse = $4, route = $5,
		    manifest = $6, failure = $7, compensations = $8,
		    cms_verified_at = $9, wms_registered_at = $10, ros_optimized_at = $11,
		    ready_at = $12, failed_at = $13
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		order.ID,
		order.Status,
		contractJSON,
		warehouseJSON,
		routeJSON,
		manifestJSON,
		failureJSON,
		compensationsJSON,
		order.CMSVerifiedAt,
		order.WMSRegisteredAt,
		order.ROSOptimizedAt,
		order.ReadyAt,
		order.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnfinished возвращает заказы в нетерминальных статусах,
// старые первыми.
func (r *OrderRepo) ListUnfinished(ctx context.Context, limit int) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status NOT IN ('READY_FOR_DELIVERY', 'FAILED', 'CANCELLED')
		ORDER BY submitted_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unfinished orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// List возвращает список заказов с фильтрацией.
func (r *OrderRepo) List(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR client_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY submitted_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.ClientID),
		nullString(string(filter.Status)),
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// --- Helpers ---

// OrderFilter — параметры фильтрации заказов.
type OrderFilter struct {
	ClientID string
	Status   domain.OrderStatus
	Limit    int
	Offset   int
}

// scanOrder сканирует одну строку в Order.
func scanOrder(row pgx.Row) (*domain.Order, error) {
	var order domain.Order
	var itemsJSON, destinationsJSON []byte
	var contractJSON, warehouseJSON, routeJSON []byte
	var manifestJSON, failureJSON, compensationsJSON []byte

	err := row.Scan(
		&order.ID,
		&order.ClientID,
		&order.Priority,
		&itemsJSON,
		&destinationsJSON,
		&order.Status,
		&contractJSON,
		&warehouseJSON,
		&routeJSON,
		&manifestJSON,
		&failureJSON,
		&compensationsJSON,
		&order.SubmittedAt,
		&order.CMSVerifiedAt,
		&order.WMSRegisteredAt,
		&order.ROSOptimizedAt,
		&order.ReadyAt,
		&order.FailedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if err := json.Unmarshal(destinationsJSON, &order.Destinations); err != nil {
		return nil, fmt.Errorf("unmarshal destinations: %w", err)
	}

	if contractJSON != nil {
		order.Contract = &domain.ContractResult{}
		if err := json.Unmarshal(contractJSON, order.Contract); err != nil {
			return nil, fmt.Errorf("unmarshal contract: %w", err)
		}
	}
	if warehouseJSON != nil {
		order.Warehouse = &domain.WarehouseResult{}
		if err := json.Unmarshal(warehouseJSON, order.Warehouse); err != nil {
			return nil, fmt.Errorf("unmarshal warehouse: %w", err)
		}
	}
	if routeJSON != nil {
		order.Route = &domain.RouteResult{}
		if err := json.Unmarshal(routeJSON, order.Route); err != nil {
			return nil, fmt.Errorf("unmarshal route: %w", err)
		}
	}
	if manifestJSON != nil {
		order.Manifest = &domain.DeliveryManifest{}
		if err := json.Unmarshal(manifestJSON, order.Manifest); err != nil {
			return nil, fmt.Errorf("unmarshal manifest: %w", err)
		}
	}
	if failureJSON != nil {
		order.Failure = &domain.FailureDetail{}
		if err := json.Unmarshal(failureJSON, order.Failure); err != nil {
			return nil, fmt.Errorf("unmarshal failure: %w", err)
		}
	}
	if compensationsJSON != nil {
		if err := json.Unmarshal(compensationsJSON, &order.Compensations); err != nil {
			return nil, fmt.Errorf("unmarshal compensations: %w", err)
		}
	}

	return &order, nil
}

// collectOrders сканирует все строки rows в слайс заказов.
func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// marshalNullable маршалит значение в JSONB, возвращая nil (SQL NULL)
// для nil-указателей и пустых слайсов.
func marshalNullable(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
