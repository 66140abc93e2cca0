package postgresrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/garrymei/minimodules-order/internal/dal/postgres"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/service/models/orderitem"
)

// OrderDal represents the order data access layer model.
type OrderDal struct {
	ID             string    `db:"id"`
	TenantID       string    `db:"tenant_id"`
	UserID         *string   `db:"user_id"`
	OrderNumber    string    `db:"order_number"`
	TotalAmount    string    `db:"total_amount"`
	Status         string    `db:"status"`
	OrderType      string    `db:"order_type"`
	Metadata       []byte    `db:"metadata"`
	IdempotencyKey *string   `db:"idempotency_key"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// ToModel converts OrderDal to the service layer Order model.
func (o *OrderDal) ToModel() (*order.Order, error) {
	amount, err := decimal.NewFromString(o.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total amount: %w", err)
	}

	status, ok := order.ParseStatus(o.Status)
	if !ok {
		return nil, fmt.Errorf("unknown order status %q", o.Status)
	}

	orderType, ok := order.ParseType(o.OrderType)
	if !ok {
		return nil, fmt.Errorf("unknown order type %q", o.OrderType)
	}

	var meta order.Metadata
	if len(o.Metadata) > 0 {
		if err := json.Unmarshal(o.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order metadata: %w", err)
		}
	}

	return &order.Order{
		ID:             o.ID,
		TenantID:       o.TenantID,
		UserID:         o.UserID,
		OrderNumber:    o.OrderNumber,
		TotalAmount:    amount,
		Status:         status,
		OrderType:      orderType,
		Metadata:       meta,
		IdempotencyKey: o.IdempotencyKey,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		Items:          []orderitem.OrderItem{}, // populated separately
	}, nil
}

// OrderDalFromModel converts the service layer Order model to OrderDal.
func OrderDalFromModel(o *order.Order) (*OrderDal, error) {
	meta, err := json.Marshal(o.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order metadata: %w", err)
	}

	return &OrderDal{
		ID:             o.ID,
		TenantID:       o.TenantID,
		UserID:         o.UserID,
		OrderNumber:    o.OrderNumber,
		TotalAmount:    o.TotalAmount.StringFixed(2),
		Status:         o.Status.String(),
		OrderType:      string(o.OrderType),
		Metadata:       meta,
		IdempotencyKey: o.IdempotencyKey,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}, nil
}

var orderColumns = []string{
	"id",
	"tenant_id",
	"user_id",
	"order_number",
	"total_amount::text",
	"status",
	"order_type",
	"metadata",
	"idempotency_key",
	"created_at",
	"updated_at",
}

type PostgresOrderRepository struct {
	conn postgres.Querier
}

func NewPostgresOrderRepository(conn postgres.Querier) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
	}
}

// Insert persists a new order row.
func (r *PostgresOrderRepository) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	dal, err := OrderDalFromModel(&o)
	if err != nil {
		return order.Order{}, err
	}

	query, args, err := sq.Insert("orders").
		Columns(
			"id",
			"tenant_id",
			"user_id",
			"order_number",
			"total_amount",
			"status",
			"order_type",
			"metadata",
			"idempotency_key",
			"created_at",
			"updated_at",
		).
		Values(
			dal.ID,
			dal.TenantID,
			dal.UserID,
			dal.OrderNumber,
			dal.TotalAmount,
			dal.Status,
			dal.OrderType,
			dal.Metadata,
			dal.IdempotencyKey,
			dal.CreatedAt,
			dal.UpdatedAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return order.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	return o, nil
}

// GetByID retrieves an order by id. Returns nil when no order exists.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id}))
}

// GetByIDForUpdate retrieves an order by id under an exclusive row lock.
func (r *PostgresOrderRepository) GetByIDForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE"))
}

// GetByIdempotencyKey retrieves the order previously created with the given
// tenant-scoped idempotency key. Returns nil when no order exists.
func (r *PostgresOrderRepository) GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*order.Order, error) {
	return r.getOne(ctx, sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"tenant_id": tenantID, "idempotency_key": key}))
}

func (r *PostgresOrderRepository) getOne(ctx context.Context, builder sq.SelectBuilder) (*order.Order, error) {
	query, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var dal OrderDal
	err = r.conn.QueryRow(ctx, query, args...).Scan(
		&dal.ID,
		&dal.TenantID,
		&dal.UserID,
		&dal.OrderNumber,
		&dal.TotalAmount,
		&dal.Status,
		&dal.OrderType,
		&dal.Metadata,
		&dal.IdempotencyKey,
		&dal.CreatedAt,
		&dal.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	return dal.ToModel()
}

// Update persists status and metadata changes of an existing order.
func (r *PostgresOrderRepository) Update(ctx context.Context, o order.Order) error {
	dal, err := OrderDalFromModel(&o)
	if err != nil {
		return err
	}

	query, args, err := sq.Update("orders").
		Set("status", dal.Status).
		Set("metadata", dal.Metadata).
		Set("updated_at", dal.UpdatedAt).
		Where(sq.Eq{"id": dal.ID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	return nil
}

// Query retrieves orders based on filter criteria.
func (r *PostgresOrderRepository) Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	builder := sq.Select(orderColumns...).
		From("orders").
		OrderBy("created_at DESC")

	if filter.TenantID != "" {
		builder = builder.Where(sq.Eq{"tenant_id": filter.TenantID})
	}
	if len(filter.IDs) > 0 {
		builder = builder.Where(sq.Eq{"id": filter.IDs})
	}
	if filter.UserID != "" {
		builder = builder.Where(sq.Eq{"user_id": filter.UserID})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = s.String()
		}
		builder = builder.Where(sq.Eq{"status": statuses})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		var dal OrderDal
		err := rows.Scan(
			&dal.ID,
			&dal.TenantID,
			&dal.UserID,
			&dal.OrderNumber,
			&dal.TotalAmount,
			&dal.Status,
			&dal.OrderType,
			&dal.Metadata,
			&dal.IdempotencyKey,
			&dal.CreatedAt,
			&dal.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
		}
		result = append(result, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}
