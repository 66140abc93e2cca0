package postgresrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/garrymei/minimodules-order/internal/dal/postgres"
	"github.com/garrymei/minimodules-order/internal/service/models/orderitem"
)

// OrderItemDal represents the order item data access layer model.
type OrderItemDal struct {
	ID          string     `db:"id"`
	OrderID     string     `db:"order_id"`
	SKUID       string     `db:"sku_id"`
	ProductName string     `db:"product_name"`
	SKUName     string     `db:"sku_name"`
	Quantity    int        `db:"quantity"`
	UnitPrice   string     `db:"unit_price"`
	TotalPrice  string     `db:"total_price"`
	Attributes  []byte     `db:"attributes"`
	CreatedAt   time.Time  `db:"created_at"`
	RestoredAt  *time.Time `db:"restored_at"`
}

// ToModel converts OrderItemDal to the service layer OrderItem model.
func (d *OrderItemDal) ToModel() (*orderitem.OrderItem, error) {
	unitPrice, err := decimal.NewFromString(d.UnitPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit price: %w", err)
	}

	totalPrice, err := decimal.NewFromString(d.TotalPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total price: %w", err)
	}

	var attrs map[string]string
	if len(d.Attributes) > 0 {
		if err := json.Unmarshal(d.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item attributes: %w", err)
		}
	}

	return &orderitem.OrderItem{
		ID:          d.ID,
		OrderID:     d.OrderID,
		SKUID:       d.SKUID,
		ProductName: d.ProductName,
		SKUName:     d.SKUName,
		Quantity:    d.Quantity,
		UnitPrice:   unitPrice,
		TotalPrice:  totalPrice,
		Attributes:  attrs,
		CreatedAt:   d.CreatedAt,
		RestoredAt:  d.RestoredAt,
	}, nil
}

var orderItemColumns = []string{
	"id",
	"order_id",
	"sku_id",
	"product_name",
	"sku_name",
	"quantity",
	"unit_price::text",
	"total_price::text",
	"attributes",
	"created_at",
	"restored_at",
}

type PostgresOrderItemRepository struct {
	conn postgres.Querier
}

func NewPostgresOrderItemRepository(conn postgres.Querier) *PostgresOrderItemRepository {
	return &PostgresOrderItemRepository{
		conn: conn,
	}
}

// BulkInsert inserts the item snapshot rows of an order.
func (r *PostgresOrderItemRepository) BulkInsert(ctx context.Context, items []orderitem.OrderItem) ([]orderitem.OrderItem, error) {
	if len(items) == 0 {
		return []orderitem.OrderItem{}, nil
	}

	builder := sq.Insert("order_items").
		Columns(
			"id",
			"order_id",
			"sku_id",
			"product_name",
			"sku_name",
			"quantity",
			"unit_price",
			"total_price",
			"attributes",
			"created_at",
		)

	for _, item := range items {
		attrs, err := json.Marshal(item.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal item attributes: %w", err)
		}

		builder = builder.Values(
			item.ID,
			item.OrderID,
			item.SKUID,
			item.ProductName,
			item.SKUName,
			item.Quantity,
			item.UnitPrice.StringFixed(2),
			item.TotalPrice.StringFixed(2),
			attrs,
			item.CreatedAt,
		)
	}

	query, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to bulk insert order items: %w", err)
	}

	return items, nil
}

// Query retrieves order items based on filter criteria.
func (r *PostgresOrderItemRepository) Query(ctx context.Context, filter *orderitem.QueryOrderItemsModel) ([]orderitem.OrderItem, error) {
	builder := sq.Select(orderItemColumns...).
		From("order_items").
		OrderBy("created_at ASC")

	if len(filter.OrderIDs) > 0 {
		builder = builder.Where(sq.Eq{"order_id": filter.OrderIDs})
	}

	query, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var result []orderitem.OrderItem
	for rows.Next() {
		var dal OrderItemDal
		err := rows.Scan(
			&dal.ID,
			&dal.OrderID,
			&dal.SKUID,
			&dal.ProductName,
			&dal.SKUName,
			&dal.Quantity,
			&dal.UnitPrice,
			&dal.TotalPrice,
			&dal.Attributes,
			&dal.CreatedAt,
			&dal.RestoredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order item dal to model: %w", err)
		}
		result = append(result, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// MarkRestored stamps restored_at on all items of the order.
func (r *PostgresOrderItemRepository) MarkRestored(ctx context.Context, orderID string, at time.Time) error {
	query, args, err := sq.Update("order_items").
		Set("restored_at", at).
		Where(sq.Eq{"order_id": orderID}).
		Where(sq.Eq{"restored_at": nil}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark order items restored: %w", err)
	}

	return nil
}
