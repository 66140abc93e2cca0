package postgresrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/garrymei/minimodules-order/internal/dal/postgres"
	"github.com/garrymei/minimodules-order/internal/service/models/sku"
)

// SKUDal represents the SKU data access layer model.
type SKUDal struct {
	ID            string    `db:"id"`
	TenantID      string    `db:"tenant_id"`
	ProductID     string    `db:"product_id"`
	ProductName   string    `db:"product_name"`
	Name          string    `db:"name"`
	Price         string    `db:"price"`
	Stock         int       `db:"stock"`
	ReservedStock int       `db:"reserved_stock"`
	Status        string    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// ToModel converts SKUDal to the service layer SKU model.
func (d *SKUDal) ToModel() (*sku.SKU, error) {
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sku price: %w", err)
	}

	return &sku.SKU{
		ID:            d.ID,
		TenantID:      d.TenantID,
		ProductID:     d.ProductID,
		ProductName:   d.ProductName,
		Name:          d.Name,
		Price:         price,
		Stock:         d.Stock,
		ReservedStock: d.ReservedStock,
		Status:        sku.Status(d.Status),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}

var skuColumns = []string{
	"id",
	"tenant_id",
	"product_id",
	"product_name",
	"name",
	"price::text",
	"stock",
	"reserved_stock",
	"status",
	"created_at",
	"updated_at",
}

type PostgresSKURepository struct {
	conn postgres.Querier
}

func NewPostgresSKURepository(conn postgres.Querier) *PostgresSKURepository {
	return &PostgresSKURepository{
		conn: conn,
	}
}

// GetByIDs loads SKUs of the tenant without locking.
func (r *PostgresSKURepository) GetByIDs(ctx context.Context, tenantID string, ids []string) ([]sku.SKU, error) {
	return r.selectSKUs(ctx, sq.Select(skuColumns...).
		From("skus").
		Where(sq.Eq{"tenant_id": tenantID, "id": ids}).
		OrderBy("id ASC"))
}

// LockByIDs loads SKUs of the tenant under SELECT ... FOR UPDATE. Rows are
// locked in ascending id order so overlapping SKU sets cannot deadlock.
func (r *PostgresSKURepository) LockByIDs(ctx context.Context, tenantID string, ids []string) ([]sku.SKU, error) {
	return r.selectSKUs(ctx, sq.Select(skuColumns...).
		From("skus").
		Where(sq.Eq{"tenant_id": tenantID, "id": ids}).
		OrderBy("id ASC").
		Suffix("FOR UPDATE"))
}

func (r *PostgresSKURepository) selectSKUs(ctx context.Context, builder sq.SelectBuilder) ([]sku.SKU, error) {
	query, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query skus: %w", err)
	}
	defer rows.Close()

	var result []sku.SKU
	for rows.Next() {
		var dal SKUDal
		err := rows.Scan(
			&dal.ID,
			&dal.TenantID,
			&dal.ProductID,
			&dal.ProductName,
			&dal.Name,
			&dal.Price,
			&dal.Stock,
			&dal.ReservedStock,
			&dal.Status,
			&dal.CreatedAt,
			&dal.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sku: %w", err)
		}

		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert sku dal to model: %w", err)
		}
		result = append(result, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// DeductStock decrements stock only when enough remains. Zero affected rows
// means a concurrent order consumed the stock first.
func (r *PostgresSKURepository) DeductStock(ctx context.Context, id string, qty int) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		UPDATE skus
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
	`, id, qty)
	if err != nil {
		return false, fmt.Errorf("failed to deduct stock: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// RestoreStock re-credits previously deducted stock.
func (r *PostgresSKURepository) RestoreStock(ctx context.Context, id string, qty int) error {
	if _, err := r.conn.Exec(ctx, `
		UPDATE skus
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1
	`, id, qty); err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}

	return nil
}
