package iskurepo

import (
	"context"

	"github.com/garrymei/minimodules-order/internal/service/models/sku"
)

// ISKURepository is the interface for the SKU postgres repository.
type ISKURepository interface {
	// GetByIDs loads SKUs of the tenant without locking. Used by the advisory
	// pre-flight check.
	GetByIDs(ctx context.Context, tenantID string, ids []string) ([]sku.SKU, error)

	// LockByIDs loads SKUs under SELECT ... FOR UPDATE ordered by id so
	// concurrent orders over overlapping SKU sets cannot deadlock. Must run
	// inside a transaction.
	LockByIDs(ctx context.Context, tenantID string, ids []string) ([]sku.SKU, error)

	// DeductStock applies a conditional decrement guarded by stock >= qty and
	// reports whether a row was affected.
	DeductStock(ctx context.Context, id string, qty int) (bool, error)

	RestoreStock(ctx context.Context, id string, qty int) error
}
