package iorderrepo

import (
	"context"

	"github.com/garrymei/minimodules-order/internal/service/models/order"
)

// IOrderRepository is the interface for the order postgres repository.
type IOrderRepository interface {
	Insert(ctx context.Context, o order.Order) (order.Order, error)

	GetByID(ctx context.Context, id string) (*order.Order, error)

	// GetByIDForUpdate loads the order under a pessimistic row lock and must
	// run inside a transaction.
	GetByIDForUpdate(ctx context.Context, id string) (*order.Order, error)

	GetByIdempotencyKey(ctx context.Context, tenantID, key string) (*order.Order, error)

	// Update persists status and metadata changes.
	Update(ctx context.Context, o order.Order) error

	Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)
}
