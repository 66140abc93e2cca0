package iorderitemrepo

import (
	"context"
	"time"

	"github.com/garrymei/minimodules-order/internal/service/models/orderitem"
)

// IOrderItemRepository is the interface for the order item postgres repository.
type IOrderItemRepository interface {
	BulkInsert(ctx context.Context, items []orderitem.OrderItem) ([]orderitem.OrderItem, error)

	Query(ctx context.Context, filter *orderitem.QueryOrderItemsModel) ([]orderitem.OrderItem, error)

	// MarkRestored stamps restored_at on every item of the order after a
	// compensating stock re-credit.
	MarkRestored(ctx context.Context, orderID string, at time.Time) error
}
