package orderitem

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem is a line item snapshot persisted at order creation, inside the
// same transaction as the stock deduction. It is never mutated afterward
// except for RestoredAt, stamped by the compensating restore on cancellation.
type OrderItem struct {
	ID          string            `json:"id"`
	OrderID     string            `json:"orderId"`
	SKUID       string            `json:"skuId"`
	ProductName string            `json:"productName"`
	SKUName     string            `json:"skuName"`
	Quantity    int               `json:"quantity"`
	UnitPrice   decimal.Decimal   `json:"unitPrice"`
	TotalPrice  decimal.Decimal   `json:"totalPrice"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	RestoredAt  *time.Time        `json:"restoredAt,omitempty"`
}

// QueryOrderItemsModel represents filter parameters for querying order items.
type QueryOrderItemsModel struct {
	OrderIDs []string `json:"orderIds,omitempty"`
}
