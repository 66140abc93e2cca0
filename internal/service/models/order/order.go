package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garrymei/minimodules-order/internal/service/models/orderitem"
)

// Type distinguishes how an order is fulfilled.
type Type string

const (
	TypeDineIn  Type = "dine_in"
	TypeTakeout Type = "takeout"
)

// ParseType validates a client-submitted order type.
func ParseType(raw string) (Type, bool) {
	switch Type(raw) {
	case TypeDineIn, TypeTakeout:
		return Type(raw), true
	default:
		return "", false
	}
}

// Order is an order in the system. Items are an immutable snapshot taken at
// creation time; later SKU edits never alter them.
type Order struct {
	ID             string               `json:"id"`
	TenantID       string               `json:"tenantId"`
	UserID         *string              `json:"userId,omitempty"`
	OrderNumber    string               `json:"orderNumber"`
	TotalAmount    decimal.Decimal      `json:"totalAmount"`
	Status         Status               `json:"status"`
	OrderType      Type                 `json:"orderType"`
	Metadata       Metadata             `json:"metadata"`
	IdempotencyKey *string              `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
	Items          []orderitem.OrderItem `json:"items"`
}

// QueryOrdersModel represents filter parameters for querying orders.
type QueryOrdersModel struct {
	TenantID string   `json:"tenantId"`
	IDs      []string `json:"ids,omitempty"`
	UserID   string   `json:"userId,omitempty"`
	Statuses []Status `json:"statuses,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}
