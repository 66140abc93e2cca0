package sku

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the sale state of a SKU.
type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusOutOfStock Status = "out_of_stock"
)

// SKU is a sellable stock-keeping unit. Stock never goes negative: every
// debit is a conditional update guarded by stock >= qty.
type SKU struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenantId"`
	ProductID     string          `json:"productId"`
	ProductName   string          `json:"productName"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock"`
	ReservedStock int             `json:"reservedStock"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Line is one requested SKU quantity within an order.
type Line struct {
	SKUID    string `json:"skuId"`
	Quantity int    `json:"quantity"`
}

// Shortage describes a SKU that could not cover the requested quantity.
type Shortage struct {
	SKUID     string `json:"skuId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}
