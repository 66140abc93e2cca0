package callback

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome of processing a stored gateway callback.
const (
	StatusReceived = "received"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
)

// Callback is the durable record of a raw gateway notification. It is
// persisted before any validation so a crash later in the pipeline never
// loses the event, and its (gateway, request_id) uniqueness doubles as the
// replay/idempotency guard.
type Callback struct {
	ID          int64             `json:"id"`
	Gateway     string            `json:"gateway"`
	RequestID   string            `json:"requestId"`
	Payload     []byte            `json:"payload"`
	Headers     map[string]string `json:"headers,omitempty"`
	Signature   string            `json:"signature,omitempty"`
	Status      string            `json:"status"`
	OrderID     string            `json:"orderId,omitempty"`
	Processed   []byte            `json:"processed,omitempty"`
	LastError   string            `json:"lastError,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	ProcessedAt *time.Time        `json:"processedAt,omitempty"`
}

// Event is the canonical shape a gateway parser produces from a raw payload.
// Amount is normalized to major currency units regardless of how the gateway
// reports it.
type Event struct {
	Gateway       string          `json:"gateway"`
	RequestID     string          `json:"requestId"`
	OrderID       string          `json:"orderId"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Succeeded     bool            `json:"succeeded"`
}
