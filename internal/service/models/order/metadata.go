package order

import "time"

// Metadata is the per-order state bag. Lifecycle stages get typed sections so
// the fields each transition stamps are visible in one place; Extra remains
// for genuinely open-ended keys (table number remarks, client hints).
type Metadata struct {
	TableNumber string `json:"tableNumber,omitempty"`
	Contact     string `json:"contact,omitempty"`
	Remark      string `json:"remark,omitempty"`

	Payment      *PaymentMeta      `json:"payment,omitempty"`
	Verification *VerificationMeta `json:"verification,omitempty"`
	Cancellation *CancellationMeta `json:"cancellation,omitempty"`
	Refund       *RefundMeta       `json:"refund,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// PaymentMeta is stamped when a gateway confirms payment.
type PaymentMeta struct {
	Gateway       string    `json:"gateway"`
	TransactionID string    `json:"transactionId"`
	PaidAt        time.Time `json:"paidAt"`
}

// VerificationMeta tracks the order's current redemption code. The order row
// is the source of truth: issuing a new code replaces Code and Nonce, which
// invalidates every previously issued code for this order.
type VerificationMeta struct {
	Code       string     `json:"code"`
	Nonce      string     `json:"nonce"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Used       bool       `json:"used"`
	Attempts   int        `json:"attempts"`
	VerifiedBy string     `json:"verifiedBy,omitempty"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
}

// CancellationMeta records who cancelled the order and whether stock was
// re-credited.
type CancellationMeta struct {
	Reason        string    `json:"reason,omitempty"`
	CancelledBy   string    `json:"cancelledBy,omitempty"`
	CancelledAt   time.Time `json:"cancelledAt"`
	StockRestored bool      `json:"stockRestored"`
}

// RefundMeta tracks the refund flow. RefundedAt is set only when the refund
// completes; a failed refund leaves it nil and the order reverts to PAID.
type RefundMeta struct {
	Reason        string     `json:"reason,omitempty"`
	Operator      string     `json:"operator,omitempty"`
	TransactionID string     `json:"transactionId,omitempty"`
	RequestedAt   time.Time  `json:"requestedAt"`
	RefundedAt    *time.Time `json:"refundedAt,omitempty"`
}
