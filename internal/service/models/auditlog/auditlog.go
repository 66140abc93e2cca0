package auditlog

import (
	"time"

	"github.com/garrymei/minimodules-order/internal/service/models/order"
)

// Entry is an immutable audit record for one status transition, appended in
// the same transaction that performed the transition.
type Entry struct {
	ID         int64             `json:"id"`
	OrderID    string            `json:"order_id"`
	TenantID   string            `json:"tenant_id"`
	FromStatus order.Status      `json:"from_status"`
	ToStatus   order.Status      `json:"to_status"`
	Actor      string            `json:"actor"`
	Context    map[string]string `json:"context,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
