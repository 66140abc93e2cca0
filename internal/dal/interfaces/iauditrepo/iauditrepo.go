package iauditrepo

import (
	"context"

	"github.com/garrymei/minimodules-order/internal/service/models/auditlog"
)

// IAuditRepository is the interface for the append-only transition audit log.
type IAuditRepository interface {
	Insert(ctx context.Context, entry auditlog.Entry) error

	ListByOrder(ctx context.Context, orderID string) ([]auditlog.Entry, error)
}
