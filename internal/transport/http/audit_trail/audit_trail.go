package audittrail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/garrymei/minimodules-order/internal/service/models/auditlog"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/transport/http/respond"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

// service is an interface for the service layer.
type service interface {
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	GetAuditTrail(ctx context.Context, orderID string) ([]auditlog.Entry, error)
}

// AuditTrail handles the audit trail request, returning the order's status
// transition history oldest first.
func AuditTrail(w http.ResponseWriter, r *http.Request, service service) {
	orderID := chi.URLParam(r, "orderID")
	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		respond.Error(w, r, errs.InvalidParams("X-Tenant-ID header is required"))

		return
	}

	o, err := service.GetOrder(r.Context(), orderID)
	if err != nil {
		respond.Error(w, r, err)

		return
	}
	if o.TenantID != tenantID {
		respond.Error(w, r, errs.ResourceNotFound(fmt.Sprintf("order %s not found", orderID)))

		return
	}

	entries, err := service.GetAuditTrail(r.Context(), orderID)
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}
