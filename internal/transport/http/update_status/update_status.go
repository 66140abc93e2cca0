package updatestatus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/service/services/ordersvc"
	"github.com/garrymei/minimodules-order/internal/transport/http/respond"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

// service is an interface for the service layer.
type service interface {
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, target order.Status, tctx ordersvc.TransitionContext) (*order.Order, error)
}

// updateStatusRequest represents an update status request.
type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Actor  string `json:"actor"  validate:"required"`
	Reason string `json:"reason"`
}

// Validate validates the update status request.
func (r *updateStatusRequest) Validate() error {
	return validator.New().Struct(r)
}

// UpdateStatus handles the manual status transition request (cancellation,
// refund flow). Payment and verification transitions have their own routes.
func UpdateStatus(w http.ResponseWriter, r *http.Request, service service) {
	orderID := chi.URLParam(r, "orderID")
	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		respond.Error(w, r, errs.InvalidParams("X-Tenant-ID header is required"))

		return
	}

	statusReq := updateStatusRequest{}
	if err := json.NewDecoder(r.Body).Decode(&statusReq); err != nil {
		respond.Error(w, r, errs.InvalidParams("failed to decode request body").WithCause(err))

		return
	}
	if err := statusReq.Validate(); err != nil {
		respond.Error(w, r, errs.InvalidParams(err.Error()).WithCause(err))

		return
	}

	target, ok := order.ParseStatus(statusReq.Status)
	if !ok {
		respond.Error(w, r, errs.InvalidParams(fmt.Sprintf("unknown status %q", statusReq.Status)))

		return
	}

	existing, err := service.GetOrder(r.Context(), orderID)
	if err != nil {
		respond.Error(w, r, err)

		return
	}
	if existing.TenantID != tenantID {
		respond.Error(w, r, errs.ResourceNotFound(fmt.Sprintf("order %s not found", orderID)))

		return
	}

	updated, err := service.UpdateStatus(r.Context(), orderID, target, ordersvc.TransitionContext{
		Actor:  statusReq.Actor,
		Reason: statusReq.Reason,
	})
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, updated)
}
