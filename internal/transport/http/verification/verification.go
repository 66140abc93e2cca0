package verification

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/garrymei/minimodules-order/internal/service/services/verifysvc"
	"github.com/garrymei/minimodules-order/internal/transport/http/respond"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

// service is an interface for the service layer.
type service interface {
	IssueCode(ctx context.Context, tenantID, orderID string) (*verifysvc.Verification, error)
	GetVerification(ctx context.Context, tenantID, orderID string) (*verifysvc.Verification, error)
}

// IssueCode handles the issue verification code request, always minting a
// fresh code.
func IssueCode(w http.ResponseWriter, r *http.Request, service service) {
	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		respond.Error(w, r, errs.InvalidParams("X-Tenant-ID header is required"))

		return
	}

	v, err := service.IssueCode(r.Context(), tenantID, chi.URLParam(r, "orderID"))
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusCreated, v)
}

// GetVerification handles the get verification code request, reusing the
// current code while it is still redeemable.
func GetVerification(w http.ResponseWriter, r *http.Request, service service) {
	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		respond.Error(w, r, errs.InvalidParams("X-Tenant-ID header is required"))

		return
	}

	v, err := service.GetVerification(r.Context(), tenantID, chi.URLParam(r, "orderID"))
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, v)
}
