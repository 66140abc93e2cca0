package verifyorder

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/transport/http/respond"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

// service is an interface for the service layer.
type service interface {
	VerifyAndRedeem(ctx context.Context, tenantID, code, verifiedBy string) (*order.Order, error)
}

// verifyOrderRequest represents a verify order request.
type verifyOrderRequest struct {
	Code       string `json:"code"       validate:"required"`
	VerifiedBy string `json:"verifiedBy" validate:"required"`
}

// Validate validates the verify order request.
func (r *verifyOrderRequest) Validate() error {
	return validator.New().Struct(r)
}

// VerifyOrder handles the redeem verification code request.
func VerifyOrder(w http.ResponseWriter, r *http.Request, service service) {
	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		respond.Error(w, r, errs.InvalidParams("X-Tenant-ID header is required"))

		return
	}

	verifyReq := verifyOrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(&verifyReq); err != nil {
		respond.Error(w, r, errs.InvalidParams("failed to decode request body").WithCause(err))

		return
	}
	if err := verifyReq.Validate(); err != nil {
		respond.Error(w, r, errs.InvalidParams(err.Error()).WithCause(err))

		return
	}

	redeemed, err := service.VerifyAndRedeem(r.Context(), tenantID, verifyReq.Code, verifyReq.VerifiedBy)
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, redeemed)
}
