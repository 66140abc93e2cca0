package paymentcallback

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/garrymei/minimodules-order/internal/service/services/paymentsvc"
	"github.com/garrymei/minimodules-order/internal/transport/http/respond"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

// maxBodySize caps callback payloads at 1 MiB.
const maxBodySize = 1 << 20

// service is an interface for the service layer.
type service interface {
	ProcessCallback(ctx context.Context, gateway string, payload []byte, headers map[string]string, signature string) (*paymentsvc.Result, error)
}

type callbackResponse struct {
	Success bool               `json:"success"`
	Code    errs.Code          `json:"code,omitempty"`
	Result  *paymentsvc.Result `json:"result,omitempty"`
}

// PaymentCallback handles an async gateway notification. Only a signature
// failure gets a 400; every other failure is acknowledged with 200 and
// success=false so the gateway does not retry an event we have already
// persisted.
func PaymentCallback(w http.ResponseWriter, r *http.Request, service service) {
	gateway := chi.URLParam(r, "gateway")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		respond.Error(w, r, errs.InvalidParams("failed to read request body").WithCause(err))

		return
	}

	signature := r.Header.Get("X-Signature")
	headers := map[string]string{
		"Content-Type": r.Header.Get("Content-Type"),
		"X-Signature":  signature,
	}

	result, err := service.ProcessCallback(r.Context(), gateway, payload, headers, signature)
	if err != nil {
		if errs.IsCode(err, errs.CodeSignatureInvalid) {
			slog.Warn("Rejected callback with invalid signature",
				"gateway", gateway, "remote_addr", r.RemoteAddr)
			respond.Error(w, r, err)

			return
		}

		respond.JSON(w, http.StatusOK, callbackResponse{
			Success: false,
			Code:    errs.From(err).Code,
		})

		return
	}

	respond.JSON(w, http.StatusOK, callbackResponse{
		Success: true,
		Result:  result,
	})
}
