package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/garrymei/minimodules-order/pkg/errs"
)

type errorBody struct {
	Code      errs.Code `json:"code"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
}

// JSON writes payload with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Error writing response", "error", err)
	}
}

// Error maps a service error to its HTTP shape. Unclassified errors become
// UNKNOWN_ERROR with a 500 and are logged with the request id.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	e := errs.From(err)
	reqID := middleware.GetReqID(r.Context())

	if e.Status >= http.StatusInternalServerError {
		slog.Error("Request failed", "request_id", reqID, "code", e.Code, "error", err)
	}

	JSON(w, e.Status, errorBody{
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		RequestID: reqID,
	})
}
