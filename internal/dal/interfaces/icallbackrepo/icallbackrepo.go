package icallbackrepo

import (
	"context"

	"github.com/garrymei/minimodules-order/internal/service/models/callback"
)

// ICallbackRepository is the interface for the payment callback log repository.
type ICallbackRepository interface {
	// Insert persists a raw callback. When a row with the same
	// (gateway, request_id) already exists nothing is written and
	// inserted=false is returned.
	Insert(ctx context.Context, cb callback.Callback) (id int64, inserted bool, err error)

	GetByRequestID(ctx context.Context, gateway, requestID string) (*callback.Callback, error)

	// UpdateOutcome records the processing result on the stored callback row.
	UpdateOutcome(ctx context.Context, id int64, status, orderID string, processed []byte, lastError string) error
}
