package listorders

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/transport/http/respond"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// service is an interface for the service layer.
type service interface {
	ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error)
}

// ListOrders handles the list orders request. Filters come from query
// parameters: status (comma separated), userId, limit, offset.
func ListOrders(w http.ResponseWriter, r *http.Request, service service) {
	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		respond.Error(w, r, errs.InvalidParams("X-Tenant-ID header is required"))

		return
	}

	filter := order.QueryOrdersModel{
		TenantID: tenantID,
		Limit:    defaultLimit,
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			status, ok := order.ParseStatus(strings.TrimSpace(name))
			if !ok {
				respond.Error(w, r, errs.InvalidParams("unknown status "+name))

				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if userID := r.URL.Query().Get("userId"); userID != "" {
		filter.UserID = userID
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxLimit {
			respond.Error(w, r, errs.InvalidParams("limit must be between 1 and 200"))

			return
		}
		filter.Limit = limit
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			respond.Error(w, r, errs.InvalidParams("offset must not be negative"))

			return
		}
		filter.Offset = offset
	}

	orders, err := service.ListOrders(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, map[string]any{"orders": orders})
}
