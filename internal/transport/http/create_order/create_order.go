package createorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/service/services/ordersvc"
	"github.com/garrymei/minimodules-order/internal/transport/http/respond"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

// service is an interface for the service layer.
type service interface {
	CreateOrder(ctx context.Context, dto ordersvc.CreateOrderModel) (*order.Order, error)
}

// itemInCreateOrderRequest represents an item in a create order request.
type itemInCreateOrderRequest struct {
	SKUID     string          `json:"skuId"     validate:"required"`
	Quantity  int             `json:"quantity"  validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// createOrderRequest represents a create order request.
type createOrderRequest struct {
	TenantID       string                     `json:"tenantId"  validate:"required"`
	UserID         *string                    `json:"userId"`
	OrderType      string                     `json:"orderType" validate:"required"`
	Items          []itemInCreateOrderRequest `json:"items"     validate:"required,min=1,dive"`
	TotalAmount    decimal.Decimal            `json:"totalAmount"`
	IdempotencyKey *string                    `json:"idempotencyKey"`
	TableNumber    string                     `json:"tableNumber"`
	Contact        string                     `json:"contact"`
	Remark         string                     `json:"remark"`
}

// Validate validates the create order request.
func (r *createOrderRequest) Validate() error {
	return validator.New().Struct(r)
}

// toModel converts createOrderRequest to ordersvc.CreateOrderModel.
func (r *createOrderRequest) toModel() ordersvc.CreateOrderModel {
	items := make([]ordersvc.CreateItemModel, len(r.Items))
	for i, item := range r.Items {
		items[i] = ordersvc.CreateItemModel{
			SKUID:     item.SKUID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	return ordersvc.CreateOrderModel{
		TenantID:       r.TenantID,
		UserID:         r.UserID,
		OrderType:      r.OrderType,
		Items:          items,
		TotalAmount:    r.TotalAmount,
		IdempotencyKey: r.IdempotencyKey,
		TableNumber:    r.TableNumber,
		Contact:        r.Contact,
		Remark:         r.Remark,
	}
}

// CreateOrder handles the create order request.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	orderReq := createOrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(&orderReq); err != nil {
		respond.Error(w, r, errs.InvalidParams("failed to decode request body").WithCause(err))
		slog.Error("Error decoding request body for create order", "error", err)

		return
	}

	if err := orderReq.Validate(); err != nil {
		respond.Error(w, r, errs.InvalidParams(err.Error()).WithCause(err))

		return
	}

	createdOrder, err := service.CreateOrder(r.Context(), orderReq.toModel())
	if err != nil {
		respond.Error(w, r, err)

		return
	}

	respond.JSON(w, http.StatusCreated, createdOrder)
}
