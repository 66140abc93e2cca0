package ordersvc

import (
	"context"
	"fmt"

	"github.com/garrymei/minimodules-order/internal/service/models/auditlog"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/service/models/orderitem"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

// GetOrder retrieves one order with its items.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	o, err := s.newUOW().OrderRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errs.ResourceNotFound(fmt.Sprintf("order %s not found", id))
	}

	return s.attachItems(ctx, o)
}

// ListOrders retrieves orders with their items based on filter.
func (s *OrderService) ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error) {
	work := s.newUOW()

	orders, err := work.OrderRepository().Query(ctx, &filter)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []order.Order{}, nil
	}

	itemFilter := &orderitem.QueryOrderItemsModel{}
	for _, o := range orders {
		itemFilter.OrderIDs = append(itemFilter.OrderIDs, o.ID)
	}
	items, err := work.OrderItemRepository().Query(ctx, itemFilter)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		for _, item := range items {
			if item.OrderID == orders[i].ID {
				orders[i].Items = append(orders[i].Items, item)
			}
		}
	}

	return orders, nil
}

// GetAuditTrail retrieves the transition history of an order.
func (s *OrderService) GetAuditTrail(ctx context.Context, orderID string) ([]auditlog.Entry, error) {
	o, err := s.newUOW().OrderRepository().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errs.ResourceNotFound(fmt.Sprintf("order %s not found", orderID))
	}

	return s.newUOW().AuditRepository().ListByOrder(ctx, orderID)
}
