package ordersvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iauditrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iorderitemrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iorderrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/ioutboxrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iskurepo"
	"github.com/garrymei/minimodules-order/internal/dal/postgres"
	"github.com/garrymei/minimodules-order/internal/dal/uow"
	"github.com/garrymei/minimodules-order/internal/service/collaborators/notify"
	"github.com/garrymei/minimodules-order/internal/service/collaborators/usage"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/service/models/orderitem"
	"github.com/garrymei/minimodules-order/internal/service/models/sku"
	"github.com/garrymei/minimodules-order/internal/service/services/inventorysvc"
	"github.com/garrymei/minimodules-order/pkg/errs"
	"github.com/garrymei/minimodules-order/pkg/metrics"
)

// TxRepos is the slice of a unit of work a transition needs. Secondary
// writers (verification, payment reconciliation) pass their own
// transaction-bound unit of work here.
type TxRepos interface {
	OrderRepository() iorderrepo.IOrderRepository
	AuditRepository() iauditrepo.IAuditRepository
	OutboxRepository() ioutboxrepo.IOutboxRepository
}

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
	OrderItemRepository() iorderitemrepo.IOrderItemRepository
	SKURepository() iskurepo.ISKURepository
	AuditRepository() iauditrepo.IAuditRepository
	OutboxRepository() ioutboxrepo.IOutboxRepository
}

type inventoryLedger interface {
	CheckAvailability(ctx context.Context, tenantID string, lines []sku.Line) ([]sku.Shortage, error)
	Deduct(ctx context.Context, work inventorysvc.TxRepos, tenantID, orderID string, lines []inventorysvc.DeductLine, now time.Time) ([]orderitem.OrderItem, error)
	Restore(ctx context.Context, tenantID, orderID string) error
}

// OrderService is the order intake and lifecycle service.
type OrderService struct {
	pgClient *postgres.Client
	newUOW   func() unitOfWork
	ledger   inventoryLedger
	usage    usage.Collaborator
	notify   notify.Collaborator
	metrics  *metrics.Metrics
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithPostgresClient sets the Postgres client for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *OrderService) {
		s.pgClient = pgClient
		if s.newUOW == nil {
			s.newUOW = func() unitOfWork { return uow.NewUnitOfWork(pgClient) }
		}
	}
}

// WithUnitOfWorkFactory overrides transaction creation, used by tests.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWorkFactory(factory func() unitOfWork) option {
	return func(s *OrderService) {
		s.newUOW = factory
	}
}

// WithInventoryLedger sets the stock ledger.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithInventoryLedger(ledger inventoryLedger) option {
	return func(s *OrderService) {
		s.ledger = ledger
	}
}

// WithUsageCollaborator sets the quota collaborator.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUsageCollaborator(collab usage.Collaborator) option {
	return func(s *OrderService) {
		s.usage = collab
	}
}

// WithNotifyCollaborator sets the notification collaborator.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithNotifyCollaborator(collab notify.Collaborator) option {
	return func(s *OrderService) {
		s.notify = collab
	}
}

// WithMetrics sets the service metrics.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithMetrics(m *metrics.Metrics) option {
	return func(s *OrderService) {
		s.metrics = m
	}
}

// CreateItemModel is one requested line item.
type CreateItemModel struct {
	SKUID     string          `json:"skuId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// CreateOrderModel is the intake request.
type CreateOrderModel struct {
	TenantID       string            `json:"tenantId"`
	UserID         *string           `json:"userId,omitempty"`
	OrderType      string            `json:"orderType"`
	Items          []CreateItemModel `json:"items"`
	TotalAmount    decimal.Decimal   `json:"totalAmount"`
	IdempotencyKey *string           `json:"idempotencyKey,omitempty"`
	TableNumber    string            `json:"tableNumber,omitempty"`
	Contact        string            `json:"contact,omitempty"`
	Remark         string            `json:"remark,omitempty"`
}

// CreateOrder validates the request, enforces quota and idempotency, deducts
// stock and persists the order, all per the flow described on the type.
//
// Everything that can reject the request cheaply (validation, quota, the
// advisory stock check, the idempotency lookup) runs before the write
// transaction so no row lock is ever taken for a doomed request.
func (s *OrderService) CreateOrder(ctx context.Context, dto CreateOrderModel) (*order.Order, error) {
	orderType, err := s.validate(&dto)
	if err != nil {
		return nil, err
	}

	if err := s.usage.EnforceQuota(ctx, dto.TenantID, usage.MetricOrders); err != nil {
		return nil, err
	}

	// Side-effect-free idempotency pre-check.
	if dto.IdempotencyKey != nil {
		existing, err := s.findByIdempotencyKey(ctx, dto.TenantID, *dto.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	lines := make([]sku.Line, len(dto.Items))
	deductLines := make([]inventorysvc.DeductLine, len(dto.Items))
	for i, item := range dto.Items {
		lines[i] = sku.Line{SKUID: item.SKUID, Quantity: item.Quantity}
		deductLines[i] = inventorysvc.DeductLine{
			SKUID:     item.SKUID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	shortages, err := s.ledger.CheckAvailability(ctx, dto.TenantID, lines)
	if err != nil {
		return nil, err
	}
	if len(shortages) > 0 {
		if s.metrics != nil {
			s.metrics.StockConflicts.Inc()
		}

		return nil, errs.InsufficientStock("insufficient stock").WithDetails(shortages)
	}

	created, err := s.createInTx(ctx, &dto, orderType, deductLines)
	if err != nil {
		// Two concurrent requests with the same idempotency key can both
		// pass the pre-check; the unique constraint catches the loser, which
		// then returns the winner's order.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && dto.IdempotencyKey != nil {
			existing, lookupErr := s.findByIdempotencyKey(ctx, dto.TenantID, *dto.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				return existing, nil
			}
		}

		return nil, err
	}

	s.afterCreate(created)

	return created, nil
}

func (s *OrderService) validate(dto *CreateOrderModel) (order.Type, error) {
	if dto.TenantID == "" {
		return "", errs.InvalidParams("tenantId is required")
	}

	orderType, ok := order.ParseType(dto.OrderType)
	if !ok {
		return "", errs.InvalidParams(fmt.Sprintf("unknown order type %q", dto.OrderType))
	}

	if len(dto.Items) == 0 {
		return "", errs.InvalidParams("order must contain at least one item")
	}

	computed := decimal.Zero
	for _, item := range dto.Items {
		if item.SKUID == "" {
			return "", errs.InvalidParams("item skuId is required")
		}
		if item.Quantity <= 0 {
			return "", errs.InvalidParams("item quantity must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return "", errs.InvalidParams("item unitPrice must not be negative")
		}
		computed = computed.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	if !order.AmountsMatch(computed, dto.TotalAmount) {
		return "", errs.InvalidParams(fmt.Sprintf(
			"totalAmount %s does not match computed total %s",
			dto.TotalAmount.StringFixed(2), computed.StringFixed(2),
		))
	}

	return orderType, nil
}

func (s *OrderService) findByIdempotencyKey(ctx context.Context, tenantID, key string) (*order.Order, error) {
	existing, err := s.newUOW().OrderRepository().GetByIdempotencyKey(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	return s.attachItems(ctx, existing)
}

func (s *OrderService) createInTx(
	ctx context.Context,
	dto *CreateOrderModel,
	orderType order.Type,
	deductLines []inventorysvc.DeductLine,
) (*order.Order, error) {
	work := s.newUOW()

	if err := work.Begin(ctx); err != nil {
		return nil, errs.OperationFailed("failed to begin transaction").WithCause(err)
	}
	defer func() {
		if err := work.Rollback(ctx); err != nil {
			slog.Error("Failed to rollback create transaction", "error", err)
		}
	}()

	// Re-check idempotency inside the transaction: closes the race window
	// between the pre-check and Begin.
	if dto.IdempotencyKey != nil {
		existing, err := work.OrderRepository().GetByIdempotencyKey(ctx, dto.TenantID, *dto.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.attachItems(ctx, existing)
		}
	}

	now := time.Now()
	o := order.Order{
		ID:             uuid.NewString(),
		TenantID:       dto.TenantID,
		UserID:         dto.UserID,
		OrderNumber:    newOrderNumber(now),
		TotalAmount:    dto.TotalAmount,
		Status:         order.StatusPending,
		OrderType:      orderType,
		IdempotencyKey: dto.IdempotencyKey,
		Metadata: order.Metadata{
			TableNumber: dto.TableNumber,
			Contact:     dto.Contact,
			Remark:      dto.Remark,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	o, err := work.OrderRepository().Insert(ctx, o)
	if err != nil {
		return nil, err
	}

	items, err := s.ledger.Deduct(ctx, work, dto.TenantID, o.ID, deductLines, now)
	if err != nil {
		if errs.IsCode(err, errs.CodeInsufficientStock) && s.metrics != nil {
			s.metrics.StockConflicts.Inc()
		}

		return nil, err
	}
	o.Items = items

	if err := s.notify.TriggerEvent(ctx, work.OutboxRepository(), o.TenantID, notify.EventOrderCreated, o); err != nil {
		return nil, err
	}

	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	return &o, nil
}

// afterCreate runs the fire-and-forget side effects. Failures are logged and
// never affect the already committed order.
func (s *OrderService) afterCreate(o *order.Order) {
	if s.metrics != nil {
		s.metrics.OrdersCreated.WithLabelValues(o.TenantID, string(o.OrderType)).Inc()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.usage.IncrementUsage(ctx, o.TenantID, usage.MetricOrders, 1, map[string]string{
			"order_id": o.ID,
		}); err != nil {
			slog.Warn("Failed to increment usage", "tenant_id", o.TenantID, "order_id", o.ID, "error", err)
		}
	}()
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])

	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

func (s *OrderService) attachItems(ctx context.Context, o *order.Order) (*order.Order, error) {
	items, err := s.newUOW().OrderItemRepository().Query(ctx, &orderitem.QueryOrderItemsModel{
		OrderIDs: []string{o.ID},
	})
	if err != nil {
		return nil, err
	}
	o.Items = items

	return o, nil
}
