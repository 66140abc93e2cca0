package inventorysvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iorderitemrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iskurepo"
	"github.com/garrymei/minimodules-order/internal/dal/postgres"
	"github.com/garrymei/minimodules-order/internal/dal/uow"
	"github.com/garrymei/minimodules-order/internal/service/models/orderitem"
	"github.com/garrymei/minimodules-order/internal/service/models/sku"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

// TxRepos is the slice of a unit of work the ledger needs when running inside
// the caller's transaction.
type TxRepos interface {
	SKURepository() iskurepo.ISKURepository
	OrderItemRepository() iorderitemrepo.IOrderItemRepository
}

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	SKURepository() iskurepo.ISKURepository
	OrderItemRepository() iorderitemrepo.IOrderItemRepository
}

// DeductLine is one SKU debit within an order.
type DeductLine struct {
	SKUID     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// InventoryService is the atomic stock ledger: check, deduct, restore.
type InventoryService struct {
	pgClient *postgres.Client
	newUOW   func() unitOfWork
}

// option is a function that configures the InventoryService.
type option func(*InventoryService)

// MustNewInventoryService creates a new InventoryService.
func MustNewInventoryService(opts ...option) *InventoryService {
	s := &InventoryService{}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithPostgresClient sets the Postgres client for the InventoryService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *InventoryService) {
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
	return func(s *InventoryService) {
		s.newUOW = factory
	}
}

// CheckAvailability is the advisory pre-flight: it reads current stock
// without locks so malformed or hopeless requests fail before a write
// transaction starts. The authoritative check happens again in Deduct under
// the row locks.
func (s *InventoryService) CheckAvailability(ctx context.Context, tenantID string, lines []sku.Line) ([]sku.Shortage, error) {
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.SKUID
	}

	// A fresh unit of work before Begin reads straight from the pool.
	skus, err := s.newUOW().SKURepository().GetByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load skus: %w", err)
	}

	byID := make(map[string]sku.SKU, len(skus))
	for _, item := range skus {
		byID[item.ID] = item
	}

	var shortages []sku.Shortage
	for _, line := range lines {
		found, ok := byID[line.SKUID]
		if !ok || found.Status != sku.StatusActive {
			return nil, errs.ResourceNotFound(fmt.Sprintf("sku %s not found or not active", line.SKUID))
		}
		if found.Stock < line.Quantity {
			shortages = append(shortages, sku.Shortage{
				SKUID:     line.SKUID,
				Requested: line.Quantity,
				Available: found.Stock,
			})
		}
	}

	return shortages, nil
}

// Deduct debits stock for every line and writes the order item snapshot, all
// inside the caller's transaction. SKU rows are locked in ascending id order;
// the decrement itself is conditional on stock >= qty, so a concurrent order
// that drained the stock between lock acquisition attempts is rejected with
// INSUFFICIENT_STOCK rather than driving stock negative.
func (s *InventoryService) Deduct(
	ctx context.Context,
	work TxRepos,
	tenantID string,
	orderID string,
	lines []DeductLine,
	now time.Time,
) ([]orderitem.OrderItem, error) {
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = line.SKUID
	}

	locked, err := work.SKURepository().LockByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to lock skus: %w", err)
	}

	byID := make(map[string]sku.SKU, len(locked))
	for _, item := range locked {
		byID[item.ID] = item
	}

	var shortages []sku.Shortage
	for _, line := range lines {
		found, ok := byID[line.SKUID]
		if !ok || found.Status != sku.StatusActive {
			return nil, errs.ResourceNotFound(fmt.Sprintf("sku %s not found or not active", line.SKUID))
		}
		if found.Stock < line.Quantity {
			shortages = append(shortages, sku.Shortage{
				SKUID:     line.SKUID,
				Requested: line.Quantity,
				Available: found.Stock,
			})
		}
	}
	if len(shortages) > 0 {
		return nil, errs.InsufficientStock("insufficient stock").WithDetails(shortages)
	}

	items := make([]orderitem.OrderItem, 0, len(lines))
	for _, line := range lines {
		affected, err := work.SKURepository().DeductStock(ctx, line.SKUID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !affected {
			// Concurrent modification slipped between the lock and the
			// conditional update.
			return nil, errs.InsufficientStock("insufficient stock").WithDetails([]sku.Shortage{{
				SKUID:     line.SKUID,
				Requested: line.Quantity,
				Available: byID[line.SKUID].Stock,
			}})
		}

		found := byID[line.SKUID]
		items = append(items, orderitem.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     orderID,
			SKUID:       line.SKUID,
			ProductName: found.ProductName,
			SKUName:     found.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TotalPrice:  line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))),
			CreatedAt:   now,
		})
	}

	items, err = work.OrderItemRepository().BulkInsert(ctx, items)
	if err != nil {
		return nil, err
	}

	return items, nil
}

// Restore re-credits stock for every order item that was not already
// restored. Runs in its own transaction: cancellation never holds the order
// row lock and the SKU row locks at the same time.
func (s *InventoryService) Restore(ctx context.Context, tenantID, orderID string) error {
	work := s.newUOW()

	if err := work.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin restore transaction: %w", err)
	}
	defer func() {
		if err := work.Rollback(ctx); err != nil {
			slog.Error("Failed to rollback restore transaction", "error", err)
		}
	}()

	items, err := work.OrderItemRepository().Query(ctx, &orderitem.QueryOrderItemsModel{
		OrderIDs: []string{orderID},
	})
	if err != nil {
		return err
	}

	now := time.Now()
	restored := false
	for _, item := range items {
		if item.RestoredAt != nil {
			continue
		}
		if err := work.SKURepository().RestoreStock(ctx, item.SKUID, item.Quantity); err != nil {
			return err
		}
		restored = true
	}

	if restored {
		if err := work.OrderItemRepository().MarkRestored(ctx, orderID, now); err != nil {
			return err
		}
	}

	if err := work.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit restore transaction: %w", err)
	}

	slog.Info("Stock restored", "tenant_id", tenantID, "order_id", orderID, "restored", restored)

	return nil
}
