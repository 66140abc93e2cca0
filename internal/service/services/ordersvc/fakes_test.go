package ordersvc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iauditrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iorderitemrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iorderrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/ioutboxrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iskurepo"
	"github.com/garrymei/minimodules-order/internal/service/models/auditlog"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/service/models/orderitem"
	"github.com/garrymei/minimodules-order/internal/service/models/outbox"
	"github.com/garrymei/minimodules-order/internal/service/models/sku"
	"github.com/garrymei/minimodules-order/internal/service/services/inventorysvc"
)

type fakeOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]order.Order
	insertErr error
	updates   int

	// idemMissFirst makes GetByIdempotencyKey report a miss for the first N
	// calls, simulating a concurrent writer committing mid-flight.
	idemMissFirst int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[string]order.Order{}}
}

func (r *fakeOrderRepo) Insert(_ context.Context, o order.Order) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.insertErr != nil {
		return order.Order{}, r.insertErr
	}
	r.orders[o.ID] = o

	return o, nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}

	return &o, nil
}

func (r *fakeOrderRepo) GetByIDForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeOrderRepo) GetByIdempotencyKey(_ context.Context, tenantID, key string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.idemMissFirst > 0 {
		r.idemMissFirst--

		return nil, nil
	}

	for _, o := range r.orders {
		if o.TenantID == tenantID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			found := o

			return &found, nil
		}
	}

	return nil, nil
}

func (r *fakeOrderRepo) Update(_ context.Context, o order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.orders[o.ID] = o
	r.updates++

	return nil
}

func (r *fakeOrderRepo) Query(_ context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []order.Order
	for _, o := range r.orders {
		if filter.TenantID != "" && o.TenantID != filter.TenantID {
			continue
		}
		result = append(result, o)
	}

	return result, nil
}

type fakeItemRepo struct {
	mu    sync.Mutex
	items map[string][]orderitem.OrderItem
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: map[string][]orderitem.OrderItem{}}
}

func (r *fakeItemRepo) BulkInsert(_ context.Context, items []orderitem.OrderItem) ([]orderitem.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range items {
		r.items[item.OrderID] = append(r.items[item.OrderID], item)
	}

	return items, nil
}

func (r *fakeItemRepo) Query(_ context.Context, filter *orderitem.QueryOrderItemsModel) ([]orderitem.OrderItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []orderitem.OrderItem
	for _, orderID := range filter.OrderIDs {
		result = append(result, r.items[orderID]...)
	}

	return result, nil
}

func (r *fakeItemRepo) MarkRestored(_ context.Context, orderID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.items[orderID]
	for i := range items {
		stamped := at
		items[i].RestoredAt = &stamped
	}

	return nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []auditlog.Entry
}

func (r *fakeAuditRepo) Insert(_ context.Context, entry auditlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)

	return nil
}

func (r *fakeAuditRepo) ListByOrder(_ context.Context, orderID string) ([]auditlog.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []auditlog.Entry
	for _, e := range r.entries {
		if e.OrderID == orderID {
			result = append(result, e)
		}
	}

	return result, nil
}

type fakeOutboxRepo struct {
	mu       sync.Mutex
	messages []outbox.Message
}

func (r *fakeOutboxRepo) Insert(_ context.Context, msg outbox.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, msg)

	return nil
}

func (r *fakeOutboxRepo) GetPendingMessages(_ context.Context, _ int) ([]outbox.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]outbox.Message{}, r.messages...), nil
}

func (r *fakeOutboxRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, msg := range r.messages {
		if msg.ID == id {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)

			break
		}
	}

	return nil
}

func (r *fakeOutboxRepo) UpdateRetry(_ context.Context, _ int64, _ int, _ string, _ time.Time) error {
	return nil
}

// fakeUOW is a no-op transactional boundary over the in-memory repos.
type fakeUOW struct {
	orders *fakeOrderRepo
	items  *fakeItemRepo
	audit  *fakeAuditRepo
	outbox *fakeOutboxRepo

	mu         sync.Mutex
	begun      int
	committed  int
	rolledBack int
}

func newFakeUOW() *fakeUOW {
	return &fakeUOW{
		orders: newFakeOrderRepo(),
		items:  newFakeItemRepo(),
		audit:  &fakeAuditRepo{},
		outbox: &fakeOutboxRepo{},
	}
}

func (u *fakeUOW) Begin(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.begun++

	return nil
}

func (u *fakeUOW) Commit(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.committed++

	return nil
}

func (u *fakeUOW) Rollback(context.Context) error {
	return nil
}

func (u *fakeUOW) OrderRepository() iorderrepo.IOrderRepository             { return u.orders }
func (u *fakeUOW) OrderItemRepository() iorderitemrepo.IOrderItemRepository { return u.items }
func (u *fakeUOW) SKURepository() iskurepo.ISKURepository                   { return nil }
func (u *fakeUOW) AuditRepository() iauditrepo.IAuditRepository             { return u.audit }
func (u *fakeUOW) OutboxRepository() ioutboxrepo.IOutboxRepository          { return u.outbox }

type fakeLedger struct {
	mu        sync.Mutex
	shortages []sku.Shortage
	deductErr error
	deducts   int
	restored  []string
}

func (l *fakeLedger) CheckAvailability(context.Context, string, []sku.Line) ([]sku.Shortage, error) {
	return l.shortages, nil
}

func (l *fakeLedger) Deduct(
	_ context.Context,
	_ inventorysvc.TxRepos,
	_ string,
	orderID string,
	lines []inventorysvc.DeductLine,
	now time.Time,
) ([]orderitem.OrderItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.deductErr != nil {
		return nil, l.deductErr
	}
	l.deducts++

	items := make([]orderitem.OrderItem, len(lines))
	for i, line := range lines {
		items[i] = orderitem.OrderItem{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			SKUID:     line.SKUID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			CreatedAt: now,
		}
	}

	return items, nil
}

func (l *fakeLedger) Restore(_ context.Context, _ string, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.restored = append(l.restored, orderID)

	return nil
}

type fakeUsage struct {
	mu        sync.Mutex
	quotaErr  error
	enforced  int
	increment int
}

func (c *fakeUsage) EnforceQuota(context.Context, string, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enforced++

	return c.quotaErr
}

func (c *fakeUsage) IncrementUsage(context.Context, string, string, int64, map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.increment++

	return nil
}
