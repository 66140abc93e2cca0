package verifysvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iauditrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iorderrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/ioutboxrepo"
	"github.com/garrymei/minimodules-order/internal/service/collaborators/notify"
	"github.com/garrymei/minimodules-order/internal/service/models/auditlog"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/service/models/outbox"
	"github.com/garrymei/minimodules-order/internal/service/services/ordersvc"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

var testSecret = []byte("test-secret")

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]order.Order
}

func (r *fakeOrderRepo) Insert(_ context.Context, o order.Order) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *fakeOrderRepo) GetByIdempotencyKey(context.Context, string, string) (*order.Order, error) {
	return nil, nil
}

func (r *fakeOrderRepo) Update(_ context.Context, o order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o

	return nil
}

func (r *fakeOrderRepo) Query(context.Context, *order.QueryOrdersModel) ([]order.Order, error) {
	return nil, nil
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

func (r *fakeAuditRepo) ListByOrder(context.Context, string) ([]auditlog.Entry, error) {
	return nil, nil
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

func (r *fakeOutboxRepo) GetPendingMessages(context.Context, int) ([]outbox.Message, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) Delete(context.Context, int64) error { return nil }

func (r *fakeOutboxRepo) UpdateRetry(context.Context, int64, int, string, time.Time) error {
	return nil
}

type fakeUOW struct {
	orders *fakeOrderRepo
	audit  *fakeAuditRepo
	outbox *fakeOutboxRepo

	committed int
}

func newFakeUOW() *fakeUOW {
	return &fakeUOW{
		orders: &fakeOrderRepo{orders: map[string]order.Order{}},
		audit:  &fakeAuditRepo{},
		outbox: &fakeOutboxRepo{},
	}
}

func (u *fakeUOW) Begin(context.Context) error { return nil }

func (u *fakeUOW) Commit(context.Context) error {
	u.committed++

	return nil
}

func (u *fakeUOW) Rollback(context.Context) error { return nil }

func (u *fakeUOW) OrderRepository() iorderrepo.IOrderRepository    { return u.orders }
func (u *fakeUOW) AuditRepository() iauditrepo.IAuditRepository    { return u.audit }
func (u *fakeUOW) OutboxRepository() ioutboxrepo.IOutboxRepository { return u.outbox }

func newTestService(uow *fakeUOW) *VerificationService {
	orders := ordersvc.MustNewOrderService(
		ordersvc.WithNotifyCollaborator(notify.NewOutboxCollaborator()),
	)

	return MustNewVerificationService(
		WithUnitOfWorkFactory(func() unitOfWork { return uow }),
		WithOrderService(orders),
		WithSecret(testSecret),
	)
}

func seedOrder(uow *fakeUOW, status order.Status) order.Order {
	o := order.Order{
		ID:          "order-1",
		TenantID:    "tenant-1",
		OrderNumber: "ORD-20250901-ABCD1234",
		Status:      status,
		OrderType:   order.TypeTakeout,
	}
	uow.orders.orders[o.ID] = o

	return o
}

func TestIssueCodeRequiresPaidOrder(t *testing.T) {
	uow := newFakeUOW()
	seedOrder(uow, order.StatusPending)
	svc := newTestService(uow)

	_, err := svc.IssueCode(context.Background(), "tenant-1", "order-1")
	if !errs.IsCode(err, errs.CodeOrderStatusInvalid) {
		t.Fatalf("expected ORDER_STATUS_INVALID, got %v", err)
	}
}

func TestIssueCodeTenantIsolation(t *testing.T) {
	uow := newFakeUOW()
	seedOrder(uow, order.StatusPaid)
	svc := newTestService(uow)

	_, err := svc.IssueCode(context.Background(), "tenant-2", "order-1")
	if !errs.IsCode(err, errs.CodeResourceNotFound) {
		t.Fatalf("expected RESOURCE_NOT_FOUND for foreign tenant, got %v", err)
	}
}

func TestIssueAndRedeem(t *testing.T) {
	uow := newFakeUOW()
	seedOrder(uow, order.StatusPaid)
	svc := newTestService(uow)

	issued, err := svc.IssueCode(context.Background(), "tenant-1", "order-1")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}
	if issued.Code == "" || issued.QRCodePNG == "" {
		t.Fatal("issued code or QR image is empty")
	}

	redeemed, err := svc.VerifyAndRedeem(context.Background(), "tenant-1", issued.Code, "staff-7")
	if err != nil {
		t.Fatalf("VerifyAndRedeem: %v", err)
	}
	if redeemed.Status != order.StatusUsed {
		t.Errorf("status = %s, want USED", redeemed.Status)
	}
	meta := redeemed.Metadata.Verification
	if meta == nil || !meta.Used || meta.VerifiedBy != "staff-7" || meta.VerifiedAt == nil {
		t.Errorf("verification metadata = %+v", meta)
	}
	if len(uow.audit.entries) != 1 || uow.audit.entries[0].ToStatus != order.StatusUsed {
		t.Errorf("audit entries = %+v, want one PAID -> USED", uow.audit.entries)
	}

	// Replaying the same code must fail, not double-redeem.
	_, err = svc.VerifyAndRedeem(context.Background(), "tenant-1", issued.Code, "staff-7")
	if !errs.IsCode(err, errs.CodeVerificationUsed) {
		t.Fatalf("expected VERIFICATION_CODE_USED, got %v", err)
	}
}

func TestRedeemTamperedCode(t *testing.T) {
	uow := newFakeUOW()
	seedOrder(uow, order.StatusPaid)
	svc := newTestService(uow)

	issued, err := svc.IssueCode(context.Background(), "tenant-1", "order-1")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	// Flip one character inside the signed payload.
	flipped := byte('A')
	if issued.Code[10] == 'A' {
		flipped = 'B'
	}
	tampered := issued.Code[:10] + string(flipped) + issued.Code[11:]

	_, err = svc.VerifyAndRedeem(context.Background(), "tenant-1", tampered, "staff-7")
	if !errs.IsCode(err, errs.CodeVerificationInvalid) {
		t.Fatalf("expected VERIFICATION_CODE_INVALID, got %v", err)
	}

	// Decode fails before any lookup, so the attempt counter is untouched.
	stored := uow.orders.orders["order-1"]
	if stored.Metadata.Verification.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", stored.Metadata.Verification.Attempts)
	}
}

func TestRedeemWrongTenant(t *testing.T) {
	uow := newFakeUOW()
	seedOrder(uow, order.StatusPaid)
	svc := newTestService(uow)

	issued, err := svc.IssueCode(context.Background(), "tenant-1", "order-1")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	_, err = svc.VerifyAndRedeem(context.Background(), "tenant-2", issued.Code, "staff-7")
	if !errs.IsCode(err, errs.CodeVerificationInvalid) {
		t.Fatalf("expected VERIFICATION_CODE_INVALID, got %v", err)
	}
}

func TestRedeemExpiredCode(t *testing.T) {
	uow := newFakeUOW()
	seedOrder(uow, order.StatusPaid)
	svc := newTestService(uow)

	issued, err := svc.IssueCode(context.Background(), "tenant-1", "order-1")
	if err != nil {
		t.Fatalf("IssueCode: %v", err)
	}

	stored := uow.orders.orders["order-1"]
	stored.Metadata.Verification.ExpiresAt = time.Now().Add(-time.Minute)
	uow.orders.orders["order-1"] = stored

	_, err = svc.VerifyAndRedeem(context.Background(), "tenant-1", issued.Code, "staff-7")
	if !errs.IsCode(err, errs.CodeVerificationExpired) {
		t.Fatalf("expected VERIFICATION_CODE_EXPIRED, got %v", err)
	}
}

func TestRedeemStaleCodeCountsAttempts(t *testing.T) {
	uow := newFakeUOW()
	seedOrder(uow, order.StatusPaid)
	svc := newTestService(uow)

	stale, err := svc.IssueCode(context.Background(), "tenant-1", "order-1")
	if err != nil {
		t.Fatalf("first IssueCode: %v", err)
	}

	// Re-issuing rotates the nonce; the first code keeps a valid signature
	// but no longer matches the stored state.
	if _, err := svc.IssueCode(context.Background(), "tenant-1", "order-1"); err != nil {
		t.Fatalf("second IssueCode: %v", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		_, err = svc.VerifyAndRedeem(context.Background(), "tenant-1", stale.Code, "staff-7")
		if !errs.IsCode(err, errs.CodeVerificationInvalid) {
			t.Fatalf("attempt %d: expected VERIFICATION_CODE_INVALID, got %v", attempt, err)
		}
	}

	stored := uow.orders.orders["order-1"]
	if stored.Metadata.Verification.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", stored.Metadata.Verification.Attempts)
	}

	// The live code is now locked out too.
	_, err = svc.VerifyAndRedeem(context.Background(), "tenant-1", stale.Code, "staff-7")
	if !errs.IsCode(err, errs.CodeVerificationAttempts) {
		t.Fatalf("expected VERIFICATION_ATTEMPTS_EXCEEDED, got %v", err)
	}
}

func TestGetVerificationReusesLiveCode(t *testing.T) {
	uow := newFakeUOW()
	seedOrder(uow, order.StatusPaid)
	svc := newTestService(uow)

	first, err := svc.GetVerification(context.Background(), "tenant-1", "order-1")
	if err != nil {
		t.Fatalf("first GetVerification: %v", err)
	}

	second, err := svc.GetVerification(context.Background(), "tenant-1", "order-1")
	if err != nil {
		t.Fatalf("second GetVerification: %v", err)
	}

	if first.Code != second.Code {
		t.Error("GetVerification minted a new code while the old one was still live")
	}
}
