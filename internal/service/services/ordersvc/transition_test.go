package ordersvc

import (
	"context"
	"testing"
	"time"

	"github.com/garrymei/minimodules-order/internal/service/collaborators/notify"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

func seedOrder(uow *fakeUOW, status order.Status) order.Order {
	o := order.Order{
		ID:          "order-1",
		TenantID:    "tenant-1",
		OrderNumber: "ORD-20250901-ABCD1234",
		Status:      status,
		OrderType:   order.TypeTakeout,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	uow.orders.orders[o.ID] = o

	return o
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	svc := newTestService(newFakeUOW(), &fakeLedger{}, &fakeUsage{})

	_, err := svc.UpdateStatus(context.Background(), "missing", order.StatusPaid, TransitionContext{})
	if !errs.IsCode(err, errs.CodeResourceNotFound) {
		t.Fatalf("expected RESOURCE_NOT_FOUND, got %v", err)
	}
}

func TestUpdateStatusSameStateIsNoOp(t *testing.T) {
	uow := newFakeUOW()
	seedOrder(uow, order.StatusPaid)
	svc := newTestService(uow, &fakeLedger{}, &fakeUsage{})

	got, err := svc.UpdateStatus(context.Background(), "order-1", order.StatusPaid, TransitionContext{
		Actor: "ops",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got.Status != order.StatusPaid {
		t.Errorf("status = %s, want PAID", got.Status)
	}
	if len(uow.audit.entries) != 0 {
		t.Errorf("audit entries = %d, want 0 for a no-op", len(uow.audit.entries))
	}
	if len(uow.outbox.messages) != 0 {
		t.Errorf("outbox messages = %d, want 0 for a no-op", len(uow.outbox.messages))
	}
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	uow := newFakeUOW()
	seedOrder(uow, order.StatusPending)
	svc := newTestService(uow, &fakeLedger{}, &fakeUsage{})

	_, err := svc.UpdateStatus(context.Background(), "order-1", order.StatusUsed, TransitionContext{})
	if !errs.IsCode(err, errs.CodeOrderStatusInvalid) {
		t.Fatalf("expected ORDER_STATUS_INVALID, got %v", err)
	}
	if uow.orders.orders["order-1"].Status != order.StatusPending {
		t.Error("order status changed despite rejected transition")
	}
}

func TestUpdateStatusPaidStampsPaymentAndAudits(t *testing.T) {
	uow := newFakeUOW()
	seedOrder(uow, order.StatusPending)
	svc := newTestService(uow, &fakeLedger{}, &fakeUsage{})

	got, err := svc.UpdateStatus(context.Background(), "order-1", order.StatusPaid, TransitionContext{
		Actor:         "gateway:wechat",
		Gateway:       "wechat",
		TransactionID: "tx-123",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if got.Status != order.StatusPaid {
		t.Errorf("status = %s, want PAID", got.Status)
	}
	if got.Metadata.Payment == nil || got.Metadata.Payment.TransactionID != "tx-123" {
		t.Errorf("payment metadata = %+v, want transaction tx-123", got.Metadata.Payment)
	}

	if len(uow.audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(uow.audit.entries))
	}
	entry := uow.audit.entries[0]
	if entry.FromStatus != order.StatusPending || entry.ToStatus != order.StatusPaid {
		t.Errorf("audit transition %s -> %s, want PENDING -> PAID", entry.FromStatus, entry.ToStatus)
	}
	if entry.Context["transaction_id"] != "tx-123" {
		t.Errorf("audit context = %v, want transaction_id", entry.Context)
	}

	if len(uow.outbox.messages) != 1 || uow.outbox.messages[0].EventName != notify.EventOrderPaid {
		t.Errorf("outbox = %+v, want one %s event", uow.outbox.messages, notify.EventOrderPaid)
	}
}

func TestUpdateStatusCancelRestoresStock(t *testing.T) {
	uow := newFakeUOW()
	seedOrder(uow, order.StatusPending)
	ledger := &fakeLedger{}
	svc := newTestService(uow, ledger, &fakeUsage{})

	got, err := svc.UpdateStatus(context.Background(), "order-1", order.StatusCancelled, TransitionContext{
		Actor:  "customer",
		Reason: "changed my mind",
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if len(ledger.restored) != 1 || ledger.restored[0] != "order-1" {
		t.Fatalf("restored = %v, want [order-1]", ledger.restored)
	}
	if got.Metadata.Cancellation == nil {
		t.Fatal("cancellation metadata not stamped")
	}
	if !got.Metadata.Cancellation.StockRestored {
		t.Error("StockRestored = false after successful restore")
	}
}

func TestApplyTransitionRefundFlow(t *testing.T) {
	uow := newFakeUOW()
	svc := newTestService(uow, &fakeLedger{}, &fakeUsage{})
	now := time.Now()

	o := seedOrder(uow, order.StatusPaid)
	current := &o

	current, err := svc.ApplyTransition(context.Background(), uow, current, order.StatusRefunding, TransitionContext{
		Actor:  "ops",
		Reason: "customer complaint",
	}, now)
	if err != nil {
		t.Fatalf("to REFUNDING: %v", err)
	}
	if current.Metadata.Refund == nil || current.Metadata.Refund.Reason != "customer complaint" {
		t.Fatalf("refund metadata = %+v", current.Metadata.Refund)
	}

	current, err = svc.ApplyTransition(context.Background(), uow, current, order.StatusRefunded, TransitionContext{
		Actor:         "ops",
		TransactionID: "refund-tx-9",
	}, now)
	if err != nil {
		t.Fatalf("to REFUNDED: %v", err)
	}
	if current.Metadata.Refund.RefundedAt == nil {
		t.Error("RefundedAt not stamped on completion")
	}
	if current.Metadata.Refund.TransactionID != "refund-tx-9" {
		t.Errorf("refund transaction = %s", current.Metadata.Refund.TransactionID)
	}

	if len(uow.audit.entries) != 2 {
		t.Errorf("audit entries = %d, want 2", len(uow.audit.entries))
	}
}

func TestApplyTransitionFailedRefundKeepsPaymentStamp(t *testing.T) {
	uow := newFakeUOW()
	svc := newTestService(uow, &fakeLedger{}, &fakeUsage{})
	now := time.Now()

	o := seedOrder(uow, order.StatusPaid)
	o.Metadata.Payment = &order.PaymentMeta{Gateway: "wechat", TransactionID: "tx-1", PaidAt: now}
	current := &o

	current, err := svc.ApplyTransition(context.Background(), uow, current, order.StatusRefunding, TransitionContext{}, now)
	if err != nil {
		t.Fatalf("to REFUNDING: %v", err)
	}

	current, err = svc.ApplyTransition(context.Background(), uow, current, order.StatusPaid, TransitionContext{}, now)
	if err != nil {
		t.Fatalf("back to PAID: %v", err)
	}

	if current.Metadata.Payment == nil || current.Metadata.Payment.TransactionID != "tx-1" {
		t.Errorf("payment metadata = %+v, want the original stamp", current.Metadata.Payment)
	}
}
