package ordersvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/garrymei/minimodules-order/internal/service/collaborators/notify"
	"github.com/garrymei/minimodules-order/internal/service/models/auditlog"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

// TransitionContext carries who and what drove a status change. Fields not
// relevant to the target status are ignored by the stamping hook.
type TransitionContext struct {
	Actor         string
	Gateway       string
	TransactionID string
	Reason        string
	VerifiedBy    string
	Extra         map[string]string
}

var eventForStatus = map[order.Status]string{
	order.StatusPaid:      notify.EventOrderPaid,
	order.StatusUsed:      notify.EventOrderUsed,
	order.StatusCancelled: notify.EventOrderCancelled,
	order.StatusRefunding: notify.EventOrderRefunding,
	order.StatusRefunded:  notify.EventOrderRefunded,
}

// UpdateStatus drives the order through one state transition under a
// pessimistic row lock. A transition to the current status is accepted as a
// no-op so duplicate deliveries (webhook retries, double taps) are harmless.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, target order.Status, tctx TransitionContext) (*order.Order, error) {
	work := s.newUOW()

	if err := work.Begin(ctx); err != nil {
		return nil, errs.OperationFailed("failed to begin transaction").WithCause(err)
	}
	defer func() {
		if err := work.Rollback(ctx); err != nil {
			slog.Error("Failed to rollback transition transaction", "error", err)
		}
	}()

	o, err := work.OrderRepository().GetByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errs.ResourceNotFound(fmt.Sprintf("order %s not found", orderID))
	}

	from := o.Status
	o, err = s.ApplyTransition(ctx, work, o, target, tctx, time.Now())
	if err != nil {
		return nil, err
	}

	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	if from != target {
		if s.metrics != nil {
			s.metrics.StatusTransitions.WithLabelValues(target.String()).Inc()
		}
		s.afterTransition(o, from, target)
	}

	return s.attachItems(ctx, o)
}

// ApplyTransition validates and applies one transition inside the caller's
// transaction: it expects the order to be loaded under FOR UPDATE. The audit
// record and the outbox event are written in the same transaction; nothing
// here performs network I/O.
func (s *OrderService) ApplyTransition(
	ctx context.Context,
	work TxRepos,
	o *order.Order,
	target order.Status,
	tctx TransitionContext,
	now time.Time,
) (*order.Order, error) {
	if o.Status == target {
		// Idempotent short-circuit, no audit entry.
		return o, nil
	}

	if !order.CanTransition(o.Status, target) {
		return nil, errs.OrderStatusInvalid(fmt.Sprintf(
			"transition %s -> %s is not allowed", o.Status, target,
		))
	}

	from := o.Status
	stampMetadata(o, target, tctx, now)
	o.Status = target
	o.UpdatedAt = now

	if err := work.OrderRepository().Update(ctx, *o); err != nil {
		return nil, err
	}

	if err := work.AuditRepository().Insert(ctx, auditlog.Entry{
		OrderID:    o.ID,
		TenantID:   o.TenantID,
		FromStatus: from,
		ToStatus:   target,
		Actor:      tctx.Actor,
		Context:    auditContext(tctx),
		CreatedAt:  now,
	}); err != nil {
		return nil, err
	}

	if event, ok := eventForStatus[target]; ok {
		if err := s.notify.TriggerEvent(ctx, work.OutboxRepository(), o.TenantID, event, o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// stampMetadata is the per-target side-effect hook.
func stampMetadata(o *order.Order, target order.Status, tctx TransitionContext, now time.Time) {
	switch target {
	case order.StatusPaid:
		if o.Status == order.StatusRefunding {
			// Failed refund reverting; keep the original payment stamp.
			return
		}
		o.Metadata.Payment = &order.PaymentMeta{
			Gateway:       tctx.Gateway,
			TransactionID: tctx.TransactionID,
			PaidAt:        now,
		}
	case order.StatusUsed:
		if meta := o.Metadata.Verification; meta != nil {
			meta.Used = true
			meta.VerifiedBy = tctx.VerifiedBy
			at := now
			meta.VerifiedAt = &at
		}
	case order.StatusCancelled:
		o.Metadata.Cancellation = &order.CancellationMeta{
			Reason:      tctx.Reason,
			CancelledBy: tctx.Actor,
			CancelledAt: now,
		}
	case order.StatusRefunding:
		o.Metadata.Refund = &order.RefundMeta{
			Reason:      tctx.Reason,
			Operator:    tctx.Actor,
			RequestedAt: now,
		}
	case order.StatusRefunded:
		if o.Metadata.Refund == nil {
			o.Metadata.Refund = &order.RefundMeta{RequestedAt: now}
		}
		o.Metadata.Refund.TransactionID = tctx.TransactionID
		at := now
		o.Metadata.Refund.RefundedAt = &at
	}
}

func auditContext(tctx TransitionContext) map[string]string {
	attrs := make(map[string]string)
	if tctx.Gateway != "" {
		attrs["gateway"] = tctx.Gateway
	}
	if tctx.TransactionID != "" {
		attrs["transaction_id"] = tctx.TransactionID
	}
	if tctx.Reason != "" {
		attrs["reason"] = tctx.Reason
	}
	if tctx.VerifiedBy != "" {
		attrs["verified_by"] = tctx.VerifiedBy
	}
	for k, v := range tctx.Extra {
		attrs[k] = v
	}
	if len(attrs) == 0 {
		return nil
	}

	return attrs
}

// afterTransition runs post-commit side effects. Cancellation re-credits
// stock in its own transaction so the order row lock and the SKU row locks
// are never held together.
func (s *OrderService) afterTransition(o *order.Order, from, target order.Status) {
	if target != order.StatusCancelled {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.ledger.Restore(ctx, o.TenantID, o.ID); err != nil {
		slog.Error("Failed to restore stock after cancellation",
			"order_id", o.ID, "tenant_id", o.TenantID, "error", err)

		return
	}

	if o.Metadata.Cancellation != nil {
		o.Metadata.Cancellation.StockRestored = true
		if err := s.newUOW().OrderRepository().Update(ctx, *o); err != nil {
			slog.Warn("Failed to record stock restoration on order",
				"order_id", o.ID, "error", err)
		}
	}
}
