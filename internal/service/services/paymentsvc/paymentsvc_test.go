package paymentsvc

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garrymei/minimodules-order/internal/service/models/callback"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/service/services/ordersvc"
	"github.com/garrymei/minimodules-order/pkg/errs"
)

var wechatSecret = []byte("wechat-secret")

type fakeCallbackRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]*callback.Callback

	// phantomConflicts makes the next N Inserts report a conflict without a
	// readable row, as when the winning insert has not committed yet.
	phantomConflicts int
}

func newFakeCallbackRepo() *fakeCallbackRepo {
	return &fakeCallbackRepo{rows: map[string]*callback.Callback{}}
}

func key(gateway, requestID string) string { return gateway + "|" + requestID }

func (r *fakeCallbackRepo) Insert(_ context.Context, cb callback.Callback) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phantomConflicts > 0 {
		r.phantomConflicts--

		return 0, false, nil
	}

	if _, ok := r.rows[key(cb.Gateway, cb.RequestID)]; ok {
		return 0, false, nil
	}

	r.nextID++
	cb.ID = r.nextID
	r.rows[key(cb.Gateway, cb.RequestID)] = &cb

	return cb.ID, true, nil
}

func (r *fakeCallbackRepo) GetByRequestID(_ context.Context, gateway, requestID string) (*callback.Callback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.rows[key(gateway, requestID)]
	if !ok {
		return nil, nil
	}
	copied := *cb

	return &copied, nil
}

func (r *fakeCallbackRepo) UpdateOutcome(_ context.Context, id int64, status, orderID string, processed []byte, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cb := range r.rows {
		if cb.ID == id {
			cb.Status = status
			if orderID != "" {
				cb.OrderID = orderID
			}
			if processed != nil {
				cb.Processed = processed
			}
			cb.LastError = lastError
			now := time.Now()
			cb.ProcessedAt = &now
		}
	}

	return nil
}

type fakeOrderRepo struct {
	orders map[string]order.Order
}

func (r *fakeOrderRepo) Insert(_ context.Context, o order.Order) (order.Order, error) {
	r.orders[o.ID] = o

	return o, nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
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
	r.orders[o.ID] = o

	return nil
}

func (r *fakeOrderRepo) Query(context.Context, *order.QueryOrdersModel) ([]order.Order, error) {
	return nil, nil
}

type fakeLifecycle struct {
	mu      sync.Mutex
	calls   []order.Status
	lastCtx ordersvc.TransitionContext
}

func (l *fakeLifecycle) UpdateStatus(_ context.Context, orderID string, target order.Status, tctx ordersvc.TransitionContext) (*order.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls = append(l.calls, target)
	l.lastCtx = tctx

	return &order.Order{ID: orderID, Status: target}, nil
}

func wechatSign(payload []byte) string {
	mac := hmac.New(sha256.New, wechatSecret)
	mac.Write(payload)

	return hex.EncodeToString(mac.Sum(nil))
}

func wechatPayload(notifyID string, totalFee int64, resultCode string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"notify_id":      notifyID,
		"out_trade_no":   "order-1",
		"transaction_id": "wx-tx-1",
		"total_fee":      totalFee,
		"result_code":    resultCode,
	})

	return payload
}

func newTestService(callbacks *fakeCallbackRepo, orders *fakeOrderRepo, lifecycle *fakeLifecycle) *PaymentService {
	return MustNewPaymentService(
		WithRepositories(callbacks, orders),
		WithOrderService(lifecycle),
		WithGateway(NewWechatGateway(wechatSecret)),
	)
}

func paidOrderStore() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[string]order.Order{
		"order-1": {
			ID:          "order-1",
			TenantID:    "tenant-1",
			Status:      order.StatusPending,
			TotalAmount: decimal.RequireFromString("25.00"),
		},
	}}
}

func TestWechatVerifySignature(t *testing.T) {
	gw := NewWechatGateway(wechatSecret)
	payload := wechatPayload("n-1", 2500, "SUCCESS")

	if err := gw.VerifySignature(payload, nil, wechatSign(payload)); err != nil {
		t.Errorf("hmac signature rejected: %v", err)
	}

	sum := md5.Sum(append(append([]byte{}, payload...), []byte("&key="+string(wechatSecret))...))
	legacy := strings.ToUpper(hex.EncodeToString(sum[:]))
	if err := gw.VerifySignature(payload, nil, legacy); err != nil {
		t.Errorf("legacy md5 signature rejected: %v", err)
	}

	if err := gw.VerifySignature(payload, nil, wechatSign([]byte("other"))); err == nil {
		t.Error("forged signature accepted")
	}
}

func TestWechatParse(t *testing.T) {
	gw := NewWechatGateway(wechatSecret)

	event, err := gw.Parse(wechatPayload("n-1", 2550, "SUCCESS"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !event.Amount.Equal(decimal.RequireFromString("25.50")) {
		t.Errorf("amount = %s, want 25.50 (cents normalized)", event.Amount)
	}
	if !event.Succeeded {
		t.Error("Succeeded = false for SUCCESS result code")
	}

	failed, err := gw.Parse(wechatPayload("n-2", 2550, "FAIL"))
	if err != nil {
		t.Fatalf("Parse failed event: %v", err)
	}
	if failed.Succeeded {
		t.Error("Succeeded = true for FAIL result code")
	}
}

func TestProcessCallbackSuccess(t *testing.T) {
	callbacks := newFakeCallbackRepo()
	lifecycle := &fakeLifecycle{}
	svc := newTestService(callbacks, paidOrderStore(), lifecycle)

	payload := wechatPayload("n-1", 2500, "SUCCESS")
	result, err := svc.ProcessCallback(context.Background(), GatewayWechat, payload, nil, wechatSign(payload))
	if err != nil {
		t.Fatalf("ProcessCallback: %v", err)
	}

	if result.OrderStatus != order.StatusPaid || result.Replay {
		t.Errorf("result = %+v, want fresh PAID", result)
	}
	if len(lifecycle.calls) != 1 || lifecycle.calls[0] != order.StatusPaid {
		t.Errorf("transitions = %v, want [PAID]", lifecycle.calls)
	}
	if lifecycle.lastCtx.TransactionID != "wx-tx-1" {
		t.Errorf("transaction id = %s", lifecycle.lastCtx.TransactionID)
	}

	stored, _ := callbacks.GetByRequestID(context.Background(), GatewayWechat, "n-1")
	if stored == nil || stored.Status != callback.StatusSuccess || stored.OrderID != "order-1" {
		t.Errorf("stored callback = %+v, want success with order id", stored)
	}
}

func TestProcessCallbackReplay(t *testing.T) {
	callbacks := newFakeCallbackRepo()
	lifecycle := &fakeLifecycle{}
	svc := newTestService(callbacks, paidOrderStore(), lifecycle)

	payload := wechatPayload("n-1", 2500, "SUCCESS")
	sig := wechatSign(payload)

	if _, err := svc.ProcessCallback(context.Background(), GatewayWechat, payload, nil, sig); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	result, err := svc.ProcessCallback(context.Background(), GatewayWechat, payload, nil, sig)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !result.Replay {
		t.Error("Replay = false for duplicate delivery")
	}
	if len(lifecycle.calls) != 1 {
		t.Errorf("transitions = %d, want 1 (replay must not transition again)", len(lifecycle.calls))
	}
}

func TestProcessCallbackInvalidSignature(t *testing.T) {
	callbacks := newFakeCallbackRepo()
	lifecycle := &fakeLifecycle{}
	svc := newTestService(callbacks, paidOrderStore(), lifecycle)

	payload := wechatPayload("n-1", 2500, "SUCCESS")
	_, err := svc.ProcessCallback(context.Background(), GatewayWechat, payload, nil, "deadbeef")
	if !errs.IsCode(err, errs.CodeSignatureInvalid) {
		t.Fatalf("expected SIGNATURE_INVALID, got %v", err)
	}
	if len(lifecycle.calls) != 0 {
		t.Error("order transitioned despite invalid signature")
	}

	// The raw callback is persisted with the failure recorded.
	stored, _ := callbacks.GetByRequestID(context.Background(), GatewayWechat, "n-1")
	if stored == nil || stored.Status != callback.StatusFailed {
		t.Errorf("stored callback = %+v, want failed", stored)
	}
}

func TestProcessCallbackAmountMismatch(t *testing.T) {
	callbacks := newFakeCallbackRepo()
	lifecycle := &fakeLifecycle{}
	svc := newTestService(callbacks, paidOrderStore(), lifecycle)

	payload := wechatPayload("n-1", 9900, "SUCCESS")
	_, err := svc.ProcessCallback(context.Background(), GatewayWechat, payload, nil, wechatSign(payload))
	if !errs.IsCode(err, errs.CodeInvalidParams) {
		t.Fatalf("expected INVALID_PARAMS, got %v", err)
	}
	if len(lifecycle.calls) != 0 {
		t.Error("order transitioned despite amount mismatch")
	}
}

func TestProcessCallbackUnknownOrder(t *testing.T) {
	callbacks := newFakeCallbackRepo()
	svc := newTestService(callbacks, &fakeOrderRepo{orders: map[string]order.Order{}}, &fakeLifecycle{})

	payload := wechatPayload("n-1", 2500, "SUCCESS")
	_, err := svc.ProcessCallback(context.Background(), GatewayWechat, payload, nil, wechatSign(payload))
	if !errs.IsCode(err, errs.CodeResourceNotFound) {
		t.Fatalf("expected RESOURCE_NOT_FOUND, got %v", err)
	}
}

func TestProcessCallbackFailureEventCancels(t *testing.T) {
	callbacks := newFakeCallbackRepo()
	lifecycle := &fakeLifecycle{}
	svc := newTestService(callbacks, paidOrderStore(), lifecycle)

	// Failed payments skip the amount check and cancel the order.
	payload := wechatPayload("n-1", 0, "FAIL")
	result, err := svc.ProcessCallback(context.Background(), GatewayWechat, payload, nil, wechatSign(payload))
	if err != nil {
		t.Fatalf("ProcessCallback: %v", err)
	}
	if result.OrderStatus != order.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", result.OrderStatus)
	}
	if len(lifecycle.calls) != 1 || lifecycle.calls[0] != order.StatusCancelled {
		t.Errorf("transitions = %v, want [CANCELLED]", lifecycle.calls)
	}
}

func TestProcessCallbackConflictWithUncommittedWinner(t *testing.T) {
	callbacks := newFakeCallbackRepo()
	callbacks.phantomConflicts = 1
	lifecycle := &fakeLifecycle{}
	svc := newTestService(callbacks, paidOrderStore(), lifecycle)

	payload := wechatPayload("n-1", 2500, "SUCCESS")
	_, err := svc.ProcessCallback(context.Background(), GatewayWechat, payload, nil, wechatSign(payload))
	if !errs.IsCode(err, errs.CodeOperationFailed) {
		t.Fatalf("expected OPERATION_FAILED while the winner is uncommitted, got %v", err)
	}
	if len(lifecycle.calls) != 0 {
		t.Errorf("transitions = %v, want none", lifecycle.calls)
	}

	// The gateway retry after the winner committed processes normally.
	result, err := svc.ProcessCallback(context.Background(), GatewayWechat, payload, nil, wechatSign(payload))
	if err != nil {
		t.Fatalf("retry ProcessCallback: %v", err)
	}
	if result.OrderStatus != order.StatusPaid {
		t.Errorf("retry status = %s, want PAID", result.OrderStatus)
	}
}

func TestProcessCallbackUnknownGateway(t *testing.T) {
	svc := newTestService(newFakeCallbackRepo(), paidOrderStore(), &fakeLifecycle{})

	_, err := svc.ProcessCallback(context.Background(), "stripe", []byte("{}"), nil, "")
	if !errs.IsCode(err, errs.CodeInvalidParams) {
		t.Fatalf("expected INVALID_PARAMS, got %v", err)
	}
}

func TestRequestIDRequired(t *testing.T) {
	gw := NewWechatGateway(wechatSecret)

	if _, err := gw.RequestID([]byte(`{"out_trade_no":"order-1"}`), nil); err == nil {
		t.Error("missing notify_id accepted")
	}
	if _, err := gw.RequestID([]byte("not json"), nil); err == nil {
		t.Error("malformed payload accepted")
	}
}
