package paymentsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/garrymei/minimodules-order/internal/dal/interfaces/icallbackrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iorderrepo"
	"github.com/garrymei/minimodules-order/internal/dal/postgres"
	callbackpg "github.com/garrymei/minimodules-order/internal/dal/repositories/callback/postgres"
	orderpg "github.com/garrymei/minimodules-order/internal/dal/repositories/order/postgres"
	"github.com/garrymei/minimodules-order/internal/service/models/callback"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/service/services/ordersvc"
	"github.com/garrymei/minimodules-order/pkg/errs"
	"github.com/garrymei/minimodules-order/pkg/metrics"
)

// Gateway abstracts one payment provider's notification format.
type Gateway interface {
	Name() string

	// RequestID extracts the provider's delivery identifier before any
	// validation, so even a broken notification can be persisted and deduped.
	RequestID(payload []byte, headers map[string]string) (string, error)

	VerifySignature(payload []byte, headers map[string]string, signature string) error

	Parse(payload []byte) (*callback.Event, error)
}

type orderLifecycle interface {
	UpdateStatus(ctx context.Context, orderID string, target order.Status, tctx ordersvc.TransitionContext) (*order.Order, error)
}

// PaymentService persists raw gateway callbacks and reconciles them against
// orders. Persist-then-process: the raw notification is stored before
// signature or amount checks, so nothing a gateway sends is ever lost.
type PaymentService struct {
	callbacks icallbackrepo.ICallbackRepository
	orderRepo iorderrepo.IOrderRepository
	orders    orderLifecycle
	gateways  map[string]Gateway
	metrics   *metrics.Metrics
}

// option is a function that configures the PaymentService.
type option func(*PaymentService)

// MustNewPaymentService creates a new PaymentService with every configured
// gateway registered. The WeChat secret comes from ORDER_WECHAT_SECRET; the
// Alipay public key from payments.alipay.public_key.
func MustNewPaymentService(opts ...option) *PaymentService {
	s := &PaymentService{gateways: make(map[string]Gateway)}
	for _, opt := range opts {
		opt(s)
	}

	if len(s.gateways) == 0 {
		if secret := os.Getenv("ORDER_WECHAT_SECRET"); secret != "" {
			s.register(NewWechatGateway([]byte(secret)))
		}
		if pubKey := viper.GetString("payments.alipay.public_key"); pubKey != "" {
			gw, err := NewAlipayGateway(pubKey)
			if err != nil {
				panic(fmt.Errorf("failed to configure alipay gateway: %w", err))
			}
			s.register(gw)
		}
	}

	return s
}

// WithPostgresClient sets the Postgres client for the PaymentService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *PaymentService) {
		s.callbacks = callbackpg.NewPostgresCallbackRepository(pgClient.Pool())
		s.orderRepo = orderpg.NewPostgresOrderRepository(pgClient.Pool())
	}
}

// WithOrderService sets the order service that runs the resulting transition.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderService(orders orderLifecycle) option {
	return func(s *PaymentService) {
		s.orders = orders
	}
}

// WithGateway registers a payment gateway adapter.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGateway(gw Gateway) option {
	return func(s *PaymentService) {
		s.register(gw)
	}
}

// WithRepositories overrides the persistence layer, used by tests.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRepositories(callbacks icallbackrepo.ICallbackRepository, orders iorderrepo.IOrderRepository) option {
	return func(s *PaymentService) {
		s.callbacks = callbacks
		s.orderRepo = orders
	}
}

// WithMetrics sets the service metrics.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithMetrics(m *metrics.Metrics) option {
	return func(s *PaymentService) {
		s.metrics = m
	}
}

func (s *PaymentService) register(gw Gateway) {
	s.gateways[gw.Name()] = gw
}

// Result is the reconciliation outcome returned to the gateway.
type Result struct {
	OrderID       string       `json:"orderId"`
	OrderStatus   order.Status `json:"orderStatus"`
	TransactionID string       `json:"transactionId"`
	Replay        bool         `json:"replay"`
}

// ProcessCallback runs the reconciliation pipeline for one notification:
// persist raw, dedupe on (gateway, request_id), verify signature, parse,
// match amounts, transition the order. A replay of an already processed
// notification returns the recorded outcome without touching the order.
func (s *PaymentService) ProcessCallback(
	ctx context.Context,
	gatewayName string,
	payload []byte,
	headers map[string]string,
	signature string,
) (*Result, error) {
	res, err := s.process(ctx, gatewayName, payload, headers, signature)
	if s.metrics != nil {
		s.metrics.CallbacksProcessed.WithLabelValues(gatewayName, callbackOutcome(res, err)).Inc()
	}

	return res, err
}

func (s *PaymentService) process(
	ctx context.Context,
	gatewayName string,
	payload []byte,
	headers map[string]string,
	signature string,
) (*Result, error) {
	gw, ok := s.gateways[gatewayName]
	if !ok {
		return nil, errs.InvalidParams(fmt.Sprintf("unknown payment gateway %q", gatewayName))
	}

	requestID, err := gw.RequestID(payload, headers)
	if err != nil {
		return nil, errs.InvalidParams("notification has no request id").WithCause(err)
	}

	id, inserted, err := s.callbacks.Insert(ctx, callback.Callback{
		Gateway:   gatewayName,
		RequestID: requestID,
		Payload:   payload,
		Headers:   headers,
		Signature: signature,
		Status:    callback.StatusReceived,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	if !inserted {
		prior, err := s.callbacks.GetByRequestID(ctx, gatewayName, requestID)
		if err != nil {
			return nil, err
		}
		if prior == nil {
			// The conflicting insert has not committed yet; let the
			// gateway retry once it has.
			return nil, errs.OperationFailed("notification is already being processed")
		}
		if prior.Status == callback.StatusSuccess {
			return s.replayResult(prior)
		}
		// A previously failed delivery is retried from scratch.
		id = prior.ID
	}

	if err := gw.VerifySignature(payload, headers, signature); err != nil {
		s.recordFailure(ctx, id, "", err)

		return nil, errs.SignatureInvalid("signature verification failed").WithCause(err)
	}

	event, err := gw.Parse(payload)
	if err != nil {
		s.recordFailure(ctx, id, "", err)

		return nil, errs.InvalidParams("failed to parse notification").WithCause(err)
	}

	o, err := s.orderRepo.GetByID(ctx, event.OrderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		err := fmt.Errorf("order %s not found", event.OrderID)
		s.recordFailure(ctx, id, event.OrderID, err)

		return nil, errs.ResourceNotFound(err.Error())
	}

	if event.Succeeded && !order.AmountsMatch(o.TotalAmount, event.Amount) {
		err := fmt.Errorf("amount mismatch: order %s, notification %s",
			o.TotalAmount.StringFixed(2), event.Amount.StringFixed(2))
		s.recordFailure(ctx, id, o.ID, err)

		return nil, errs.InvalidParams(err.Error())
	}

	target := order.StatusPaid
	if !event.Succeeded {
		target = order.StatusCancelled
	}

	updated, err := s.orders.UpdateStatus(ctx, o.ID, target, ordersvc.TransitionContext{
		Actor:         "gateway:" + gatewayName,
		Gateway:       gatewayName,
		TransactionID: event.TransactionID,
		Reason:        failureReason(event),
	})
	if err != nil {
		s.recordFailure(ctx, id, o.ID, err)

		return nil, err
	}

	processed, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal processed event: %w", err)
	}
	if err := s.callbacks.UpdateOutcome(ctx, id, callback.StatusSuccess, o.ID, processed, ""); err != nil {
		slog.Error("Failed to record callback outcome",
			"gateway", gatewayName, "request_id", requestID, "error", err)
	}

	return &Result{
		OrderID:       updated.ID,
		OrderStatus:   updated.Status,
		TransactionID: event.TransactionID,
	}, nil
}

func (s *PaymentService) replayResult(prior *callback.Callback) (*Result, error) {
	var event callback.Event
	if err := json.Unmarshal(prior.Processed, &event); err != nil {
		return nil, fmt.Errorf("failed to decode recorded callback outcome: %w", err)
	}

	status := order.StatusPaid
	if !event.Succeeded {
		status = order.StatusCancelled
	}

	return &Result{
		OrderID:       prior.OrderID,
		OrderStatus:   status,
		TransactionID: event.TransactionID,
		Replay:        true,
	}, nil
}

func (s *PaymentService) recordFailure(ctx context.Context, id int64, orderID string, cause error) {
	if err := s.callbacks.UpdateOutcome(ctx, id, callback.StatusFailed, orderID, nil, cause.Error()); err != nil {
		slog.Error("Failed to record callback failure", "callback_id", id, "error", err)
	}
}

func failureReason(event *callback.Event) string {
	if event.Succeeded {
		return ""
	}

	return "payment failed at gateway"
}

func callbackOutcome(res *Result, err error) string {
	switch {
	case err == nil && res != nil && res.Replay:
		return "replay"
	case err == nil:
		return "success"
	case errs.IsCode(err, errs.CodeSignatureInvalid):
		return "signature_invalid"
	default:
		return "failed"
	}
}
