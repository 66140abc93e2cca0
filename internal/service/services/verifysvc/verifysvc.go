package verifysvc

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/viper"

	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iauditrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/iorderrepo"
	"github.com/garrymei/minimodules-order/internal/dal/interfaces/ioutboxrepo"
	"github.com/garrymei/minimodules-order/internal/dal/postgres"
	"github.com/garrymei/minimodules-order/internal/dal/uow"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/service/services/ordersvc"
	"github.com/garrymei/minimodules-order/pkg/errs"
	"github.com/garrymei/minimodules-order/pkg/metrics"
)

const (
	defaultTTL         = 30 * time.Minute
	defaultMaxAttempts = 3
	qrImageSize        = 256
)

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.IOrderRepository
	AuditRepository() iauditrepo.IAuditRepository
	OutboxRepository() ioutboxrepo.IOutboxRepository
}

type orderTransitions interface {
	ApplyTransition(ctx context.Context, work ordersvc.TxRepos, o *order.Order, target order.Status, tctx ordersvc.TransitionContext, now time.Time) (*order.Order, error)
}

// VerificationService issues and redeems pickup codes for paid orders.
type VerificationService struct {
	pgClient *postgres.Client
	newUOW   func() unitOfWork
	orders   orderTransitions
	metrics  *metrics.Metrics

	secret      []byte
	ttl         time.Duration
	maxAttempts int
}

// option is a function that configures the VerificationService.
type option func(*VerificationService)

// MustNewVerificationService creates a new VerificationService. The signing
// secret comes from ORDER_VERIFICATION_SECRET and must be set.
func MustNewVerificationService(opts ...option) *VerificationService {
	s := &VerificationService{
		ttl:         defaultTTL,
		maxAttempts: defaultMaxAttempts,
	}
	if ttl := viper.GetDuration("verification.ttl"); ttl > 0 {
		s.ttl = ttl
	}
	if attempts := viper.GetInt("verification.max_attempts"); attempts > 0 {
		s.maxAttempts = attempts
	}

	for _, opt := range opts {
		opt(s)
	}

	if len(s.secret) == 0 {
		s.secret = []byte(os.Getenv("ORDER_VERIFICATION_SECRET"))
	}
	if len(s.secret) == 0 {
		panic("ORDER_VERIFICATION_SECRET is not set")
	}

	return s
}

// WithPostgresClient sets the Postgres client for the VerificationService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *VerificationService) {
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
	return func(s *VerificationService) {
		s.newUOW = factory
	}
}

// WithOrderService sets the order service used to run the USED transition.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderService(orders orderTransitions) option {
	return func(s *VerificationService) {
		s.orders = orders
	}
}

// WithSecret overrides the signing secret, used by tests.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithSecret(secret []byte) option {
	return func(s *VerificationService) {
		s.secret = secret
	}
}

// WithMetrics sets the service metrics.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithMetrics(m *metrics.Metrics) option {
	return func(s *VerificationService) {
		s.metrics = m
	}
}

// Verification is the client-facing view of an order's current code.
type Verification struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	Code        string    `json:"code"`
	QRCodePNG   string    `json:"qrCodePng"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// IssueCode mints a fresh verification code for a paid order, replacing any
// previously issued one. The new nonce makes older codes stop matching even
// though their signatures still verify.
func (s *VerificationService) IssueCode(ctx context.Context, tenantID, orderID string) (*Verification, error) {
	return s.issue(ctx, tenantID, orderID, false)
}

// GetVerification returns the order's current code, reusing it while it is
// still redeemable and minting a replacement once it has expired.
func (s *VerificationService) GetVerification(ctx context.Context, tenantID, orderID string) (*Verification, error) {
	return s.issue(ctx, tenantID, orderID, true)
}

func (s *VerificationService) issue(ctx context.Context, tenantID, orderID string, reuse bool) (*Verification, error) {
	work := s.newUOW()

	if err := work.Begin(ctx); err != nil {
		return nil, errs.OperationFailed("failed to begin transaction").WithCause(err)
	}
	defer func() {
		if err := work.Rollback(ctx); err != nil {
			slog.Error("Failed to rollback issue transaction", "error", err)
		}
	}()

	o, err := work.OrderRepository().GetByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil || o.TenantID != tenantID {
		return nil, errs.ResourceNotFound(fmt.Sprintf("order %s not found", orderID))
	}

	if o.Status != order.StatusPaid {
		return nil, errs.OrderStatusInvalid(fmt.Sprintf(
			"verification codes require a paid order, current status is %s", o.Status,
		))
	}

	now := time.Now()
	meta := o.Metadata.Verification
	if reuse && meta != nil && !meta.Used && now.Before(meta.ExpiresAt) && meta.Attempts < s.maxAttempts {
		return s.view(o, meta)
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, errs.OperationFailed("failed to issue verification code").WithCause(err)
	}

	code, err := encodeCode(s.secret, codePayload{
		OrderID:     o.ID,
		TenantID:    o.TenantID,
		OrderNumber: o.OrderNumber,
		Nonce:       nonce,
		IssuedAt:    now.Unix(),
	})
	if err != nil {
		return nil, errs.OperationFailed("failed to issue verification code").WithCause(err)
	}

	o.Metadata.Verification = &order.VerificationMeta{
		Code:      code,
		Nonce:     nonce,
		ExpiresAt: now.Add(s.ttl),
	}
	o.UpdatedAt = now

	if err := work.OrderRepository().Update(ctx, *o); err != nil {
		return nil, err
	}
	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	return s.view(o, o.Metadata.Verification)
}

func (s *VerificationService) view(o *order.Order, meta *order.VerificationMeta) (*Verification, error) {
	png, err := qrcode.Encode(meta.Code, qrcode.Medium, qrImageSize)
	if err != nil {
		return nil, errs.OperationFailed("failed to render verification QR code").WithCause(err)
	}

	return &Verification{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Code:        meta.Code,
		QRCodePNG:   base64.StdEncoding.EncodeToString(png),
		ExpiresAt:   meta.ExpiresAt,
	}, nil
}

// VerifyAndRedeem checks a presented code and, on success, moves the order to
// USED in the same transaction that holds the order's row lock. A failed
// match increments the attempt counter and commits it before returning, so
// guessing is bounded even when every guess errors out.
func (s *VerificationService) VerifyAndRedeem(ctx context.Context, tenantID, code, verifiedBy string) (*order.Order, error) {
	o, err := s.redeem(ctx, tenantID, code, verifiedBy)
	if s.metrics != nil {
		s.metrics.CodesRedeemed.WithLabelValues(redeemOutcome(err)).Inc()
	}

	return o, err
}

func (s *VerificationService) redeem(ctx context.Context, tenantID, code, verifiedBy string) (*order.Order, error) {
	payload := decodeCode(s.secret, code)
	if payload == nil || payload.TenantID != tenantID {
		return nil, errs.VerificationInvalid("verification code is invalid")
	}

	work := s.newUOW()

	if err := work.Begin(ctx); err != nil {
		return nil, errs.OperationFailed("failed to begin transaction").WithCause(err)
	}
	defer func() {
		if err := work.Rollback(ctx); err != nil {
			slog.Error("Failed to rollback redeem transaction", "error", err)
		}
	}()

	o, err := work.OrderRepository().GetByIDForUpdate(ctx, payload.OrderID)
	if err != nil {
		return nil, err
	}
	if o == nil || o.TenantID != tenantID {
		return nil, errs.VerificationInvalid("verification code is invalid")
	}

	meta := o.Metadata.Verification
	if meta == nil {
		return nil, errs.VerificationInvalid("verification code is invalid")
	}
	if meta.Used {
		return nil, errs.VerificationUsed("verification code already used")
	}
	if meta.Attempts >= s.maxAttempts {
		return nil, errs.VerificationAttemptsExceeded("verification attempts exceeded")
	}

	now := time.Now()
	if now.After(meta.ExpiresAt) {
		return nil, errs.VerificationExpired("verification code expired")
	}

	if meta.Code != code || meta.Nonce != payload.Nonce {
		// A superseded code: valid signature, stale nonce. Count it against
		// the live code and commit the counter before failing.
		meta.Attempts++
		o.UpdatedAt = now
		if err := work.OrderRepository().Update(ctx, *o); err != nil {
			return nil, err
		}
		if err := work.Commit(ctx); err != nil {
			return nil, err
		}

		return nil, errs.VerificationInvalid("verification code is invalid")
	}

	o, err = s.orders.ApplyTransition(ctx, work, o, order.StatusUsed, ordersvc.TransitionContext{
		Actor:      verifiedBy,
		VerifiedBy: verifiedBy,
	}, now)
	if err != nil {
		return nil, err
	}

	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	return o, nil
}

func redeemOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errs.IsCode(err, errs.CodeVerificationUsed):
		return "used"
	case errs.IsCode(err, errs.CodeVerificationExpired):
		return "expired"
	case errs.IsCode(err, errs.CodeVerificationAttempts):
		return "attempts_exceeded"
	case errs.IsCode(err, errs.CodeOrderStatusInvalid):
		return "status_invalid"
	default:
		return "invalid"
	}
}
