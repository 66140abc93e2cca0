package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/garrymei/minimodules-order/internal/service/models/auditlog"
	"github.com/garrymei/minimodules-order/internal/service/models/order"
	"github.com/garrymei/minimodules-order/internal/service/services/ordersvc"
	"github.com/garrymei/minimodules-order/internal/service/services/paymentsvc"
	"github.com/garrymei/minimodules-order/internal/service/services/verifysvc"
	audittrail "github.com/garrymei/minimodules-order/internal/transport/http/audit_trail"
	createorder "github.com/garrymei/minimodules-order/internal/transport/http/create_order"
	getorder "github.com/garrymei/minimodules-order/internal/transport/http/get_order"
	listorders "github.com/garrymei/minimodules-order/internal/transport/http/list_orders"
	paymentcallback "github.com/garrymei/minimodules-order/internal/transport/http/payment_callback"
	updatestatus "github.com/garrymei/minimodules-order/internal/transport/http/update_status"
	"github.com/garrymei/minimodules-order/internal/transport/http/verification"
	verifyorder "github.com/garrymei/minimodules-order/internal/transport/http/verify_order"
	"github.com/garrymei/minimodules-order/pkg/http/middleware/trace"
	"github.com/garrymei/minimodules-order/pkg/logger"
	"github.com/garrymei/minimodules-order/pkg/metrics"
)

type orderService interface {
	CreateOrder(ctx context.Context, dto ordersvc.CreateOrderModel) (*order.Order, error)
	GetOrder(ctx context.Context, id string) (*order.Order, error)
	ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error)
	UpdateStatus(ctx context.Context, orderID string, target order.Status, tctx ordersvc.TransitionContext) (*order.Order, error)
	GetAuditTrail(ctx context.Context, orderID string) ([]auditlog.Entry, error)
}

type verificationService interface {
	IssueCode(ctx context.Context, tenantID, orderID string) (*verifysvc.Verification, error)
	GetVerification(ctx context.Context, tenantID, orderID string) (*verifysvc.Verification, error)
	VerifyAndRedeem(ctx context.Context, tenantID, code, verifiedBy string) (*order.Order, error)
}

type paymentService interface {
	ProcessCallback(ctx context.Context, gateway string, payload []byte, headers map[string]string, signature string) (*paymentsvc.Result, error)
}

type HTTPTransport struct {
	server        *http.Server
	router        *chi.Mux
	orders        orderService
	verifications verificationService
	payments      paymentService
}

func NewHTTPTransport(orders orderService, verifications verificationService, payments paymentService) *HTTPTransport {
	router := newRouter()
	server := newServer(router)
	return &HTTPTransport{
		server:        server,
		router:        router,
		orders:        orders,
		verifications: verifications,
		payments:      payments,
	}
}

func (h *HTTPTransport) Run() error {
	return h.server.ListenAndServe()
}

// Shutdown stops accepting new connections and waits for in-flight requests.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Handle("/metrics", metrics.Handler())

	h.router.Route("/api", func(r chi.Router) {
		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{orderID}", h.getOrder)
		r.Post("/orders/{orderID}/status", h.updateStatus)
		r.Get("/orders/{orderID}/audit", h.auditTrail)

		r.Post("/orders/{orderID}/verification", h.issueCode)
		r.Get("/orders/{orderID}/verification", h.getVerification)
		r.Post("/orders/verify", h.verifyOrder)

		r.Post("/payments/callback/{gateway}", h.paymentCallback)
	})
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	createorder.CreateOrder(w, r, h.orders)
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListOrders(w, r, h.orders)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.orders)
}

func (h *HTTPTransport) updateStatus(w http.ResponseWriter, r *http.Request) {
	updatestatus.UpdateStatus(w, r, h.orders)
}

func (h *HTTPTransport) auditTrail(w http.ResponseWriter, r *http.Request) {
	audittrail.AuditTrail(w, r, h.orders)
}

func (h *HTTPTransport) issueCode(w http.ResponseWriter, r *http.Request) {
	verification.IssueCode(w, r, h.verifications)
}

func (h *HTTPTransport) getVerification(w http.ResponseWriter, r *http.Request) {
	verification.GetVerification(w, r, h.verifications)
}

func (h *HTTPTransport) verifyOrder(w http.ResponseWriter, r *http.Request) {
	verifyorder.VerifyOrder(w, r, h.verifications)
}

func (h *HTTPTransport) paymentCallback(w http.ResponseWriter, r *http.Request) {
	paymentcallback.PaymentCallback(w, r, h.payments)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(trace.NewTraceMiddleware)

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler: router,
	}
}
