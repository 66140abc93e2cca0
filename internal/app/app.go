package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garrymei/minimodules-order/internal/dal/postgres"
	"github.com/garrymei/minimodules-order/internal/dal/rabbitmq"
	redisdal "github.com/garrymei/minimodules-order/internal/dal/redis"
	outboxpg "github.com/garrymei/minimodules-order/internal/dal/repositories/outbox/postgres"
	"github.com/garrymei/minimodules-order/internal/otel"
	"github.com/garrymei/minimodules-order/internal/service/collaborators/notify"
	"github.com/garrymei/minimodules-order/internal/service/collaborators/usage"
	"github.com/garrymei/minimodules-order/internal/service/services/inventorysvc"
	"github.com/garrymei/minimodules-order/internal/service/services/ordersvc"
	"github.com/garrymei/minimodules-order/internal/service/services/paymentsvc"
	"github.com/garrymei/minimodules-order/internal/service/services/verifysvc"
	httptransport "github.com/garrymei/minimodules-order/internal/transport/http"
	"github.com/garrymei/minimodules-order/internal/worker/outbox"
	"github.com/garrymei/minimodules-order/pkg/metrics"
)

// App represents the application.
type App struct {
	transport      *httptransport.HTTPTransport
	outboxWorker   *outbox.Worker
	otelController *otel.OtelController
	postgresClient *postgres.Client
	redisClient    *redisdal.Client
	rabbitClient   *rabbitmq.Client
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel()

	postgresClient := postgres.MustNewClient()
	redisClient := redisdal.MustNewClient()
	rabbitClient := rabbitmq.MustNewClient()

	m := metrics.New()

	inventorySvc := inventorysvc.MustNewInventoryService(
		inventorysvc.WithPostgresClient(postgresClient),
	)

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithPostgresClient(postgresClient),
		ordersvc.WithInventoryLedger(inventorySvc),
		ordersvc.WithUsageCollaborator(usage.NewRedisCollaborator(redisClient)),
		ordersvc.WithNotifyCollaborator(notify.NewOutboxCollaborator()),
		ordersvc.WithMetrics(m),
	)

	verifySvc := verifysvc.MustNewVerificationService(
		verifysvc.WithPostgresClient(postgresClient),
		verifysvc.WithOrderService(orderSvc),
		verifysvc.WithMetrics(m),
	)

	paymentSvc := paymentsvc.MustNewPaymentService(
		paymentsvc.WithPostgresClient(postgresClient),
		paymentsvc.WithOrderService(orderSvc),
		paymentsvc.WithMetrics(m),
	)

	transport := httptransport.NewHTTPTransport(orderSvc, verifySvc, paymentSvc)
	transport.RegisterRoutes()

	outboxWorker := outbox.NewWorker(
		outboxpg.NewPostgresOutboxRepository(postgresClient.Pool()),
		rabbitClient,
	)

	return &App{
		transport:      transport,
		outboxWorker:   outboxWorker,
		otelController: otelController,
		postgresClient: postgresClient,
		redisClient:    redisClient,
		rabbitClient:   rabbitClient,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go a.outboxWorker.Start(workerCtx)

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	<-stop
	slog.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	cancelWorker()

	if err := a.otelController.Shutdown(); err != nil {
		slog.Error("Trace provider shutdown error", "error", err)
	}

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	}

	if err := a.redisClient.Close(); err != nil {
		slog.Error("Redis connection close error", "error", err)
	}

	a.postgresClient.Close()
	slog.Info("Application shutdown complete")
}
