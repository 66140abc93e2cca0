package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters exposed on /metrics.
type Metrics struct {
	OrdersCreated      *prometheus.CounterVec
	StockConflicts     prometheus.Counter
	StatusTransitions  *prometheus.CounterVec
	CallbacksProcessed *prometheus.CounterVec
	CodesRedeemed      *prometheus.CounterVec
}

// New registers and returns the service metrics.
func New() *Metrics {
	ordersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minimodules",
		Subsystem: "order",
		Name:      "orders_created_total",
		Help:      "Total number of orders created.",
	}, []string{"tenant_id", "order_type"})

	stockConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "minimodules",
		Subsystem: "order",
		Name:      "stock_conflicts_total",
		Help:      "Order creations rejected because stock ran out under the row lock.",
	})

	statusTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minimodules",
		Subsystem: "order",
		Name:      "status_transitions_total",
		Help:      "Order status transitions by target status.",
	}, []string{"to"})

	callbacksProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minimodules",
		Subsystem: "payment",
		Name:      "callbacks_processed_total",
		Help:      "Payment gateway callbacks by gateway and outcome.",
	}, []string{"gateway", "outcome"})

	codesRedeemed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "minimodules",
		Subsystem: "verification",
		Name:      "codes_redeemed_total",
		Help:      "Verification code redemption attempts by outcome.",
	}, []string{"outcome"})

	prometheus.MustRegister(
		ordersCreated,
		stockConflicts,
		statusTransitions,
		callbacksProcessed,
		codesRedeemed,
	)

	return &Metrics{
		OrdersCreated:      ordersCreated,
		StockConflicts:     stockConflicts,
		StatusTransitions:  statusTransitions,
		CallbacksProcessed: callbacksProcessed,
		CodesRedeemed:      codesRedeemed,
	}
}

// Handler returns the prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
