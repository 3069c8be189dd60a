package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepost_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// VerificationResults counts verification outcomes per namespace
	// (match|not_found|expired|mismatch).
	VerificationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepost_verification_results_total",
			Help: "Verification code and token check outcomes",
		},
		[]string{"namespace", "result"},
	)

	// OrdersCreated counts checkouts that produced an order.
	OrdersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradepost_orders_created_total",
			Help: "Total number of orders created",
		},
	)

	// MessagesSent counts marketplace messages delivered between users.
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradepost_messages_sent_total",
			Help: "Total number of conversation messages sent",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradepost_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
