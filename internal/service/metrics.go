package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_step_transitions_total",
			Help: "Total number of checkout step changes",
		},
		[]string{"from", "to"},
	)

	paymentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_payments_total",
			Help: "Total number of payment attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_orders_total",
			Help: "Total number of order creation attempts by outcome",
		},
		[]string{"outcome"},
	)

	cartLockDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_cart_lock_degraded_total",
			Help: "Total number of checkouts that continued without a cart lock",
		},
		[]string{"reason"},
	)

	snapshotPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_snapshot_persist_failures_total",
			Help: "Total number of checkout snapshots that could not be written",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_active_sessions",
			Help: "Number of checkout sessions held in memory",
		},
	)
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)
