// Package metrics defines Prometheus metrics for the connection pool,
// adapted from the teacher's internal/metrics/metrics.go: bucket-level
// labels become pool-level labels, and the metric set is re-scoped to
// spec.md's CMAP attributes (active checkouts, pending creates, waiters,
// generation) instead of SQL-Server-proxy concerns.
//
// Only Generation and the counters are updated, by Listener. The
// ActiveCheckouts, IdleConnections, PendingCreates, Waiters and
// MaxPoolSize gauges and the CheckOutDuration histogram are registered,
// but nothing in this repository sets or observes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveCheckouts tracks activeCheckouts per pool.
	ActiveCheckouts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "connpool_active_checkouts",
		Help: "Number of connections currently checked out, per pool",
	}, []string{"pool_id"})

	// IdleConnections tracks the size of the idle deque per pool.
	IdleConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "connpool_idle_connections",
		Help: "Number of idle connections available for reuse, per pool",
	}, []string{"pool_id"})

	// PendingCreates tracks pendingCreates per pool.
	PendingCreates = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "connpool_pending_creates",
		Help: "Number of connections currently mid-dial/mid-handshake, per pool",
	}, []string{"pool_id"})

	// Waiters tracks admission-queue depth per pool.
	Waiters = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "connpool_waiters",
		Help: "Number of callers blocked in admission, per pool",
	}, []string{"pool_id"})

	// MaxPoolSize tracks the configured maxPoolSize per pool (0 = unbounded).
	MaxPoolSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "connpool_max_pool_size",
		Help: "Configured maximum pool size, per pool",
	}, []string{"pool_id"})

	// Generation tracks the current pool generation.
	Generation = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "connpool_generation",
		Help: "Current pool generation counter",
	}, []string{"pool_id"})

	// CheckOutsTotal counts checkout outcomes.
	CheckOutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connpool_checkouts_total",
		Help: "Total checkout attempts by outcome",
	}, []string{"pool_id", "outcome"})

	// CheckOutFailuresTotal counts checkout failures by reason.
	CheckOutFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connpool_checkout_failures_total",
		Help: "Total checkout failures by reason",
	}, []string{"pool_id", "reason"})

	// CheckOutDuration tracks time spent in the wait queue before success.
	CheckOutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connpool_checkout_duration_seconds",
		Help:    "Time spent acquiring a connection",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"pool_id"})

	// ConnectionsCreatedTotal counts connections dialed and handshaked.
	ConnectionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connpool_connections_created_total",
		Help: "Total connections created",
	}, []string{"pool_id"})

	// ConnectionsClosedTotal counts connections closed, by reason.
	ConnectionsClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connpool_connections_closed_total",
		Help: "Total connections closed by reason",
	}, []string{"pool_id", "reason"})
)
