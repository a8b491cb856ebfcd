package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_guardian",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "yield_guardian",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPResponseBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "yield_guardian",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response body size in bytes.",
		Buckets:   prometheus.ExponentialBuckets(128, 4, 7),
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "yield_guardian",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Quote source metrics ───────────────────────────────────────────────

var (
	SourceFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_guardian",
		Subsystem: "source",
		Name:      "fetch_total",
		Help:      "Total number of quote fetch attempts per source.",
	}, []string{"source", "status"})

	SourceFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "yield_guardian",
		Subsystem: "source",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of quote fetch per source in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	SourceLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "yield_guardian",
		Subsystem: "source",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful quote fetch per source.",
	}, []string{"source"})

	BestAPY = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "yield_guardian",
		Subsystem: "source",
		Name:      "best_apy_percent",
		Help:      "Highest APY observed per asset in the last aggregation.",
	}, []string{"asset"})
)

// ── Cache metrics ──────────────────────────────────────────────────────

var (
	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_guardian",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Cache lookups by backend and result (hit, miss).",
	}, []string{"backend", "result"})
)

// ── Optimization cycle metrics ─────────────────────────────────────────

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_guardian",
		Subsystem: "cycle",
		Name:      "total",
		Help:      "Optimization cycles by outcome.",
	}, []string{"status"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "yield_guardian",
		Subsystem: "cycle",
		Name:      "duration_seconds",
		Help:      "Duration of a full optimization cycle in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_guardian",
		Subsystem: "decision",
		Name:      "total",
		Help:      "Rebalance decisions by outcome (rebalance, hold).",
	}, []string{"outcome"})

	ExecutionActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_guardian",
		Subsystem: "execution",
		Name:      "actions_total",
		Help:      "Executed actions by type and status.",
	}, []string{"type", "status"})

	ExecutionRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_guardian",
		Subsystem: "execution",
		Name:      "rejected_total",
		Help:      "Decisions rejected before any action was submitted.",
	}, []string{"reason"})
)

// ── Alert metrics ──────────────────────────────────────────────────────

var (
	AlertsRaisedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_guardian",
		Subsystem: "alerts",
		Name:      "raised_total",
		Help:      "Total alerts raised by the alert system.",
	}, []string{"severity", "kind"})

	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_guardian",
		Subsystem: "alerts",
		Name:      "sent_total",
		Help:      "Total alerts successfully delivered.",
	}, []string{"kind"})

	AlertsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yield_guardian",
		Subsystem: "alerts",
		Name:      "failed_total",
		Help:      "Total alert delivery failures.",
	}, []string{"kind"})
)

// ── Portfolio metrics ──────────────────────────────────────────────────

var (
	PortfolioRiskScore = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "yield_guardian",
		Subsystem: "portfolio",
		Name:      "risk_score",
		Help:      "Total portfolio risk score (0-100) from the last cycle.",
	})

	PortfolioValueUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "yield_guardian",
		Subsystem: "portfolio",
		Name:      "value_usd",
		Help:      "Total USD value of tracked positions.",
	})
)
