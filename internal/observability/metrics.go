package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nl2sql_http_requests_total",
			Help: "HTTP requests by route pattern and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nl2sql_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern. Ask requests include model round trips.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)

	askTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nl2sql_ask_total",
			Help: "Total number of questions processed, by outcome.",
		},
		[]string{"outcome"},
	)
	askDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nl2sql_ask_duration_seconds",
			Help:    "End-to-end latency of one question (generation, execution and summary).",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	bridgeCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nl2sql_bridge_call_duration_seconds",
			Help:    "Latency of calls to the chat-completion API by stage.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage", "status"},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nl2sql_query_rows_returned",
			Help:    "Number of rows returned by generated queries.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500},
		},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nl2sql_sessions_active",
			Help: "Current number of open chat sessions.",
		},
	)
	sessionsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nl2sql_sessions_started_total",
			Help: "Total number of chat sessions started.",
		},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nl2sql_exports_total",
			Help: "Total number of result exports, by destination.",
		},
		[]string{"destination"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		askTotal,
		askDurationSeconds,
		bridgeCallDurationSeconds,
		queryRowsReturned,
		sessionsActive,
		sessionsStartedTotal,
		exportsTotal,
	)
}

func ObserveAsk(outcome string, elapsed time.Duration) {
	askTotal.WithLabelValues(outcome).Inc()
	askDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveBridgeCall(stage string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	bridgeCallDurationSeconds.WithLabelValues(stage, status).Observe(elapsed.Seconds())
}

func ObserveQueryRows(rows int) {
	if rows < 0 {
		rows = 0
	}
	queryRowsReturned.Observe(float64(rows))
}

func SessionStarted() {
	sessionsStartedTotal.Inc()
	sessionsActive.Inc()
}

func SessionEnded() {
	sessionsActive.Dec()
}

func ObserveExport(destination string) {
	exportsTotal.WithLabelValues(destination).Inc()
}
