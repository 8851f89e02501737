package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP request metrics for API server
var (
	// HTTPRequestDuration tracks the duration of HTTP requests
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests by method, path, and status",
			Buckets: prometheus.DefBuckets, // Default: .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestsTotal counts the total number of HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)
)

// Agent operation metrics. Agent IDs are deliberately not used as labels to
// keep cardinality bounded; per-agent numbers come from the metric store.
var (
	// OperationsTotal counts tracked operations by name and outcome
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_operations_total",
			Help: "Total number of tracked agent operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration tracks wall-clock time of tracked operations
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_operation_duration_seconds",
			Help:    "Duration of tracked agent operations",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"operation"},
	)

	// CostAccrued is the running total of derived operation cost
	CostAccrued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_cost_usd_total",
			Help: "Total derived cost of tracked operations in USD",
		},
	)

	// TokensUsed is the running total of language-model tokens
	TokensUsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_tokens_total",
			Help: "Total language-model tokens consumed by tracked operations",
		},
	)

	// BudgetAlerts counts budget alerts by type
	BudgetAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_budget_alerts_total",
			Help: "Total number of budget alerts by type (warning, exceeded)",
		},
		[]string{"alert_type"},
	)

	// BudgetsExceeded is the number of agents currently over a ceiling
	BudgetsExceeded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_budgets_exceeded",
			Help: "Number of agent budgets currently in the exceeded state",
		},
	)

	// TelemetryFailures counts swallowed telemetry persistence failures
	TelemetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_telemetry_failures_total",
			Help: "Total telemetry persistence failures by stage (record, budget)",
		},
		[]string{"stage"},
	)
)

// RecordHTTPRequest records the duration and increments the counter for an HTTP request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordOperation records outcome and duration of a tracked operation
func RecordOperation(operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCost adds to the cost and token counters
func RecordCost(amount float64, tokens int64) {
	if amount > 0 {
		CostAccrued.Add(amount)
	}
	if tokens > 0 {
		TokensUsed.Add(float64(tokens))
	}
}

// RecordBudgetAlert increments the budget alert counter
func RecordBudgetAlert(alertType string) {
	BudgetAlerts.WithLabelValues(alertType).Inc()
}

// SetBudgetsExceeded sets the exceeded budgets gauge
func SetBudgetsExceeded(count int) {
	BudgetsExceeded.Set(float64(count))
}

// RecordTelemetryFailure increments the telemetry failure counter
func RecordTelemetryFailure(stage string) {
	TelemetryFailures.WithLabelValues(stage).Inc()
}
