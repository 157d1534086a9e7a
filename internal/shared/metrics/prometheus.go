// Package metrics exposes Prometheus metrics for the HTTP edge and the
// report workflow.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Workflow metrics
	reportsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reports_created_total",
			Help: "Total number of adverse-effect reports created",
		},
		[]string{"severity", "source"},
	)

	reportTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_transitions_total",
			Help: "Total number of workflow transition attempts",
		},
		[]string{"operation", "outcome"},
	)

	authorizationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authorization_decisions_total",
			Help: "Total number of workflow authorization decisions",
		},
		[]string{"operation", "role", "decision"},
	)

	chatMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Total number of chat messages appended to report threads",
		},
		[]string{"sender"},
	)

	refreshSignal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "refresh_signal",
			Help: "Current value of the global refresh signal counter",
		},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries appended",
		},
	)
)

// RecordReportCreated increments the created-reports counter
func RecordReportCreated(severity, source string) {
	reportsCreated.WithLabelValues(severity, source).Inc()
}

// RecordTransition records a workflow transition attempt and its outcome
// ("accepted", "forbidden", "illegal_state", "error").
func RecordTransition(operation, outcome string) {
	reportTransitions.WithLabelValues(operation, outcome).Inc()
}

// RecordAuthorization records an authorization decision ("allowed"/"denied")
func RecordAuthorization(operation, role, decision string) {
	authorizationDecisions.WithLabelValues(operation, role, decision).Inc()
}

// RecordChatMessage increments the message counter per sender kind
func RecordChatMessage(sender string) {
	chatMessages.WithLabelValues(sender).Inc()
}

// SetRefreshSignal mirrors the refresh counter into a gauge
func SetRefreshSignal(value uint64) {
	refreshSignal.Set(float64(value))
}

// RecordAuditEntry increments the audit entry counter
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}

// Middleware instruments HTTP handlers
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the /metrics endpoint handler
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
