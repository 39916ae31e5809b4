package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igreply_events_total",
		Help: "Inbound messaging events by classification",
	}, []string{"kind"})
	RepliesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igreply_replies_sent_total",
		Help: "Outbound replies by template",
	}, []string{"template"})
	SendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "igreply_send_errors_total",
		Help: "Failed outbound sends",
	})
	HandleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "igreply_handle_duration_seconds",
		Help:    "Per-event handling duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	RefreshAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "igreply_refresh_attempts_total",
		Help: "Token refresh calls attempted",
	})
	RefreshErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "igreply_refresh_errors_total",
		Help: "Token refresh calls that failed",
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igreply_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igreply_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igreply_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(EventsReceived, RepliesSent, SendErrors, HandleDuration,
		RefreshAttempts, RefreshErrors, APIRetries, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveHandleDuration records one event's handling duration.
func ObserveHandleDuration(start time.Time) {
	HandleDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
