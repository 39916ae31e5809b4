package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsExposure(t *testing.T) {
	EventsReceived.WithLabelValues("media").Inc()
	RepliesSent.WithLabelValues("first_time").Inc()
	SendErrors.Inc()
	RefreshAttempts.Inc()
	RefreshErrors.Inc()
	IncAPIRetry("/me/messages")
	IncCommandRun("serve")
	ObserveHandleDuration(time.Now().Add(-150 * time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"igreply_events_total",
		"igreply_replies_sent_total",
		"igreply_send_errors_total",
		"igreply_handle_duration_seconds",
		"igreply_refresh_attempts_total",
		"igreply_refresh_errors_total",
		"igreply_api_retries_total",
		"igreply_command_runs_total",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}
