package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.Inc(MatchCreated)
	m.Inc(MatchCreated)
	m.Inc(RelayDropped)

	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if rec.Code != 200 {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if !strings.Contains(body, `camconnect_events_total{event="match_created"} 2`) {
		t.Fatalf("missing match_created counter in body:\n%s", body)
	}
	if !strings.Contains(body, `camconnect_events_total{event="relay_dropped"} 1`) {
		t.Fatalf("missing relay_dropped counter in body:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE camconnect_events_total counter") {
		t.Fatalf("missing TYPE line in body:\n%s", body)
	}
}

func TestPrometheusHandler_NilMetrics(t *testing.T) {
	rec := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 500 {
		t.Fatalf("status=%d, want 500", rec.Code)
	}
}
