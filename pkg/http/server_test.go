package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func scrape(t *testing.T, s *Server, path string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec.Code
}

func TestMetricsEndpointDefault(t *testing.T) {
	s := NewServer(nil)
	if code := scrape(t, s, "/metrics"); code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", code)
	}
}

func TestMetricsEndpointDisabled(t *testing.T) {
	s := NewServer(nil, WithMetrics(false, "/metrics"))
	if code := scrape(t, s, "/metrics"); code != http.StatusNotFound {
		t.Fatalf("GET /metrics = %d, want 404 when disabled", code)
	}
}

func TestMetricsEndpointCustomPath(t *testing.T) {
	s := NewServer(nil, WithMetrics(true, "/internal/prom"))
	if code := scrape(t, s, "/internal/prom"); code != http.StatusOK {
		t.Fatalf("GET /internal/prom = %d, want 200", code)
	}
	if code := scrape(t, s, "/metrics"); code != http.StatusNotFound {
		t.Fatalf("GET /metrics = %d, want 404 on custom path", code)
	}
}
