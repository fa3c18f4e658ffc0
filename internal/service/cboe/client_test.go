package cboe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
)

func TestFetchLatest_ParsesAndSorts(t *testing.T) {
	var gotBust string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBust = r.URL.Query().Get("_ts")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"date":"2026-08-28","ratio":0.91},
			{"date":"2026-08-27","ratio":0.88},
			{"date":"2026-08-26","ratio":null}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "/pcr.json", time.Second)
	batch, err := c.FetchLatest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBust == "" {
		t.Error("expected cache-busting _ts query parameter")
	}
	if len(batch.Observations) != 2 {
		t.Fatalf("expected 2 observations (null dropped), got %d", len(batch.Observations))
	}
	if batch.Observations[0].Timestamp.After(batch.Observations[1].Timestamp) {
		t.Error("observations not sorted ascending")
	}
	latest := batch.Latest()
	if latest == nil || *latest.Value != 0.91 {
		t.Errorf("expected latest ratio 0.91, got %v", latest)
	}
}

func TestFetchLatest_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "/pcr.json", time.Second).FetchLatest(context.Background())
	var fe *models.FetchError
	if !errors.As(err, &fe) || fe.Kind != models.FetchBadStatus || fe.Status != http.StatusBadGateway {
		t.Fatalf("expected bad_status fetch error with 502, got %v", err)
	}
}

func TestFetchLatest_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "/pcr.json", time.Second).FetchLatest(context.Background())
	var fe *models.FetchError
	if !errors.As(err, &fe) || fe.Kind != models.FetchMalformed {
		t.Fatalf("expected malformed_payload fetch error, got %v", err)
	}
}

func TestFetchLatest_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "/pcr.json", time.Second).FetchLatest(context.Background())
	var fe *models.FetchError
	if !errors.As(err, &fe) || fe.Kind != models.FetchEmpty {
		t.Fatalf("expected empty_result fetch error, got %v", err)
	}
}

func TestFetchLatest_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed before use

	_, err := New(srv.URL, "/pcr.json", time.Second).FetchLatest(context.Background())
	var fe *models.FetchError
	if !errors.As(err, &fe) || fe.Kind != models.FetchUnreachable {
		t.Fatalf("expected unreachable fetch error, got %v", err)
	}
}
