package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/usecase"
	applogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

type stubAdapter struct {
	kind  models.IndicatorKind
	batch *models.ObservationBatch
	err   error
}

func (a *stubAdapter) Kind() models.IndicatorKind { return a.kind }
func (a *stubAdapter) Name() string               { return "stub" }
func (a *stubAdapter) FetchLatest(context.Context) (*models.ObservationBatch, error) {
	return a.batch, a.err
}

type stubStore struct {
	healthErr error
	sparkline []models.SparklinePoint
}

func (s *stubStore) UpsertIntraday(context.Context, models.IndicatorKind, time.Time, float64, models.Status) error {
	return nil
}
func (s *stubStore) UpsertDaily(context.Context, models.IndicatorKind, string, float64, models.Status) error {
	return nil
}
func (s *stubStore) UpsertSparkline(context.Context, models.IndicatorKind, string, drepo.Timeframe, float64) error {
	return nil
}
func (s *stubStore) LatestIntraday(context.Context, models.IndicatorKind, string) (*models.IntradayRecord, error) {
	return nil, nil
}
func (s *stubStore) QueryDaily(context.Context, models.IndicatorKind, string, string) ([]models.DailyRecord, error) {
	return nil, nil
}
func (s *stubStore) QuerySparkline(_ context.Context, _ models.IndicatorKind, _ drepo.Timeframe, limit int) ([]models.SparklinePoint, error) {
	if limit < len(s.sparkline) {
		return s.sparkline[:limit], nil
	}
	return s.sparkline, nil
}
func (s *stubStore) Health(context.Context) error { return s.healthErr }
func (s *stubStore) Close() error                 { return nil }

type stubCache struct{}

func (stubCache) Get(context.Context, models.IndicatorKind) (*models.Snapshot, error) {
	return nil, nil
}
func (stubCache) Set(context.Context, *models.Snapshot, time.Duration) error { return nil }

type stubMetrics struct{}

func (stubMetrics) RecordFetch(string, string)      {}
func (stubMetrics) RecordApproximation(string)      {}
func (stubMetrics) RecordStoreError(string)         {}
func (stubMetrics) RecordLastValue(string, float64) {}
func (stubMetrics) RecordLatency(string, float64)   {}

func obs(kind models.IndicatorKind, daysAgo int, v float64) models.Observation {
	return models.Observation{
		Kind:      kind,
		Value:     &v,
		Timestamp: time.Now().UTC().AddDate(0, 0, -daysAgo),
		Source:    "stub",
	}
}

func newTestServer(t *testing.T, store *stubStore) (*echo.Echo, *usecase.IndicatorService) {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	adapter := &stubAdapter{
		kind: models.PutCallRatio,
		batch: &models.ObservationBatch{
			Kind:   models.PutCallRatio,
			Source: "stub",
			Observations: []models.Observation{
				obs(models.PutCallRatio, 1, 0.85),
				obs(models.PutCallRatio, 0, 0.65),
			},
		},
	}
	approx := usecase.NewApproximator(store, time.Hour, l)
	svc := usecase.NewIndicatorService(
		[]drepo.SourceAdapter{adapter}, store, stubCache{}, approx, nil, stubMetrics{},
		usecase.PipelineConfig{TrailingWindow: 2}, l,
	)
	t.Cleanup(svc.Close)

	e := echo.New()
	NewIndicatorsEchoHandler(l, svc, store).RegisterRoutes(e)
	return e, svc
}

func doRequest(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSnapshotEndpoint(t *testing.T) {
	e, _ := newTestServer(t, &stubStore{})

	rec := doRequest(e, http.MethodGet, "/api/indicators/put-call-ratio")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if cc := rec.Header().Get(echo.HeaderCacheControl); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}

	var body struct {
		Value         *float64 `json:"value"`
		Status        string   `json:"status"`
		Change        *string  `json:"change"`
		IsApproximate bool     `json:"isApproximate"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Value == nil || *body.Value != 0.65 {
		t.Errorf("value = %v, want 0.65", body.Value)
	}
	if body.Status != "normal" {
		t.Errorf("status = %q, want normal", body.Status)
	}
	if body.Change == nil {
		t.Error("expected a change string")
	}
	if body.IsApproximate {
		t.Error("fresh snapshot must not be approximate")
	}
}

func TestSnapshotUnknownKind(t *testing.T) {
	e, _ := newTestServer(t, &stubStore{})

	rec := doRequest(e, http.MethodGet, "/api/indicators/vix")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	store := &stubStore{sparkline: []models.SparklinePoint{
		{Kind: models.PutCallRatio, Date: "2025-08-27", Timeframe: "30d", Value: 0.8},
		{Kind: models.PutCallRatio, Date: "2025-08-28", Timeframe: "30d", Value: 0.9},
		{Kind: models.PutCallRatio, Date: "2025-08-29", Timeframe: "30d", Value: 1.0},
	}}
	e, _ := newTestServer(t, store)

	rec := doRequest(e, http.MethodGet, "/api/indicators/put-call-ratio/history?tf=30d")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Status int `json:"status"`
		Data   struct {
			Timeframe string                `json:"timeframe"`
			Points    []models.HistoryPoint `json:"points"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != http.StatusOK {
		t.Errorf("envelope status = %d, want 200", body.Status)
	}
	if body.Data.Timeframe != "30d" {
		t.Errorf("timeframe = %q, want 30d", body.Data.Timeframe)
	}
	if len(body.Data.Points) != 3 {
		t.Fatalf("points = %d, want 3", len(body.Data.Points))
	}
	if body.Data.Points[0].Date != "2025-08-27" {
		t.Errorf("points not date-ascending: first = %s", body.Data.Points[0].Date)
	}
}

func TestHistoryLimit(t *testing.T) {
	store := &stubStore{sparkline: []models.SparklinePoint{
		{Kind: models.PutCallRatio, Date: "2025-08-27", Timeframe: "30d", Value: 0.8},
		{Kind: models.PutCallRatio, Date: "2025-08-28", Timeframe: "30d", Value: 0.9},
		{Kind: models.PutCallRatio, Date: "2025-08-29", Timeframe: "30d", Value: 1.0},
	}}
	e, _ := newTestServer(t, store)

	rec := doRequest(e, http.MethodGet, "/api/indicators/put-call-ratio/history?tf=30d&limit=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Data struct {
			Points []models.HistoryPoint `json:"points"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Data.Points) != 2 {
		t.Fatalf("points = %d, want 2", len(body.Data.Points))
	}
	if body.Data.Points[1].Date != "2025-08-29" {
		t.Errorf("limit must keep the newest points, got last = %s", body.Data.Points[1].Date)
	}
}

func TestHistoryDateRange(t *testing.T) {
	store := &stubStore{sparkline: []models.SparklinePoint{
		{Kind: models.PutCallRatio, Date: "2025-08-27", Timeframe: "30d", Value: 0.8},
		{Kind: models.PutCallRatio, Date: "2025-08-28", Timeframe: "30d", Value: 0.9},
		{Kind: models.PutCallRatio, Date: "2025-08-29", Timeframe: "30d", Value: 1.0},
	}}
	e, _ := newTestServer(t, store)

	toUnix := strconv.FormatInt(time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC).Unix(), 10)
	cases := []struct {
		name  string
		query string
		dates []string
	}{
		{"from", "from=2025-08-28T00:00:00Z", []string{"2025-08-28", "2025-08-29"}},
		{"to unix", "to=" + toUnix, []string{"2025-08-27", "2025-08-28"}},
		{"both", "from=2025-08-28T00:00:00Z&to=2025-08-28T23:59:59Z", []string{"2025-08-28"}},
		{"bad bound ignored", "from=yesterday", []string{"2025-08-27", "2025-08-28", "2025-08-29"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodGet, "/api/indicators/put-call-ratio/history?tf=30d&"+tc.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var body struct {
				Data struct {
					Points []models.HistoryPoint `json:"points"`
				} `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(body.Data.Points) != len(tc.dates) {
				t.Fatalf("points = %d, want %d", len(body.Data.Points), len(tc.dates))
			}
			for i, want := range tc.dates {
				if body.Data.Points[i].Date != want {
					t.Errorf("points[%d].Date = %s, want %s", i, body.Data.Points[i].Date, want)
				}
			}
		})
	}
}

func TestHistoryUnknownTimeframeFallsBack(t *testing.T) {
	e, _ := newTestServer(t, &stubStore{})

	rec := doRequest(e, http.MethodGet, "/api/indicators/put-call-ratio/history?tf=7d")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Data struct {
			Timeframe string `json:"timeframe"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Data.Timeframe != "30d" {
		t.Errorf("timeframe = %q, want default 30d", body.Data.Timeframe)
	}
}

func TestRefreshRateLimit(t *testing.T) {
	e, _ := newTestServer(t, &stubStore{})

	var last int
	for i := 0; i < refreshBurst+1; i++ {
		last = doRequest(e, http.MethodPost, "/api/indicators/put-call-ratio/refresh").Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", last)
	}
}

func TestListEndpoint(t *testing.T) {
	e, svc := newTestServer(t, &stubStore{})

	// warm the in-memory snapshot first
	if _, err := svc.Snapshot(context.Background(), models.PutCallRatio); err != nil {
		t.Fatalf("warm snapshot: %v", err)
	}

	rec := doRequest(e, http.MethodGet, "/api/indicators")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Data struct {
			Rows []struct {
				Indicator   string  `json:"indicator"`
				Status      string  `json:"status"`
				LastUpdated *string `json:"lastUpdated"`
			} `json:"rows"`
			Total int64 `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Data.Total != 1 {
		t.Fatalf("total = %d, want 1", body.Data.Total)
	}
	row := body.Data.Rows[0]
	if row.Indicator != string(models.PutCallRatio) {
		t.Errorf("indicator = %q", row.Indicator)
	}
	if row.Status != "normal" || row.LastUpdated == nil {
		t.Errorf("warmed row = %+v, want normal with timestamp", row)
	}
}

func TestHealthDegraded(t *testing.T) {
	e, _ := newTestServer(t, &stubStore{healthErr: context.DeadlineExceeded})

	rec := doRequest(e, http.MethodGet, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
