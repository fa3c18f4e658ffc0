package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
)

// --- fakes ---

type fakeAdapter struct {
	kind  models.IndicatorKind
	mu    sync.Mutex
	calls int
	batch *models.ObservationBatch
	err   error
	delay time.Duration
}

func (a *fakeAdapter) Kind() models.IndicatorKind { return a.kind }
func (a *fakeAdapter) Name() string               { return "fake" }

func (a *fakeAdapter) FetchLatest(ctx context.Context) (*models.ObservationBatch, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.batch, nil
}

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type dailyKey struct {
	kind models.IndicatorKind
	date string
}

type fakeStore struct {
	mu         sync.Mutex
	intraday   []models.IntradayRecord
	daily      map[dailyKey]models.DailyRecord
	sparkline  map[string]models.SparklinePoint
	failWrites bool
	failReads  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		daily:     make(map[dailyKey]models.DailyRecord),
		sparkline: make(map[string]models.SparklinePoint),
	}
}

var errStore = errors.New("store unavailable")

func (s *fakeStore) UpsertIntraday(_ context.Context, kind models.IndicatorKind, ts time.Time, value float64, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errStore
	}
	s.intraday = append(s.intraday, models.IntradayRecord{Kind: kind, Timestamp: ts, Value: value, Status: status})
	return nil
}

func (s *fakeStore) UpsertDaily(_ context.Context, kind models.IndicatorKind, date string, value float64, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errStore
	}
	now := time.Now()
	s.daily[dailyKey{kind, date}] = models.DailyRecord{Kind: kind, Date: date, Value: value, Status: status, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (s *fakeStore) UpsertSparkline(_ context.Context, kind models.IndicatorKind, date string, tf drepo.Timeframe, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errStore
	}
	s.sparkline[string(kind)+"|"+string(tf)+"|"+date] = models.SparklinePoint{Kind: kind, Date: date, Timeframe: string(tf), Value: value}
	return nil
}

func (s *fakeStore) LatestIntraday(_ context.Context, kind models.IndicatorKind, date string) (*models.IntradayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads {
		return nil, errStore
	}
	var latest *models.IntradayRecord
	for i := range s.intraday {
		r := s.intraday[i]
		if r.Kind != kind || models.Day(r.Timestamp) != date {
			continue
		}
		if latest == nil || r.Timestamp.After(latest.Timestamp) {
			latest = &r
		}
	}
	return latest, nil
}

func (s *fakeStore) QueryDaily(_ context.Context, kind models.IndicatorKind, from, to string) ([]models.DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads {
		return nil, errStore
	}
	var out []models.DailyRecord
	for k, r := range s.daily {
		if k.kind == kind && k.date >= from && k.date <= to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) QuerySparkline(_ context.Context, kind models.IndicatorKind, tf drepo.Timeframe, limit int) ([]models.SparklinePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReads {
		return nil, errStore
	}
	var out []models.SparklinePoint
	for _, p := range s.sparkline {
		if p.Kind == kind && p.Timeframe == string(tf) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) Health(context.Context) error { return nil }
func (s *fakeStore) Close() error                 { return nil }

type fakeCache struct {
	mu    sync.Mutex
	snaps map[models.IndicatorKind]*models.Snapshot
}

func newFakeCache() *fakeCache {
	return &fakeCache{snaps: make(map[models.IndicatorKind]*models.Snapshot)}
}

func (c *fakeCache) Get(_ context.Context, kind models.IndicatorKind) (*models.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snaps[kind], nil
}

func (c *fakeCache) Set(_ context.Context, snap *models.Snapshot, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.Kind] = snap
	return nil
}

type fakeMetrics struct{}

func (fakeMetrics) RecordFetch(string, string)      {}
func (fakeMetrics) RecordApproximation(string)      {}
func (fakeMetrics) RecordStoreError(string)         {}
func (fakeMetrics) RecordLastValue(string, float64) {}
func (fakeMetrics) RecordLatency(string, float64)   {}

// --- helpers ---

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func batchOf(kind models.IndicatorKind, vals ...float64) *models.ObservationBatch {
	base := time.Now().UTC().AddDate(0, 0, -len(vals))
	obs := make([]models.Observation, len(vals))
	for i := range vals {
		v := vals[i]
		obs[i] = models.Observation{Kind: kind, Value: &v, Timestamp: base.AddDate(0, 0, i), Source: "fake"}
	}
	return &models.ObservationBatch{Kind: kind, Source: "fake", Observations: obs}
}

func newService(t *testing.T, adapter *fakeAdapter, store *fakeStore, cache *fakeCache, cfg PipelineConfig) *IndicatorService {
	t.Helper()
	l := testLogger(t)
	approx := NewApproximator(store, cfg.StalenessCeiling, l)
	svc := NewIndicatorService([]drepo.SourceAdapter{adapter}, store, cache, approx, nil, fakeMetrics{}, cfg, l)
	t.Cleanup(svc.Close)
	return svc
}

// --- tests ---

func TestSnapshot_FreshnessWindowSkipsUpstream(t *testing.T) {
	adapter := &fakeAdapter{kind: models.PutCallRatio, batch: batchOf(models.PutCallRatio, 0.85, 0.65)}
	svc := newService(t, adapter, newFakeStore(), newFakeCache(), PipelineConfig{FreshnessWindow: time.Hour})

	first, err := svc.Snapshot(context.Background(), models.PutCallRatio)
	if err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	second, err := svc.Snapshot(context.Background(), models.PutCallRatio)
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if adapter.callCount() != 1 {
		t.Errorf("expected exactly 1 upstream call inside freshness window, got %d", adapter.callCount())
	}
	if first != second {
		t.Error("expected the cached snapshot to be returned unchanged")
	}
}

func TestRefresh_BypassesFreshnessWindow(t *testing.T) {
	adapter := &fakeAdapter{kind: models.PutCallRatio, batch: batchOf(models.PutCallRatio, 0.85, 0.65)}
	svc := newService(t, adapter, newFakeStore(), newFakeCache(), PipelineConfig{FreshnessWindow: time.Hour})

	if _, err := svc.Snapshot(context.Background(), models.PutCallRatio); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := svc.Refresh(context.Background(), models.PutCallRatio); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if adapter.callCount() != 2 {
		t.Errorf("expected forced refresh to hit upstream again, got %d calls", adapter.callCount())
	}
}

func TestSnapshot_PutCallScenario(t *testing.T) {
	// Trailing window of 2 over [0.85, 0.65] yields average 0.75.
	adapter := &fakeAdapter{kind: models.PutCallRatio, batch: batchOf(models.PutCallRatio, 0.85, 0.65)}
	svc := newService(t, adapter, newFakeStore(), newFakeCache(), PipelineConfig{TrailingWindow: 2})

	snap, err := svc.Snapshot(context.Background(), models.PutCallRatio)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Status != models.StatusNormal {
		t.Errorf("expected normal status, got %s", snap.Status)
	}
	if snap.Change == nil || *snap.Change != "-13.3%" {
		t.Errorf("expected change -13.3%%, got %v", snap.Change)
	}
	if snap.IsApproximate {
		t.Error("fresh fetch must not be flagged approximate")
	}
	if len(snap.History) != 2 {
		t.Errorf("expected 2 history points, got %d", len(snap.History))
	}
}

func TestSnapshot_YieldInversionScenario(t *testing.T) {
	adapter := &fakeAdapter{kind: models.YieldCurveSpread, batch: batchOf(models.YieldCurveSpread, 0.01, -0.002)}
	svc := newService(t, adapter, newFakeStore(), newFakeCache(), PipelineConfig{})

	snap, err := svc.Snapshot(context.Background(), models.YieldCurveSpread)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Status != models.StatusDanger {
		t.Errorf("expected danger for inverted curve, got %s", snap.Status)
	}
}

func TestSnapshot_WritesThroughToStore(t *testing.T) {
	store := newFakeStore()
	adapter := &fakeAdapter{kind: models.PutCallRatio, batch: batchOf(models.PutCallRatio, 0.85, 0.65)}
	svc := newService(t, adapter, store, newFakeCache(), PipelineConfig{})

	if _, err := svc.Snapshot(context.Background(), models.PutCallRatio); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.intraday) != 1 {
		t.Errorf("expected 1 intraday row, got %d", len(store.intraday))
	}
	if len(store.sparkline) != len(drepo.AllTimeframes()) {
		t.Errorf("expected one sparkline point per timeframe, got %d", len(store.sparkline))
	}
	if len(store.daily) != 0 {
		t.Error("indicator service must not write the daily tier")
	}
}

func TestSnapshot_StoreWriteFailureStillServes(t *testing.T) {
	store := newFakeStore()
	store.failWrites = true
	adapter := &fakeAdapter{kind: models.PutCallRatio, batch: batchOf(models.PutCallRatio, 0.85, 0.65)}
	svc := newService(t, adapter, store, newFakeCache(), PipelineConfig{})

	snap, err := svc.Snapshot(context.Background(), models.PutCallRatio)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Value == nil || *snap.Value != 0.65 {
		t.Errorf("expected computed snapshot despite store failure, got %v", snap.Value)
	}
	if snap.IsApproximate || snap.Status == models.StatusError {
		t.Error("store write failure must not degrade the snapshot")
	}
}

func TestSnapshot_UpstreamFailureNoCache(t *testing.T) {
	adapter := &fakeAdapter{
		kind: models.PutCallRatio,
		err:  models.NewFetchError(models.FetchUnreachable, "fake", errors.New("dial tcp: refused")),
	}
	svc := newService(t, adapter, newFakeStore(), newFakeCache(), PipelineConfig{})

	snap, err := svc.Snapshot(context.Background(), models.PutCallRatio)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.IsApproximate {
		t.Error("degraded snapshot must be flagged approximate")
	}
	if snap.Status != models.StatusError || snap.Value != nil {
		t.Errorf("expected error placeholder, got status=%s value=%v", snap.Status, snap.Value)
	}
	if snap.Error == "" {
		t.Error("expected an explanatory error note")
	}
}

func TestSnapshot_UpstreamFailureServesLastGood(t *testing.T) {
	cache := newFakeCache()
	v := 0.72
	cache.snaps[models.PutCallRatio] = &models.Snapshot{
		Kind:      models.PutCallRatio,
		Value:     &v,
		Status:    models.StatusNormal,
		FetchedAt: time.Now().UTC().Add(-10 * time.Minute),
		Source:    "fake",
	}
	adapter := &fakeAdapter{
		kind: models.PutCallRatio,
		err:  models.NewFetchError(models.FetchBadStatus, "fake", nil),
	}
	svc := newService(t, adapter, newFakeStore(), cache, PipelineConfig{StalenessCeiling: time.Hour})

	snap, err := svc.Snapshot(context.Background(), models.PutCallRatio)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.IsApproximate {
		t.Error("last-good fallback must be flagged approximate")
	}
	if snap.Value == nil || *snap.Value != 0.72 {
		t.Errorf("expected last-good value 0.72, got %v", snap.Value)
	}
	if snap.Status != models.StatusNormal {
		t.Errorf("expected last-good status preserved, got %s", snap.Status)
	}
}

func TestSnapshot_InsufficientHistoryDegrades(t *testing.T) {
	adapter := &fakeAdapter{kind: models.PutCallRatio, batch: batchOf(models.PutCallRatio, 0.9)}
	svc := newService(t, adapter, newFakeStore(), newFakeCache(), PipelineConfig{MinHistory: 2})

	snap, err := svc.Snapshot(context.Background(), models.PutCallRatio)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.IsApproximate {
		t.Error("insufficient history must degrade to the approximate path")
	}
}

func TestSnapshot_SingleInFlightFetch(t *testing.T) {
	adapter := &fakeAdapter{
		kind:  models.PutCallRatio,
		batch: batchOf(models.PutCallRatio, 0.85, 0.65),
		delay: 50 * time.Millisecond,
	}
	svc := newService(t, adapter, newFakeStore(), newFakeCache(), PipelineConfig{})

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := svc.Snapshot(context.Background(), models.PutCallRatio); err != nil {
				t.Errorf("concurrent snapshot: %v", err)
			}
		}()
	}
	wg.Wait()
	if adapter.callCount() != 1 {
		t.Errorf("expected a single upstream fetch for %d concurrent readers, got %d", n, adapter.callCount())
	}
}

func TestSnapshot_UnknownKind(t *testing.T) {
	adapter := &fakeAdapter{kind: models.PutCallRatio, batch: batchOf(models.PutCallRatio, 0.85, 0.65)}
	svc := newService(t, adapter, newFakeStore(), newFakeCache(), PipelineConfig{})

	if _, err := svc.Snapshot(context.Background(), models.IndicatorKind("vix")); !errors.Is(err, ErrUnknownIndicator) {
		t.Fatalf("expected ErrUnknownIndicator, got %v", err)
	}
}
