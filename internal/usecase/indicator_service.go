package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/services/classify"
	applogger "MarketPulse/pkg/logger"
)

// PipelineConfig carries the indicator service tuning knobs.
type PipelineConfig struct {
	FreshnessWindow  time.Duration // max snapshot age before a read re-fetches
	StalenessCeiling time.Duration // max age of a last-good snapshot served as approximate
	TrailingWindow   int           // observations averaged for the trailing mean
	MinHistory       int           // minimum observations for a batch to count as sufficient
	HistoryLength    int           // points served in the snapshot history
}

func (c *PipelineConfig) applyDefaults() {
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = time.Hour
	}
	if c.StalenessCeiling <= 0 {
		c.StalenessCeiling = 24 * time.Hour
	}
	if c.TrailingWindow <= 0 {
		c.TrailingWindow = 20
	}
	if c.MinHistory <= 0 {
		c.MinHistory = 2
	}
	if c.HistoryLength <= 0 {
		c.HistoryLength = 30
	}
}

// fetchCall is one in-flight upstream fetch; concurrent callers for the same
// indicator block on done instead of issuing their own fetch.
type fetchCall struct {
	done chan struct{}
	snap *models.Snapshot
	err  error
}

// IndicatorService is the pipeline control core: freshness-window reads,
// fetch-classify-persist on miss, approximation on failure.
type IndicatorService struct {
	adapters map[models.IndicatorKind]drepo.SourceAdapter
	store    drepo.TimeSeriesStore
	lastGood drepo.SnapshotCache
	approx   *Approximator
	pub      drepo.Publisher // optional
	metrics  drepo.Metrics
	cfg      PipelineConfig
	l        *applogger.Logger

	mu       sync.Mutex
	snaps    map[models.IndicatorKind]*models.Snapshot
	inflight map[models.IndicatorKind]*fetchCall

	ctx    context.Context
	cancel context.CancelFunc
}

// NewIndicatorService creates the service. pub may be nil.
func NewIndicatorService(
	adapters []drepo.SourceAdapter,
	store drepo.TimeSeriesStore,
	lastGood drepo.SnapshotCache,
	approx *Approximator,
	pub drepo.Publisher,
	metrics drepo.Metrics,
	cfg PipelineConfig,
	l *applogger.Logger,
) *IndicatorService {
	cfg.applyDefaults()
	byKind := make(map[models.IndicatorKind]drepo.SourceAdapter, len(adapters))
	for _, a := range adapters {
		byKind[a.Kind()] = a
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &IndicatorService{
		adapters: byKind,
		store:    store,
		lastGood: lastGood,
		approx:   approx,
		pub:      pub,
		metrics:  metrics,
		cfg:      cfg,
		l:        l,
		snaps:    make(map[models.IndicatorKind]*models.Snapshot),
		inflight: make(map[models.IndicatorKind]*fetchCall),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ErrUnknownIndicator is returned for kinds the service does not track.
var ErrUnknownIndicator = errors.New("unknown indicator")

// Snapshot returns the indicator's current snapshot, serving the cached one
// untouched while it is inside the freshness window.
func (s *IndicatorService) Snapshot(ctx context.Context, kind models.IndicatorKind) (*models.Snapshot, error) {
	return s.snapshot(ctx, kind, false)
}

// Refresh bypasses the freshness window and always fetches upstream.
func (s *IndicatorService) Refresh(ctx context.Context, kind models.IndicatorKind) (*models.Snapshot, error) {
	return s.snapshot(ctx, kind, true)
}

// Cached returns the in-memory snapshot without triggering any I/O, or nil.
func (s *IndicatorService) Cached(kind models.IndicatorKind) *models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[kind]
}

// Kinds lists the indicators the service is configured with.
func (s *IndicatorService) Kinds() []models.IndicatorKind {
	kinds := make([]models.IndicatorKind, 0, len(s.adapters))
	for _, k := range models.AllKinds() {
		if _, ok := s.adapters[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// History serves chart points for a timeframe bucket from the sparkline tier.
func (s *IndicatorService) History(ctx context.Context, kind models.IndicatorKind, tf drepo.Timeframe) ([]models.HistoryPoint, error) {
	if _, ok := s.adapters[kind]; !ok {
		return nil, ErrUnknownIndicator
	}
	points, err := s.store.QuerySparkline(ctx, kind, tf, drepo.RetentionDays(tf))
	if err != nil {
		s.metrics.RecordStoreError("query_sparkline")
		return nil, err
	}
	out := make([]models.HistoryPoint, len(points))
	for i, p := range points {
		out[i] = models.HistoryPoint{Date: p.Date, Value: p.Value}
	}
	return out, nil
}

func (s *IndicatorService) snapshot(ctx context.Context, kind models.IndicatorKind, force bool) (*models.Snapshot, error) {
	if _, ok := s.adapters[kind]; !ok {
		return nil, ErrUnknownIndicator
	}

	s.mu.Lock()
	if !force {
		if snap := s.snaps[kind]; snap != nil && snap.Age(time.Now()) < s.cfg.FreshnessWindow {
			s.mu.Unlock()
			return snap, nil
		}
	}
	if call := s.inflight[kind]; call != nil {
		s.mu.Unlock()
		return s.await(ctx, call)
	}
	call := &fetchCall{done: make(chan struct{})}
	s.inflight[kind] = call
	s.mu.Unlock()

	// The fetch runs under the service context so a completed result is
	// cached even if the initiating request goes away; waiters observe their
	// own context.
	go s.run(kind, call)
	return s.await(ctx, call)
}

func (s *IndicatorService) await(ctx context.Context, call *fetchCall) (*models.Snapshot, error) {
	select {
	case <-call.done:
		return call.snap, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *IndicatorService) run(kind models.IndicatorKind, call *fetchCall) {
	defer func() {
		s.mu.Lock()
		if s.inflight[kind] == call {
			delete(s.inflight, kind)
		}
		if call.snap != nil {
			s.snaps[kind] = call.snap
		}
		s.mu.Unlock()
		close(call.done)
	}()

	if err := s.ctx.Err(); err != nil {
		call.err = err
		return
	}
	call.snap = s.fetchAndBuild(s.ctx, kind)
}

// fetchAndBuild runs the full fetch → classify → persist cycle, degrading to
// the approximation path on any upstream problem. It always produces a
// well-formed snapshot.
func (s *IndicatorService) fetchAndBuild(ctx context.Context, kind models.IndicatorKind) *models.Snapshot {
	adapter := s.adapters[kind]
	start := time.Now()

	batch, err := adapter.FetchLatest(ctx)
	s.metrics.RecordLatency("fetch", time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordFetch(string(kind), fetchOutcome(err))
		s.l.Warn("upstream fetch failed",
			applogger.String("indicator", string(kind)),
			applogger.Error(err),
		)
		return s.degrade(ctx, kind, err)
	}

	vals := batch.Values()
	latest := batch.Latest()
	if latest == nil || len(vals) < s.cfg.MinHistory {
		err := models.NewFetchError(models.FetchEmpty, batch.Source, nil)
		s.metrics.RecordFetch(string(kind), string(models.FetchEmpty))
		s.l.Warn("upstream returned insufficient history",
			applogger.String("indicator", string(kind)),
			applogger.Int("observations", len(vals)),
		)
		return s.degrade(ctx, kind, err)
	}
	s.metrics.RecordFetch(string(kind), "ok")

	avg := classify.TrailingAverage(vals, s.cfg.TrailingWindow)
	status := classify.Classify(latest.Value, avg, kind)
	snap := &models.Snapshot{
		Kind:            kind,
		Value:           latest.Value,
		TrailingAverage: avg,
		Status:          status,
		Change:          classify.FormatChange(latest.Value, avg),
		History:         buildHistory(batch, s.cfg.HistoryLength),
		Source:          batch.Source,
		FetchedAt:       time.Now().UTC(),
	}
	s.metrics.RecordLastValue(string(kind), *latest.Value)

	s.persist(ctx, snap, latest)

	if err := s.lastGood.Set(ctx, snap, s.cfg.StalenessCeiling); err != nil {
		s.l.Warn("last-good cache write failed",
			applogger.String("indicator", string(kind)),
			applogger.Error(err),
		)
	}
	if s.pub != nil {
		if err := s.pub.PublishObservation(ctx, snap); err != nil {
			s.l.Warn("observation publish failed",
				applogger.String("indicator", string(kind)),
				applogger.Error(err),
			)
		}
	}
	return snap
}

// persist writes the fresh observation through to the intraday and sparkline
// tiers. Failures are log-only: a computed snapshot is always served.
func (s *IndicatorService) persist(ctx context.Context, snap *models.Snapshot, latest *models.Observation) {
	if err := s.store.UpsertIntraday(ctx, snap.Kind, snap.FetchedAt, *snap.Value, snap.Status); err != nil {
		s.metrics.RecordStoreError("upsert_intraday")
		s.l.Error("intraday write failed",
			applogger.String("indicator", string(snap.Kind)),
			applogger.Error(err),
		)
	}
	date := models.Day(latest.Timestamp)
	for _, tf := range drepo.AllTimeframes() {
		if err := s.store.UpsertSparkline(ctx, snap.Kind, date, tf, *snap.Value); err != nil {
			s.metrics.RecordStoreError("upsert_sparkline")
			s.l.Error("sparkline write failed",
				applogger.String("indicator", string(snap.Kind)),
				applogger.String("timeframe", string(tf)),
				applogger.Error(err),
			)
			break // one failed tier write is enough noise per cycle
		}
	}
}

// degrade produces the approximate (or error-status) snapshot. Approximate
// data is never written to any store tier.
func (s *IndicatorService) degrade(ctx context.Context, kind models.IndicatorKind, cause error) *models.Snapshot {
	var last *models.Snapshot
	if cached, err := s.lastGood.Get(ctx, kind); err == nil {
		last = cached
	} else {
		s.l.Warn("last-good cache read failed, treating as miss",
			applogger.String("indicator", string(kind)),
			applogger.Error(err),
		)
	}
	s.metrics.RecordApproximation(string(kind))
	return s.approx.Approximate(ctx, kind, last, cause)
}

// Close tears the service down: the periodic and in-flight fetches are
// cancelled and waiters are released.
func (s *IndicatorService) Close() {
	s.cancel()
}

func buildHistory(batch *models.ObservationBatch, limit int) []models.HistoryPoint {
	points := make([]models.HistoryPoint, 0, limit)
	for _, o := range batch.Observations {
		if o.Value == nil {
			continue
		}
		points = append(points, models.HistoryPoint{Date: models.Day(o.Timestamp), Value: *o.Value})
	}
	if len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points
}

func fetchOutcome(err error) string {
	var fe *models.FetchError
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	return "error"
}
