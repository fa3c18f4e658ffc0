package repository

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
)

// SourceAdapter fetches and normalizes raw observations from one upstream
// provider for one indicator. It never writes to the store; failures are
// reported as *models.FetchError.
type SourceAdapter interface {
	Kind() models.IndicatorKind
	Name() string
	FetchLatest(ctx context.Context) (*models.ObservationBatch, error)
}

// TimeSeriesStore is the three-tier persistence access layer. All writes are
// upserts: a crashed write followed by a retry must not produce duplicate
// rows.
type TimeSeriesStore interface {
	UpsertIntraday(ctx context.Context, kind models.IndicatorKind, ts time.Time, value float64, status models.Status) error
	UpsertDaily(ctx context.Context, kind models.IndicatorKind, date string, value float64, status models.Status) error
	UpsertSparkline(ctx context.Context, kind models.IndicatorKind, date string, tf Timeframe, value float64) error
	LatestIntraday(ctx context.Context, kind models.IndicatorKind, date string) (*models.IntradayRecord, error)
	QueryDaily(ctx context.Context, kind models.IndicatorKind, from, to string) ([]models.DailyRecord, error)
	QuerySparkline(ctx context.Context, kind models.IndicatorKind, tf Timeframe, limit int) ([]models.SparklinePoint, error)
	Health(ctx context.Context) error
	Close() error
}

// SnapshotCache holds the last-known-good snapshot per indicator, shared
// across service restarts when backed by Redis. A miss returns (nil, nil).
type SnapshotCache interface {
	Get(ctx context.Context, kind models.IndicatorKind) (*models.Snapshot, error)
	Set(ctx context.Context, snap *models.Snapshot, ttl time.Duration) error
}

// Publisher emits fresh classified observations for downstream consumers.
// Publish failures never block the serving path.
type Publisher interface {
	PublishObservation(ctx context.Context, snap *models.Snapshot) error
	Close() error
}

// Metrics records pipeline observability signals.
type Metrics interface {
	RecordFetch(kind string, outcome string)
	RecordApproximation(kind string)
	RecordStoreError(op string)
	RecordLastValue(kind string, value float64)
	RecordLatency(op string, seconds float64)
}
