package usecase

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/services/classify"
	applogger "MarketPulse/pkg/logger"
)

// Approximator synthesizes a fallback snapshot when the upstream source is
// unavailable or returned insufficient data. Its output is always flagged
// approximate; it never fabricates a plausible number.
type Approximator struct {
	store   drepo.TimeSeriesStore
	ceiling time.Duration
	l       *applogger.Logger
}

// NewApproximator creates the approximation engine. ceiling bounds how old a
// last-known-good snapshot may be before it is refused.
func NewApproximator(store drepo.TimeSeriesStore, ceiling time.Duration, l *applogger.Logger) *Approximator {
	if ceiling <= 0 {
		ceiling = 24 * time.Hour
	}
	return &Approximator{store: store, ceiling: ceiling, l: l}
}

// Approximate builds the degraded snapshot for kind. Preference order:
// a recent last-known-good snapshot, a daily record from the store within the
// ceiling, the neutral error placeholder.
func (a *Approximator) Approximate(ctx context.Context, kind models.IndicatorKind, lastKnownGood *models.Snapshot, cause error) *models.Snapshot {
	now := time.Now().UTC()
	note := "live fetch failed, serving approximate data"
	if cause != nil {
		note = fmt.Sprintf("live fetch failed (%v), serving approximate data", cause)
	}

	if lastKnownGood != nil && lastKnownGood.Age(now) <= a.ceiling {
		snap := *lastKnownGood
		snap.Kind = kind
		snap.IsApproximate = true
		snap.Error = note
		return &snap
	}

	if snap := a.fromStore(ctx, kind, now, note); snap != nil {
		return snap
	}

	return models.ErrorSnapshot(kind, now, note)
}

// fromStore rebuilds a degraded snapshot from the daily tier. A store read
// failure here means "no data" and falls through to the placeholder.
func (a *Approximator) fromStore(ctx context.Context, kind models.IndicatorKind, now time.Time, note string) *models.Snapshot {
	from := models.Day(now.Add(-a.ceiling))
	records, err := a.store.QueryDaily(ctx, kind, from, models.Day(now))
	if err != nil {
		if a.l != nil {
			a.l.Warn("approximation store read failed",
				applogger.String("indicator", string(kind)),
				applogger.Error(err),
			)
		}
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	last := records[len(records)-1]
	v := last.Value
	history := make([]models.HistoryPoint, 0, len(records))
	for _, r := range records {
		history = append(history, models.HistoryPoint{Date: r.Date, Value: r.Value})
	}
	return &models.Snapshot{
		Kind:          kind,
		Value:         &v,
		Status:        classify.Classify(&v, nil, kind),
		History:       history,
		IsApproximate: true,
		Source:        "store",
		FetchedAt:     now,
		Error:         note,
	}
}
