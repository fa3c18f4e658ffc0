package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	applogger "MarketPulse/pkg/logger"
)

// ErrNoIntradayData marks an end-of-day run finding no observations for
// today. Fatal to that run only; nothing is written.
var ErrNoIntradayData = errors.New("no intraday data for today")

// EODRecorder commits the latest intraday value of the current calendar day
// as the immutable daily record. It never fetches upstream.
type EODRecorder struct {
	store   drepo.TimeSeriesStore
	kinds   []models.IndicatorKind
	metrics drepo.Metrics
	l       *applogger.Logger
}

// NewEODRecorder creates the recorder for the given indicators.
func NewEODRecorder(store drepo.TimeSeriesStore, kinds []models.IndicatorKind, metrics drepo.Metrics, l *applogger.Logger) *EODRecorder {
	if len(kinds) == 0 {
		kinds = models.AllKinds()
	}
	return &EODRecorder{store: store, kinds: kinds, metrics: metrics, l: l}
}

// RecordToday commits today's daily record for one indicator. Idempotent:
// re-running upserts the same (indicator, date) key, last observation wins.
func (r *EODRecorder) RecordToday(ctx context.Context, kind models.IndicatorKind) error {
	today := models.Day(time.Now())

	rec, err := r.store.LatestIntraday(ctx, kind, today)
	if err != nil {
		r.recordErr("latest_intraday")
		return fmt.Errorf("read intraday %s: %w", kind, err)
	}
	if rec == nil {
		return fmt.Errorf("%s: %w", kind, ErrNoIntradayData)
	}

	if err := r.store.UpsertDaily(ctx, kind, today, rec.Value, rec.Status); err != nil {
		r.recordErr("upsert_daily")
		return fmt.Errorf("commit daily %s: %w", kind, err)
	}
	if r.l != nil {
		r.l.Info("daily record committed",
			applogger.String("indicator", string(kind)),
			applogger.String("date", today),
			applogger.Any("value", rec.Value),
		)
	}
	return nil
}

// RecordAll runs RecordToday for every configured indicator and joins the
// failures; one indicator's failure does not block the others.
func (r *EODRecorder) RecordAll(ctx context.Context) error {
	var errs []error
	for _, kind := range r.kinds {
		if err := r.RecordToday(ctx, kind); err != nil {
			if r.l != nil {
				r.l.Error("end-of-day record failed",
					applogger.String("indicator", string(kind)),
					applogger.Error(err),
				)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *EODRecorder) recordErr(op string) {
	if r.metrics != nil {
		r.metrics.RecordStoreError(op)
	}
}
