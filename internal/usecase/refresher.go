package usecase

import (
	"context"
	"time"

	applogger "MarketPulse/pkg/logger"
)

// Refresher forces a periodic refresh of every indicator so snapshots stay
// warm between client reads. Cancellable via Stop or the parent context.
type Refresher struct {
	svc      *IndicatorService
	interval time.Duration
	l        *applogger.Logger
	cancel   context.CancelFunc
}

// NewRefresher creates the periodic refresher.
func NewRefresher(svc *IndicatorService, interval time.Duration, l *applogger.Logger) *Refresher {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Refresher{svc: svc, interval: interval, l: l}
}

// Start launches the refresh loop. The first pass runs immediately so the
// service comes up warm.
func (r *Refresher) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
}

func (r *Refresher) loop(ctx context.Context) {
	r.refreshAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshAll(ctx)
		}
	}
}

func (r *Refresher) refreshAll(ctx context.Context) {
	for _, kind := range r.svc.Kinds() {
		snap, err := r.svc.Refresh(ctx, kind)
		if err != nil {
			r.l.Warn("periodic refresh failed",
				applogger.String("indicator", string(kind)),
				applogger.Error(err),
			)
			continue
		}
		if snap.IsApproximate {
			r.l.Warn("periodic refresh degraded to approximate",
				applogger.String("indicator", string(kind)),
			)
		}
	}
}

// Stop cancels the refresh loop.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}
