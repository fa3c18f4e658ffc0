package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
)

func TestApproximate_RecentLastGood(t *testing.T) {
	a := NewApproximator(newFakeStore(), 24*time.Hour, testLogger(t))
	v := 0.68
	last := &models.Snapshot{
		Kind:      models.PutCallRatio,
		Value:     &v,
		Status:    models.StatusNormal,
		FetchedAt: time.Now().UTC().Add(-2 * time.Hour),
	}

	snap := a.Approximate(context.Background(), models.PutCallRatio, last, nil)
	if !snap.IsApproximate {
		t.Error("expected approximate flag")
	}
	if snap.Value == nil || *snap.Value != 0.68 {
		t.Errorf("expected last-good value preserved, got %v", snap.Value)
	}
	if snap.Error == "" {
		t.Error("expected explanatory note")
	}
	if last.IsApproximate {
		t.Error("input snapshot must not be mutated")
	}
}

func TestApproximate_StaleLastGoodFallsToStore(t *testing.T) {
	store := newFakeStore()
	today := models.Day(time.Now())
	if err := store.UpsertDaily(context.Background(), models.YieldCurveSpread, today, -0.1, models.StatusDanger); err != nil {
		t.Fatalf("seed daily: %v", err)
	}
	a := NewApproximator(store, 24*time.Hour, testLogger(t))
	v := 0.5
	stale := &models.Snapshot{
		Kind:      models.YieldCurveSpread,
		Value:     &v,
		FetchedAt: time.Now().UTC().Add(-48 * time.Hour),
	}

	snap := a.Approximate(context.Background(), models.YieldCurveSpread, stale, nil)
	if !snap.IsApproximate {
		t.Error("expected approximate flag")
	}
	if snap.Value == nil || *snap.Value != -0.1 {
		t.Errorf("expected store-rebuilt value -0.1, got %v", snap.Value)
	}
	if snap.Status != models.StatusDanger {
		t.Errorf("expected reclassified danger status, got %s", snap.Status)
	}
	if snap.Source != "store" {
		t.Errorf("expected store source label, got %q", snap.Source)
	}
}

func TestApproximate_NothingAvailable(t *testing.T) {
	a := NewApproximator(newFakeStore(), 24*time.Hour, testLogger(t))

	snap := a.Approximate(context.Background(), models.PutCallRatio, nil, models.NewFetchError(models.FetchUnreachable, "cboe", nil))
	if snap.Value != nil {
		t.Errorf("placeholder must not fabricate a value, got %v", snap.Value)
	}
	if snap.Status != models.StatusError || !snap.IsApproximate {
		t.Errorf("expected error-status approximate placeholder, got status=%s approx=%v", snap.Status, snap.IsApproximate)
	}
	if !strings.Contains(snap.Error, "unreachable") {
		t.Errorf("expected cause in error note, got %q", snap.Error)
	}
}

func TestApproximate_StoreReadFailureIsNoData(t *testing.T) {
	store := newFakeStore()
	store.failReads = true
	a := NewApproximator(store, 24*time.Hour, testLogger(t))

	snap := a.Approximate(context.Background(), models.PutCallRatio, nil, nil)
	if snap.Status != models.StatusError || snap.Value != nil {
		t.Errorf("store read failure must fall through to placeholder, got status=%s value=%v", snap.Status, snap.Value)
	}
}
