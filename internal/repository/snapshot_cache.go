package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	icache "MarketPulse/internal/service/cache"
)

// lastGoodSnapshot is the cached wire form of a snapshot; Kind does not
// survive the snapshot's own JSON shape, so it is carried alongside.
type lastGoodSnapshot struct {
	Kind     models.IndicatorKind `json:"kind"`
	Snapshot *models.Snapshot     `json:"snapshot"`
}

// SnapshotCacheStore implements SnapshotCache over a BytesCache, which is
// either Redis (shared across restarts and instances) or the in-process TTL
// cache when Redis is disabled.
type SnapshotCacheStore struct {
	cache  icache.BytesCache
	prefix string
}

// NewSnapshotCacheStore creates the last-known-good snapshot cache.
func NewSnapshotCacheStore(cache icache.BytesCache) *SnapshotCacheStore {
	return &SnapshotCacheStore{cache: cache, prefix: "marketpulse:lastgood:"}
}

func (s *SnapshotCacheStore) key(kind models.IndicatorKind) string {
	return s.prefix + string(kind)
}

// Get returns the cached snapshot for kind, or (nil, nil) on a miss.
func (s *SnapshotCacheStore) Get(ctx context.Context, kind models.IndicatorKind) (*models.Snapshot, error) {
	b, ok, err := s.cache.GetBytes(s.key(kind))
	if err != nil {
		return nil, fmt.Errorf("snapshot cache get: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var wrapped lastGoodSnapshot
	if err := json.Unmarshal(b, &wrapped); err != nil {
		// A corrupt entry is equivalent to a miss.
		return nil, nil
	}
	if wrapped.Snapshot != nil {
		wrapped.Snapshot.Kind = wrapped.Kind
	}
	return wrapped.Snapshot, nil
}

// Set stores snap as the last known good value for its indicator.
func (s *SnapshotCacheStore) Set(ctx context.Context, snap *models.Snapshot, ttl time.Duration) error {
	b, err := json.Marshal(lastGoodSnapshot{Kind: snap.Kind, Snapshot: snap})
	if err != nil {
		return fmt.Errorf("snapshot cache marshal: %w", err)
	}
	if err := s.cache.SetBytes(s.key(snap.Kind), b, ttl); err != nil {
		return fmt.Errorf("snapshot cache set: %w", err)
	}
	return nil
}
