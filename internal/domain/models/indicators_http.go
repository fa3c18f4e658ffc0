package models

// SnapshotRequest binds the snapshot read endpoint parameters.
type SnapshotRequest struct {
	Kind      string `param:"kind" validate:"required"`
	Timeframe string `query:"tf" default:"30d"`
	// CacheBust is the client's cache-defeating parameter; accepted and ignored.
	CacheBust string `query:"_ts"`
}

// RefreshRequest binds the forced-refresh endpoint parameters.
type RefreshRequest struct {
	Kind string `param:"kind" validate:"required"`
}
