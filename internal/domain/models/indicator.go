package models

import "time"

// IndicatorKind identifies a tracked market-sentiment indicator.
type IndicatorKind string

const (
	PutCallRatio     IndicatorKind = "put-call-ratio"
	YieldCurveSpread IndicatorKind = "yield-curve-spread"
)

// AllKinds lists every indicator the pipeline tracks.
func AllKinds() []IndicatorKind {
	return []IndicatorKind{PutCallRatio, YieldCurveSpread}
}

// IsValidKind returns true if k is a tracked indicator.
func IsValidKind(k IndicatorKind) bool {
	switch k {
	case PutCallRatio, YieldCurveSpread:
		return true
	default:
		return false
	}
}

// Status is the discrete classification band of an indicator value.
type Status string

const (
	StatusNormal  Status = "normal"
	StatusWarning Status = "warning"
	StatusDanger  Status = "danger"
	StatusError   Status = "error"
)

// Observation is one raw or normalized reading from an upstream provider.
// Immutable once created; a nil Value marks a date the provider reported
// without data.
type Observation struct {
	Kind      IndicatorKind
	Value     *float64
	Timestamp time.Time
	Source    string
}

// ObservationBatch is the normalized result of one upstream fetch,
// observations sorted timestamp-ascending.
type ObservationBatch struct {
	Kind         IndicatorKind
	Source       string
	Observations []Observation
}

// Latest returns the most recent observation carrying a value, or nil.
func (b *ObservationBatch) Latest() *Observation {
	for i := len(b.Observations) - 1; i >= 0; i-- {
		if b.Observations[i].Value != nil {
			return &b.Observations[i]
		}
	}
	return nil
}

// Values returns the non-nil observation values, oldest first.
func (b *ObservationBatch) Values() []float64 {
	out := make([]float64, 0, len(b.Observations))
	for _, o := range b.Observations {
		if o.Value != nil {
			out = append(out, *o.Value)
		}
	}
	return out
}

// HistoryPoint is one dated value in a snapshot's short history.
type HistoryPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Snapshot is the current servable view of an indicator. It is rebuilt whole
// on every refresh and never partially mutated.
type Snapshot struct {
	Kind            IndicatorKind  `json:"-"`
	Value           *float64       `json:"value"`
	TrailingAverage *float64       `json:"trailingAverage"`
	Status          Status         `json:"status"`
	Change          *string        `json:"change,omitempty"`
	History         []HistoryPoint `json:"history"`
	IsApproximate   bool           `json:"isApproximate"`
	Source          string         `json:"source"`
	FetchedAt       time.Time      `json:"lastUpdated"`
	Error           string         `json:"error,omitempty"`
}

// Age returns how long ago the snapshot was fetched.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// ErrorSnapshot builds the neutral placeholder served when no data, fresh or
// approximate, is available for an indicator.
func ErrorSnapshot(kind IndicatorKind, now time.Time, reason string) *Snapshot {
	return &Snapshot{
		Kind:          kind,
		Status:        StatusError,
		History:       []HistoryPoint{},
		IsApproximate: true,
		FetchedAt:     now,
		Error:         reason,
	}
}
