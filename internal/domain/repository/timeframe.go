package repository

// Timeframe is a sparkline chart bucket.
type Timeframe string

const (
	TF30d  Timeframe = "30d"
	TF90d  Timeframe = "90d"
	TF180d Timeframe = "180d"
	TF1y   Timeframe = "1y"
	TF2y   Timeframe = "2y"
	TF5y   Timeframe = "5y"
)

// retention bounds each bucket's window in calendar days. Older points are
// superseded, never pruned by the pipeline.
var retention = map[Timeframe]int{
	TF30d:  30,
	TF90d:  90,
	TF180d: 180,
	TF1y:   365,
	TF2y:   730,
	TF5y:   1825,
}

// AllTimeframes lists every sparkline bucket, shortest window first.
func AllTimeframes() []Timeframe {
	return []Timeframe{TF30d, TF90d, TF180d, TF1y, TF2y, TF5y}
}

// RetentionDays returns the bucket's window size in calendar days.
func RetentionDays(tf Timeframe) int {
	return retention[tf]
}

// IsValidTimeframe returns true if tf is a supported bucket.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := retention[tf]
	return ok
}

// DefaultTimeframe returns the bucket served when none is requested.
func DefaultTimeframe() Timeframe { return TF30d }

// NormalizeTimeframe converts a raw string to a valid bucket (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}
