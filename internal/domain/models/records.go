package models

import "time"

// DateLayout is the calendar-date key format used across all store tiers.
const DateLayout = "2006-01-02"

// IntradayRecord is one same-day observation row. Append-only within a day;
// the end-of-day recorder reads the latest row and commits it as the daily
// record.
type IntradayRecord struct {
	Kind      IndicatorKind
	Timestamp time.Time
	Value     float64
	Status    Status
}

// DailyRecord is the committed summary value for one calendar day, at most
// one per (indicator, date).
type DailyRecord struct {
	Kind      IndicatorKind
	Date      string
	Value     float64
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SparklinePoint is one chart bucket row, unique per
// (indicator, timeframe, date).
type SparklinePoint struct {
	Kind      IndicatorKind
	Date      string
	Timeframe string
	Value     float64
}

// Day truncates t to its calendar-date key in UTC.
func Day(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
