package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	pkgch "MarketPulse/pkg/clickhouse"
	applogger "MarketPulse/pkg/logger"
)

// CHTimeSeriesStore implements TimeSeriesStore backed by ClickHouse.
//
// All three tiers use Replacing engines keyed on the tier's logical key, so a
// retried write collapses to one row on merge and reads use FINAL. That is
// what makes every Upsert idempotent without client-side read-modify-write.
type CHTimeSeriesStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

// NewCHTimeSeriesStore creates the store over an existing ClickHouse client.
func NewCHTimeSeriesStore(ch *pkgch.Client, database string) *CHTimeSeriesStore {
	return &CHTimeSeriesStore{db: ch.DB(), database: database}
}

// SetLogger injects a structured logger.
func (s *CHTimeSeriesStore) SetLogger(l *applogger.Logger) { s.l = l }

// SchemaStatements returns the idempotent DDL for the store's tables. Table
// existence is a startup precondition; nothing here runs at request time.
func SchemaStatements(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.intraday (
			indicator LowCardinality(String),
			ts DateTime,
			value Float64,
			status LowCardinality(String)
		) ENGINE = ReplacingMergeTree ORDER BY (indicator, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.daily (
			indicator LowCardinality(String),
			date Date,
			value Float64,
			status LowCardinality(String),
			created_at DateTime,
			updated_at DateTime
		) ENGINE = ReplacingMergeTree(updated_at) ORDER BY (indicator, date)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.sparkline (
			indicator LowCardinality(String),
			date Date,
			timeframe LowCardinality(String),
			value Float64,
			updated_at DateTime
		) ENGINE = ReplacingMergeTree(updated_at) ORDER BY (indicator, timeframe, date)`, database),
	}
}

func (s *CHTimeSeriesStore) table(name string) string {
	return s.database + "." + name
}

func (s *CHTimeSeriesStore) UpsertIntraday(ctx context.Context, kind models.IndicatorKind, ts time.Time, value float64, status models.Status) error {
	q := fmt.Sprintf("INSERT INTO %s (indicator, ts, value, status) VALUES (?, ?, ?, ?)", s.table("intraday"))
	if _, err := s.db.ExecContext(ctx, q, string(kind), ts.UTC(), value, string(status)); err != nil {
		s.logErr("upsert_intraday", kind, err)
		return fmt.Errorf("upsert intraday: %w", err)
	}
	return nil
}

func (s *CHTimeSeriesStore) UpsertDaily(ctx context.Context, kind models.IndicatorKind, date string, value float64, status models.Status) error {
	now := time.Now().UTC()
	q := fmt.Sprintf("INSERT INTO %s (indicator, date, value, status, created_at, updated_at) VALUES (?, toDate(?), ?, ?, ?, ?)", s.table("daily"))
	if _, err := s.db.ExecContext(ctx, q, string(kind), date, value, string(status), now, now); err != nil {
		s.logErr("upsert_daily", kind, err)
		return fmt.Errorf("upsert daily: %w", err)
	}
	return nil
}

func (s *CHTimeSeriesStore) UpsertSparkline(ctx context.Context, kind models.IndicatorKind, date string, tf domrepo.Timeframe, value float64) error {
	q := fmt.Sprintf("INSERT INTO %s (indicator, date, timeframe, value, updated_at) VALUES (?, toDate(?), ?, ?, ?)", s.table("sparkline"))
	if _, err := s.db.ExecContext(ctx, q, string(kind), date, string(tf), value, time.Now().UTC()); err != nil {
		s.logErr("upsert_sparkline", kind, err)
		return fmt.Errorf("upsert sparkline: %w", err)
	}
	return nil
}

// LatestIntraday returns the most recent row for the given calendar date, or
// nil when the day has no observations.
func (s *CHTimeSeriesStore) LatestIntraday(ctx context.Context, kind models.IndicatorKind, date string) (*models.IntradayRecord, error) {
	q := fmt.Sprintf(`SELECT ts, value, status FROM %s FINAL
		WHERE indicator = ? AND toDate(ts) = toDate(?)
		ORDER BY ts DESC LIMIT 1`, s.table("intraday"))

	var rec models.IntradayRecord
	var status string
	row := s.db.QueryRowContext(ctx, q, string(kind), date)
	if err := row.Scan(&rec.Timestamp, &rec.Value, &status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		s.logErr("latest_intraday", kind, err)
		return nil, fmt.Errorf("latest intraday: %w", err)
	}
	rec.Kind = kind
	rec.Status = models.Status(status)
	return &rec, nil
}

func (s *CHTimeSeriesStore) QueryDaily(ctx context.Context, kind models.IndicatorKind, from, to string) ([]models.DailyRecord, error) {
	q := fmt.Sprintf(`SELECT date, value, status, created_at, updated_at FROM %s FINAL
		WHERE indicator = ? AND date >= toDate(?) AND date <= toDate(?)
		ORDER BY date ASC`, s.table("daily"))

	rows, err := s.db.QueryContext(ctx, q, string(kind), from, to)
	if err != nil {
		s.logErr("query_daily", kind, err)
		return nil, fmt.Errorf("query daily: %w", err)
	}
	defer rows.Close()

	out := make([]models.DailyRecord, 0, 64)
	for rows.Next() {
		var r models.DailyRecord
		var date time.Time
		var status string
		if err := rows.Scan(&date, &r.Value, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			s.logErr("query_daily", kind, err)
			return nil, fmt.Errorf("scan daily: %w", err)
		}
		r.Kind = kind
		r.Date = date.Format(models.DateLayout)
		r.Status = models.Status(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		s.logErr("query_daily", kind, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// QuerySparkline selects the newest limit points of a bucket and returns them
// date-ascending.
func (s *CHTimeSeriesStore) QuerySparkline(ctx context.Context, kind models.IndicatorKind, tf domrepo.Timeframe, limit int) ([]models.SparklinePoint, error) {
	if limit <= 0 || limit > domrepo.RetentionDays(tf) {
		limit = domrepo.RetentionDays(tf)
	}
	q := fmt.Sprintf(`SELECT date, value FROM %s FINAL
		WHERE indicator = ? AND timeframe = ?
		ORDER BY date DESC LIMIT ?`, s.table("sparkline"))

	rows, err := s.db.QueryContext(ctx, q, string(kind), string(tf), limit)
	if err != nil {
		s.logErr("query_sparkline", kind, err)
		return nil, fmt.Errorf("query sparkline: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.SparklinePoint, 0, limit)
	for rows.Next() {
		var p models.SparklinePoint
		var date time.Time
		if err := rows.Scan(&date, &p.Value); err != nil {
			s.logErr("query_sparkline", kind, err)
			return nil, fmt.Errorf("scan sparkline: %w", err)
		}
		p.Kind = kind
		p.Date = date.Format(models.DateLayout)
		p.Timeframe = string(tf)
		tmp = append(tmp, p)
	}
	if err := rows.Err(); err != nil {
		s.logErr("query_sparkline", kind, err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp, nil
}

func (s *CHTimeSeriesStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHTimeSeriesStore) Close() error {
	return nil // connection pool managed by pkg client
}

func (s *CHTimeSeriesStore) logErr(op string, kind models.IndicatorKind, err error) {
	if s.l == nil {
		return
	}
	s.l.Error("clickhouse "+op+" error",
		applogger.String("indicator", string(kind)),
		applogger.Error(err),
	)
}
