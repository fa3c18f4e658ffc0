package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"MarketPulse/internal/di"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/config"
	applogger "MarketPulse/pkg/logger"
)

// One-shot end-of-day commit, meant to run from external cron shortly after
// market close. Exits non-zero when any indicator fails to commit so the
// scheduler can alert.
func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	timeout := flag.Duration("timeout", time.Minute, "overall run timeout")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	l, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}

	chClient, err := di.ProvideClickHouseClient(cfg)
	if err != nil {
		l.Error("clickhouse init failed", applogger.Error(err))
		os.Exit(1)
	}
	defer chClient.Close()

	store := di.ProvideTimeSeriesStore(chClient, cfg, l)
	recorder := usecase.NewEODRecorder(store, nil, di.ProvideMetrics(), l)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := recorder.RecordAll(ctx); err != nil {
		l.Error("eod commit failed", applogger.Error(err))
		os.Exit(1)
	}
	l.Info("eod commit complete")
}
