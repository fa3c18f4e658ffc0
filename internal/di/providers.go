package di

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/domain/repository"
	"MarketPulse/internal/handler/api"
	internalrepo "MarketPulse/internal/repository"
	icache "MarketPulse/internal/service/cache"
	"MarketPulse/internal/service/cboe"
	"MarketPulse/internal/service/fred"
	"MarketPulse/internal/usecase"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
	"MarketPulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := cfg.Log.Level
	if level == "" {
		level = "info"
	}
	format := cfg.Log.Format
	if format == "" {
		format = "console"
	}
	output := cfg.Log.Output
	if output == "" {
		output = "stdout"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: output})
}

// ProvideClickHouseClient creates a ClickHouse client and applies the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.SchemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideTimeSeriesStore creates the ClickHouse-backed time-series store.
func ProvideTimeSeriesStore(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.TimeSeriesStore {
	store := internalrepo.NewCHTimeSeriesStore(chClient, cfg.ClickHouse.Database)
	store.SetLogger(l)
	return store
}

// ProvideSnapshotCache creates the last-known-good snapshot cache. Redis
// when configured so a restart keeps the fallback data, in-process otherwise.
func ProvideSnapshotCache(cfg *config.Config) repository.SnapshotCache {
	var bytes icache.BytesCache
	if cfg.Redis.Enabled {
		bytes = icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	} else {
		bytes = icache.NewTTLCache()
	}
	return internalrepo.NewSnapshotCacheStore(bytes)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher creates the observation publisher, or nil when Kafka is off.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideSourceAdapters creates one adapter per upstream provider.
func ProvideSourceAdapters(cfg *config.Config) []repository.SourceAdapter {
	return []repository.SourceAdapter{
		cboe.New(cfg.Sources.CBOE.BaseURL, cfg.Sources.CBOE.Path, cfg.Sources.CBOE.Timeout),
		fred.New(
			cfg.Sources.FRED.BaseURL,
			cfg.Sources.FRED.APIKey,
			cfg.Sources.FRED.SeriesID,
			cfg.Sources.FRED.WindowDays,
			cfg.Sources.FRED.Timeout,
		),
	}
}

// ProvideApproximator creates the stale-data fallback builder.
func ProvideApproximator(store repository.TimeSeriesStore, cfg *config.Config, l *applogger.Logger) *usecase.Approximator {
	return usecase.NewApproximator(store, cfg.Pipeline.StalenessCeiling, l)
}

// ProvideIndicatorService creates the pipeline core.
func ProvideIndicatorService(
	adapters []repository.SourceAdapter,
	store repository.TimeSeriesStore,
	lastGood repository.SnapshotCache,
	approx *usecase.Approximator,
	pub repository.Publisher,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.IndicatorService {
	return usecase.NewIndicatorService(adapters, store, lastGood, approx, pub, m, usecase.PipelineConfig{
		FreshnessWindow:  cfg.Pipeline.FreshnessWindow,
		StalenessCeiling: cfg.Pipeline.StalenessCeiling,
		TrailingWindow:   cfg.Pipeline.TrailingWindow,
		MinHistory:       cfg.Pipeline.MinHistory,
		HistoryLength:    cfg.Pipeline.HistoryLength,
	}, l)
}

// ProvideRefresher creates the periodic warm-up loop.
func ProvideRefresher(svc *usecase.IndicatorService, cfg *config.Config, l *applogger.Logger) *usecase.Refresher {
	return usecase.NewRefresher(svc, cfg.Pipeline.RefreshInterval, l)
}

// ProvideEODRecorder creates the end-of-day commit use case.
func ProvideEODRecorder(store repository.TimeSeriesStore, svc *usecase.IndicatorService, m repository.Metrics, l *applogger.Logger) *usecase.EODRecorder {
	return usecase.NewEODRecorder(store, svc.Kinds(), m, l)
}

// ProvideHandler creates the indicators HTTP handler.
func ProvideHandler(l *applogger.Logger, svc *usecase.IndicatorService, store repository.TimeSeriesStore) *api.IndicatorsEchoHandler {
	return api.NewIndicatorsEchoHandler(l, svc, store)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	svc *usecase.IndicatorService,
	refresher *usecase.Refresher,
	eod *usecase.EODRecorder,
	handler *api.IndicatorsEchoHandler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
) *server.App {
	return server.New(cfg, svc, refresher, eod, handler, chClient, producer)
}
