package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketPulse/internal/handler/api"
	"MarketPulse/internal/usecase"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"

	"github.com/robfig/cron/v3"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	svc       *usecase.IndicatorService
	refresher *usecase.Refresher
	eod       *usecase.EODRecorder
	chClient  *pkgch.Client
	producer  *pkgkafka.Producer

	handler    *api.IndicatorsEchoHandler
	httpServer *xhttp.Server
	scheduler  *cron.Cron
	l          *applogger.Logger
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	svc *usecase.IndicatorService,
	refresher *usecase.Refresher,
	eod *usecase.EODRecorder,
	handler *api.IndicatorsEchoHandler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
) *App {
	return &App{
		cfg:       cfg,
		svc:       svc,
		refresher: refresher,
		eod:       eod,
		handler:   handler,
		chClient:  chClient,
		producer:  producer,
	}
}

// logPublisher adapts the Kafka producer to the logger collector sink.
type logPublisher struct {
	p *pkgkafka.Producer
}

func (lp logPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return lp.p.Publish(ctx, topic, nil, payload)
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := applogger.New(&applogger.Config{
		Level:  a.cfg.Log.Level,
		Format: a.cfg.Log.Format,
		Output: a.cfg.Log.Output,
	})
	if err != nil {
		return err
	}
	a.l = l

	// Aggregated error logs go to Kafka alongside the observation stream.
	if a.producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Kafka.Topic + ".logs",
			Publisher:      logPublisher{p: a.producer},
		})
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(a.cfg.Metrics.Enabled, a.cfg.Metrics.Path),
	)

	a.refresher.Start(ctx)
	l.Info("refresher started",
		applogger.Duration("interval_ms", a.cfg.Pipeline.RefreshInterval),
	)

	if a.cfg.EOD.Enabled {
		if err := a.startScheduler(ctx); err != nil {
			l.Error("eod scheduler start error", applogger.Error(err))
			return err
		}
		l.Info("eod scheduler started", applogger.String("cron", a.cfg.EOD.Cron))
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// startScheduler wires the in-process end-of-day commit. Deployments that run
// cmd/eod from external cron leave eod.enabled off.
func (a *App) startScheduler(ctx context.Context) error {
	a.scheduler = cron.New()
	_, err := a.scheduler.AddFunc(a.cfg.EOD.Cron, func() {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := a.eod.RecordAll(runCtx); err != nil {
			a.l.Error("eod commit error", applogger.Error(err))
			return
		}
		a.l.Info("eod commit complete")
	})
	if err != nil {
		return err
	}
	a.scheduler.Start()
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	l := a.l
	if l == nil {
		var err error
		l, err = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
		if err != nil {
			log.Printf("failed to create logger: %v", err)
			return err
		}
	}
	l.Info("shutting down...")

	if a.scheduler != nil {
		stopCtx := a.scheduler.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(10 * time.Second):
			l.Warn("eod scheduler stop timed out")
		}
	}

	a.refresher.Stop()
	a.svc.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.RemoveCollector()
	l.Info("shutdown complete")
	return nil
}
