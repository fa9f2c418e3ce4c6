package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/botspot/internal/adapters/ingest"
	"github.com/okian/botspot/internal/adapters/sink"
	"github.com/okian/botspot/internal/app"
	"github.com/okian/botspot/internal/config"
	"github.com/okian/botspot/internal/domain/dedupe"
	"github.com/okian/botspot/internal/domain/model"
	"github.com/okian/botspot/pkg/logger"
	"github.com/okian/botspot/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env). Config errors
	// are the only fatal errors; they terminate before processing begins.
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Pick the sink: sqlite when a path is configured, in-memory otherwise.
	var out sink.Sink = sink.NewMemory()
	if cfg.SinkPath != "" {
		s, serr := sink.NewSQLite(ctx, cfg.SinkPath)
		if serr != nil {
			os.Stderr.WriteString("failed to open sink: " + serr.Error() + "\n")
			return
		}
		out = s
	}

	svc := app.New(
		app.WithLogger(log),
		app.WithSessionGap(time.Duration(cfg.SessionGapMS)*time.Millisecond),
		app.WithAllowedLateness(time.Duration(cfg.AllowedLatenessMS)*time.Millisecond),
		app.WithWatermarkIdleTimeout(time.Duration(cfg.WatermarkIdleMS)*time.Millisecond),
		app.WithQuantileCount(cfg.QuantileCount),
		app.WithAggregateFanout(cfg.AggregateFanout),
		app.WithAggregateTriggers(cfg.AggregateTriggerCount, time.Duration(cfg.AggregateTriggerDelayMS)*time.Millisecond),
		app.WithAnomalyBoundary(cfg.AnomalyBoundary),
		app.WithEmitDelay(time.Duration(cfg.EmitDelayMS)*time.Millisecond),
		app.WithSaltCount(cfg.SaltCount),
		app.WithSpreadDelay(time.Duration(cfg.SpreadDelayMS)*time.Millisecond),
		app.WithBatchQueueSize(cfg.BatchQueueSize),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithSink(out),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start pipeline: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// Kafka ingestion when brokers are configured.
	if len(cfg.KafkaBrokers) > 0 {
		deduper := dedupe.New(dedupe.WithMaxSize(cfg.DedupeSize))
		scoreSrc := ingest.NewSource(cfg.KafkaBrokers, cfg.ScoreTopic, cfg.ConsumerGroup, model.KindScore, svc, ingest.WithDeduper(deduper))
		playSrc := ingest.NewSource(cfg.KafkaBrokers, cfg.PlayTopic, cfg.ConsumerGroup, model.KindAction, svc, ingest.WithDeduper(deduper))
		go runSource(ctx, scoreSrc, "score", log)
		go runSource(ctx, playSrc, "play", log)
	} else {
		log.Warn(ctx, "no kafka brokers configured; pipeline is idle")
	}

	go startSystemMetricsUpdater(ctx)

	// HTTP mux for observability only.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "stopped")
}

func runSource(ctx context.Context, src *ingest.Source, name string, log logger.Logger) {
	if err := src.Run(ctx); err != nil {
		log.Error(ctx, "ingestion source failed",
			logger.String("source", name),
			logger.Error(err),
		)
	}
}

// startSystemMetricsUpdater updates system metrics on a fixed interval.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			metrics.UpdateSystemMemoryUsage(m.Alloc)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
		}
	}
}
