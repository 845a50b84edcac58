package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/okian/gmscan/internal/adapters/http/api"
	"github.com/okian/gmscan/internal/adapters/http/swagger"
	"github.com/okian/gmscan/internal/adapters/kv"
	"github.com/okian/gmscan/internal/adapters/mq/worker"
	"github.com/okian/gmscan/internal/adapters/transport/batch"
	"github.com/okian/gmscan/internal/adapters/transport/ws"
	app "github.com/okian/gmscan/internal/app"
	"github.com/okian/gmscan/internal/catalog"
	"github.com/okian/gmscan/internal/config"
	"github.com/okian/gmscan/internal/delivery"
	"github.com/okian/gmscan/pkg/logger"
	"github.com/okian/gmscan/pkg/metrics"
	"golang.org/x/sync/errgroup"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 90 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
	flushRetryInterval    = 30 * time.Second
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// A missing .env is fine; real deployments use the environment directly.
	_ = godotenv.Load()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithBackend(cfg.LogBackend)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, logger.Get()); err != nil {
		logger.Get().Error(ctx, "scanner stopped with error", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// run wires the device and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store, err := kv.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	tokens, err := catalog.Load(cfg.CatalogPath, cfg.CatalogBackupPath)
	switch {
	case errors.Is(err, catalog.ErrNoCatalog):
		// Scans of uncatalogued tokens are recorded as unknown.
		log.Warn(ctx, "token catalog unavailable", logger.Error(err))
		tokens = catalog.New()
	case err != nil:
		_ = store.Close()
		return fmt.Errorf("load catalog: %w", err)
	default:
		log.Info(ctx, "token catalog loaded",
			logger.String("source", tokens.Source()), logger.Int("tokens", tokens.Len()))
		for _, issue := range tokens.Verify() {
			log.Warn(ctx, "catalog token missing field", logger.String("field", issue.String()))
		}
	}

	svc := app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithCatalog(tokens),
		app.WithDeviceID(cfg.DeviceID),
		app.WithNetworked(cfg.Networked()),
		app.WithBacklogCapacity(cfg.BacklogCapacity),
		app.WithValueTiers(cfg.Tiers()),
		app.WithTypeMultipliers(cfg.TypeMultipliers),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Networked() {
		if err := startDelivery(gctx, g, cfg, svc, log); err != nil {
			return err
		}
	} else {
		log.Info(ctx, "no orchestrator configured; running standalone")
	}

	// Start system metrics updater
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(gctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// startDelivery connects the live channel, attaches the coordinator and
// starts the flush worker.
func startDelivery(ctx context.Context, g *errgroup.Group, cfg *config.Config, svc *app.Service, log logger.Logger) error {
	wsURL, err := ws.URL(cfg.OrchestratorURL, cfg.WSPath)
	if err != nil {
		return fmt.Errorf("orchestrator url: %w", err)
	}
	channel := ws.New(wsURL,
		ws.WithHandler(svc.HandleMessage),
		ws.WithDeviceID(cfg.DeviceID),
		ws.WithReconnectDelay(cfg.ReconnectDelay()),
		ws.WithLogger(log.Named("ws")),
	)
	poster := batch.New(cfg.OrchestratorURL, batch.WithDeviceID(cfg.DeviceID))

	if err := svc.AttachDelivery(ctx, channel,
		delivery.WithBatchPoster(poster),
		delivery.WithAckTimeout(cfg.AckTimeout()),
		delivery.WithBatchAckTimeout(cfg.BatchAckTimeout()),
	); err != nil {
		return fmt.Errorf("attach delivery: %w", err)
	}

	flusher := worker.NewFlushWorker(channel, svc, svc.Queue(),
		worker.WithLogger(log),
		worker.WithRetryInterval(flushRetryInterval),
	)

	g.Go(func() error { return channel.Run(ctx) })
	g.Go(func() error {
		flusher.Run(ctx)
		return nil
	})
	return nil
}

// newRouter registers the API and docs routes.
func newRouter(ctx context.Context, svc *app.Service) *mux.Router {
	r := mux.NewRouter()
	swagger.Register(ctx, r)
	api.NewServer(svc).Register(ctx, r)
	return r
}

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
