package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/AgentForge/internal/adapter/gobackend"
	"github.com/Strob0t/AgentForge/internal/adapter/gopsutil"
	afhttp "github.com/Strob0t/AgentForge/internal/adapter/http"
	afnats "github.com/Strob0t/AgentForge/internal/adapter/nats"
	afotel "github.com/Strob0t/AgentForge/internal/adapter/otel"
	"github.com/Strob0t/AgentForge/internal/adapter/procbackend"
	"github.com/Strob0t/AgentForge/internal/adapter/ristretto"
	"github.com/Strob0t/AgentForge/internal/adapter/ws"
	"github.com/Strob0t/AgentForge/internal/artifact"
	"github.com/Strob0t/AgentForge/internal/bus"
	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/executor"
	"github.com/Strob0t/AgentForge/internal/logger"
	"github.com/Strob0t/AgentForge/internal/port/backend"
	"github.com/Strob0t/AgentForge/internal/port/unit"
	"github.com/Strob0t/AgentForge/internal/resilience"

	_ "github.com/Strob0t/AgentForge/internal/unit/echo"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLogger := logger.New(cfg.Logging)
	defer closeLogger.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"max_parallel", cfg.Executor.MaxParallel,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownTracer := afotel.InitTracer(cfg.Logging.Service)
	defer func() { _ = shutdownTracer(ctx) }()

	metrics, err := afotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	store, err := artifact.NewStore(cfg.Executor.ArtifactDir)
	if err != nil {
		return fmt.Errorf("artifact store: %w", err)
	}

	b := bus.New(cfg.Executor.BusHistory, cfg.Executor.HandlerBudget)

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	// Optional NATS bridge; an empty URL keeps everything in-process.
	if cfg.NATS.URL != "" {
		bridge, err := afnats.Connect(ctx, cfg.NATS.URL, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = bridge.Close() }()
		bridge.Attach(b)
	}

	hub := ws.NewHub()
	hub.Attach(b)

	// --- Executor ---
	var ex *executor.Executor
	backends := []backend.Backend{
		procbackend.New(cfg.Executor.WorkerBinary, store),
		gobackend.New(func(agentID string) unit.Reporter { return ex.Reporter(agentID) }),
	}
	ex = executor.New(cfg.Executor, cfg.Limits, b, store, backends, log,
		executor.WithMetrics(metrics),
		executor.WithSampler(gopsutil.New()),
		executor.WithLimiter(resilience.NewLimiter(cfg.Spawn.PerClassPerMinute, cfg.Spawn.Burst)),
		executor.WithBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)),
	)
	if err := ex.Start(ctx); err != nil {
		return fmt.Errorf("executor: %w", err)
	}

	slog.Info("units registered", "classes", unit.Available())

	// --- HTTP ---
	r := chi.NewRouter()
	r.Use(afhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(afhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(afotel.HTTPMiddleware(cfg.Logging.Service))

	handlers := afhttp.NewHandlers(ex, cache, cfg.Cache.TTL, log)
	afhttp.MountRoutes(r, handlers, hub)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Executor.DrainTimeout+10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	return ex.Shutdown(shutdownCtx)
}
