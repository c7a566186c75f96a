package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/affinity/internal/adapters/http/api"
	"github.com/okian/affinity/internal/adapters/repository"
	app "github.com/okian/affinity/internal/app"
	"github.com/okian/affinity/internal/config"
	"github.com/okian/affinity/pkg/logger"
	"github.com/okian/affinity/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel),
			logger.Error(err),
		)
		_ = logger.SetLevelString("info")
	}

	blend, err := cfg.Blend()
	if err != nil {
		log.Error(ctx, "invalid domain blend", logger.Error(err))
		return
	}

	store, err := repository.Open(cfg.DBPath)
	if err != nil {
		log.Error(ctx, "failed to open store",
			logger.String("db_path", cfg.DBPath),
			logger.Error(err),
		)
		return
	}
	defer func() { _ = store.Close() }()

	svc := app.New(
		app.WithStore(store),
		app.WithLogger(log),
		app.WithBatchSize(cfg.BatchSize),
		app.WithRunInterval(time.Duration(cfg.RunIntervalSeconds)*time.Second),
		app.WithMaxAttempts(cfg.MaxAttempts),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithLeaseTTL(time.Duration(cfg.LeaseTTLSeconds)*time.Second),
		app.WithDimensions(cfg.VectorDimensions),
		app.WithHalfLives(cfg.ProfileHalfLifeDays, cfg.MutationHalfLifeDays),
		app.WithLearningRate(cfg.LearningRate),
		app.WithBackfillRecency(cfg.BackfillRecencyFactor),
		app.WithBlend(blend),
		app.WithCategoryWeights(cfg.CategoryWeights, cfg.DefaultCategoryWeight),
		app.WithUserCategoryWeights(cfg.UserCategoryWeights),
		app.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		app.WithLeaderboardWindows(cfg.LeaderboardWindows),
	)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return
	}
	defer svc.Stop()

	// HTTP mux and routes.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	apiServer := api.NewServer(svc, svc, cfg.MaxLeaderboardLimit)
	apiServer.Register(ctx, mux)

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
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
}
