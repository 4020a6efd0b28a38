package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trybemarket/bulkmail/internal/adhoc"
	"github.com/trybemarket/bulkmail/internal/api"
	"github.com/trybemarket/bulkmail/internal/audience"
	"github.com/trybemarket/bulkmail/internal/bulk"
	"github.com/trybemarket/bulkmail/internal/config"
	"github.com/trybemarket/bulkmail/internal/db"
	"github.com/trybemarket/bulkmail/internal/email"
	"github.com/trybemarket/bulkmail/internal/metrics"
	"github.com/trybemarket/bulkmail/internal/render"
	"github.com/trybemarket/bulkmail/internal/worker"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Database
	// ------------------------------------------------
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// ------------------------------------------------
	// Redis (audience index cache)
	// ------------------------------------------------
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		logger.Fatal("redis ping failed", zap.Error(err))
	}
	pingCancel()

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Template Renderer
	// ------------------------------------------------
	renderer, err := render.New()
	if err != nil {
		logger.Fatal("template load failed", zap.Error(err))
	}

	// ------------------------------------------------
	// Email Sender
	// ------------------------------------------------
	sender := &email.Sender{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		User:      cfg.SMTPUser,
		Password:  cfg.SMTPPassword,
		FromName:  cfg.SenderName,
		FromEmail: cfg.SenderEmail,
	}

	// ------------------------------------------------
	// Rate Limiter (shared across the worker and ad-hoc sends)
	// ------------------------------------------------
	limiter := rate.NewLimiter(rate.Limit(cfg.SendRateLimit), cfg.SendRateLimit)

	// ------------------------------------------------
	// Audience: index store, resolver, syncer
	// ------------------------------------------------
	indexStore := audience.NewRedisIndexStore(rdb)
	resolver := audience.NewResolver(indexStore)
	syncer := audience.NewSyncer(store, indexStore, 500, logger)

	// ------------------------------------------------
	// Services
	// ------------------------------------------------
	submitter := bulk.NewSubmitter(store, resolver, renderer, cfg.BatchSize, logger)

	adhocSvc := &adhoc.Service{
		Store:       store,
		Renderer:    renderer,
		Sender:      sender,
		RetryWindow: cfg.SendTimeout,
		Log:         logger,
	}

	// ------------------------------------------------
	// Batch Worker
	// ------------------------------------------------
	poller := &worker.Poller{
		Proc: &worker.Processor{
			Store:       store,
			Transport:   sender,
			Limiter:     limiter,
			MaxRetries:  cfg.MaxRetries,
			Fanout:      cfg.WorkerFanout,
			SendTimeout: cfg.SendTimeout,
			Log:         logger,
		},
		Interval:    cfg.PollInterval,
		MaxPerCycle: cfg.MaxBatchesPerCycle,
		Log:         logger,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Submit: submitter,
		Sync:   syncer,
		Adhoc:  adhocSvc,
		Jobs:   store,
		Users:  store,
		Log:    logger,
	}

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: apiHandler.Routes(),
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	// Let the poller finish its current cycle
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
