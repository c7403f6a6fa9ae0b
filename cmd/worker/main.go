package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/dealerquote/internal/app"
	"github.com/odyssey-erp/dealerquote/internal/masterdata/vehicles"
	"github.com/odyssey-erp/dealerquote/internal/observability"
	"github.com/odyssey-erp/dealerquote/internal/platform/db"
	"github.com/odyssey-erp/dealerquote/internal/sales/customers"
	"github.com/odyssey-erp/dealerquote/internal/sales/pricing"
	"github.com/odyssey-erp/dealerquote/internal/sales/promotions"
	"github.com/odyssey-erp/dealerquote/internal/sales/quotations"
	"github.com/odyssey-erp/dealerquote/internal/shared"
	"github.com/odyssey-erp/dealerquote/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	customerRepo := customers.NewRepository(pool)
	metrics := observability.NewMetrics()

	// The sweep only persists expiry, so the catalogs are wired without a cache.
	quotationService := quotations.NewService(quotations.ServiceConfig{
		Repository:    quotations.NewRepository(pool),
		Customers:     customerRepo,
		Vehicles:      vehicles.NewCatalog(vehicles.NewRepository(pool), nil, 0, logger),
		Promotions:    promotions.NewResolver(promotions.NewRepository(pool), cfg.CatalogTimeout),
		Calculator:    pricing.NewCalculator(cfg.PriceScale),
		Metrics:       metrics,
		Logger:        logger,
		LookupTimeout: cfg.CatalogTimeout,
	})

	expiryJob := jobs.NewExpirySweepJob(quotationService, logger, metrics.Jobs(), cfg.ExpirySweepBatch)
	sentJob := jobs.NewQuotationSentJob(customerRepo, logger, metrics.Jobs(), cfg.Currency, cfg.Locale, cfg.PriceScale)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, metrics.Jobs())

	expiryTask, err := jobs.NewExpirySweepTask(cfg.ExpirySweepBatch)
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyTTL)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	cron := []jobs.CronRegistration{
		{Spec: "30 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
	}
	if cfg.ExpirySweepCron != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.ExpirySweepCron,
			Task:    expiryTask,
			Options: []asynq.Option{asynq.MaxRetry(1), asynq.Unique(5 * time.Minute)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskQuotationExpirySweep, Handler: expiryJob.Handle},
			{Type: jobs.TaskQuotationSent, Handler: sentJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := newMetricsServer(cfg.WorkerMetricsAddr, metrics)
	go func() {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("worker metrics shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("starting worker", slog.String("expiry_cron", cfg.ExpirySweepCron))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func newMetricsServer(addr string, metrics *observability.Metrics) *http.Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
