package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/dealerquote/cmd/dealerquote/cli"
	"github.com/odyssey-erp/dealerquote/internal/app"
	"github.com/odyssey-erp/dealerquote/internal/masterdata/vehicles"
	"github.com/odyssey-erp/dealerquote/internal/observability"
	"github.com/odyssey-erp/dealerquote/internal/platform/cache"
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
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(runJobs(ctx, cfg, logger, os.Args[2:]))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// The vehicle cache falls back to Postgres without Redis.
		logger.Warn("redis unavailable, vehicle cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	vehicleCatalog := vehicles.NewCatalog(vehicles.NewRepository(dbpool), redisClient, cfg.VehicleCacheTTL, logger)
	customerRepo := customers.NewRepository(dbpool)
	promotionResolver := promotions.NewResolver(promotions.NewRepository(dbpool), cfg.CatalogTimeout)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	quotationService := quotations.NewService(quotations.ServiceConfig{
		Repository:    quotations.NewRepository(dbpool),
		Customers:     customerRepo,
		Vehicles:      vehicleCatalog,
		Promotions:    promotionResolver,
		Calculator:    pricing.NewCalculator(cfg.PriceScale),
		Notifier:      jobs.NewQuotationNotifier(jobClient),
		Metrics:       metrics,
		Logger:        logger,
		LookupTimeout: cfg.CatalogTimeout,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		QuotationHandler: quotations.NewHandler(logger, quotationService, idempotencyStore),
		PromotionHandler: promotions.NewHandler(logger, promotionResolver),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Database:         dbpool,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func runJobs(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr, cli.TriggerDefaults{
		ExpiryBatch:          cfg.ExpirySweepBatch,
		IdempotencyRetention: cfg.IdempotencyTTL,
	})
	if err != nil {
		logger.Error("init jobs cli", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	return jobsCLI.Run(ctx, args, os.Stdout, os.Stderr)
}
