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

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/fabrica-mrp/fabrica/internal/app"
	"github.com/fabrica-mrp/fabrica/internal/bom"
	"github.com/fabrica-mrp/fabrica/internal/inventory"
	"github.com/fabrica-mrp/fabrica/internal/manufacturing"
	"github.com/fabrica-mrp/fabrica/internal/masterdata/products"
	"github.com/fabrica-mrp/fabrica/internal/masterdata/workcenters"
	"github.com/fabrica-mrp/fabrica/internal/observability"
	"github.com/fabrica-mrp/fabrica/internal/platform/cache"
	"github.com/fabrica-mrp/fabrica/internal/platform/db"
	"github.com/fabrica-mrp/fabrica/internal/reporting"
	"github.com/fabrica-mrp/fabrica/internal/shared"
	"github.com/fabrica-mrp/fabrica/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, dashboard cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	policy, err := bom.ParsePolicy(cfg.DurationPolicy)
	if err != nil {
		logger.Error("parse duration policy", slog.Any("error", err))
		os.Exit(1)
	}

	audit := shared.NewAuditLogger(pool)
	idem := shared.NewIdempotencyStore(pool)

	productService := products.NewService(products.NewRepository(pool))
	workCenterService := workcenters.NewService(workcenters.NewRepository(pool))
	bomService := bom.NewService(logger, bom.NewRepository(pool), policy)
	inventoryService := inventory.NewService(logger, inventory.NewRepository(pool), audit, idem,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock})
	manufacturingService := manufacturing.NewService(logger, manufacturing.NewRepository(pool), bomService, inventoryService, audit)
	reportingService := reporting.NewService(logger, reporting.NewRepository(pool), reporting.NewCache(redisClient, cfg.DashboardCacheTTL))

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		Metrics:       metrics,
		Products:      products.NewHandler(logger, productService),
		WorkCenters:   workcenters.NewHandler(logger, workCenterService),
		BOMs:          bom.NewHandler(logger, bomService),
		Inventory:     inventory.NewHandler(logger, inventoryService),
		Manufacturing: manufacturing.NewHandler(logger, manufacturingService),
		Reporting:     reporting.NewHandler(logger, reportingService),
		Jobs:          jobs.NewHandler(inspector, logger),
		HealthCheck: func(w http.ResponseWriter, r *http.Request) {
			if err := pool.Ping(r.Context()); err != nil {
				http.Error(w, "database unreachable", http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("fabrica api listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("fabrica api stopped")
}
