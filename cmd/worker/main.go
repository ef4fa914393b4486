package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fabrica-mrp/fabrica/internal/app"
	"github.com/fabrica-mrp/fabrica/internal/bom"
	"github.com/fabrica-mrp/fabrica/internal/inventory"
	"github.com/fabrica-mrp/fabrica/internal/manufacturing"
	"github.com/fabrica-mrp/fabrica/internal/platform/db"
	"github.com/fabrica-mrp/fabrica/internal/shared"
	"github.com/fabrica-mrp/fabrica/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	policy, err := bom.ParsePolicy(cfg.DurationPolicy)
	if err != nil {
		logger.Error("parse duration policy", slog.Any("error", err))
		os.Exit(1)
	}

	audit := shared.NewAuditLogger(pool)
	bomService := bom.NewService(logger, bom.NewRepository(pool), policy)
	inventoryService := inventory.NewService(logger, inventory.NewRepository(pool), audit, shared.NewIdempotencyStore(pool),
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock})
	manufacturingService := manufacturing.NewService(logger, manufacturing.NewRepository(pool), bomService, inventoryService, audit)

	nightlyReconcile, err := jobs.NewStockReconcileTask(time.Now().UTC(), true)
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockReconcile, Handler: jobs.HandleStockReconcile(logger, inventoryService)},
			{Type: jobs.TaskOrderRecost, Handler: jobs.HandleOrderRecost(logger, manufacturingService)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: nightlyReconcile},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("fabrica worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("fabrica worker stopped")
}
