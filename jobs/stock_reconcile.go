package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/fabrica-mrp/fabrica/internal/inventory"
)

const (
	// TaskStockReconcile replays the stock ledger against cached balances.
	TaskStockReconcile = "stock:reconcile"
)

// StockReconcilePayload carries scheduling metadata.
type StockReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	Repair       bool      `json:"repair"`
}

// NewStockReconcileTask constructs the task.
func NewStockReconcileTask(at time.Time, repair bool) (*asynq.Task, error) {
	body, err := json.Marshal(StockReconcilePayload{ScheduledFor: at, Repair: repair})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReconcile, body, asynq.Queue(QueueDefault)), nil
}

// StockReconciler is the slice of the inventory service the job needs.
type StockReconciler interface {
	Reconcile(ctx context.Context, repair bool) ([]inventory.Drift, error)
}

// HandleStockReconcile returns the handler for TaskStockReconcile.
func HandleStockReconcile(logger *slog.Logger, svc StockReconciler) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StockReconcilePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		drifts, err := svc.Reconcile(ctx, payload.Repair)
		if err != nil {
			logger.Error("stock reconcile failed", slog.Any("error", err))
			return err
		}
		if len(drifts) == 0 {
			logger.Info("stock reconcile clean")
			return nil
		}
		for _, d := range drifts {
			logger.Warn("stock drift",
				slog.Int64("product_id", d.ProductID),
				slog.Float64("cached", d.Cached),
				slog.Float64("ledger", d.Ledger),
				slog.Bool("repaired", payload.Repair))
		}
		return nil
	}
}
