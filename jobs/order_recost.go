package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderRecost recomputes the actual cost of a finished order.
	TaskOrderRecost = "orders:recost"
)

// OrderRecostPayload names the order to recost.
type OrderRecostPayload struct {
	OrderID int64 `json:"order_id"`
}

// NewOrderRecostTask constructs the task.
func NewOrderRecostTask(orderID int64) (*asynq.Task, error) {
	body, err := json.Marshal(OrderRecostPayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderRecost, body, asynq.Queue(QueueDefault)), nil
}

// OrderRecoster is the slice of the manufacturing service the job needs.
type OrderRecoster interface {
	RecostOrder(ctx context.Context, orderID int64) (float64, error)
}

// HandleOrderRecost returns the handler for TaskOrderRecost.
func HandleOrderRecost(logger *slog.Logger, svc OrderRecoster) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload OrderRecostPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		cost, err := svc.RecostOrder(ctx, payload.OrderID)
		if err != nil {
			logger.Error("order recost failed", slog.Int64("order_id", payload.OrderID), slog.Any("error", err))
			return err
		}
		logger.Info("order recosted", slog.Int64("order_id", payload.OrderID), slog.Float64("actual_cost", cost))
		return nil
	}
}
