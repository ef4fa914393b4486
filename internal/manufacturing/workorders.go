package manufacturing

import (
	"context"
	"fmt"
	"time"
)

// StartWorkOrder moves PENDING -> IN_PROGRESS and opens a time log interval.
// The parent order must already be running.
func (s *Service) StartWorkOrder(ctx context.Context, workOrderID, actorID int64) (WorkOrder, error) {
	return s.transitionWorkOrder(ctx, workOrderID, actorID, "start", func(ctx context.Context, tx TxRepository, o *ManufacturingOrder, wo *WorkOrder) error {
		if wo.Status != WOPending {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, wo.Status, WOInProgress)
		}
		if o.Status != OrderInProgress {
			return fmt.Errorf("%w: order %s is %s, not IN_PROGRESS", ErrPrerequisiteNotMet, o.OrderNumber, o.Status)
		}
		now := time.Now().UTC()
		wo.Status = WOInProgress
		wo.StartedAt = &now
		return tx.OpenInterval(ctx, wo.ID, now)
	})
}

// PauseWorkOrder closes the open interval so paused time never counts toward
// real duration.
func (s *Service) PauseWorkOrder(ctx context.Context, workOrderID, actorID int64) (WorkOrder, error) {
	return s.transitionWorkOrder(ctx, workOrderID, actorID, "pause", func(ctx context.Context, tx TxRepository, _ *ManufacturingOrder, wo *WorkOrder) error {
		if wo.Status != WOInProgress {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, wo.Status, WOPaused)
		}
		now := time.Now().UTC()
		if err := tx.CloseInterval(ctx, wo.ID, now); err != nil {
			return err
		}
		minutes, err := tx.SumClosedMinutes(ctx, wo.ID)
		if err != nil {
			return err
		}
		wo.Status = WOPaused
		wo.RealDuration = minutes
		return nil
	})
}

// ResumeWorkOrder reopens an interval after a pause.
func (s *Service) ResumeWorkOrder(ctx context.Context, workOrderID, actorID int64) (WorkOrder, error) {
	return s.transitionWorkOrder(ctx, workOrderID, actorID, "resume", func(ctx context.Context, tx TxRepository, _ *ManufacturingOrder, wo *WorkOrder) error {
		if wo.Status != WOPaused {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, wo.Status, WOInProgress)
		}
		wo.Status = WOInProgress
		return tx.OpenInterval(ctx, wo.ID, time.Now().UTC())
	})
}

// CompleteWorkOrder moves IN_PROGRESS or PAUSED -> DONE. Real duration is the
// sum of closed intervals, never completed_at minus started_at.
func (s *Service) CompleteWorkOrder(ctx context.Context, workOrderID, actorID int64) (WorkOrder, error) {
	return s.transitionWorkOrder(ctx, workOrderID, actorID, "complete", func(ctx context.Context, tx TxRepository, _ *ManufacturingOrder, wo *WorkOrder) error {
		if wo.Status != WOInProgress && wo.Status != WOPaused {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, wo.Status, WODone)
		}
		now := time.Now().UTC()
		if wo.Status == WOInProgress {
			if err := tx.CloseInterval(ctx, wo.ID, now); err != nil {
				return err
			}
		}
		minutes, err := tx.SumClosedMinutes(ctx, wo.ID)
		if err != nil {
			return err
		}
		wo.Status = WODone
		wo.RealDuration = minutes
		wo.CompletedAt = &now
		return nil
	})
}

// CancelWorkOrder moves any non-done work order to CANCELLED, closing any open
// interval.
func (s *Service) CancelWorkOrder(ctx context.Context, workOrderID, actorID int64) (WorkOrder, error) {
	return s.transitionWorkOrder(ctx, workOrderID, actorID, "cancel", func(ctx context.Context, tx TxRepository, _ *ManufacturingOrder, wo *WorkOrder) error {
		if wo.Status.Terminal() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, wo.Status, WOCancelled)
		}
		now := time.Now().UTC()
		if wo.Status == WOInProgress {
			if err := tx.CloseInterval(ctx, wo.ID, now); err != nil {
				return err
			}
		}
		minutes, err := tx.SumClosedMinutes(ctx, wo.ID)
		if err != nil {
			return err
		}
		wo.Status = WOCancelled
		wo.RealDuration = minutes
		wo.CompletedAt = &now
		return nil
	})
}

// transitionWorkOrder locks the parent order before the work order. Cancel
// acquires in the same direction; the two locks are never taken in opposite
// order.
func (s *Service) transitionWorkOrder(ctx context.Context, workOrderID, actorID int64, action string, fn func(context.Context, TxRepository, *ManufacturingOrder, *WorkOrder) error) (WorkOrder, error) {
	current, err := s.repo.GetWorkOrder(ctx, workOrderID)
	if err != nil {
		return WorkOrder{}, err
	}
	var result WorkOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, current.OrderID)
		if err != nil {
			return err
		}
		wo, err := tx.GetWorkOrderForUpdate(ctx, workOrderID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, &o, &wo); err != nil {
			return err
		}
		if err := tx.UpdateWorkOrder(ctx, wo); err != nil {
			return err
		}
		result = wo
		return nil
	})
	if err != nil {
		return WorkOrder{}, err
	}
	if s.audit != nil {
		s.recordWorkOrderAudit(ctx, actorID, action, result)
	}
	return result, nil
}

func (s *Service) recordWorkOrderAudit(ctx context.Context, actorID int64, action string, wo WorkOrder) {
	s.recordAudit(ctx, actorID, "workorder:"+action, wo.OrderID, map[string]any{
		"work_order_id": wo.ID,
		"operation":     wo.OperationName,
		"status":        wo.Status,
	})
}
