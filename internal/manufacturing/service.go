package manufacturing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fabrica-mrp/fabrica/internal/bom"
	"github.com/fabrica-mrp/fabrica/internal/inventory"
	"github.com/fabrica-mrp/fabrica/internal/shared"
)

// BOMPort exposes the bill-of-materials integration.
type BOMPort interface {
	Get(ctx context.Context, id int64) (*bom.BOM, error)
	ActiveForProduct(ctx context.Context, productID int64) (*bom.BOM, error)
	Policy() bom.DurationPolicy
}

// InventoryPort posts stock movements inside the caller's transaction, so a
// failed posting rolls the status change back with it.
type InventoryPort interface {
	PostMovementTx(ctx context.Context, tx inventory.TxRepository, input inventory.MovementInput) (inventory.StockMovement, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the manufacturing order lifecycle.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	boms   BOMPort
	inv    InventoryPort
	audit  AuditPort
}

func NewService(logger *slog.Logger, repo RepositoryPort, boms BOMPort, inv InventoryPort, audit AuditPort) *Service {
	return &Service{logger: logger, repo: repo, boms: boms, inv: inv, audit: audit}
}

// CreateOrderInput is the creation payload. BOMID nil means a custom order
// with no materialized components or work orders.
type CreateOrderInput struct {
	ProductID    int64
	Quantity     float64
	BOMID        *int64
	ScheduleDate time.Time
	AssigneeID   *int64
	Priority     Priority
	Notes        string
	ActorID      int64
}

// CreateOrder creates a DRAFT order. When a BOM is given it is resolved
// immediately: component requirements and work orders are materialized scaled
// by the order quantity, and the estimated cost is computed from planned
// durations and purchase prices.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*ManufacturingOrder, error) {
	if input.ProductID <= 0 {
		return nil, fmt.Errorf("%w: product_id is required", ErrValidation)
	}
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	}
	if input.ScheduleDate.IsZero() {
		return nil, fmt.Errorf("%w: schedule_date is required", ErrValidation)
	}
	if input.Priority == "" {
		input.Priority = PriorityMedium
	}
	if !input.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, input.Priority)
	}

	order := ManufacturingOrder{
		UUID:         uuid.NewString(),
		ProductID:    input.ProductID,
		BOMID:        input.BOMID,
		Quantity:     input.Quantity,
		Status:       OrderDraft,
		Priority:     input.Priority,
		ScheduleDate: input.ScheduleDate,
		AssigneeID:   input.AssigneeID,
		Notes:        input.Notes,
	}

	var components []OrderComponent
	var workOrders []WorkOrder
	if input.BOMID != nil {
		b, err := s.boms.Get(ctx, *input.BOMID)
		if err != nil {
			return nil, err
		}
		res, err := bom.Resolve(b, input.Quantity, s.boms.Policy())
		if err != nil {
			return nil, err
		}
		components = componentsFromResolution(res)
		workOrders = workOrdersFromResolution(res)
	}

	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.GenerateOrderNumber(ctx)
		if err != nil {
			return err
		}
		order.OrderNumber = number
		if len(components) > 0 || len(workOrders) > 0 {
			rates, prices, err := costInputs(ctx, tx, components, workOrders)
			if err != nil {
				return err
			}
			for _, wo := range workOrders {
				order.EstimatedCost += wo.PlannedDuration / 60 * rates[wo.WorkCenterID]
			}
			for _, c := range components {
				order.EstimatedCost += c.ToConsume * prices[c.ProductID]
			}
		}
		orderID, err = tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		if err := tx.InsertComponents(ctx, orderID, components); err != nil {
			return err
		}
		return tx.InsertWorkOrders(ctx, orderID, workOrders)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, input.ActorID, "manufacturing:create", orderID, map[string]any{
		"order_number": order.OrderNumber,
		"product_id":   input.ProductID,
		"quantity":     input.Quantity,
	})
	return s.repo.GetOrder(ctx, orderID)
}

func componentsFromResolution(res bom.Resolution) []OrderComponent {
	var components []OrderComponent
	for _, req := range res.Requirements {
		components = append(components, OrderComponent{
			ProductID:   req.ProductID,
			ProductName: req.ProductName,
			ToConsume:   req.Required,
			Unit:        req.Unit,
		})
	}
	return components
}

func workOrdersFromResolution(res bom.Resolution) []WorkOrder {
	var workOrders []WorkOrder
	for _, op := range res.Operations {
		workOrders = append(workOrders, WorkOrder{
			OperationName:   op.Name,
			WorkCenterID:    op.WorkCenterID,
			WorkCenterName:  op.WorkCenterName,
			Sequence:        op.Sequence,
			PlannedDuration: op.PlannedMinutes,
			Status:          WOPending,
		})
	}
	return workOrders
}

// costInputs loads the work center rates and component purchase prices on the
// caller's transaction.
func costInputs(ctx context.Context, tx TxRepository, components []OrderComponent, workOrders []WorkOrder) (map[int64]float64, map[int64]float64, error) {
	var wcIDs, productIDs []int64
	for _, wo := range workOrders {
		wcIDs = append(wcIDs, wo.WorkCenterID)
	}
	for _, c := range components {
		productIDs = append(productIDs, c.ProductID)
	}
	rates, err := tx.WorkCenterRates(ctx, wcIDs)
	if err != nil {
		return nil, nil, err
	}
	prices, err := tx.ProductPurchasePrices(ctx, productIDs)
	if err != nil {
		return nil, nil, err
	}
	return rates, prices, nil
}

// ListOrders lists orders for the production queue.
func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]ManufacturingOrder, int, error) {
	return s.repo.ListOrders(ctx, filter)
}

// GetOrder loads an order with its components and work orders.
func (s *Service) GetOrder(ctx context.Context, id int64) (*ManufacturingOrder, error) {
	if id <= 0 {
		return nil, ErrOrderNotFound
	}
	return s.repo.GetOrder(ctx, id)
}

// Confirm moves DRAFT -> CONFIRMED. Components and work orders are
// materialized here if order creation skipped it (a BOM activated after the
// draft was cut).
func (s *Service) Confirm(ctx context.Context, orderID, actorID int64) (*ManufacturingOrder, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransition(OrderConfirmed) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, OrderConfirmed)
		}
		if o.ProductID <= 0 {
			return fmt.Errorf("%w: order has no product", ErrPrerequisiteNotMet)
		}
		if o.Quantity <= 0 {
			return fmt.Errorf("%w: order quantity must be > 0", ErrPrerequisiteNotMet)
		}
		if o.ScheduleDate.IsZero() {
			return fmt.Errorf("%w: order has no schedule date", ErrPrerequisiteNotMet)
		}
		if o.BOMID != nil {
			b, err := s.boms.Get(ctx, *o.BOMID)
			if err != nil {
				return err
			}
			if !b.IsActive {
				return bom.ErrBOMNotFound
			}
			existing, err := tx.ListComponents(ctx, o.ID)
			if err != nil {
				return err
			}
			if len(existing) == 0 {
				res, err := bom.Resolve(b, o.Quantity, s.boms.Policy())
				if err != nil {
					return err
				}
				if err := tx.InsertComponents(ctx, o.ID, componentsFromResolution(res)); err != nil {
					return err
				}
				if err := tx.InsertWorkOrders(ctx, o.ID, workOrdersFromResolution(res)); err != nil {
					return err
				}
			}
		}
		o.Status = OrderConfirmed
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "manufacturing:confirm", orderID, nil)
	return s.repo.GetOrder(ctx, orderID)
}

// Start moves CONFIRMED -> IN_PROGRESS and stamps started_at.
func (s *Service) Start(ctx context.Context, orderID, actorID int64) (*ManufacturingOrder, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransition(OrderInProgress) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, OrderInProgress)
		}
		now := time.Now().UTC()
		o.Status = OrderInProgress
		o.StartedAt = &now
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "manufacturing:start", orderID, nil)
	return s.repo.GetOrder(ctx, orderID)
}

// Complete moves IN_PROGRESS -> TO_CLOSE once every work order is finished.
// Completing the last work order never auto-closes; it only makes the order
// eligible here.
func (s *Service) Complete(ctx context.Context, orderID, actorID int64) (*ManufacturingOrder, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransition(OrderToClose) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, OrderToClose)
		}
		open, err := tx.CountOpenWorkOrders(ctx, o.ID)
		if err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("%w: %d work orders not done", ErrPrerequisiteNotMet, open)
		}
		o.Status = OrderToClose
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "manufacturing:complete", orderID, nil)
	return s.repo.GetOrder(ctx, orderID)
}

// Close moves TO_CLOSE -> DONE. In one transaction it posts an OUT movement
// per component at the consumed quantity (falling back to the planned issue
// when nothing was recorded), posts an IN movement for the finished product,
// and computes the actual cost from real work order minutes and component
// purchase prices.
func (s *Service) Close(ctx context.Context, orderID, actorID int64) (*ManufacturingOrder, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransition(OrderDone) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, OrderDone)
		}
		components, err := tx.ListComponents(ctx, o.ID)
		if err != nil {
			return err
		}
		workOrders, err := tx.ListWorkOrders(ctx, o.ID)
		if err != nil {
			return err
		}

		rates, prices, err := costInputs(ctx, tx, components, workOrders)
		if err != nil {
			return err
		}

		var laborCost float64
		for _, wo := range workOrders {
			laborCost += wo.RealDuration / 60 * rates[wo.WorkCenterID]
		}

		var materialCost float64
		invTx := tx.Inventory()
		for _, c := range components {
			qty := c.Consumed
			if qty == 0 {
				qty = c.ToConsume
			}
			if qty <= 0 {
				continue
			}
			_, err := s.inv.PostMovementTx(ctx, invTx, inventory.MovementInput{
				ProductID:    c.ProductID,
				MovementType: inventory.MovementOut,
				Quantity:     qty,
				UnitCost:     prices[c.ProductID],
				Reference:    o.OrderNumber,
				ReferenceID:  o.UUID,
				Notes:        fmt.Sprintf("Consumed by %s", o.OrderNumber),
				ActorID:      actorID,
			})
			if err != nil {
				return err
			}
			materialCost += qty * prices[c.ProductID]
		}

		actualCost := laborCost + materialCost
		unitCost := 0.0
		if o.Quantity > 0 {
			unitCost = actualCost / o.Quantity
		}
		_, err = s.inv.PostMovementTx(ctx, invTx, inventory.MovementInput{
			ProductID:    o.ProductID,
			MovementType: inventory.MovementIn,
			Quantity:     o.Quantity,
			UnitCost:     unitCost,
			Reference:    o.OrderNumber,
			ReferenceID:  o.UUID,
			Notes:        fmt.Sprintf("Produced by %s", o.OrderNumber),
			ActorID:      actorID,
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		o.Status = OrderDone
		o.CompletedAt = &now
		o.ActualCost = actualCost
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "manufacturing:close", orderID, nil)
	return s.repo.GetOrder(ctx, orderID)
}

// Cancel moves any non-terminal order to CANCELLED. Open work orders are
// cancelled with it; nothing is posted to stock.
func (s *Service) Cancel(ctx context.Context, orderID, actorID int64) (*ManufacturingOrder, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransition(OrderCancelled) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, OrderCancelled)
		}
		if err := tx.CancelOpenWorkOrders(ctx, o.ID, time.Now().UTC()); err != nil {
			return err
		}
		// completed_at stays empty: a cancelled order never finished.
		o.Status = OrderCancelled
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "manufacturing:cancel", orderID, nil)
	return s.repo.GetOrder(ctx, orderID)
}

// RecordConsumption accumulates consumed quantity on a component while the
// order runs.
func (s *Service) RecordConsumption(ctx context.Context, orderID, componentID int64, qty float64, actorID int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: consumption quantity must be > 0", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != OrderInProgress {
			return fmt.Errorf("%w: order is %s, not IN_PROGRESS", ErrPrerequisiteNotMet, o.Status)
		}
		c, err := tx.GetComponentForUpdate(ctx, orderID, componentID)
		if err != nil {
			return err
		}
		return tx.AddConsumption(ctx, c.ID, qty)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "manufacturing:consume", orderID, map[string]any{
		"component_id": componentID,
		"qty":          qty,
	})
	return nil
}

// RecostOrder recomputes the actual cost of a DONE order from its stored
// work order minutes and current purchase prices. Admin correction path, used
// by the background recost job; no stock is reposted.
func (s *Service) RecostOrder(ctx context.Context, orderID int64) (float64, error) {
	var actualCost float64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != OrderDone {
			return fmt.Errorf("%w: order is %s, not DONE", ErrPrerequisiteNotMet, o.Status)
		}
		components, err := tx.ListComponents(ctx, o.ID)
		if err != nil {
			return err
		}
		workOrders, err := tx.ListWorkOrders(ctx, o.ID)
		if err != nil {
			return err
		}

		rates, prices, err := costInputs(ctx, tx, components, workOrders)
		if err != nil {
			return err
		}

		for _, wo := range workOrders {
			actualCost += wo.RealDuration / 60 * rates[wo.WorkCenterID]
		}
		for _, c := range components {
			qty := c.Consumed
			if qty == 0 {
				qty = c.ToConsume
			}
			actualCost += qty * prices[c.ProductID]
		}
		o.ActualCost = actualCost
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("order recosted", slog.Int64("order_id", orderID), slog.Float64("actual_cost", actualCost))
	return actualCost, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.EntityOrder,
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
}
