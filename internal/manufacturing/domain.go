package manufacturing

import (
	"errors"
	"time"
)

var (
	ErrOrderNotFound      = errors.New("manufacturing: order not found")
	ErrWorkOrderNotFound  = errors.New("manufacturing: work order not found")
	ErrComponentNotFound  = errors.New("manufacturing: component not found")
	ErrInvalidTransition  = errors.New("manufacturing: invalid status transition")
	ErrPrerequisiteNotMet = errors.New("manufacturing: prerequisite not met")
	ErrValidation         = errors.New("manufacturing: validation failed")
)

// OrderStatus is the manufacturing order lifecycle state. The happy path is
// DRAFT -> CONFIRMED -> IN_PROGRESS -> TO_CLOSE -> DONE; CANCELLED is reachable
// from any non-terminal state. DONE and CANCELLED are terminal.
type OrderStatus string

const (
	OrderDraft      OrderStatus = "DRAFT"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderInProgress OrderStatus = "IN_PROGRESS"
	OrderToClose    OrderStatus = "TO_CLOSE"
	OrderDone       OrderStatus = "DONE"
	OrderCancelled  OrderStatus = "CANCELLED"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderDone || s == OrderCancelled
}

// CanTransition reports whether the move from s to next is allowed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if next == OrderCancelled {
		return !s.Terminal()
	}
	switch s {
	case OrderDraft:
		return next == OrderConfirmed
	case OrderConfirmed:
		return next == OrderInProgress
	case OrderInProgress:
		return next == OrderToClose
	case OrderToClose:
		return next == OrderDone
	default:
		return false
	}
}

// WorkOrderStatus is the work order lifecycle state. PENDING -> IN_PROGRESS
// with pause/resume between IN_PROGRESS and PAUSED, then DONE; CANCELLED from
// any non-done state.
type WorkOrderStatus string

const (
	WOPending    WorkOrderStatus = "PENDING"
	WOInProgress WorkOrderStatus = "IN_PROGRESS"
	WOPaused     WorkOrderStatus = "PAUSED"
	WODone       WorkOrderStatus = "DONE"
	WOCancelled  WorkOrderStatus = "CANCELLED"
)

func (s WorkOrderStatus) Terminal() bool {
	return s == WODone || s == WOCancelled
}

// Priority orders the production queue in the SPA.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ManufacturingOrder is the aggregate root. Component requirements and work
// orders are denormalized snapshots taken when the BOM is resolved; later BOM
// edits do not touch existing orders.
type ManufacturingOrder struct {
	ID            int64            `json:"id"`
	UUID          string           `json:"uuid"`
	OrderNumber   string           `json:"order_number"`
	ProductID     int64            `json:"product_id"`
	ProductName   string           `json:"product_name,omitempty"`
	BOMID         *int64           `json:"bom_id,omitempty"`
	Quantity      float64          `json:"quantity"`
	Status        OrderStatus      `json:"status"`
	Priority      Priority         `json:"priority"`
	ScheduleDate  time.Time        `json:"schedule_date"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	AssigneeID    *int64           `json:"assignee_id,omitempty"`
	EstimatedCost float64          `json:"estimated_cost"`
	ActualCost    float64          `json:"actual_cost"`
	Notes         string           `json:"notes,omitempty"`
	Components    []OrderComponent `json:"components,omitempty"`
	WorkOrders    []WorkOrder      `json:"work_orders,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// OrderComponent is a material requirement line. ToConsume is the planned
// issue including wastage; Consumed accumulates via RecordConsumption.
type OrderComponent struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"order_id"`
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	ToConsume   float64 `json:"to_consume"`
	Consumed    float64 `json:"consumed"`
	Unit        string  `json:"unit"`
}

// WorkOrder is one routing step of an order. RealDuration is the sum of
// closed time log intervals in minutes; paused time never counts.
type WorkOrder struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"order_id"`
	OperationName   string          `json:"operation_name"`
	WorkCenterID    int64           `json:"work_center_id"`
	WorkCenterName  string          `json:"work_center_name,omitempty"`
	Sequence        int             `json:"sequence"`
	PlannedDuration float64         `json:"planned_duration"`
	RealDuration    float64         `json:"real_duration"`
	Status          WorkOrderStatus `json:"status"`
	AssignedTo      *int64          `json:"assigned_to,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Comments        string          `json:"comments,omitempty"`
}

// TimeLog is one open or closed working interval of a work order.
type TimeLog struct {
	ID          int64      `json:"id"`
	WorkOrderID int64      `json:"work_order_id"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status    OrderStatus
	ProductID int64
	Priority  Priority
	Page      int
	Limit     int
}
