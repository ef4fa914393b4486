package inventory

import (
	"errors"
	"time"
)

var (
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInvalidUnitCost   = errors.New("inventory: unit cost cannot be negative")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrBalanceNotFound   = errors.New("inventory: balance not found")
	ErrProductRequired   = errors.New("inventory: product required")
)

// MovementType is the direction of a ledger entry.
type MovementType string

const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

func (t MovementType) Valid() bool {
	return t == MovementIn || t == MovementOut
}

// StockMovement is one append-only ledger row. Movements are never updated or
// deleted; the cached product balance is derived from them.
type StockMovement struct {
	ID           int64        `json:"id"`
	ProductID    int64        `json:"product_id"`
	ProductName  string       `json:"product_name,omitempty"`
	MovementType MovementType `json:"movement_type"`
	Quantity     float64      `json:"quantity"`
	UnitCost     float64      `json:"unit_cost"`
	TotalValue   float64      `json:"total_value"`
	Reference    string       `json:"reference"`
	ReferenceID  string       `json:"reference_id,omitempty"`
	Notes        string       `json:"notes,omitempty"`
	PostedAt     time.Time    `json:"posted_at"`
	CreatedBy    int64        `json:"created_by,omitempty"`
}

// MovementInput is the request to post a movement.
type MovementInput struct {
	ProductID    int64
	MovementType MovementType
	Quantity     float64
	UnitCost     float64
	Reference    string
	ReferenceID  string
	Notes        string
	ActorID      int64
}

// HistoryFilter narrows movement history reads.
type HistoryFilter struct {
	ProductID int64
	From      time.Time
	To        time.Time
	Limit     int
}

// LedgerTotal is the replayed sum for one product.
type LedgerTotal struct {
	ProductID int64
	TotalIn   float64
	TotalOut  float64
}

// Drift reports a product whose cached balance disagrees with the ledger.
type Drift struct {
	ProductID int64   `json:"product_id"`
	Cached    float64 `json:"cached"`
	Ledger    float64 `json:"ledger"`
}
