package bom

import (
	"errors"
	"time"
)

var (
	ErrBOMNotFound     = errors.New("bom: not found or inactive")
	ErrInvalidQuantity = errors.New("bom: quantity must be greater than zero")
	ErrNoComponents    = errors.New("bom: bill of materials has no components")
	ErrValidation      = errors.New("bom: validation failed")
)

// BOM is a versioned bill of materials for a product. At most one version per
// product is active at a time.
type BOM struct {
	ID          int64          `json:"id"`
	ProductID   int64          `json:"product_id"`
	ProductName string         `json:"product_name,omitempty"`
	Version     string         `json:"version"`
	IsActive    bool           `json:"is_active"`
	Components  []BOMComponent `json:"components"`
	Operations  []BOMOperation `json:"operations"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// BOMComponent is one input line. Quantity is per single unit of the parent
// product; Wastage is a fraction (0.1 = 10% expected loss).
type BOMComponent struct {
	ID          int64   `json:"id"`
	BOMID       int64   `json:"bom_id"`
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name,omitempty"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Wastage     float64 `json:"wastage"`
}

// BOMOperation is one routing step, ordered by Sequence.
type BOMOperation struct {
	ID             int64   `json:"id"`
	BOMID          int64   `json:"bom_id"`
	Sequence       int     `json:"sequence"`
	Name           string  `json:"name"`
	WorkCenterID   int64   `json:"work_center_id"`
	WorkCenterName string  `json:"work_center_name,omitempty"`
	TimeMinutes    float64 `json:"time_minutes"`
}
