package products

import (
	"time"
)

// ProductType classifies how a product participates in manufacturing.
type ProductType string

const (
	TypeRawMaterial  ProductType = "RAW_MATERIAL"
	TypeWIP          ProductType = "WIP"
	TypeFinishedGood ProductType = "FINISHED_GOOD"
	TypeConsumable   ProductType = "CONSUMABLE"
)

// Valid reports whether the type is one of the known values.
func (t ProductType) Valid() bool {
	switch t {
	case TypeRawMaterial, TypeWIP, TypeFinishedGood, TypeConsumable:
		return true
	}
	return false
}

// Product represents a product master record. CurrentStock is a cached read
// optimisation; the stock ledger remains the source of truth and the cache is
// reconciled by the nightly worker job.
type Product struct {
	ID            int64       `json:"id"`
	Code          string      `json:"code"`
	Name          string      `json:"name"`
	Type          ProductType `json:"type"`
	Unit          string      `json:"unit"`
	SalesPrice    float64     `json:"sales_price"`
	PurchasePrice float64     `json:"purchase_price"`
	CurrentStock  float64     `json:"current_stock"`
	ReorderPoint  float64     `json:"reorder_point"`
	Category      string      `json:"category"`
	IsActive      bool        `json:"is_active"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
