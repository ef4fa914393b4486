package bom

import "sort"

// DurationPolicy controls how operation minutes scale with order quantity.
type DurationPolicy string

const (
	// DurationPerBatch treats the BOM operation time as covering the whole
	// batch regardless of quantity.
	DurationPerBatch DurationPolicy = "per_batch"
	// DurationPerUnit multiplies the BOM operation time by the order quantity.
	DurationPerUnit DurationPolicy = "per_unit"
)

// ComponentRequirement is a resolved material line for a given order quantity.
type ComponentRequirement struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name,omitempty"`
	QtyPerUnit  float64 `json:"qty_per_unit"`
	Wastage     float64 `json:"wastage"`
	Required    float64 `json:"required"`
	Unit        string  `json:"unit"`
}

// OperationTemplate is a resolved routing step ready to become a work order.
type OperationTemplate struct {
	Sequence       int     `json:"sequence"`
	Name           string  `json:"name"`
	WorkCenterID   int64   `json:"work_center_id"`
	WorkCenterName string  `json:"work_center_name,omitempty"`
	PlannedMinutes float64 `json:"planned_minutes"`
}

// Resolution is the output of resolving a BOM against an order quantity.
type Resolution struct {
	BOMID        int64                  `json:"bom_id"`
	ProductID    int64                  `json:"product_id"`
	Quantity     float64                `json:"quantity"`
	Requirements []ComponentRequirement `json:"requirements"`
	Operations   []OperationTemplate    `json:"operations"`
}

// Resolve expands a BOM for the given order quantity. Required quantities
// include wastage: required = qty_per_unit * orderQty * (1 + wastage).
// Operations come back in sequence order.
func Resolve(b *BOM, orderQty float64, policy DurationPolicy) (Resolution, error) {
	if b == nil || !b.IsActive {
		return Resolution{}, ErrBOMNotFound
	}
	if orderQty <= 0 {
		return Resolution{}, ErrInvalidQuantity
	}
	if len(b.Components) == 0 {
		return Resolution{}, ErrNoComponents
	}

	res := Resolution{
		BOMID:     b.ID,
		ProductID: b.ProductID,
		Quantity:  orderQty,
	}

	for _, c := range b.Components {
		res.Requirements = append(res.Requirements, ComponentRequirement{
			ProductID:   c.ProductID,
			ProductName: c.ProductName,
			QtyPerUnit:  c.Quantity,
			Wastage:     c.Wastage,
			Required:    c.Quantity * orderQty * (1 + c.Wastage),
			Unit:        c.Unit,
		})
	}

	ops := make([]BOMOperation, len(b.Operations))
	copy(ops, b.Operations)
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Sequence < ops[j].Sequence })

	for _, op := range ops {
		planned := op.TimeMinutes
		if policy == DurationPerUnit {
			planned = op.TimeMinutes * orderQty
		}
		res.Operations = append(res.Operations, OperationTemplate{
			Sequence:       op.Sequence,
			Name:           op.Name,
			WorkCenterID:   op.WorkCenterID,
			WorkCenterName: op.WorkCenterName,
			PlannedMinutes: planned,
		})
	}

	return res, nil
}
