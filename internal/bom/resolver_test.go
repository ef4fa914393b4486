package bom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fixtureBOM() *BOM {
	return &BOM{
		ID:        1,
		ProductID: 10,
		Version:   "v1",
		IsActive:  true,
		Components: []BOMComponent{
			{ProductID: 20, ProductName: "Steel Sheet", Quantity: 2, Unit: "KG", Wastage: 0.1},
			{ProductID: 21, ProductName: "Bolt", Quantity: 4, Unit: "PCS", Wastage: 0},
		},
		Operations: []BOMOperation{
			{Sequence: 2, Name: "Assembly", WorkCenterID: 2, TimeMinutes: 45},
			{Sequence: 1, Name: "Cutting", WorkCenterID: 1, TimeMinutes: 30},
		},
	}
}

func TestResolveScalesWithWastage(t *testing.T) {
	res, err := Resolve(fixtureBOM(), 100, DurationPerBatch)
	require.NoError(t, err)

	require.Len(t, res.Requirements, 2)
	// 2 KG/unit, 10% wastage, qty 100 => 220 KG
	require.InDelta(t, 220, res.Requirements[0].Required, 1e-9)
	require.InDelta(t, 400, res.Requirements[1].Required, 1e-9)
}

func TestResolveOrdersOperationsBySequence(t *testing.T) {
	res, err := Resolve(fixtureBOM(), 5, DurationPerBatch)
	require.NoError(t, err)

	require.Len(t, res.Operations, 2)
	require.Equal(t, "Cutting", res.Operations[0].Name)
	require.Equal(t, "Assembly", res.Operations[1].Name)
	require.InDelta(t, 30, res.Operations[0].PlannedMinutes, 1e-9)
}

func TestResolveDurationPerUnit(t *testing.T) {
	res, err := Resolve(fixtureBOM(), 10, DurationPerUnit)
	require.NoError(t, err)

	require.InDelta(t, 300, res.Operations[0].PlannedMinutes, 1e-9)
	require.InDelta(t, 450, res.Operations[1].PlannedMinutes, 1e-9)
}

func TestResolveRejectsBadInput(t *testing.T) {
	_, err := Resolve(nil, 10, DurationPerBatch)
	require.ErrorIs(t, err, ErrBOMNotFound)

	inactive := fixtureBOM()
	inactive.IsActive = false
	_, err = Resolve(inactive, 10, DurationPerBatch)
	require.ErrorIs(t, err, ErrBOMNotFound)

	_, err = Resolve(fixtureBOM(), 0, DurationPerBatch)
	require.ErrorIs(t, err, ErrInvalidQuantity)

	empty := fixtureBOM()
	empty.Components = nil
	_, err = Resolve(empty, 10, DurationPerBatch)
	require.ErrorIs(t, err, ErrNoComponents)
}
