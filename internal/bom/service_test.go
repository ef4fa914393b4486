package bom

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	boms   map[int64]*BOM
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{boms: make(map[int64]*BOM)}
}

func (r *memoryRepo) List(ctx context.Context, productID int64) ([]BOM, error) {
	var result []BOM
	for _, b := range r.boms {
		if productID == 0 || b.ProductID == productID {
			result = append(result, *b)
		}
	}
	return result, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (*BOM, error) {
	b, ok := r.boms[id]
	if !ok {
		return nil, ErrBOMNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memoryRepo) GetActiveForProduct(ctx context.Context, productID int64) (*BOM, error) {
	for _, b := range r.boms {
		if b.ProductID == productID && b.IsActive {
			cp := *b
			return &cp, nil
		}
	}
	return nil, ErrBOMNotFound
}

func (r *memoryRepo) Create(ctx context.Context, b BOM) (*BOM, error) {
	r.nextID++
	b.ID = r.nextID
	r.boms[b.ID] = &b
	return &b, nil
}

func (r *memoryRepo) Activate(ctx context.Context, id int64) error {
	target, ok := r.boms[id]
	if !ok {
		return ErrBOMNotFound
	}
	for _, b := range r.boms {
		if b.ProductID == target.ProductID {
			b.IsActive = b.ID == id
		}
	}
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(slog.Default(), repo, DurationPerBatch)
}

func TestCreateBOMValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, BOM{ProductID: 1, Version: "v1"})
	require.ErrorIs(t, err, ErrNoComponents)

	_, err = svc.Create(ctx, BOM{ProductID: 1, Version: "v1", Components: []BOMComponent{{ProductID: 2, Quantity: 0}}})
	require.ErrorIs(t, err, ErrValidation)

	created, err := svc.Create(ctx, BOM{ProductID: 1, Version: "v1", Components: []BOMComponent{{ProductID: 2, Quantity: 2, Unit: "KG", Wastage: 0.1}}})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.False(t, created.IsActive)
}

func TestActivateIsExclusivePerProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	comp := []BOMComponent{{ProductID: 2, Quantity: 1, Unit: "PCS"}}
	v1, err := svc.Create(ctx, BOM{ProductID: 1, Version: "v1", Components: comp})
	require.NoError(t, err)
	v2, err := svc.Create(ctx, BOM{ProductID: 1, Version: "v2", Components: comp})
	require.NoError(t, err)

	require.NoError(t, svc.Activate(ctx, v1.ID))
	require.NoError(t, svc.Activate(ctx, v2.ID))

	active, err := svc.ActiveForProduct(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, v2.ID, active.ID)

	got, err := svc.Get(ctx, v1.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestResolveByIDUsesConfiguredPolicy(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(slog.Default(), repo, DurationPerUnit)
	ctx := context.Background()

	created, err := svc.Create(ctx, BOM{
		ProductID:  1,
		Version:    "v1",
		Components: []BOMComponent{{ProductID: 2, Quantity: 2, Unit: "KG", Wastage: 0.1}},
		Operations: []BOMOperation{{Sequence: 1, Name: "Cutting", WorkCenterID: 1, TimeMinutes: 30}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Activate(ctx, created.ID))

	res, err := svc.ResolveByID(ctx, created.ID, 10)
	require.NoError(t, err)
	require.InDelta(t, 22, res.Requirements[0].Required, 1e-9)
	require.InDelta(t, 300, res.Operations[0].PlannedMinutes, 1e-9)
}
