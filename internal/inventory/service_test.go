package inventory

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fabrica-mrp/fabrica/internal/shared"
)

type memoryRepo struct {
	balances  map[int64]float64
	movements []StockMovement
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[int64]float64)}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) CurrentStock(ctx context.Context, productID int64) (float64, error) {
	qty, ok := r.balances[productID]
	if !ok {
		return 0, ErrBalanceNotFound
	}
	return qty, nil
}

func (r *memoryRepo) History(ctx context.Context, filter HistoryFilter) ([]StockMovement, error) {
	var result []StockMovement
	for _, m := range r.movements {
		if filter.ProductID == 0 || m.ProductID == filter.ProductID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *memoryRepo) LedgerTotals(ctx context.Context) ([]LedgerTotal, error) {
	byProduct := make(map[int64]*LedgerTotal)
	var order []int64
	for _, m := range r.movements {
		t, ok := byProduct[m.ProductID]
		if !ok {
			t = &LedgerTotal{ProductID: m.ProductID}
			byProduct[m.ProductID] = t
			order = append(order, m.ProductID)
		}
		if m.MovementType == MovementIn {
			t.TotalIn += m.Quantity
		} else {
			t.TotalOut += m.Quantity
		}
	}
	var result []LedgerTotal
	for _, id := range order {
		result = append(result, *byProduct[id])
	}
	return result, nil
}

func (r *memoryRepo) CachedBalances(ctx context.Context) (map[int64]float64, error) {
	out := make(map[int64]float64, len(r.balances))
	for k, v := range r.balances {
		out[k] = v
	}
	return out, nil
}

func (r *memoryRepo) SetBalance(ctx context.Context, productID int64, qty float64) error {
	r.balances[productID] = qty
	return nil
}

func (t *memoryTx) GetBalanceForUpdate(ctx context.Context, productID int64) (float64, error) {
	return t.repo.balances[productID], nil
}

func (t *memoryTx) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	t.repo.nextID++
	m.ID = t.repo.nextID
	t.repo.movements = append(t.repo.movements, m)
	return m.ID, nil
}

func (t *memoryTx) UpsertBalance(ctx context.Context, productID int64, qty float64) error {
	t.repo.balances[productID] = qty
	return nil
}

type memoryIdem struct {
	keys map[string]bool
}

func (i *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if i.keys == nil {
		i.keys = make(map[string]bool)
	}
	if i.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	i.keys[key] = true
	return nil
}

func (i *memoryIdem) Delete(ctx context.Context, key string) error {
	delete(i.keys, key)
	return nil
}

func newTestService(repo RepositoryPort, allowNeg bool) *Service {
	return NewService(slog.Default(), repo, nil, nil, ServiceConfig{AllowNegativeStock: allowNeg})
}

func TestPostMovementUpdatesBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, false)
	ctx := context.Background()

	_, err := svc.PostMovement(ctx, MovementInput{ProductID: 1, MovementType: MovementIn, Quantity: 100, UnitCost: 2})
	require.NoError(t, err)

	out, err := svc.PostMovement(ctx, MovementInput{ProductID: 1, MovementType: MovementOut, Quantity: 30})
	require.NoError(t, err)
	require.NotZero(t, out.ID)

	qty, err := svc.CurrentStock(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 70, qty, 1e-9)
}

func TestPostMovementInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, false)
	ctx := context.Background()

	_, err := svc.PostMovement(ctx, MovementInput{ProductID: 1, MovementType: MovementIn, Quantity: 10})
	require.NoError(t, err)

	_, err = svc.PostMovement(ctx, MovementInput{ProductID: 1, MovementType: MovementOut, Quantity: 25})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Failed posting leaves the ledger and balance untouched.
	require.Len(t, repo.movements, 1)
	qty, err := svc.CurrentStock(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 10, qty, 1e-9)
}

func TestPostMovementAllowNegative(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, true)
	ctx := context.Background()

	_, err := svc.PostMovement(ctx, MovementInput{ProductID: 1, MovementType: MovementOut, Quantity: 5})
	require.NoError(t, err)

	qty, err := svc.CurrentStock(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, -5, qty, 1e-9)
}

func TestPostMovementValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo(), false)
	ctx := context.Background()

	_, err := svc.PostMovement(ctx, MovementInput{MovementType: MovementIn, Quantity: 1})
	require.ErrorIs(t, err, ErrProductRequired)

	_, err = svc.PostMovement(ctx, MovementInput{ProductID: 1, MovementType: MovementIn, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.PostMovement(ctx, MovementInput{ProductID: 1, MovementType: MovementIn, Quantity: 1, UnitCost: -1})
	require.ErrorIs(t, err, ErrInvalidUnitCost)

	_, err = svc.PostMovement(ctx, MovementInput{ProductID: 1, MovementType: "SIDEWAYS", Quantity: 1})
	require.Error(t, err)
}

func TestPostMovementIdempotency(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(slog.Default(), repo, nil, &memoryIdem{}, ServiceConfig{})
	ctx := context.Background()

	input := MovementInput{ProductID: 1, MovementType: MovementIn, Quantity: 10, Reference: "GRN-001"}
	_, err := svc.PostMovement(ctx, input)
	require.NoError(t, err)

	_, err = svc.PostMovement(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.movements, 1)
}

func TestReconcileDetectsAndRepairsDrift(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, false)
	ctx := context.Background()

	_, err := svc.PostMovement(ctx, MovementInput{ProductID: 1, MovementType: MovementIn, Quantity: 100})
	require.NoError(t, err)
	_, err = svc.PostMovement(ctx, MovementInput{ProductID: 1, MovementType: MovementOut, Quantity: 40})
	require.NoError(t, err)

	// Ledger and cache agree.
	drifts, err := svc.Reconcile(ctx, false)
	require.NoError(t, err)
	require.Empty(t, drifts)

	// Corrupt the cached balance; the replay must spot and repair it.
	repo.balances[1] = 999
	drifts, err = svc.Reconcile(ctx, true)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.InDelta(t, 60, drifts[0].Ledger, 1e-9)
	require.InDelta(t, 60, repo.balances[1], 1e-9)
}
