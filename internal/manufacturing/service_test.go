package manufacturing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fabrica-mrp/fabrica/internal/bom"
	"github.com/fabrica-mrp/fabrica/internal/inventory"
)

// memoryRepo keeps the full aggregate in maps and snapshots them per
// transaction so a failed fn rolls every mutation back, matching the
// database behavior the service relies on.
type memoryRepo struct {
	orders     map[int64]*ManufacturingOrder
	components map[int64]*OrderComponent
	workOrders map[int64]*WorkOrder
	logs       map[int64][]TimeLog
	balances   map[int64]float64
	movements  []inventory.StockMovement
	rates      map[int64]float64
	prices     map[int64]float64

	orderSeq, compSeq, woSeq, movSeq, numberSeq int64

	// Instrumentation, never snapshotted: lock acquisition order and
	// transactional cost input reads.
	lockSeq                  []string
	txRateReads, txPriceReads int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:     make(map[int64]*ManufacturingOrder),
		components: make(map[int64]*OrderComponent),
		workOrders: make(map[int64]*WorkOrder),
		logs:       make(map[int64][]TimeLog),
		balances:   make(map[int64]float64),
		rates:      make(map[int64]float64),
		prices:     make(map[int64]float64),
	}
}

func (r *memoryRepo) snapshot() *memoryRepo {
	cp := newMemoryRepo()
	for k, v := range r.orders {
		o := *v
		cp.orders[k] = &o
	}
	for k, v := range r.components {
		c := *v
		cp.components[k] = &c
	}
	for k, v := range r.workOrders {
		wo := *v
		cp.workOrders[k] = &wo
	}
	for k, v := range r.logs {
		cp.logs[k] = append([]TimeLog(nil), v...)
	}
	for k, v := range r.balances {
		cp.balances[k] = v
	}
	cp.movements = append([]inventory.StockMovement(nil), r.movements...)
	cp.orderSeq, cp.compSeq, cp.woSeq, cp.movSeq, cp.numberSeq = r.orderSeq, r.compSeq, r.woSeq, r.movSeq, r.numberSeq
	return cp
}

func (r *memoryRepo) restore(snap *memoryRepo) {
	r.orders, r.components, r.workOrders = snap.orders, snap.components, snap.workOrders
	r.logs, r.balances, r.movements = snap.logs, snap.balances, snap.movements
	r.orderSeq, r.compSeq, r.woSeq, r.movSeq, r.numberSeq = snap.orderSeq, snap.compSeq, snap.woSeq, snap.movSeq, snap.numberSeq
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memoryRepo) ListOrders(ctx context.Context, filter OrderFilter) ([]ManufacturingOrder, int, error) {
	var result []ManufacturingOrder
	for _, o := range r.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		result = append(result, *o)
	}
	return result, len(result), nil
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (*ManufacturingOrder, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	cp.Components = nil
	cp.WorkOrders = nil
	for _, c := range r.components {
		if c.OrderID == id {
			cp.Components = append(cp.Components, *c)
		}
	}
	for _, wo := range r.workOrders {
		if wo.OrderID == id {
			cp.WorkOrders = append(cp.WorkOrders, *wo)
		}
	}
	return &cp, nil
}

func (r *memoryRepo) GetWorkOrder(ctx context.Context, id int64) (WorkOrder, error) {
	wo, ok := r.workOrders[id]
	if !ok {
		return WorkOrder{}, ErrWorkOrderNotFound
	}
	return *wo, nil
}

type memoryInvTx struct {
	repo *memoryRepo
}

func (t *memoryInvTx) GetBalanceForUpdate(ctx context.Context, productID int64) (float64, error) {
	return t.repo.balances[productID], nil
}

func (t *memoryInvTx) InsertMovement(ctx context.Context, m inventory.StockMovement) (int64, error) {
	t.repo.movSeq++
	m.ID = t.repo.movSeq
	t.repo.movements = append(t.repo.movements, m)
	return m.ID, nil
}

func (t *memoryInvTx) UpsertBalance(ctx context.Context, productID int64, qty float64) error {
	t.repo.balances[productID] = qty
	return nil
}

func (t *memoryTx) Inventory() inventory.TxRepository {
	return &memoryInvTx{repo: t.repo}
}

func (t *memoryTx) GenerateOrderNumber(ctx context.Context) (string, error) {
	t.repo.numberSeq++
	return fmt.Sprintf("MO-%06d", t.repo.numberSeq), nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, o ManufacturingOrder) (int64, error) {
	t.repo.orderSeq++
	o.ID = t.repo.orderSeq
	o.Components = nil
	o.WorkOrders = nil
	t.repo.orders[o.ID] = &o
	return o.ID, nil
}

func (t *memoryTx) InsertComponents(ctx context.Context, orderID int64, comps []OrderComponent) error {
	for _, c := range comps {
		t.repo.compSeq++
		c.ID = t.repo.compSeq
		c.OrderID = orderID
		t.repo.components[c.ID] = &c
	}
	return nil
}

func (t *memoryTx) InsertWorkOrders(ctx context.Context, orderID int64, wos []WorkOrder) error {
	for _, wo := range wos {
		t.repo.woSeq++
		wo.ID = t.repo.woSeq
		wo.OrderID = orderID
		wo.Status = WOPending
		t.repo.workOrders[wo.ID] = &wo
	}
	return nil
}

func (t *memoryTx) GetOrderForUpdate(ctx context.Context, id int64) (ManufacturingOrder, error) {
	t.repo.lockSeq = append(t.repo.lockSeq, "order")
	o, ok := t.repo.orders[id]
	if !ok {
		return ManufacturingOrder{}, ErrOrderNotFound
	}
	return *o, nil
}

func (t *memoryTx) WorkCenterRates(ctx context.Context, ids []int64) (map[int64]float64, error) {
	t.repo.txRateReads++
	return t.repo.rates, nil
}

func (t *memoryTx) ProductPurchasePrices(ctx context.Context, ids []int64) (map[int64]float64, error) {
	t.repo.txPriceReads++
	return t.repo.prices, nil
}

func (t *memoryTx) UpdateOrder(ctx context.Context, o ManufacturingOrder) error {
	stored, ok := t.repo.orders[o.ID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Components = nil
	o.WorkOrders = nil
	*stored = o
	return nil
}

func (t *memoryTx) ListComponents(ctx context.Context, orderID int64) ([]OrderComponent, error) {
	var result []OrderComponent
	for i := int64(1); i <= t.repo.compSeq; i++ {
		if c, ok := t.repo.components[i]; ok && c.OrderID == orderID {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (t *memoryTx) ListWorkOrders(ctx context.Context, orderID int64) ([]WorkOrder, error) {
	var result []WorkOrder
	for i := int64(1); i <= t.repo.woSeq; i++ {
		if wo, ok := t.repo.workOrders[i]; ok && wo.OrderID == orderID {
			result = append(result, *wo)
		}
	}
	return result, nil
}

func (t *memoryTx) CountOpenWorkOrders(ctx context.Context, orderID int64) (int, error) {
	count := 0
	for _, wo := range t.repo.workOrders {
		if wo.OrderID == orderID && !wo.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) CancelOpenWorkOrders(ctx context.Context, orderID int64, at time.Time) error {
	for _, wo := range t.repo.workOrders {
		if wo.OrderID == orderID && !wo.Status.Terminal() {
			wo.Status = WOCancelled
			completed := at
			wo.CompletedAt = &completed
		}
	}
	return nil
}

func (t *memoryTx) GetComponentForUpdate(ctx context.Context, orderID, componentID int64) (OrderComponent, error) {
	c, ok := t.repo.components[componentID]
	if !ok || c.OrderID != orderID {
		return OrderComponent{}, ErrComponentNotFound
	}
	return *c, nil
}

func (t *memoryTx) AddConsumption(ctx context.Context, componentID int64, qty float64) error {
	c, ok := t.repo.components[componentID]
	if !ok {
		return ErrComponentNotFound
	}
	c.Consumed += qty
	return nil
}

func (t *memoryTx) GetWorkOrderForUpdate(ctx context.Context, id int64) (WorkOrder, error) {
	t.repo.lockSeq = append(t.repo.lockSeq, "work_order")
	wo, ok := t.repo.workOrders[id]
	if !ok {
		return WorkOrder{}, ErrWorkOrderNotFound
	}
	return *wo, nil
}

func (t *memoryTx) UpdateWorkOrder(ctx context.Context, wo WorkOrder) error {
	stored, ok := t.repo.workOrders[wo.ID]
	if !ok {
		return ErrWorkOrderNotFound
	}
	*stored = wo
	return nil
}

func (t *memoryTx) OpenInterval(ctx context.Context, workOrderID int64, at time.Time) error {
	t.repo.logs[workOrderID] = append(t.repo.logs[workOrderID], TimeLog{WorkOrderID: workOrderID, StartedAt: at})
	return nil
}

func (t *memoryTx) CloseInterval(ctx context.Context, workOrderID int64, at time.Time) error {
	logs := t.repo.logs[workOrderID]
	for i := range logs {
		if logs[i].EndedAt == nil {
			ended := at
			logs[i].EndedAt = &ended
		}
	}
	t.repo.logs[workOrderID] = logs
	return nil
}

func (t *memoryTx) SumClosedMinutes(ctx context.Context, workOrderID int64) (float64, error) {
	var minutes float64
	for _, l := range t.repo.logs[workOrderID] {
		if l.EndedAt != nil {
			minutes += l.EndedAt.Sub(l.StartedAt).Minutes()
		}
	}
	return minutes, nil
}

type fakeBOMs struct {
	boms   map[int64]*bom.BOM
	policy bom.DurationPolicy
}

func (f *fakeBOMs) Get(ctx context.Context, id int64) (*bom.BOM, error) {
	b, ok := f.boms[id]
	if !ok {
		return nil, bom.ErrBOMNotFound
	}
	return b, nil
}

func (f *fakeBOMs) ActiveForProduct(ctx context.Context, productID int64) (*bom.BOM, error) {
	for _, b := range f.boms {
		if b.ProductID == productID && b.IsActive {
			return b, nil
		}
	}
	return nil, bom.ErrBOMNotFound
}

func (f *fakeBOMs) Policy() bom.DurationPolicy {
	if f.policy == "" {
		return bom.DurationPerBatch
	}
	return f.policy
}

const (
	productChair = int64(10)
	productSteel = int64(20)
	bomChair     = int64(1)
)

func testFixtures() (*memoryRepo, *fakeBOMs) {
	repo := newMemoryRepo()
	repo.rates[1] = 60  // cutting center, 60/h
	repo.rates[2] = 120 // assembly center, 120/h
	repo.prices[productSteel] = 5
	repo.balances[productSteel] = 1000

	boms := &fakeBOMs{boms: map[int64]*bom.BOM{
		bomChair: {
			ID:        bomChair,
			ProductID: productChair,
			Version:   "v1",
			IsActive:  true,
			Components: []bom.BOMComponent{
				{ProductID: productSteel, ProductName: "Steel Sheet", Quantity: 2, Unit: "KG", Wastage: 0.1},
			},
			Operations: []bom.BOMOperation{
				{Sequence: 1, Name: "Cutting", WorkCenterID: 1, TimeMinutes: 30},
				{Sequence: 2, Name: "Assembly", WorkCenterID: 2, TimeMinutes: 45},
			},
		},
	}}
	return repo, boms
}

func newTestService(repo *memoryRepo, boms *fakeBOMs) *Service {
	inv := inventory.NewService(slog.Default(), nil, nil, nil, inventory.ServiceConfig{})
	return NewService(slog.Default(), repo, boms, inv, nil)
}

func createOrder(t *testing.T, svc *Service, qty float64) *ManufacturingOrder {
	t.Helper()
	id := bomChair
	order, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		ProductID:    productChair,
		Quantity:     qty,
		BOMID:        &id,
		ScheduleDate: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	return order
}

func advanceTo(t *testing.T, svc *Service, repo *memoryRepo, orderID int64, target OrderStatus) *ManufacturingOrder {
	t.Helper()
	ctx := context.Background()
	order, err := svc.GetOrder(ctx, orderID)
	require.NoError(t, err)

	for order.Status != target {
		switch order.Status {
		case OrderDraft:
			order, err = svc.Confirm(ctx, orderID, 0)
		case OrderConfirmed:
			order, err = svc.Start(ctx, orderID, 0)
		case OrderInProgress:
			for _, wo := range order.WorkOrders {
				if wo.Status.Terminal() {
					continue
				}
				_, werr := svc.StartWorkOrder(ctx, wo.ID, 0)
				require.NoError(t, werr)
				_, werr = svc.CompleteWorkOrder(ctx, wo.ID, 0)
				require.NoError(t, werr)
			}
			order, err = svc.Complete(ctx, orderID, 0)
		case OrderToClose:
			order, err = svc.Close(ctx, orderID, 0)
		default:
			t.Fatalf("cannot advance from %s", order.Status)
		}
		require.NoError(t, err)
	}
	return order
}

func TestCreateOrderMaterializesBOM(t *testing.T) {
	repo, boms := testFixtures()
	svc := newTestService(repo, boms)

	order := createOrder(t, svc, 100)

	require.Equal(t, "MO-000001", order.OrderNumber)
	require.Equal(t, OrderDraft, order.Status)
	require.NotEmpty(t, order.UUID)

	require.Len(t, order.Components, 1)
	require.InDelta(t, 220, order.Components[0].ToConsume, 1e-9)
	require.Zero(t, order.Components[0].Consumed)

	require.Len(t, order.WorkOrders, 2)
	require.Equal(t, "Cutting", order.WorkOrders[0].OperationName)
	require.Equal(t, WOPending, order.WorkOrders[0].Status)

	// 30min at 60/h + 45min at 120/h + 220 KG at 5 = 30 + 90 + 1100
	require.InDelta(t, 1220, order.EstimatedCost, 1e-9)
}

func TestOrderNumbersAreSequential(t *testing.T) {
	repo, boms := testFixtures()
	svc := newTestService(repo, boms)

	first := createOrder(t, svc, 1)
	second := createOrder(t, svc, 1)
	require.Equal(t, "MO-000001", first.OrderNumber)
	require.Equal(t, "MO-000002", second.OrderNumber)
}

func TestOrderLifecycleHappyPath(t *testing.T) {
	repo, boms := testFixtures()
	svc := newTestService(repo, boms)

	order := createOrder(t, svc, 100)
	done := advanceTo(t, svc, repo, order.ID, OrderDone)

	require.Equal(t, OrderDone, done.Status)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)

	// Exactly two postings: OUT 220 steel, IN 100 chairs.
	require.Len(t, repo.movements, 2)
	require.Equal(t, inventory.MovementOut, repo.movements[0].MovementType)
	require.InDelta(t, 220, repo.movements[0].Quantity, 1e-9)
	require.Equal(t, productSteel, repo.movements[0].ProductID)
	require.Equal(t, done.UUID, repo.movements[0].ReferenceID)
	require.Equal(t, inventory.MovementIn, repo.movements[1].MovementType)
	require.InDelta(t, 100, repo.movements[1].Quantity, 1e-9)
	require.Equal(t, productChair, repo.movements[1].ProductID)

	require.InDelta(t, 780, repo.balances[productSteel], 1e-9)
	require.InDelta(t, 100, repo.balances[productChair], 1e-9)

	// Material cost only; work orders completed instantly so labor rounds to 0.
	require.InDelta(t, 1100, done.ActualCost, 1)
}

func TestCompleteNamesRemainingWorkOrders(t *testing.T) {
	repo, boms := testFixtures()
	svc := newTestService(repo, boms)
	ctx := context.Background()

	b := boms.boms[bomChair]
	b.Operations = append(b.Operations, bom.BOMOperation{Sequence: 3, Name: "Painting", WorkCenterID: 2, TimeMinutes: 20})

	order := createOrder(t, svc, 10)
	order = advanceTo(t, svc, repo, order.ID, OrderInProgress)
	require.Len(t, order.WorkOrders, 3)

	for _, wo := range order.WorkOrders[:2] {
		_, err := svc.StartWorkOrder(ctx, wo.ID, 0)
		require.NoError(t, err)
		_, err = svc.CompleteWorkOrder(ctx, wo.ID, 0)
		require.NoError(t, err)
	}

	_, err := svc.Complete(ctx, order.ID, 0)
	require.ErrorIs(t, err, ErrPrerequisiteNotMet)
	require.Contains(t, err.Error(), "1 work orders not done")

	got, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderInProgress, got.Status)
}

func TestInvalidTransitionsRejected(t *testing.T) {
	repo, boms := testFixtures()
	svc := newTestService(repo, boms)
	ctx := context.Background()

	order := createOrder(t, svc, 10)

	_, err := svc.Start(ctx, order.ID, 0)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Close(ctx, order.ID, 0)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Confirm(ctx, order.ID, 0)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, order.ID, 0)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	for _, target := range []OrderStatus{OrderDraft, OrderConfirmed, OrderInProgress, OrderToClose} {
		t.Run(string(target), func(t *testing.T) {
			repo, boms := testFixtures()
			svc := newTestService(repo, boms)
			ctx := context.Background()

			order := createOrder(t, svc, 10)
			order = advanceTo(t, svc, repo, order.ID, target)

			movementsBefore := len(repo.movements)
			cancelled, err := svc.Cancel(ctx, order.ID, 0)
			require.NoError(t, err)
			require.Equal(t, OrderCancelled, cancelled.Status)
			require.Nil(t, cancelled.CompletedAt)
			require.Len(t, repo.movements, movementsBefore)

			for _, wo := range cancelled.WorkOrders {
				require.True(t, wo.Status.Terminal())
			}
		})
	}
}

func TestDoubleCancelHasNoSideEffects(t *testing.T) {
	repo, boms := testFixtures()
	svc := newTestService(repo, boms)
	ctx := context.Background()

	order := createOrder(t, svc, 10)
	cancelled, err := svc.Cancel(ctx, order.ID, 0)
	require.NoError(t, err)
	require.Nil(t, cancelled.CompletedAt)

	_, err = svc.Cancel(ctx, order.ID, 0)
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderCancelled, got.Status)
	require.Nil(t, got.CompletedAt)
	require.Empty(t, repo.movements)
}

func TestNothingLeavesDone(t *testing.T) {
	repo, boms := testFixtures()
	svc := newTestService(repo, boms)
	ctx := context.Background()

	order := createOrder(t, svc, 10)
	advanceTo(t, svc, repo, order.ID, OrderDone)

	_, err := svc.Cancel(ctx, order.ID, 0)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Close(ctx, order.ID, 0)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordConsumptionAndBackflush(t *testing.T) {
	repo, boms := testFixtures()
	svc := newTestService(repo, boms)
	ctx := context.Background()

	order := createOrder(t, svc, 100)

	// Consumption is only valid while the order runs.
	comp := order.Components[0]
	err := svc.RecordConsumption(ctx, order.ID, comp.ID, 50, 0)
	require.ErrorIs(t, err, ErrPrerequisiteNotMet)

	order = advanceTo(t, svc, repo, order.ID, OrderInProgress)
	require.NoError(t, svc.RecordConsumption(ctx, order.ID, comp.ID, 150, 0))
	require.NoError(t, svc.RecordConsumption(ctx, order.ID, comp.ID, 60, 0))

	err = svc.RecordConsumption(ctx, order.ID, comp.ID, -5, 0)
	require.ErrorIs(t, err, ErrValidation)

	done := advanceTo(t, svc, repo, order.ID, OrderDone)
	require.InDelta(t, 210, done.Components[0].Consumed, 1e-9)

	// Recorded consumption wins over the planned 220.
	require.InDelta(t, 210, repo.movements[0].Quantity, 1e-9)
}

func TestCloseRollsBackOnFailedPosting(t *testing.T) {
	repo, boms := testFixtures()
	repo.balances[productSteel] = 50
	svc := newTestService(repo, boms)
	ctx := context.Background()

	order := createOrder(t, svc, 100)
	advanceTo(t, svc, repo, order.ID, OrderToClose)

	_, err := svc.Close(ctx, order.ID, 0)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	got, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderToClose, got.Status)
	require.Empty(t, repo.movements)
	require.InDelta(t, 50, repo.balances[productSteel], 1e-9)
}

func TestCloseReadsCostInputsInsideTransaction(t *testing.T) {
	repo, boms := testFixtures()
	svc := newTestService(repo, boms)

	order := createOrder(t, svc, 100)
	advanceTo(t, svc, repo, order.ID, OrderToClose)

	repo.txRateReads, repo.txPriceReads = 0, 0
	done, err := svc.Close(context.Background(), order.ID, 0)
	require.NoError(t, err)
	require.Equal(t, OrderDone, done.Status)

	// Rates and prices come off the same transaction that posts the
	// movements, not a separate pool read.
	require.Positive(t, repo.txRateReads)
	require.Positive(t, repo.txPriceReads)
	require.InDelta(t, 1100, done.ActualCost, 1)
}

func TestConfirmRequiresActiveBOM(t *testing.T) {
	repo, boms := testFixtures()
	svc := newTestService(repo, boms)
	ctx := context.Background()

	order := createOrder(t, svc, 10)
	boms.boms[bomChair].IsActive = false

	_, err := svc.Confirm(ctx, order.ID, 0)
	require.ErrorIs(t, err, bom.ErrBOMNotFound)
}

func TestStatusSequenceIsCanonicalSubsequence(t *testing.T) {
	repo, boms := testFixtures()
	svc := newTestService(repo, boms)

	order := createOrder(t, svc, 10)
	seen := []OrderStatus{order.Status}

	for _, target := range []OrderStatus{OrderConfirmed, OrderInProgress, OrderToClose, OrderDone} {
		order = advanceTo(t, svc, repo, order.ID, target)
		seen = append(seen, order.Status)
	}

	chain := strings.Join([]string{string(OrderDraft), string(OrderConfirmed), string(OrderInProgress), string(OrderToClose), string(OrderDone)}, ">")
	var got []string
	for _, s := range seen {
		got = append(got, string(s))
	}
	require.Equal(t, chain, strings.Join(got, ">"))
}
