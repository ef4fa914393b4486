package manufacturing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabrica-mrp/fabrica/internal/inventory"
	"github.com/fabrica-mrp/fabrica/internal/platform/db"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListOrders(ctx context.Context, filter OrderFilter) ([]ManufacturingOrder, int, error)
	GetOrder(ctx context.Context, id int64) (*ManufacturingOrder, error)
	GetWorkOrder(ctx context.Context, id int64) (WorkOrder, error)
}

// TxRepository is the transactional slice of the port. The order (or work
// order) row stays locked for the duration of the enclosing transaction.
type TxRepository interface {
	Inventory() inventory.TxRepository

	GenerateOrderNumber(ctx context.Context) (string, error)
	InsertOrder(ctx context.Context, o ManufacturingOrder) (int64, error)
	InsertComponents(ctx context.Context, orderID int64, comps []OrderComponent) error
	InsertWorkOrders(ctx context.Context, orderID int64, wos []WorkOrder) error

	GetOrderForUpdate(ctx context.Context, id int64) (ManufacturingOrder, error)
	UpdateOrder(ctx context.Context, o ManufacturingOrder) error
	ListComponents(ctx context.Context, orderID int64) ([]OrderComponent, error)
	ListWorkOrders(ctx context.Context, orderID int64) ([]WorkOrder, error)
	CountOpenWorkOrders(ctx context.Context, orderID int64) (int, error)
	CancelOpenWorkOrders(ctx context.Context, orderID int64, at time.Time) error

	GetComponentForUpdate(ctx context.Context, orderID, componentID int64) (OrderComponent, error)
	AddConsumption(ctx context.Context, componentID int64, qty float64) error

	GetWorkOrderForUpdate(ctx context.Context, id int64) (WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, wo WorkOrder) error
	OpenInterval(ctx context.Context, workOrderID int64, at time.Time) error
	CloseInterval(ctx context.Context, workOrderID int64, at time.Time) error
	SumClosedMinutes(ctx context.Context, workOrderID int64) (float64, error)

	// Cost inputs are read on the transaction so closing and recosting see
	// the same snapshot they post against.
	WorkCenterRates(ctx context.Context, ids []int64) (map[int64]float64, error)
	ProductPurchasePrices(ctx context.Context, ids []int64) (map[int64]float64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) RepositoryPort {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `o.id, o.uuid, o.order_number, o.product_id, p.name, o.bom_id, o.quantity, o.status, o.priority,
o.schedule_date, o.started_at, o.completed_at, o.assignee_id, o.estimated_cost, o.actual_cost, o.notes,
o.created_at, o.updated_at`

func scanOrder(row pgx.Row) (ManufacturingOrder, error) {
	var o ManufacturingOrder
	err := row.Scan(&o.ID, &o.UUID, &o.OrderNumber, &o.ProductID, &o.ProductName, &o.BOMID, &o.Quantity, &o.Status,
		&o.Priority, &o.ScheduleDate, &o.StartedAt, &o.CompletedAt, &o.AssigneeID, &o.EstimatedCost,
		&o.ActualCost, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *repository) ListOrders(ctx context.Context, filter OrderFilter) ([]ManufacturingOrder, int, error) {
	query := `SELECT ` + orderColumns + ` FROM manufacturing_orders o JOIN products p ON p.id = o.product_id WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM manufacturing_orders o WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filter.Status != "" {
		argCount++
		clause := ` AND o.status = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filter.Status)
	}
	if filter.ProductID > 0 {
		argCount++
		clause := ` AND o.product_id = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filter.ProductID)
	}
	if filter.Priority != "" {
		argCount++
		clause := ` AND o.priority = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filter.Priority)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY o.schedule_date, o.id`
	if filter.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filter.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filter.Page - 1) * filter.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []ManufacturingOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, o)
	}
	return result, total, rows.Err()
}

func (r *repository) GetOrder(ctx context.Context, id int64) (*ManufacturingOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM manufacturing_orders o JOIN products p ON p.id = o.product_id WHERE o.id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Components, err = listComponents(ctx, r.pool, id); err != nil {
		return nil, err
	}
	if o.WorkOrders, err = listWorkOrders(ctx, r.pool, id); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) GetWorkOrder(ctx context.Context, id int64) (WorkOrder, error) {
	return getWorkOrder(ctx, r.pool, id, false)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func listComponents(ctx context.Context, q querier, orderID int64) ([]OrderComponent, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, product_id, product_name, to_consume, consumed, unit
FROM manufacturing_order_components WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []OrderComponent
	for rows.Next() {
		var c OrderComponent
		if err := rows.Scan(&c.ID, &c.OrderID, &c.ProductID, &c.ProductName, &c.ToConsume, &c.Consumed, &c.Unit); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

const workOrderColumns = `w.id, w.order_id, w.operation_name, w.work_center_id, c.name, w.sequence,
w.planned_duration, w.real_duration, w.status, w.assigned_to, w.started_at, w.completed_at, w.comments`

func scanWorkOrder(row pgx.Row) (WorkOrder, error) {
	var wo WorkOrder
	err := row.Scan(&wo.ID, &wo.OrderID, &wo.OperationName, &wo.WorkCenterID, &wo.WorkCenterName, &wo.Sequence,
		&wo.PlannedDuration, &wo.RealDuration, &wo.Status, &wo.AssignedTo, &wo.StartedAt, &wo.CompletedAt, &wo.Comments)
	return wo, err
}

func listWorkOrders(ctx context.Context, q querier, orderID int64) ([]WorkOrder, error) {
	rows, err := q.Query(ctx, `SELECT `+workOrderColumns+` FROM work_orders w JOIN work_centers c ON c.id = w.work_center_id
WHERE w.order_id = $1 ORDER BY w.sequence, w.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, wo)
	}
	return result, rows.Err()
}

func getWorkOrder(ctx context.Context, q querier, id int64, forUpdate bool) (WorkOrder, error) {
	query := `SELECT ` + workOrderColumns + ` FROM work_orders w JOIN work_centers c ON c.id = w.work_center_id WHERE w.id = $1`
	if forUpdate {
		query += ` FOR UPDATE OF w`
	}
	wo, err := scanWorkOrder(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return WorkOrder{}, ErrWorkOrderNotFound
	}
	return wo, err
}

func (t *txRepository) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}

// GenerateOrderNumber is collision safe under concurrency: the upsert row
// locks until the enclosing transaction commits.
func (t *txRepository) GenerateOrderNumber(ctx context.Context) (string, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, seq)
		VALUES ($1, 1)
		ON CONFLICT (doc_type)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, "MO").Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("MO-%06d", seq), nil
}

func (t *txRepository) InsertOrder(ctx context.Context, o ManufacturingOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO manufacturing_orders
(uuid, order_number, product_id, bom_id, quantity, status, priority, schedule_date, assignee_id, estimated_cost, actual_cost, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0,$11,NOW(),NOW()) RETURNING id`,
		o.UUID, o.OrderNumber, o.ProductID, o.BOMID, o.Quantity, o.Status, o.Priority, o.ScheduleDate, o.AssigneeID, o.EstimatedCost, o.Notes).Scan(&id)
	return id, err
}

func (t *txRepository) InsertComponents(ctx context.Context, orderID int64, comps []OrderComponent) error {
	for _, c := range comps {
		_, err := t.tx.Exec(ctx, `INSERT INTO manufacturing_order_components
(order_id, product_id, product_name, to_consume, consumed, unit) VALUES ($1,$2,$3,$4,0,$5)`,
			orderID, c.ProductID, c.ProductName, c.ToConsume, c.Unit)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) InsertWorkOrders(ctx context.Context, orderID int64, wos []WorkOrder) error {
	for _, wo := range wos {
		_, err := t.tx.Exec(ctx, `INSERT INTO work_orders
(order_id, operation_name, work_center_id, sequence, planned_duration, real_duration, status, comments)
VALUES ($1,$2,$3,$4,$5,0,$6,$7)`,
			orderID, wo.OperationName, wo.WorkCenterID, wo.Sequence, wo.PlannedDuration, WOPending, wo.Comments)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (ManufacturingOrder, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM manufacturing_orders o JOIN products p ON p.id = o.product_id WHERE o.id = $1 FOR UPDATE OF o`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ManufacturingOrder{}, ErrOrderNotFound
	}
	return o, err
}

func (t *txRepository) UpdateOrder(ctx context.Context, o ManufacturingOrder) error {
	_, err := t.tx.Exec(ctx, `UPDATE manufacturing_orders
SET status=$1, started_at=$2, completed_at=$3, actual_cost=$4, assignee_id=$5, notes=$6, updated_at=NOW() WHERE id=$7`,
		o.Status, o.StartedAt, o.CompletedAt, o.ActualCost, o.AssigneeID, o.Notes, o.ID)
	return err
}

func (t *txRepository) ListComponents(ctx context.Context, orderID int64) ([]OrderComponent, error) {
	return listComponents(ctx, t.tx, orderID)
}

func (t *txRepository) ListWorkOrders(ctx context.Context, orderID int64) ([]WorkOrder, error) {
	return listWorkOrders(ctx, t.tx, orderID)
}

func (t *txRepository) CountOpenWorkOrders(ctx context.Context, orderID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM work_orders WHERE order_id = $1 AND status NOT IN ($2, $3)`,
		orderID, WODone, WOCancelled).Scan(&count)
	return count, err
}

func (t *txRepository) CancelOpenWorkOrders(ctx context.Context, orderID int64, at time.Time) error {
	if _, err := t.tx.Exec(ctx, `UPDATE work_order_time_logs SET ended_at = $1
WHERE ended_at IS NULL AND work_order_id IN (SELECT id FROM work_orders WHERE order_id = $2)`, at, orderID); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `UPDATE work_orders SET status = $1, completed_at = $2
WHERE order_id = $3 AND status NOT IN ($4, $5)`, WOCancelled, at, orderID, WODone, WOCancelled)
	return err
}

func (t *txRepository) GetComponentForUpdate(ctx context.Context, orderID, componentID int64) (OrderComponent, error) {
	var c OrderComponent
	err := t.tx.QueryRow(ctx, `SELECT id, order_id, product_id, product_name, to_consume, consumed, unit
FROM manufacturing_order_components WHERE id = $1 AND order_id = $2 FOR UPDATE`, componentID, orderID).
		Scan(&c.ID, &c.OrderID, &c.ProductID, &c.ProductName, &c.ToConsume, &c.Consumed, &c.Unit)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderComponent{}, ErrComponentNotFound
	}
	return c, err
}

func (t *txRepository) AddConsumption(ctx context.Context, componentID int64, qty float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE manufacturing_order_components SET consumed = consumed + $1 WHERE id = $2`, qty, componentID)
	return err
}

func (t *txRepository) GetWorkOrderForUpdate(ctx context.Context, id int64) (WorkOrder, error) {
	return getWorkOrder(ctx, t.tx, id, true)
}

func (t *txRepository) UpdateWorkOrder(ctx context.Context, wo WorkOrder) error {
	_, err := t.tx.Exec(ctx, `UPDATE work_orders
SET status=$1, started_at=$2, completed_at=$3, real_duration=$4, assigned_to=$5, comments=$6 WHERE id=$7`,
		wo.Status, wo.StartedAt, wo.CompletedAt, wo.RealDuration, wo.AssignedTo, wo.Comments, wo.ID)
	return err
}

func (t *txRepository) OpenInterval(ctx context.Context, workOrderID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO work_order_time_logs (work_order_id, started_at) VALUES ($1, $2)`, workOrderID, at)
	return err
}

func (t *txRepository) CloseInterval(ctx context.Context, workOrderID int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE work_order_time_logs SET ended_at = $1 WHERE work_order_id = $2 AND ended_at IS NULL`, at, workOrderID)
	return err
}

func (t *txRepository) SumClosedMinutes(ctx context.Context, workOrderID int64) (float64, error) {
	var minutes float64
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(EXTRACT(EPOCH FROM (ended_at - started_at)) / 60), 0)
FROM work_order_time_logs WHERE work_order_id = $1 AND ended_at IS NOT NULL`, workOrderID).Scan(&minutes)
	return minutes, err
}

func (t *txRepository) WorkCenterRates(ctx context.Context, ids []int64) (map[int64]float64, error) {
	return idFloatMap(ctx, t.tx, `SELECT id, hourly_rate FROM work_centers WHERE id = ANY($1)`, ids)
}

func (t *txRepository) ProductPurchasePrices(ctx context.Context, ids []int64) (map[int64]float64, error) {
	return idFloatMap(ctx, t.tx, `SELECT id, purchase_price FROM products WHERE id = ANY($1)`, ids)
}

func idFloatMap(ctx context.Context, q querier, query string, ids []int64) (map[int64]float64, error) {
	result := make(map[int64]float64)
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var value float64
		if err := rows.Scan(&id, &value); err != nil {
			return nil, err
		}
		result[id] = value
	}
	return result, rows.Err()
}
