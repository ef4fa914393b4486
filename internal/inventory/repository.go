package inventory

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabrica-mrp/fabrica/internal/platform/db"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CurrentStock(ctx context.Context, productID int64) (float64, error)
	History(ctx context.Context, filter HistoryFilter) ([]StockMovement, error)
	LedgerTotals(ctx context.Context) ([]LedgerTotal, error)
	CachedBalances(ctx context.Context) (map[int64]float64, error)
	SetBalance(ctx context.Context, productID int64, qty float64) error
}

// TxRepository is the transactional slice of the port. The balance row stays
// locked for the duration of the enclosing transaction.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, productID int64) (float64, error)
	InsertMovement(ctx context.Context, m StockMovement) (int64, error)
	UpsertBalance(ctx context.Context, productID int64, qty float64) error
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

// NewTxRepository wraps an already-open transaction so other modules can post
// movements inside their own transactional scope.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) CurrentStock(ctx context.Context, productID int64) (float64, error) {
	var qty float64
	err := r.pool.QueryRow(ctx, `SELECT current_stock FROM products WHERE id = $1`, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrBalanceNotFound
	}
	return qty, err
}

func (r *repository) History(ctx context.Context, filter HistoryFilter) ([]StockMovement, error) {
	query := `SELECT m.id, m.product_id, p.name, m.movement_type, m.quantity, m.unit_cost, m.total_value,
m.reference, COALESCE(m.reference_id::text, ''), m.notes, m.posted_at, m.created_by
FROM stock_movements m JOIN products p ON p.id = m.product_id WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filter.ProductID > 0 {
		argCount++
		query += ` AND m.product_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.ProductID)
	}
	if !filter.From.IsZero() {
		argCount++
		query += ` AND m.posted_at >= $` + strconv.Itoa(argCount)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		argCount++
		query += ` AND m.posted_at <= $` + strconv.Itoa(argCount)
		args = append(args, filter.To)
	}
	query += ` ORDER BY m.posted_at DESC, m.id DESC`
	if filter.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.ProductName, &m.MovementType, &m.Quantity, &m.UnitCost, &m.TotalValue,
			&m.Reference, &m.ReferenceID, &m.Notes, &m.PostedAt, &m.CreatedBy); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *repository) LedgerTotals(ctx context.Context) ([]LedgerTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id,
COALESCE(SUM(quantity) FILTER (WHERE movement_type = 'IN'), 0),
COALESCE(SUM(quantity) FILTER (WHERE movement_type = 'OUT'), 0)
FROM stock_movements GROUP BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LedgerTotal
	for rows.Next() {
		var t LedgerTotal
		if err := rows.Scan(&t.ProductID, &t.TotalIn, &t.TotalOut); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *repository) CachedBalances(ctx context.Context) (map[int64]float64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, current_stock FROM products`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var qty float64
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		balances[id] = qty
	}
	return balances, rows.Err()
}

func (r *repository) SetBalance(ctx context.Context, productID int64, qty float64) error {
	_, err := r.pool.Exec(ctx, `UPDATE products SET current_stock = $1, updated_at = NOW() WHERE id = $2`, qty, productID)
	return err
}

func (t *txRepository) GetBalanceForUpdate(ctx context.Context, productID int64) (float64, error) {
	var qty float64
	err := t.tx.QueryRow(ctx, `SELECT current_stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrBalanceNotFound
	}
	return qty, err
}

func (t *txRepository) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	var refID interface{}
	if m.ReferenceID != "" {
		refID = m.ReferenceID
	}
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_movements
(product_id, movement_type, quantity, unit_cost, total_value, reference, reference_id, notes, posted_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		m.ProductID, m.MovementType, m.Quantity, m.UnitCost, m.TotalValue, m.Reference, refID, m.Notes, m.PostedAt, m.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepository) UpsertBalance(ctx context.Context, productID int64, qty float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE products SET current_stock = $1, updated_at = NOW() WHERE id = $2`, qty, productID)
	return err
}
