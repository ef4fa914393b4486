package bom

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabrica-mrp/fabrica/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context, productID int64) ([]BOM, error)
	Get(ctx context.Context, id int64) (*BOM, error)
	GetActiveForProduct(ctx context.Context, productID int64) (*BOM, error)
	Create(ctx context.Context, b BOM) (*BOM, error)
	Activate(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, productID int64) ([]BOM, error) {
	query := `SELECT b.id, b.product_id, p.name, b.version, b.is_active, b.created_at, b.updated_at
FROM boms b JOIN products p ON p.id = b.product_id`
	args := []interface{}{}
	if productID > 0 {
		query += ` WHERE b.product_id = $1`
		args = append(args, productID)
	}
	query += ` ORDER BY b.product_id, b.version`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BOM
	for rows.Next() {
		var b BOM
		if err := rows.Scan(&b.ID, &b.ProductID, &b.ProductName, &b.Version, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (*BOM, error) {
	return r.fetch(ctx, `WHERE b.id = $1`, id)
}

func (r *repository) GetActiveForProduct(ctx context.Context, productID int64) (*BOM, error) {
	return r.fetch(ctx, `WHERE b.product_id = $1 AND b.is_active`, productID)
}

func (r *repository) fetch(ctx context.Context, where string, arg interface{}) (*BOM, error) {
	var b BOM
	err := r.pool.QueryRow(ctx, `SELECT b.id, b.product_id, p.name, b.version, b.is_active, b.created_at, b.updated_at
FROM boms b JOIN products p ON p.id = b.product_id `+where, arg).
		Scan(&b.ID, &b.ProductID, &b.ProductName, &b.Version, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBOMNotFound
	}
	if err != nil {
		return nil, err
	}

	compRows, err := r.pool.Query(ctx, `SELECT c.id, c.bom_id, c.product_id, p.name, c.quantity, c.unit, c.wastage
FROM bom_components c JOIN products p ON p.id = c.product_id
WHERE c.bom_id = $1 ORDER BY c.id`, b.ID)
	if err != nil {
		return nil, err
	}
	defer compRows.Close()
	for compRows.Next() {
		var c BOMComponent
		if err := compRows.Scan(&c.ID, &c.BOMID, &c.ProductID, &c.ProductName, &c.Quantity, &c.Unit, &c.Wastage); err != nil {
			return nil, err
		}
		b.Components = append(b.Components, c)
	}
	if err := compRows.Err(); err != nil {
		return nil, err
	}

	opRows, err := r.pool.Query(ctx, `SELECT o.id, o.bom_id, o.sequence, o.name, o.work_center_id, w.name, o.time_minutes
FROM bom_operations o JOIN work_centers w ON w.id = o.work_center_id
WHERE o.bom_id = $1 ORDER BY o.sequence`, b.ID)
	if err != nil {
		return nil, err
	}
	defer opRows.Close()
	for opRows.Next() {
		var op BOMOperation
		if err := opRows.Scan(&op.ID, &op.BOMID, &op.Sequence, &op.Name, &op.WorkCenterID, &op.WorkCenterName, &op.TimeMinutes); err != nil {
			return nil, err
		}
		b.Operations = append(b.Operations, op)
	}
	return &b, opRows.Err()
}

func (r *repository) Create(ctx context.Context, b BOM) (*BOM, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO boms (product_id, version, is_active, created_at, updated_at)
VALUES ($1, $2, false, NOW(), NOW()) RETURNING id, created_at, updated_at`,
			b.ProductID, b.Version).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert bom: %w", err)
		}
		for i := range b.Components {
			c := &b.Components[i]
			c.BOMID = b.ID
			err := tx.QueryRow(ctx, `INSERT INTO bom_components (bom_id, product_id, quantity, unit, wastage)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				c.BOMID, c.ProductID, c.Quantity, c.Unit, c.Wastage).Scan(&c.ID)
			if err != nil {
				return fmt.Errorf("insert bom component: %w", err)
			}
		}
		for i := range b.Operations {
			op := &b.Operations[i]
			op.BOMID = b.ID
			err := tx.QueryRow(ctx, `INSERT INTO bom_operations (bom_id, sequence, name, work_center_id, time_minutes)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				op.BOMID, op.Sequence, op.Name, op.WorkCenterID, op.TimeMinutes).Scan(&op.ID)
			if err != nil {
				return fmt.Errorf("insert bom operation: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Activate marks one version active and all sibling versions inactive in a
// single transaction. There is no reverse operation.
func (r *repository) Activate(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var productID int64
		err := tx.QueryRow(ctx, `SELECT product_id FROM boms WHERE id = $1 FOR UPDATE`, id).Scan(&productID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBOMNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE boms SET is_active = false, updated_at = NOW() WHERE product_id = $1 AND id <> $2 AND is_active`, productID, id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE boms SET is_active = true, updated_at = NOW() WHERE id = $1`, id)
		return err
	})
}
