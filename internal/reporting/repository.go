package reporting

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StatusCount is one bucket of orders by status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// WorkCenterLoad compares planned and real minutes per work center.
type WorkCenterLoad struct {
	WorkCenterID   int64   `json:"work_center_id"`
	WorkCenterName string  `json:"work_center_name"`
	PlannedMinutes float64 `json:"planned_minutes"`
	RealMinutes    float64 `json:"real_minutes"`
}

// LowStockProduct is a product at or below its reorder point.
type LowStockProduct struct {
	ProductID    int64   `json:"product_id"`
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	CurrentStock float64 `json:"current_stock"`
	ReorderPoint float64 `json:"reorder_point"`
}

// Dashboard is the aggregate payload served to the SPA.
type Dashboard struct {
	OrdersByStatus      []StatusCount     `json:"orders_by_status"`
	WorkCenterLoad      []WorkCenterLoad  `json:"work_center_load"`
	LowStockProducts    []LowStockProduct `json:"low_stock_products"`
	CompletionRate      float64           `json:"completion_rate"`
	TotalInventoryValue float64           `json:"total_inventory_value"`
}

// Repository reads dashboard aggregates.
type Repository interface {
	OrdersByStatus(ctx context.Context) ([]StatusCount, error)
	WorkCenterLoad(ctx context.Context) ([]WorkCenterLoad, error)
	LowStockProducts(ctx context.Context, limit int) ([]LowStockProduct, error)
	TotalInventoryValue(ctx context.Context) (float64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) OrdersByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM manufacturing_orders GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

func (r *repository) WorkCenterLoad(ctx context.Context) ([]WorkCenterLoad, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.name,
COALESCE(SUM(w.planned_duration), 0), COALESCE(SUM(w.real_duration), 0)
FROM work_centers c
LEFT JOIN work_orders w ON w.work_center_id = c.id
WHERE c.is_active
GROUP BY c.id, c.name ORDER BY c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WorkCenterLoad
	for rows.Next() {
		var l WorkCenterLoad
		if err := rows.Scan(&l.WorkCenterID, &l.WorkCenterName, &l.PlannedMinutes, &l.RealMinutes); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (r *repository) LowStockProducts(ctx context.Context, limit int) ([]LowStockProduct, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, current_stock, reorder_point
FROM products WHERE is_active AND reorder_point > 0 AND current_stock <= reorder_point
ORDER BY current_stock / NULLIF(reorder_point, 0) LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LowStockProduct
	for rows.Next() {
		var p LowStockProduct
		if err := rows.Scan(&p.ProductID, &p.Code, &p.Name, &p.CurrentStock, &p.ReorderPoint); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *repository) TotalInventoryValue(ctx context.Context) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(current_stock * purchase_price), 0) FROM products WHERE is_active`).Scan(&total)
	return total, err
}
