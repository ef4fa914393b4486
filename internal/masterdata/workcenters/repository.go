package workcenters

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabrica-mrp/fabrica/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]WorkCenter, int, error)
	Get(ctx context.Context, id int64) (WorkCenter, error)
	Create(ctx context.Context, wc WorkCenter) (WorkCenter, error)
	Update(ctx context.Context, id int64, wc WorkCenter) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const workCenterColumns = `id, code, name, description, capacity_per_day_mins, hourly_rate, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]WorkCenter, int, error) {
	query := `SELECT ` + workCenterColumns + ` FROM work_centers WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM work_centers WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.IsActive != nil {
		argCount++
		clause := ` AND is_active = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, *filters.IsActive)
	}
	if filters.Search != "" {
		argCount++
		placeholder := `$` + strconv.Itoa(argCount)
		clause := ` AND (name ILIKE ` + placeholder + ` OR code ILIKE ` + placeholder + `)`
		query += clause
		countQuery += clause
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY code ASC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []WorkCenter
	for rows.Next() {
		var wc WorkCenter
		if err := rows.Scan(&wc.ID, &wc.Code, &wc.Name, &wc.Description, &wc.CapacityPerDayMins, &wc.HourlyRate, &wc.IsActive, &wc.CreatedAt, &wc.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, wc)
	}
	return result, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (WorkCenter, error) {
	var wc WorkCenter
	err := r.db.QueryRow(ctx, `SELECT `+workCenterColumns+` FROM work_centers WHERE id = $1`, id).
		Scan(&wc.ID, &wc.Code, &wc.Name, &wc.Description, &wc.CapacityPerDayMins, &wc.HourlyRate, &wc.IsActive, &wc.CreatedAt, &wc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return WorkCenter{}, shared.ErrNotFound
	}
	return wc, err
}

func (r *repository) Create(ctx context.Context, wc WorkCenter) (WorkCenter, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO work_centers (code, name, description, capacity_per_day_mins, hourly_rate, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		wc.Code, wc.Name, wc.Description, wc.CapacityPerDayMins, wc.HourlyRate, wc.IsActive).
		Scan(&wc.ID, &wc.CreatedAt, &wc.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return WorkCenter{}, shared.ErrDuplicate
		}
		return WorkCenter{}, err
	}
	return wc, nil
}

func (r *repository) Update(ctx context.Context, id int64, wc WorkCenter) error {
	tag, err := r.db.Exec(ctx, `UPDATE work_centers SET code=$1, name=$2, description=$3, capacity_per_day_mins=$4, hourly_rate=$5, is_active=$6, updated_at=NOW() WHERE id=$7`,
		wc.Code, wc.Name, wc.Description, wc.CapacityPerDayMins, wc.HourlyRate, wc.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM work_centers WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return shared.ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
