package warehouses

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/crm-ims/crm-ims/internal/masterdata/shared"
	"github.com/crm-ims/crm-ims/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Warehouse, int, error)
	Get(ctx context.Context, id int64) (Warehouse, error)
	Create(ctx context.Context, w Warehouse) (Warehouse, error)
	Update(ctx context.Context, w Warehouse) error
	Delete(ctx context.Context, id int64) error
	HasInventory(ctx context.Context, id int64) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const (
	msgNotFound  = "warehouse %d not found"
	msgDuplicate = "warehouse with code %q already exists"
)

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Warehouse, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR code ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "code " + filters.Direction()
	if filters.SortBy == "name" {
		order = "name " + filters.Direction()
	}
	query := `SELECT id, code, name, address, is_active, created_at, updated_at FROM warehouses` + where + ` ORDER BY ` + order
	if filters.Limit > 0 {
		args = append(args, filters.Limit, filters.Offset())
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Warehouse{}
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := r.db.QueryRow(ctx, `SELECT id, code, name, address, is_active, created_at, updated_at FROM warehouses WHERE id = $1`, id).
		Scan(&w.ID, &w.Code, &w.Name, &w.Address, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return Warehouse{}, mdshared.MapReadError(err, msgNotFound, id)
	}
	return w, nil
}

func (r *repository) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO warehouses (code, name, address, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`, w.Code, w.Name, w.Address, w.IsActive, now).Scan(&w.ID)
	if err != nil {
		return Warehouse{}, mdshared.MapWriteError(err, msgDuplicate, w.Code)
	}
	w.CreatedAt, w.UpdatedAt = now, now
	return w, nil
}

func (r *repository) Update(ctx context.Context, w Warehouse) error {
	tag, err := r.db.Exec(ctx, `UPDATE warehouses SET code = $1, name = $2, address = $3, is_active = $4, updated_at = NOW() WHERE id = $5`,
		w.Code, w.Name, w.Address, w.IsActive, w.ID)
	if err != nil {
		return mdshared.MapWriteError(err, msgDuplicate, w.Code)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgNotFound, w.ID)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM warehouses WHERE id = $1`, id)
	if err != nil {
		return mdshared.MapWriteError(err, msgDuplicate, "")
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgNotFound, id)
	}
	return nil
}

func (r *repository) HasInventory(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory WHERE warehouse_id = $1)`, id).Scan(&exists)
	return exists, err
}
