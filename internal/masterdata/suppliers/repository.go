package suppliers

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/crm-ims/crm-ims/internal/masterdata/shared"
	"github.com/crm-ims/crm-ims/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Supplier, int, error)
	Get(ctx context.Context, id int64) (Supplier, error)
	Create(ctx context.Context, s Supplier) (Supplier, error)
	Update(ctx context.Context, s Supplier) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const (
	supplierColumns = `id, code, name, contact_name, email, phone, address, is_active, created_at, updated_at`
	msgNotFound     = "supplier %d not found"
	msgDuplicate    = "supplier with code %q already exists"
)

func scanSupplier(row interface{ Scan(...any) error }) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.ContactName, &s.Email, &s.Phone, &s.Address, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Supplier, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR code ILIKE $` + n + ` OR email ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + supplierColumns + ` FROM suppliers` + where + ` ORDER BY name ` + filters.Direction()
	if filters.Limit > 0 {
		args = append(args, filters.Limit, filters.Offset())
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Supplier, error) {
	s, err := scanSupplier(r.db.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if err != nil {
		return Supplier{}, mdshared.MapReadError(err, msgNotFound, id)
	}
	return s, nil
}

func (r *repository) Create(ctx context.Context, s Supplier) (Supplier, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO suppliers (code, name, contact_name, email, phone, address, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`,
		s.Code, s.Name, s.ContactName, s.Email, s.Phone, s.Address, s.IsActive, now).Scan(&s.ID)
	if err != nil {
		return Supplier{}, mdshared.MapWriteError(err, msgDuplicate, s.Code)
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return s, nil
}

func (r *repository) Update(ctx context.Context, s Supplier) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET code = $1, name = $2, contact_name = $3, email = $4, phone = $5, address = $6,
is_active = $7, updated_at = NOW() WHERE id = $8`,
		s.Code, s.Name, s.ContactName, s.Email, s.Phone, s.Address, s.IsActive, s.ID)
	if err != nil {
		return mdshared.MapWriteError(err, msgDuplicate, s.Code)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgNotFound, s.ID)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return mdshared.MapWriteError(err, msgDuplicate, "")
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgNotFound, id)
	}
	return nil
}
