package customers

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/crm-ims/crm-ims/internal/masterdata/shared"
	"github.com/crm-ims/crm-ims/internal/shared"
)

// Repository persists customers.
type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Customer, int, error)
	Get(ctx context.Context, id int64) (Customer, error)
	Create(ctx context.Context, c Customer) (Customer, error)
	Update(ctx context.Context, c Customer) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the postgres repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const (
	customerColumns = `id, company_name, contact_name, email, phone, address, city, country, notes, is_active, COALESCE(created_by, 0), created_at, updated_at`
	msgNotFound     = "customer %d not found"
)

func scanCustomer(row interface{ Scan(...any) error }) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.CompanyName, &c.ContactName, &c.Email, &c.Phone, &c.Address, &c.City, &c.Country, &c.Notes, &c.IsActive, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Customer, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (company_name ILIKE $` + n + ` OR contact_name ILIKE $` + n + ` OR email ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	order := "company_name " + filters.Direction()
	if filters.SortBy == "created_at" {
		order = "created_at " + filters.Direction()
	}
	query := `SELECT ` + customerColumns + ` FROM customers` + where + ` ORDER BY ` + order
	if filters.Limit > 0 {
		args = append(args, filters.Limit, filters.Offset())
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		return Customer{}, mdshared.MapReadError(err, msgNotFound, id)
	}
	return c, nil
}

func (r *repository) Create(ctx context.Context, c Customer) (Customer, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO customers (company_name, contact_name, email, phone, address, city, country, notes, is_active, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, 0), $11, $11) RETURNING id`,
		c.CompanyName, c.ContactName, c.Email, c.Phone, c.Address, c.City, c.Country, c.Notes, c.IsActive, c.CreatedBy, now).Scan(&c.ID)
	if err != nil {
		return Customer{}, err
	}
	c.CreatedAt, c.UpdatedAt = now, now
	return c, nil
}

func (r *repository) Update(ctx context.Context, c Customer) error {
	tag, err := r.db.Exec(ctx, `UPDATE customers SET company_name = $1, contact_name = $2, email = $3, phone = $4, address = $5,
city = $6, country = $7, notes = $8, is_active = $9, updated_at = NOW() WHERE id = $10`,
		c.CompanyName, c.ContactName, c.Email, c.Phone, c.Address, c.City, c.Country, c.Notes, c.IsActive, c.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgNotFound, c.ID)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return mdshared.MapWriteError(err, "")
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgNotFound, id)
	}
	return nil
}
