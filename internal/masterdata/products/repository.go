package products

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/crm-ims/crm-ims/internal/masterdata/shared"
	"github.com/crm-ims/crm-ims/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, product Product) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, sku, name, description, unit, price, cost, reorder_level, reorder_quantity, is_active, created_at, updated_at`

const (
	msgNotFound  = "product %d not found"
	msgDuplicate = "product with SKU %q already exists"
)

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}

	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR sku ILIKE $` + n + `)`
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		where += ` AND is_active = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY ` + sortOrder(filters)
	if filters.Limit > 0 {
		args = append(args, filters.Limit, filters.Offset())
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Unit, &p.Price, &p.Cost, &p.ReorderLevel, &p.ReorderQuantity, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Unit, &p.Price, &p.Cost, &p.ReorderLevel, &p.ReorderQuantity, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, mdshared.MapReadError(err, msgNotFound, id)
	}
	return p, nil
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `INSERT INTO products (sku, name, description, unit, price, cost, reorder_level, reorder_quantity, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10) RETURNING id`,
		product.SKU, product.Name, product.Description, product.Unit, product.Price, product.Cost, product.ReorderLevel, product.ReorderQuantity, product.IsActive, now).Scan(&product.ID)
	if err != nil {
		return Product{}, mdshared.MapWriteError(err, msgDuplicate, product.SKU)
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

func (r *repository) Update(ctx context.Context, product Product) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET sku = $1, name = $2, description = $3, unit = $4, price = $5, cost = $6,
reorder_level = $7, reorder_quantity = $8, is_active = $9, updated_at = NOW() WHERE id = $10`,
		product.SKU, product.Name, product.Description, product.Unit, product.Price, product.Cost, product.ReorderLevel, product.ReorderQuantity, product.IsActive, product.ID)
	if err != nil {
		return mdshared.MapWriteError(err, msgDuplicate, product.SKU)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgNotFound, product.ID)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return mdshared.MapWriteError(err, msgDuplicate, "")
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgNotFound, id)
	}
	return nil
}

func sortOrder(filters mdshared.ListFilters) string {
	dir := filters.Direction()
	switch filters.SortBy {
	case "sku":
		return "sku " + dir
	case "price":
		return "price " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
