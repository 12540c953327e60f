package sales

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crm-ims/crm-ims/internal/inventory"
	"github.com/crm-ims/crm-ims/internal/platform/db"
	"github.com/crm-ims/crm-ims/internal/shared"
)

const orderColumns = `o.id, o.order_number, o.customer_id, COALESCE(c.company_name, ''), o.order_date, o.status,
o.subtotal, o.tax, o.discount, o.total, COALESCE(o.shipping_address, ''), COALESCE(o.notes, ''),
COALESCE(o.created_by, 0), o.created_at, o.updated_at`

const orderJoins = `FROM sales_orders o
LEFT JOIN customers c ON c.id = o.customer_id`

// Repository provides PostgreSQL backed persistence for sales orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps callback in a read-committed transaction shared with the inventory ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, inv: inventory.NewStore(tx)})
	})
}

// Get loads an order with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, r.pool, id, false)
}

// List returns orders matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND o.status = $` + strconv.Itoa(len(args))
	}
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		where += ` AND o.customer_id = $` + strconv.Itoa(len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales_orders o`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + orderColumns + ` ` + orderJoins + where + ` ORDER BY o.created_at DESC, o.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range orders {
		items, err := loadItems(ctx, r.pool, orders[i].ID)
		if err != nil {
			return nil, 0, err
		}
		orders[i].Items = items
	}
	return orders, total, nil
}

type txRepo struct {
	q   db.DBTX
	inv *inventory.Store
}

func (t *txRepo) Inventory() inventory.TxStore { return t.inv }

func (t *txRepo) CustomerExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

func (t *txRepo) ProductNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	rows, err := t.q.Query(ctx, `SELECT id, name FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]string, len(ids))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

func (t *txRepo) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var ok bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sales_orders WHERE order_number = $1)`, number).Scan(&ok)
	return ok, err
}

func (t *txRepo) InsertOrder(ctx context.Context, o *Order) error {
	err := t.q.QueryRow(ctx, `INSERT INTO sales_orders (order_number, customer_id, order_date, status, subtotal, tax, discount, total,
shipping_address, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, 0), $12, $13) RETURNING id`,
		o.OrderNumber, o.CustomerID, o.OrderDate, string(o.Status), o.Subtotal, o.Tax, o.Discount, o.Total,
		o.ShippingAddress, o.Notes, o.CreatedBy, o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.ErrNumberExhausted
		}
		return err
	}
	return nil
}

func (t *txRepo) InsertItems(ctx context.Context, o *Order) error {
	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err := t.q.QueryRow(ctx, `INSERT INTO order_items (order_id, product_id, warehouse_id, quantity, unit_price, discount, total)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			item.OrderID, item.ProductID, item.WarehouseID, item.Quantity, item.UnitPrice, item.Discount, item.Total).Scan(&item.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) LockOrder(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, t.q, id, true)
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := t.q.Exec(ctx, `UPDATE sales_orders SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgOrderNotFound, id)
	}
	return nil
}

func (t *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM sales_orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgOrderNotFound, id)
	}
	return nil
}

func getOrder(ctx context.Context, q db.DBTX, id int64, lock bool) (Order, error) {
	query := `SELECT ` + orderColumns + ` ` + orderJoins + ` WHERE o.id = $1`
	if lock {
		query += ` FOR UPDATE OF o`
	}
	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, shared.NotFound(msgOrderNotFound, id)
	}
	if err != nil {
		return Order{}, err
	}
	items, err := loadItems(ctx, q, id)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	return o, nil
}

func loadItems(ctx context.Context, q db.DBTX, orderID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT i.id, i.order_id, i.product_id, COALESCE(p.name, ''), i.warehouse_id,
i.quantity, i.unit_price, i.discount, i.total
FROM order_items i
LEFT JOIN products p ON p.id = i.product_id
WHERE i.order_id = $1
ORDER BY i.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.WarehouseID,
			&it.Quantity, &it.UnitPrice, &it.Discount, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		status string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerName, &o.OrderDate, &status,
		&o.Subtotal, &o.Tax, &o.Discount, &o.Total, &o.ShippingAddress, &o.Notes,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	return o, err
}
