package procurement

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/crm-ims/crm-ims/internal/inventory"
	"github.com/crm-ims/crm-ims/internal/platform/db"
	"github.com/crm-ims/crm-ims/internal/shared"
)

const poColumns = `po.id, po.po_number, po.supplier_id, COALESCE(s.name, ''), po.order_date, po.expected_date, po.status,
po.subtotal, po.tax, po.total, COALESCE(po.notes, ''), COALESCE(po.created_by, 0), po.created_at, po.updated_at`

const poJoins = `FROM purchase_orders po
LEFT JOIN suppliers s ON s.id = po.supplier_id`

// Repository provides PostgreSQL backed persistence for purchase orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps fn inside a read-committed transaction shared with the inventory ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("purchasing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx, inv: inventory.NewStore(tx)})
	})
}

// Get loads an order with items.
func (r *Repository) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getOrder(ctx, r.pool, id, false)
}

// List returns orders matching filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND po.status = $` + strconv.Itoa(len(args))
	}
	if filter.SupplierID > 0 {
		args = append(args, filter.SupplierID)
		where += ` AND po.supplier_id = $` + strconv.Itoa(len(args))
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders po`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + poColumns + ` ` + poJoins + where + ` ORDER BY po.created_at DESC, po.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []PurchaseOrder{}
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, po)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range out {
		items, err := loadItems(ctx, r.pool, out[i].ID)
		if err != nil {
			return nil, 0, err
		}
		out[i].Items = items
	}
	return out, total, nil
}

type txRepo struct {
	q   db.DBTX
	inv *inventory.Store
}

func (t *txRepo) Inventory() inventory.TxStore { return t.inv }

func (t *txRepo) SupplierExists(ctx context.Context, id int64) (bool, error) {
	return exists(ctx, t.q, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)`, id)
}

func (t *txRepo) WarehouseExists(ctx context.Context, id int64) (bool, error) {
	return exists(ctx, t.q, `SELECT EXISTS (SELECT 1 FROM warehouses WHERE id = $1)`, id)
}

func (t *txRepo) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	return exists(ctx, t.q, `SELECT EXISTS (SELECT 1 FROM purchase_orders WHERE po_number = $1)`, number)
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

func (t *txRepo) InsertOrder(ctx context.Context, po *PurchaseOrder) error {
	err := t.q.QueryRow(ctx, `INSERT INTO purchase_orders (po_number, supplier_id, order_date, expected_date, status, subtotal, tax, total,
notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, 0), $11, $12) RETURNING id`,
		po.PONumber, po.SupplierID, po.OrderDate, po.ExpectedDate, string(po.Status), po.Subtotal, po.Tax, po.Total,
		po.Notes, po.CreatedBy, po.CreatedAt, po.UpdatedAt).Scan(&po.ID)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.ErrNumberExhausted
		}
		return err
	}
	po.Items, err = t.ReplaceItems(ctx, po.ID, po.Items)
	return err
}

func (t *txRepo) LockOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getOrder(ctx, t.q, id, true)
}

func (t *txRepo) UpdateHeader(ctx context.Context, po PurchaseOrder) error {
	tag, err := t.q.Exec(ctx, `UPDATE purchase_orders SET supplier_id = $1, expected_date = $2, status = $3, subtotal = $4, tax = $5,
total = $6, notes = NULLIF($7, ''), updated_at = NOW() WHERE id = $8`,
		po.SupplierID, po.ExpectedDate, string(po.Status), po.Subtotal, po.Tax, po.Total, po.Notes, po.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgOrderNotFound, po.ID)
	}
	return nil
}

func (t *txRepo) ReplaceItems(ctx context.Context, orderID int64, items []Item) ([]Item, error) {
	if _, err := t.q.Exec(ctx, `DELETE FROM purchase_order_items WHERE purchase_order_id = $1`, orderID); err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(items))
	for _, item := range items {
		item.PurchaseOrderID = orderID
		err := t.q.QueryRow(ctx, `INSERT INTO purchase_order_items (purchase_order_id, product_id, quantity, unit_price, total, received_quantity)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			orderID, item.ProductID, item.Quantity, item.UnitPrice, item.Total, item.ReceivedQuantity).Scan(&item.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (t *txRepo) SetReceivedQuantity(ctx context.Context, itemID int64, qty decimal.Decimal) error {
	_, err := t.q.Exec(ctx, `UPDATE purchase_order_items SET received_quantity = $1, updated_at = NOW() WHERE id = $2`, qty, itemID)
	return err
}

func (t *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM purchase_order_items WHERE purchase_order_id = $1`, id); err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(msgOrderNotFound, id)
	}
	return nil
}

func exists(ctx context.Context, q db.DBTX, query string, arg any) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx, query, arg).Scan(&ok)
	return ok, err
}

func getOrder(ctx context.Context, q db.DBTX, id int64, lock bool) (PurchaseOrder, error) {
	query := `SELECT ` + poColumns + ` ` + poJoins + ` WHERE po.id = $1`
	if lock {
		query += ` FOR UPDATE OF po`
	}
	po, err := scanOrder(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, shared.NotFound(msgOrderNotFound, id)
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Items, err = loadItems(ctx, q, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

func loadItems(ctx context.Context, q db.DBTX, orderID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT i.id, i.purchase_order_id, i.product_id, COALESCE(p.name, ''), i.quantity, i.unit_price,
i.total, i.received_quantity
FROM purchase_order_items i
LEFT JOIN products p ON p.id = i.product_id
WHERE i.purchase_order_id = $1
ORDER BY i.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.PurchaseOrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice,
			&it.Total, &it.ReceivedQuantity); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var (
		po     PurchaseOrder
		status string
	)
	err := row.Scan(&po.ID, &po.PONumber, &po.SupplierID, &po.SupplierName, &po.OrderDate, &po.ExpectedDate, &status,
		&po.Subtotal, &po.Tax, &po.Total, &po.Notes, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	po.Status = Status(status)
	return po, err
}
