package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crm-ims/crm-ims/internal/platform/db"
)

const recordColumns = `i.id, i.product_id, i.warehouse_id, p.sku, p.name, w.code, i.quantity, i.reserved_quantity, p.reorder_level, i.updated_at`

const recordJoins = `FROM inventory i
JOIN products p ON p.id = i.product_id
JOIN warehouses w ON w.id = i.warehouse_id`

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

// List returns inventory records and the total count matching filter.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Record, int, error) {
	where := `WHERE ($1::bigint = 0 OR i.warehouse_id = $1) AND ($2::bigint = 0 OR i.product_id = $2)`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory i `+where, filter.WarehouseID, filter.ProductID).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` `+recordJoins+` `+where+`
ORDER BY p.name ASC, w.code ASC
LIMIT $3 OFFSET $4`, filter.WarehouseID, filter.ProductID, limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// LowStock lists records at or below the product reorder level.
func (r *Repository) LowStock(ctx context.Context) ([]LowStockItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.product_id, p.sku, p.name, i.warehouse_id, w.code, i.quantity, i.reserved_quantity, p.reorder_level
`+recordJoins+`
WHERE p.reorder_level > 0 AND i.quantity <= p.reorder_level AND p.is_active
ORDER BY i.quantity ASC, p.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []LowStockItem{}
	for rows.Next() {
		var it LowStockItem
		if err := rows.Scan(&it.ProductID, &it.ProductSKU, &it.ProductName, &it.WarehouseID, &it.WarehouseCode, &it.Quantity, &it.Reserved, &it.ReorderLevel); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Movements returns the newest journal rows for a record.
func (r *Repository) Movements(ctx context.Context, key Key, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, warehouse_id, kind, quantity_delta, reserved_delta, ref_module, COALESCE(ref_id, 0), COALESCE(actor_id, 0), note, created_at
FROM inventory_movements
WHERE product_id = $1 AND warehouse_id = $2
ORDER BY id DESC
LIMIT $3`, key.ProductID, key.WarehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Movement{}
	for rows.Next() {
		var mv Movement
		if err := rows.Scan(&mv.ID, &mv.ProductID, &mv.WarehouseID, &mv.Kind, &mv.QuantityDelta, &mv.ReservedDelta, &mv.RefModule, &mv.RefID, &mv.ActorID, &mv.Note, &mv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, rows.Err()
}

// Store implements TxStore on top of a pgx transaction.
type Store struct {
	q db.DBTX
}

// NewStore wraps q, which should be a transaction for LockRecord to be meaningful.
func NewStore(q db.DBTX) *Store {
	return &Store{q: q}
}

// LockRecord reads a record with FOR UPDATE.
func (s *Store) LockRecord(ctx context.Context, key Key) (Record, error) {
	row := s.q.QueryRow(ctx, `SELECT `+recordColumns+` `+recordJoins+`
WHERE i.product_id = $1 AND i.warehouse_id = $2
FOR UPDATE OF i`, key.ProductID, key.WarehouseID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

// EnsureRecord inserts a zero record unless one exists.
func (s *Store) EnsureRecord(ctx context.Context, key Key) error {
	_, err := s.q.Exec(ctx, `INSERT INTO inventory (product_id, warehouse_id, quantity, reserved_quantity, updated_at)
VALUES ($1, $2, 0, 0, NOW())
ON CONFLICT (product_id, warehouse_id) DO NOTHING`, key.ProductID, key.WarehouseID)
	return err
}

// SaveQuantities writes quantity and reserved quantity.
func (s *Store) SaveQuantities(ctx context.Context, rec Record) error {
	tag, err := s.q.Exec(ctx, `UPDATE inventory SET quantity = $3, reserved_quantity = $4, updated_at = NOW()
WHERE product_id = $1 AND warehouse_id = $2`, rec.ProductID, rec.WarehouseID, rec.Quantity, rec.ReservedQuantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("inventory: update affected %d rows", tag.RowsAffected())
	}
	return nil
}

// InsertMovement appends a journal row.
func (s *Store) InsertMovement(ctx context.Context, mv Movement) error {
	_, err := s.q.Exec(ctx, `INSERT INTO inventory_movements (product_id, warehouse_id, kind, quantity_delta, reserved_delta, ref_module, ref_id, actor_id, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())`, mv.ProductID, mv.WarehouseID, string(mv.Kind), mv.QuantityDelta, mv.ReservedDelta, mv.RefModule, nullInt(mv.RefID), nullInt(mv.ActorID), mv.Note)
	return err
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.ProductID, &rec.WarehouseID, &rec.ProductSKU, &rec.ProductName, &rec.WarehouseCode, &rec.Quantity, &rec.ReservedQuantity, &rec.ReorderLevel, &rec.UpdatedAt)
	return rec, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
