// Package inventorytest provides an in-memory inventory store for tests.
package inventorytest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crm-ims/crm-ims/internal/inventory"
)

// Store keeps inventory records in memory. Transactions are serialised and
// see a private copy of the records that is published only on success.
type Store struct {
	mu        sync.Mutex
	records   map[inventory.Key]inventory.Record
	movements []inventory.Movement
	nextID    int64

	// FailSave makes SaveQuantities fail for the given key.
	FailSave *inventory.Key
}

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[inventory.Key]inventory.Record)}
}

// Seed inserts or replaces a record.
func (s *Store) Seed(rec inventory.Record) inventory.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	}
	if rec.ProductName == "" {
		rec.ProductName = "product"
	}
	s.records[rec.Key()] = rec
	return rec
}

// Get returns the committed record for key.
func (s *Store) Get(key inventory.Key) (inventory.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Journal returns committed journal rows in insertion order.
func (s *Store) Journal() []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Movement, len(s.movements))
	copy(out, s.movements)
	return out
}

// All returns committed records ordered by key.
func (s *Store) All() []inventory.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return out
}

// Tx runs fn against a staged copy and publishes it only when fn succeeds.
func (s *Store) Tx(ctx context.Context, fn func(inventory.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &txStore{
		parent:  s,
		records: make(map[inventory.Key]inventory.Record, len(s.records)),
		nextID:  s.nextID,
	}
	for k, v := range s.records {
		tx.records[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.records = tx.records
	s.movements = append(s.movements, tx.movements...)
	s.nextID = tx.nextID
	return nil
}

// WithTx adapts Tx to inventory.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxStore) error) error {
	return s.Tx(ctx, func(tx inventory.TxStore) error { return fn(ctx, tx) })
}

type txStore struct {
	parent    *Store
	records   map[inventory.Key]inventory.Record
	movements []inventory.Movement
	nextID    int64
}

func (t *txStore) LockRecord(_ context.Context, key inventory.Key) (inventory.Record, error) {
	rec, ok := t.records[key]
	if !ok {
		return inventory.Record{}, inventory.ErrRecordNotFound
	}
	return rec, nil
}

func (t *txStore) EnsureRecord(_ context.Context, key inventory.Key) error {
	if _, ok := t.records[key]; ok {
		return nil
	}
	t.nextID++
	t.records[key] = inventory.Record{
		ID:               t.nextID,
		ProductID:        key.ProductID,
		WarehouseID:      key.WarehouseID,
		ProductName:      "product",
		Quantity:         decimal.Zero,
		ReservedQuantity: decimal.Zero,
		UpdatedAt:        time.Now(),
	}
	return nil
}

func (t *txStore) SaveQuantities(_ context.Context, rec inventory.Record) error {
	if f := t.parent.FailSave; f != nil && *f == rec.Key() {
		return errors.New("inventorytest: save failed")
	}
	if _, ok := t.records[rec.Key()]; !ok {
		return inventory.ErrRecordNotFound
	}
	rec.UpdatedAt = time.Now()
	t.records[rec.Key()] = rec
	return nil
}

func (t *txStore) InsertMovement(_ context.Context, mv inventory.Movement) error {
	mv.ID = int64(len(t.parent.movements) + len(t.movements) + 1)
	mv.CreatedAt = time.Now()
	t.movements = append(t.movements, mv)
	return nil
}

// List implements inventory.RepositoryPort.
func (s *Store) List(_ context.Context, filter inventory.ListFilter) ([]inventory.Record, int, error) {
	var matched []inventory.Record
	for _, rec := range s.All() {
		if filter.WarehouseID != 0 && rec.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.ProductID != 0 && rec.ProductID != filter.ProductID {
			continue
		}
		matched = append(matched, rec)
	}
	total := len(matched)
	if filter.Offset >= total {
		return []inventory.Record{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

// LowStock implements inventory.RepositoryPort.
func (s *Store) LowStock(context.Context) ([]inventory.LowStockItem, error) {
	items := []inventory.LowStockItem{}
	for _, rec := range s.All() {
		if !rec.ReorderLevel.IsPositive() || rec.Quantity.GreaterThan(rec.ReorderLevel) {
			continue
		}
		items = append(items, inventory.LowStockItem{
			ProductID:     rec.ProductID,
			ProductSKU:    rec.ProductSKU,
			ProductName:   rec.ProductName,
			WarehouseID:   rec.WarehouseID,
			WarehouseCode: rec.WarehouseCode,
			Quantity:      rec.Quantity,
			Reserved:      rec.ReservedQuantity,
			ReorderLevel:  rec.ReorderLevel,
		})
	}
	return items, nil
}

// Movements implements inventory.RepositoryPort, newest first.
func (s *Store) Movements(_ context.Context, key inventory.Key, limit int) ([]inventory.Movement, error) {
	all := s.Journal()
	out := []inventory.Movement{}
	for i := len(all) - 1; i >= 0; i-- {
		mv := all[i]
		if mv.ProductID != key.ProductID || mv.WarehouseID != key.WarehouseID {
			continue
		}
		out = append(out, mv)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
