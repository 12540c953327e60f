package sales

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/crm-ims/crm-ims/internal/inventory"
	"github.com/crm-ims/crm-ims/internal/inventory/inventorytest"
	"github.com/crm-ims/crm-ims/internal/shared"
)

// memoryRepo keeps orders in memory and shares transactions with an inventorytest.Store.
type memoryRepo struct {
	inv *inventorytest.Store

	mu        sync.Mutex
	orders    map[int64]Order
	customers map[int64]bool
	products  map[int64]string
	nextID    int64
	nextItem  int64
	taken     map[string]bool

	failInsert error
}

func newMemoryRepo(inv *inventorytest.Store) *memoryRepo {
	return &memoryRepo{
		inv:       inv,
		orders:    make(map[int64]Order),
		customers: map[int64]bool{1: true},
		products:  map[int64]string{},
		taken:     map[string]bool{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return m.inv.Tx(ctx, func(invTx inventory.TxStore) error {
		m.mu.Lock()
		tx := &memoryTx{
			repo:     m,
			inv:      invTx,
			orders:   make(map[int64]Order, len(m.orders)),
			nextID:   m.nextID,
			nextItem: m.nextItem,
		}
		for id, o := range m.orders {
			tx.orders[id] = cloneOrder(o)
		}
		m.mu.Unlock()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		m.mu.Lock()
		m.orders = tx.orders
		m.nextID = tx.nextID
		m.nextItem = tx.nextItem
		m.mu.Unlock()
		return nil
	})
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, shared.NotFound(msgOrderNotFound, id)
	}
	return cloneOrder(o), nil
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Order{}
	for _, o := range m.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.CustomerID > 0 && o.CustomerID != filter.CustomerID {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (m *memoryRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type memoryTx struct {
	repo     *memoryRepo
	inv      inventory.TxStore
	orders   map[int64]Order
	nextID   int64
	nextItem int64
}

func (t *memoryTx) Inventory() inventory.TxStore { return t.inv }

func (t *memoryTx) CustomerExists(_ context.Context, id int64) (bool, error) {
	return t.repo.customers[id], nil
}

func (t *memoryTx) ProductNames(_ context.Context, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range ids {
		if name, ok := t.repo.products[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (t *memoryTx) OrderNumberExists(_ context.Context, number string) (bool, error) {
	if t.repo.taken[number] {
		return true, nil
	}
	for _, o := range t.orders {
		if o.OrderNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertOrder(_ context.Context, o *Order) error {
	if t.repo.failInsert != nil {
		return t.repo.failInsert
	}
	t.nextID++
	o.ID = t.nextID
	header := cloneOrder(*o)
	header.Items = nil
	t.orders[o.ID] = header
	return nil
}

func (t *memoryTx) InsertItems(_ context.Context, o *Order) error {
	if _, ok := t.orders[o.ID]; !ok {
		return shared.NotFound(msgOrderNotFound, o.ID)
	}
	for i := range o.Items {
		t.nextItem++
		o.Items[i].ID = t.nextItem
		o.Items[i].OrderID = o.ID
	}
	t.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (t *memoryTx) LockOrder(_ context.Context, id int64) (Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return Order{}, shared.NotFound(msgOrderNotFound, id)
	}
	return cloneOrder(o), nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, id int64, status Status) error {
	o, ok := t.orders[id]
	if !ok {
		return shared.NotFound(msgOrderNotFound, id)
	}
	o.Status = status
	t.orders[id] = o
	return nil
}

func (t *memoryTx) DeleteOrder(_ context.Context, id int64) error {
	if _, ok := t.orders[id]; !ok {
		return shared.NotFound(msgOrderNotFound, id)
	}
	delete(t.orders, id)
	return nil
}

func cloneOrder(o Order) Order {
	o.Items = append([]Item(nil), o.Items...)
	return o
}

var errDiskFull = errors.New("disk full")
