package procurement

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/crm-ims/crm-ims/internal/inventory"
	"github.com/crm-ims/crm-ims/internal/inventory/inventorytest"
	"github.com/crm-ims/crm-ims/internal/shared"
)

type memoryRepo struct {
	inv *inventorytest.Store

	mu         sync.Mutex
	orders     map[int64]PurchaseOrder
	suppliers  map[int64]bool
	warehouses map[int64]bool
	products   map[int64]string
	nextID     int64
	nextItem   int64

	failHeader error
}

func newMemoryRepo(inv *inventorytest.Store) *memoryRepo {
	return &memoryRepo{
		inv:        inv,
		orders:     map[int64]PurchaseOrder{},
		suppliers:  map[int64]bool{1: true, 2: true},
		warehouses: map[int64]bool{10: true, 20: true},
		products:   map[int64]string{1: "Widget", 2: "Gadget"},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return m.inv.Tx(ctx, func(invTx inventory.TxStore) error {
		m.mu.Lock()
		tx := &memoryTx{repo: m, inv: invTx, orders: map[int64]PurchaseOrder{}, nextID: m.nextID, nextItem: m.nextItem}
		for id, po := range m.orders {
			tx.orders[id] = clonePO(po)
		}
		m.mu.Unlock()
		if err := fn(ctx, tx); err != nil {
			return err
		}
		m.mu.Lock()
		m.orders, m.nextID, m.nextItem = tx.orders, tx.nextID, tx.nextItem
		m.mu.Unlock()
		return nil
	})
}

func (m *memoryRepo) Get(_ context.Context, id int64) (PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	po, ok := m.orders[id]
	if !ok {
		return PurchaseOrder{}, shared.NotFound(msgOrderNotFound, id)
	}
	return clonePO(po), nil
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []PurchaseOrder{}
	for _, po := range m.orders {
		if filter.Status != "" && po.Status != filter.Status {
			continue
		}
		if filter.SupplierID > 0 && po.SupplierID != filter.SupplierID {
			continue
		}
		out = append(out, clonePO(po))
	}
	return out, len(out), nil
}

type memoryTx struct {
	repo     *memoryRepo
	inv      inventory.TxStore
	orders   map[int64]PurchaseOrder
	nextID   int64
	nextItem int64
}

func (t *memoryTx) Inventory() inventory.TxStore { return t.inv }

func (t *memoryTx) SupplierExists(_ context.Context, id int64) (bool, error) {
	return t.repo.suppliers[id], nil
}

func (t *memoryTx) WarehouseExists(_ context.Context, id int64) (bool, error) {
	return t.repo.warehouses[id], nil
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
	for _, po := range t.orders {
		if po.PONumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, po *PurchaseOrder) error {
	t.nextID++
	po.ID = t.nextID
	items, err := t.ReplaceItems(ctx, po.ID, po.Items)
	if err != nil {
		return err
	}
	po.Items = items
	t.orders[po.ID] = clonePO(*po)
	return nil
}

func (t *memoryTx) LockOrder(_ context.Context, id int64) (PurchaseOrder, error) {
	po, ok := t.orders[id]
	if !ok {
		return PurchaseOrder{}, shared.NotFound(msgOrderNotFound, id)
	}
	return clonePO(po), nil
}

func (t *memoryTx) UpdateHeader(_ context.Context, po PurchaseOrder) error {
	if t.repo.failHeader != nil {
		return t.repo.failHeader
	}
	if _, ok := t.orders[po.ID]; !ok {
		return shared.NotFound(msgOrderNotFound, po.ID)
	}
	t.orders[po.ID] = clonePO(po)
	return nil
}

func (t *memoryTx) ReplaceItems(_ context.Context, orderID int64, items []Item) ([]Item, error) {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		t.nextItem++
		item.ID = t.nextItem
		item.PurchaseOrderID = orderID
		out = append(out, item)
	}
	if po, ok := t.orders[orderID]; ok {
		po.Items = out
		t.orders[orderID] = po
	}
	return out, nil
}

func (t *memoryTx) SetReceivedQuantity(_ context.Context, itemID int64, qty decimal.Decimal) error {
	for id, po := range t.orders {
		for i := range po.Items {
			if po.Items[i].ID == itemID {
				po.Items[i].ReceivedQuantity = qty
				t.orders[id] = po
				return nil
			}
		}
	}
	return nil
}

func (t *memoryTx) DeleteOrder(_ context.Context, id int64) error {
	if _, ok := t.orders[id]; !ok {
		return shared.NotFound(msgOrderNotFound, id)
	}
	delete(t.orders, id)
	return nil
}

func clonePO(po PurchaseOrder) PurchaseOrder {
	po.Items = append([]Item(nil), po.Items...)
	return po
}
