package procurement

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/crm-ims/crm-ims/internal/inventory"
	"github.com/crm-ims/crm-ims/internal/inventory/inventorytest"
	"github.com/crm-ims/crm-ims/internal/pricing"
	"github.com/crm-ims/crm-ims/internal/shared"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func strPtr(s string) *string { return &s }

type fixture struct {
	inv  *inventorytest.Store
	repo *memoryRepo
	svc  *Service
}

func newFixture(t *testing.T, defaultWarehouse int64) *fixture {
	t.Helper()
	inv := inventorytest.New()
	repo := newMemoryRepo(inv)
	return &fixture{
		inv:  inv,
		repo: repo,
		svc:  NewService(repo, ServiceConfig{Calculator: pricing.Default(), DefaultWarehouseID: defaultWarehouse}),
	}
}

func (f *fixture) create(t *testing.T, items ...ItemInput) PurchaseOrder {
	t.Helper()
	if len(items) == 0 {
		items = []ItemInput{{ProductID: 1, Quantity: d("5"), UnitPrice: d("10")}}
	}
	po, err := f.svc.CreatePurchaseOrder(context.Background(), CreateInput{SupplierID: 1, Items: items})
	require.NoError(t, err)
	return po
}

func TestCreatePurchaseOrderComputesTotals(t *testing.T) {
	f := newFixture(t, 0)
	po := f.create(t,
		ItemInput{ProductID: 1, Quantity: d("5"), UnitPrice: d("10")},
		ItemInput{ProductID: 2, Quantity: d("1.5"), UnitPrice: d("3.33")},
	)
	require.Equal(t, StatusPending, po.Status)
	require.Regexp(t, `^PO-\d{8}-\d{8}$`, po.PONumber)
	require.True(t, d("55").Equal(po.Subtotal))
	require.True(t, d("6.6").Equal(po.Tax))
	require.True(t, d("61.6").Equal(po.Total))
	require.Equal(t, "Gadget", po.Items[1].ProductName)
	require.True(t, d("5").Equal(po.Items[1].Total))
}

func TestCreatePurchaseOrderRejections(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.CreatePurchaseOrder(ctx, CreateInput{SupplierID: 9, Items: []ItemInput{{ProductID: 1, Quantity: d("1"), UnitPrice: d("1")}}})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.CreatePurchaseOrder(ctx, CreateInput{SupplierID: 1, Items: []ItemInput{{ProductID: 42, Quantity: d("1"), UnitPrice: d("1")}}})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.CreatePurchaseOrder(ctx, CreateInput{SupplierID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreatePurchaseOrder(ctx, CreateInput{SupplierID: 1, Items: []ItemInput{{ProductID: 1, Quantity: d("0"), UnitPrice: d("1")}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreatePurchaseOrder(ctx, CreateInput{SupplierID: 1, Items: []ItemInput{{ProductID: 1, Quantity: d("3"), UnitPrice: d("0.005")}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.CreatePurchaseOrder(ctx, CreateInput{SupplierID: 1, Items: []ItemInput{{ProductID: 1, Quantity: d("0.00001"), UnitPrice: d("1")}}})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, f.repo.orders)
}

func TestReceiveCreatesInventoryRecord(t *testing.T) {
	f := newFixture(t, 0)
	po := f.create(t)

	got, err := f.svc.ReceivePurchaseOrder(context.Background(), ReceiveInput{OrderID: po.ID, WarehouseID: 20})
	require.NoError(t, err)
	require.Equal(t, StatusReceived, got.Status)
	require.True(t, d("5").Equal(got.Items[0].ReceivedQuantity))

	rec, ok := f.inv.Get(inventory.Key{ProductID: 1, WarehouseID: 20})
	require.True(t, ok)
	require.True(t, d("5").Equal(rec.Quantity))
	require.True(t, rec.ReservedQuantity.IsZero())

	stored, err := f.svc.Get(context.Background(), po.ID)
	require.NoError(t, err)
	require.True(t, d("5").Equal(stored.Items[0].ReceivedQuantity))
}

func TestReceiveUsesRecordedReceivedQuantity(t *testing.T) {
	f := newFixture(t, 0)
	f.inv.Seed(inventory.Record{ProductID: 1, WarehouseID: 10, Quantity: d("2"), ReservedQuantity: d("1")})
	po := f.create(t)

	got, err := f.svc.ReceivePurchaseOrder(context.Background(), ReceiveInput{
		OrderID:     po.ID,
		WarehouseID: 10,
		Received:    map[int64]decimal.Decimal{po.Items[0].ID: d("3")},
	})
	require.NoError(t, err)
	require.True(t, d("3").Equal(got.Items[0].ReceivedQuantity))

	rec, _ := f.inv.Get(inventory.Key{ProductID: 1, WarehouseID: 10})
	require.True(t, d("5").Equal(rec.Quantity))
	require.True(t, d("1").Equal(rec.ReservedQuantity))
}

func TestReceiveIsNotRepeatable(t *testing.T) {
	f := newFixture(t, 0)
	po := f.create(t)
	ctx := context.Background()

	_, err := f.svc.ReceivePurchaseOrder(ctx, ReceiveInput{OrderID: po.ID, WarehouseID: 10})
	require.NoError(t, err)
	_, err = f.svc.ReceivePurchaseOrder(ctx, ReceiveInput{OrderID: po.ID, WarehouseID: 10})
	require.ErrorIs(t, err, shared.ErrConflict)

	rec, _ := f.inv.Get(inventory.Key{ProductID: 1, WarehouseID: 10})
	require.True(t, d("5").Equal(rec.Quantity))
}

func TestReceiveRejections(t *testing.T) {
	f := newFixture(t, 0)
	po := f.create(t)
	ctx := context.Background()

	_, err := f.svc.ReceivePurchaseOrder(ctx, ReceiveInput{OrderID: po.ID, WarehouseID: 99})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.ReceivePurchaseOrder(ctx, ReceiveInput{OrderID: 404, WarehouseID: 10})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.ReceivePurchaseOrder(ctx, ReceiveInput{OrderID: po.ID})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.ReceivePurchaseOrder(ctx, ReceiveInput{OrderID: po.ID, WarehouseID: 10, Received: map[int64]decimal.Decimal{777: d("1")}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.ReceivePurchaseOrder(ctx, ReceiveInput{OrderID: po.ID, WarehouseID: 10, Received: map[int64]decimal.Decimal{po.Items[0].ID: d("1.00001")}})
	require.ErrorIs(t, err, shared.ErrValidation)

	got, err := f.svc.Get(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Empty(t, f.inv.All())
}

func TestReceiveRollsBackOnFailure(t *testing.T) {
	f := newFixture(t, 0)
	po := f.create(t)
	f.repo.failHeader = errors.New("connection reset")

	_, err := f.svc.ReceivePurchaseOrder(context.Background(), ReceiveInput{OrderID: po.ID, WarehouseID: 10})
	require.Equal(t, shared.KindInternal, shared.KindOf(err))
	require.Empty(t, f.inv.All())
	require.Empty(t, f.inv.Journal())

	f.repo.failHeader = nil
	got, err := f.svc.Get(context.Background(), po.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.True(t, got.Items[0].ReceivedQuantity.IsZero())
}

func TestUpdateToReceivedUsesDefaultWarehouse(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit warehouse", func(t *testing.T) {
		f := newFixture(t, 10)
		po := f.create(t)
		got, err := f.svc.UpdatePurchaseOrder(ctx, po.ID, UpdateInput{Status: strPtr("RECEIVED"), WarehouseID: 20})
		require.NoError(t, err)
		require.Equal(t, StatusReceived, got.Status)
		_, ok := f.inv.Get(inventory.Key{ProductID: 1, WarehouseID: 20})
		require.True(t, ok)
	})

	t.Run("configured default", func(t *testing.T) {
		f := newFixture(t, 10)
		po := f.create(t)
		_, err := f.svc.UpdatePurchaseOrder(ctx, po.ID, UpdateInput{Status: strPtr("received")})
		require.NoError(t, err)
		rec, ok := f.inv.Get(inventory.Key{ProductID: 1, WarehouseID: 10})
		require.True(t, ok)
		require.True(t, d("5").Equal(rec.Quantity))
	})

	t.Run("no warehouse at all", func(t *testing.T) {
		f := newFixture(t, 0)
		po := f.create(t)
		_, err := f.svc.UpdatePurchaseOrder(ctx, po.ID, UpdateInput{Status: strPtr("received")})
		require.ErrorIs(t, err, shared.ErrValidation)
		require.Empty(t, f.inv.All())
	})
}

func TestUpdateReplacesItemsAndTotals(t *testing.T) {
	f := newFixture(t, 0)
	po := f.create(t)

	got, err := f.svc.UpdatePurchaseOrder(context.Background(), po.ID, UpdateInput{
		Notes:  strPtr("rush"),
		Status: strPtr("ordered"),
		Items:  []ItemInput{{ProductID: 2, Quantity: d("4"), UnitPrice: d("2.50")}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusOrdered, got.Status)
	require.Equal(t, "rush", got.Notes)
	require.Len(t, got.Items, 1)
	require.Equal(t, int64(2), got.Items[0].ProductID)
	require.True(t, d("10").Equal(got.Subtotal))
	require.True(t, d("1.2").Equal(got.Tax))
	require.True(t, d("11.2").Equal(got.Total))

	_, err = f.svc.UpdatePurchaseOrder(context.Background(), po.ID, UpdateInput{Status: strPtr("lost")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.UpdatePurchaseOrder(context.Background(), po.ID, UpdateInput{Items: []ItemInput{}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReceivedOrderIsFrozen(t *testing.T) {
	f := newFixture(t, 0)
	po := f.create(t)
	ctx := context.Background()
	_, err := f.svc.ReceivePurchaseOrder(ctx, ReceiveInput{OrderID: po.ID, WarehouseID: 10})
	require.NoError(t, err)

	_, err = f.svc.UpdatePurchaseOrder(ctx, po.ID, UpdateInput{Items: []ItemInput{{ProductID: 2, Quantity: d("1"), UnitPrice: d("1")}}})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.svc.UpdatePurchaseOrder(ctx, po.ID, UpdateInput{Status: strPtr("pending")})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.svc.UpdatePurchaseOrder(ctx, po.ID, UpdateInput{Status: strPtr("received"), WarehouseID: 10})
	require.NoError(t, err)

	got, err := f.svc.UpdatePurchaseOrder(ctx, po.ID, UpdateInput{Notes: strPtr("checked")})
	require.NoError(t, err)
	require.Equal(t, "checked", got.Notes)

	require.ErrorIs(t, f.svc.Delete(ctx, po.ID, 0), shared.ErrConflict)

	rec, _ := f.inv.Get(inventory.Key{ProductID: 1, WarehouseID: 10})
	require.True(t, d("5").Equal(rec.Quantity))
}

func TestDeletePendingPurchaseOrder(t *testing.T) {
	f := newFixture(t, 0)
	po := f.create(t)
	require.NoError(t, f.svc.Delete(context.Background(), po.ID, 0))
	_, err := f.svc.Get(context.Background(), po.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPurchaseTotalsProperty(t *testing.T) {
	f := newFixture(t, 0)
	rate := pricing.DefaultPurchaseTaxRate
	for _, tc := range []struct{ qty, price string }{
		{"1", "0.01"}, {"7", "13.37"}, {"2.125", "8.08"}, {"100", "0.99"},
	} {
		po := f.create(t, ItemInput{ProductID: 1, Quantity: d(tc.qty), UnitPrice: d(tc.price)})
		require.True(t, po.Total.Equal(po.Subtotal.Add(po.Tax)))
		require.True(t, po.Tax.Equal(po.Subtotal.Mul(rate).Round(2)))
	}
}
