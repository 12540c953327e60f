package sales

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/crm-ims/crm-ims/internal/inventory"
	"github.com/crm-ims/crm-ims/internal/inventory/inventorytest"
	"github.com/crm-ims/crm-ims/internal/pricing"
	"github.com/crm-ims/crm-ims/internal/shared"
)

const (
	productWidget = int64(1)
	productGadget = int64(2)
	warehouseMain = int64(10)
	warehouseEast = int64(20)
)

var widgetAtMain = inventory.Key{ProductID: productWidget, WarehouseID: warehouseMain}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingInventory struct {
	mu     sync.Mutex
	events []inventory.ChangedEvent
}

func (r *recordingInventory) InventoryChanged(_ context.Context, evt inventory.ChangedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

type recordingPublisher struct {
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, evt OrderEvent) error {
	p.events = append(p.events, evt)
	return p.err
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

type fixture struct {
	inv       *inventorytest.Store
	repo      *memoryRepo
	svc       *Service
	changes   *recordingInventory
	publisher *recordingPublisher
	idem      *memoryIdempotency
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	inv := inventorytest.New()
	inv.Seed(inventory.Record{ProductID: productWidget, WarehouseID: warehouseMain, ProductName: "Widget", Quantity: d("10")})
	repo := newMemoryRepo(inv)
	repo.products[productWidget] = "Widget"
	repo.products[productGadget] = "Gadget"
	f := &fixture{
		inv:       inv,
		repo:      repo,
		changes:   &recordingInventory{},
		publisher: &recordingPublisher{},
		idem:      &memoryIdempotency{keys: map[string]bool{}},
	}
	f.svc = NewService(repo, ServiceConfig{
		Calculator:  pricing.Default(),
		Idempotency: f.idem,
		Inventory:   f.changes,
		Events:      f.publisher,
	})
	return f
}

func (f *fixture) record(t *testing.T, key inventory.Key) inventory.Record {
	t.Helper()
	rec, ok := f.inv.Get(key)
	require.True(t, ok)
	return rec
}

func orderFor(qty string) CreateInput {
	return CreateInput{
		CustomerID:  1,
		WarehouseID: warehouseMain,
		Discount:    d("2"),
		Items: []ItemInput{
			{ProductID: productWidget, Quantity: d(qty), UnitPrice: d("12.50")},
		},
	}
}

func TestCreateSalesOrderReservesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.CreateSalesOrder(ctx, orderFor("4"))
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)
	require.True(t, strings.HasPrefix(order.OrderNumber, "SO-"))
	require.Len(t, order.Items, 1)
	require.Equal(t, warehouseMain, order.Items[0].WarehouseID)
	require.Equal(t, "Widget", order.Items[0].ProductName)
	require.True(t, d("50").Equal(order.Subtotal))
	require.True(t, d("5").Equal(order.Tax))
	require.True(t, d("53").Equal(order.Total))

	rec := f.record(t, widgetAtMain)
	require.True(t, d("4").Equal(rec.ReservedQuantity))
	require.True(t, d("6").Equal(rec.Available()))

	require.Len(t, f.changes.events, 1)
	require.Equal(t, inventory.MovementReserve, f.changes.events[0].Kind)

	journal := f.inv.Journal()
	require.Len(t, journal, 1)
	require.Equal(t, inventory.MovementReserve, journal[0].Kind)
	require.Equal(t, "sales", journal[0].RefModule)
	require.Equal(t, order.ID, journal[0].RefID)
	require.Equal(t, order.OrderNumber, journal[0].Note)
}

func TestOrderDiscountMayCoverWholeAmount(t *testing.T) {
	f := newFixture(t)
	in := orderFor("1")
	in.Discount = d("13.75")
	order, err := f.svc.CreateSalesOrder(context.Background(), in)
	require.NoError(t, err)
	require.True(t, order.Total.IsZero())
}

func TestCancelReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.CreateSalesOrder(ctx, orderFor("4"))
	require.NoError(t, err)

	cancelled, err := f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "cancelled"})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	rec := f.record(t, widgetAtMain)
	require.True(t, rec.ReservedQuantity.IsZero())
	require.True(t, d("10").Equal(rec.Quantity))

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, StatusPending, f.publisher.events[0].From)
	require.Equal(t, StatusCancelled, f.publisher.events[0].To)
}

func TestShipDeductsOnceAcrossDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.CreateSalesOrder(ctx, orderFor("4"))
	require.NoError(t, err)

	for _, status := range []string{"confirmed", "processing", "shipped"} {
		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: status})
		require.NoError(t, err)
	}
	rec := f.record(t, widgetAtMain)
	require.True(t, d("6").Equal(rec.Quantity))
	require.True(t, rec.ReservedQuantity.IsZero())

	delivered, err := f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "delivered"})
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, delivered.Status)
	rec = f.record(t, widgetAtMain)
	require.True(t, d("6").Equal(rec.Quantity))
	require.True(t, rec.ReservedQuantity.IsZero())

	ships := 0
	for _, mv := range f.inv.Journal() {
		if mv.Kind == inventory.MovementShip {
			ships++
		}
	}
	require.Equal(t, 1, ships)
}

func TestDirectDeliveryDeducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, err := f.svc.CreateSalesOrder(ctx, orderFor("3"))
	require.NoError(t, err)

	_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "delivered"})
	require.NoError(t, err)
	rec := f.record(t, widgetAtMain)
	require.True(t, d("7").Equal(rec.Quantity))
	require.True(t, rec.ReservedQuantity.IsZero())
}

func TestCreateSalesOrderInsufficientStockLeavesInventoryUntouched(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateSalesOrder(context.Background(), orderFor("20"))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	var stock *shared.InsufficientStockError
	require.True(t, errors.As(err, &stock))
	require.Equal(t, "Widget", stock.ProductName)
	require.True(t, d("10").Equal(stock.Available))
	require.True(t, d("20").Equal(stock.Requested))

	rec := f.record(t, widgetAtMain)
	require.True(t, rec.ReservedQuantity.IsZero())
	require.True(t, d("10").Equal(rec.Quantity))
	require.Zero(t, f.repo.count())
	require.Empty(t, f.inv.Journal())
}

func TestCreateSalesOrderMultiLineIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.inv.Seed(inventory.Record{ProductID: productGadget, WarehouseID: warehouseEast, ProductName: "Gadget", Quantity: d("1")})

	in := orderFor("4")
	in.Items = append(in.Items, ItemInput{ProductID: productGadget, WarehouseID: warehouseEast, Quantity: d("2"), UnitPrice: d("3")})

	_, err := f.svc.CreateSalesOrder(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, f.record(t, widgetAtMain).ReservedQuantity.IsZero())
	require.True(t, f.record(t, inventory.Key{ProductID: productGadget, WarehouseID: warehouseEast}).ReservedQuantity.IsZero())
}

func TestCreateSalesOrderUsesItemWarehouseOverride(t *testing.T) {
	f := newFixture(t)
	f.inv.Seed(inventory.Record{ProductID: productWidget, WarehouseID: warehouseEast, ProductName: "Widget", Quantity: d("5")})

	in := orderFor("2")
	in.Items[0].WarehouseID = warehouseEast
	order, err := f.svc.CreateSalesOrder(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, warehouseEast, order.Items[0].WarehouseID)
	require.True(t, d("2").Equal(f.record(t, inventory.Key{ProductID: productWidget, WarehouseID: warehouseEast}).ReservedQuantity))
	require.True(t, f.record(t, widgetAtMain).ReservedQuantity.IsZero())
}

func TestCreateSalesOrderRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateInput)
		want   error
	}{
		{"no warehouse", func(in *CreateInput) { in.WarehouseID = 0 }, shared.ErrValidation},
		{"no items", func(in *CreateInput) { in.Items = nil }, shared.ErrValidation},
		{"zero quantity", func(in *CreateInput) { in.Items[0].Quantity = decimal.Zero }, shared.ErrValidation},
		{"negative price", func(in *CreateInput) { in.Items[0].UnitPrice = d("-1") }, shared.ErrValidation},
		{"sub-cent price", func(in *CreateInput) { in.Items[0].UnitPrice = d("0.005") }, shared.ErrValidation},
		{"quantity beyond four places", func(in *CreateInput) { in.Items[0].Quantity = d("0.00001") }, shared.ErrValidation},
		{"sub-cent line discount", func(in *CreateInput) { in.Items[0].Discount = d("0.001") }, shared.ErrValidation},
		{"line discount above gross", func(in *CreateInput) { in.Items[0].Discount = d("12.51") }, shared.ErrValidation},
		{"order discount above total", func(in *CreateInput) { in.Discount = d("13.76") }, shared.ErrValidation},
		{"unknown customer", func(in *CreateInput) { in.CustomerID = 99 }, shared.ErrNotFound},
		{"unknown product", func(in *CreateInput) { in.Items[0].ProductID = 77 }, shared.ErrNotFound},
		{"no inventory record", func(in *CreateInput) { in.Items[0].ProductID = productGadget }, shared.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			in := orderFor("1")
			tc.mutate(&in)
			_, err := f.svc.CreateSalesOrder(context.Background(), in)
			require.ErrorIs(t, err, tc.want)
			require.True(t, f.record(t, widgetAtMain).ReservedQuantity.IsZero())
			require.Zero(t, f.repo.count())
		})
	}
}

func TestCreateSalesOrderRollsBackOnPersistenceFailure(t *testing.T) {
	t.Run("order insert", func(t *testing.T) {
		f := newFixture(t)
		f.repo.failInsert = errDiskFull
		_, err := f.svc.CreateSalesOrder(context.Background(), orderFor("4"))
		require.Error(t, err)
		require.Equal(t, shared.KindInternal, shared.KindOf(err))
		require.ErrorIs(t, err, errDiskFull)
		require.True(t, f.record(t, widgetAtMain).ReservedQuantity.IsZero())
		require.Empty(t, f.inv.Journal())
	})
	t.Run("inventory write", func(t *testing.T) {
		f := newFixture(t)
		key := widgetAtMain
		f.inv.FailSave = &key
		_, err := f.svc.CreateSalesOrder(context.Background(), orderFor("4"))
		require.Equal(t, shared.KindInternal, shared.KindOf(err))
		require.True(t, f.record(t, widgetAtMain).ReservedQuantity.IsZero())
		require.Zero(t, f.repo.count())
	})
}

func TestConcurrentReservationsNeverOversubscribe(t *testing.T) {
	f := newFixture(t)
	f.inv.Seed(inventory.Record{ProductID: productWidget, WarehouseID: warehouseMain, ProductName: "Widget", Quantity: d("5")})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateSalesOrder(context.Background(), orderFor("5"))
		}(i)
	}
	wg.Wait()

	successes, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, shared.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, rejected)
	require.True(t, d("5").Equal(f.record(t, widgetAtMain).ReservedQuantity))
}

func TestTransitionRules(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown status", func(t *testing.T) {
		f := newFixture(t)
		order, err := f.svc.CreateSalesOrder(ctx, orderFor("1"))
		require.NoError(t, err)
		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "lost"})
		require.ErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("missing order", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.TransitionStatus(ctx, TransitionInput{OrderID: 404, Status: "confirmed"})
		require.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		f := newFixture(t)
		order, err := f.svc.CreateSalesOrder(ctx, orderFor("1"))
		require.NoError(t, err)
		got, err := f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "pending"})
		require.NoError(t, err)
		require.Equal(t, StatusPending, got.Status)
		require.Empty(t, f.publisher.events)
	})

	t.Run("terminal states are final", func(t *testing.T) {
		f := newFixture(t)
		order, err := f.svc.CreateSalesOrder(ctx, orderFor("1"))
		require.NoError(t, err)
		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "cancelled"})
		require.NoError(t, err)
		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "pending"})
		require.ErrorIs(t, err, shared.ErrConflict)
		require.True(t, f.record(t, widgetAtMain).ReservedQuantity.IsZero())
	})

	t.Run("shipped cannot move backwards", func(t *testing.T) {
		f := newFixture(t)
		order, err := f.svc.CreateSalesOrder(ctx, orderFor("2"))
		require.NoError(t, err)
		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "shipped"})
		require.NoError(t, err)
		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "processing"})
		require.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("cancelling a shipped order keeps stock", func(t *testing.T) {
		f := newFixture(t)
		order, err := f.svc.CreateSalesOrder(ctx, orderFor("2"))
		require.NoError(t, err)
		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "shipped"})
		require.NoError(t, err)
		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "cancelled"})
		require.NoError(t, err)
		rec := f.record(t, widgetAtMain)
		require.True(t, d("8").Equal(rec.Quantity))
		require.True(t, rec.ReservedQuantity.IsZero())
	})

	t.Run("warehouse must match reservation", func(t *testing.T) {
		f := newFixture(t)
		order, err := f.svc.CreateSalesOrder(ctx, orderFor("2"))
		require.NoError(t, err)
		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "shipped", WarehouseID: warehouseEast})
		require.ErrorIs(t, err, shared.ErrValidation)
		got, err := f.svc.Get(ctx, order.ID)
		require.NoError(t, err)
		require.Equal(t, StatusPending, got.Status)

		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "shipped", WarehouseID: warehouseMain})
		require.NoError(t, err)
	})

	t.Run("warehouse is ignored without stock movement", func(t *testing.T) {
		f := newFixture(t)
		order, err := f.svc.CreateSalesOrder(ctx, orderFor("2"))
		require.NoError(t, err)
		got, err := f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "confirmed", WarehouseID: warehouseEast})
		require.NoError(t, err)
		require.Equal(t, StatusConfirmed, got.Status)

		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "cancelled", WarehouseID: warehouseEast})
		require.ErrorIs(t, err, shared.ErrValidation)
		require.True(t, d("2").Equal(f.record(t, widgetAtMain).ReservedQuantity))
	})

	t.Run("failed deduction keeps status", func(t *testing.T) {
		f := newFixture(t)
		order, err := f.svc.CreateSalesOrder(ctx, orderFor("4"))
		require.NoError(t, err)
		reserved := d("1")
		_, err = inventory.NewService(f.inv, nil, inventory.ServiceConfig{}).Adjust(ctx, inventory.AdjustmentInput{
			ProductID:   productWidget,
			WarehouseID: warehouseMain,
			Type:        inventory.AdjustAdd,
			Quantity:    decimal.Zero,
			Reserved:    &reserved,
		})
		require.NoError(t, err)

		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "shipped"})
		require.ErrorIs(t, err, shared.ErrInsufficientReservation)
		got, err := f.svc.Get(ctx, order.ID)
		require.NoError(t, err)
		require.Equal(t, StatusPending, got.Status)
		require.True(t, d("10").Equal(f.record(t, widgetAtMain).Quantity))
	})
}

func TestPublishFailureDoesNotUndoTransition(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("queue unavailable")
	ctx := context.Background()
	order, err := f.svc.CreateSalesOrder(ctx, orderFor("1"))
	require.NoError(t, err)

	got, err := f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "confirmed"})
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, got.Status)
}

func TestDeleteSalesOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("pending releases reservation", func(t *testing.T) {
		f := newFixture(t)
		order, err := f.svc.CreateSalesOrder(ctx, orderFor("4"))
		require.NoError(t, err)
		require.NoError(t, f.svc.Delete(ctx, order.ID, 0))
		require.True(t, f.record(t, widgetAtMain).ReservedQuantity.IsZero())
		_, err = f.svc.Get(ctx, order.ID)
		require.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("confirmed is rejected", func(t *testing.T) {
		f := newFixture(t)
		order, err := f.svc.CreateSalesOrder(ctx, orderFor("4"))
		require.NoError(t, err)
		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "confirmed"})
		require.NoError(t, err)
		require.ErrorIs(t, f.svc.Delete(ctx, order.ID, 0), shared.ErrConflict)
		require.True(t, d("4").Equal(f.record(t, widgetAtMain).ReservedQuantity))
	})

	t.Run("cancelled is removed without inventory change", func(t *testing.T) {
		f := newFixture(t)
		order, err := f.svc.CreateSalesOrder(ctx, orderFor("4"))
		require.NoError(t, err)
		_, err = f.svc.TransitionStatus(ctx, TransitionInput{OrderID: order.ID, Status: "cancelled"})
		require.NoError(t, err)
		journal := len(f.inv.Journal())
		require.NoError(t, f.svc.Delete(ctx, order.ID, 0))
		require.Len(t, f.inv.Journal(), journal)
	})
}

func TestIdempotencyKeyDeduplicatesCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := orderFor("1")
	in.IdempotencyKey = "req-1"

	_, err := f.svc.CreateSalesOrder(ctx, in)
	require.NoError(t, err)
	_, err = f.svc.CreateSalesOrder(ctx, in)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.True(t, d("1").Equal(f.record(t, widgetAtMain).ReservedQuantity))

	failing := orderFor("50")
	failing.IdempotencyKey = "req-2"
	_, err = f.svc.CreateSalesOrder(ctx, failing)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.False(t, f.idem.keys["req-2"])
}

func TestOrderNumberCollisionIsRetried(t *testing.T) {
	f := newFixture(t)
	clock := time.Date(2026, 5, 4, 0, 0, 2, 0, time.UTC)
	f.svc.numbers = shared.NewNumberGenerator("SO").WithClock(func() time.Time { return clock })
	f.repo.taken["SO-20260504-00002000"] = true

	order, err := f.svc.CreateSalesOrder(context.Background(), orderFor("1"))
	require.NoError(t, err)
	require.Equal(t, "SO-20260504-00002001", order.OrderNumber)
}

func TestSalesTotalsProperty(t *testing.T) {
	f := newFixture(t)
	f.inv.Seed(inventory.Record{ProductID: productWidget, WarehouseID: warehouseMain, ProductName: "Widget", Quantity: d("1000")})
	rate := pricing.DefaultSalesTaxRate
	inputs := []struct{ qty, price, lineDiscount, discount string }{
		{"1", "0.01", "0", "0"},
		{"3", "19.99", "1.50", "0.25"},
		{"2.5", "7.33", "0", "1"},
		{"0.0003", "0.01", "0", "0"},
		{"12.125", "3.07", "0.07", "0"},
	}
	for _, in := range inputs {
		create := orderFor(in.qty)
		create.Items[0].UnitPrice = d(in.price)
		create.Items[0].Discount = d(in.lineDiscount)
		create.Discount = d(in.discount)
		order, err := f.svc.CreateSalesOrder(context.Background(), create)
		require.NoError(t, err)
		require.True(t, order.Total.Equal(order.Subtotal.Add(order.Tax).Sub(order.Discount)), "total for %+v", in)
		require.True(t, order.Tax.Equal(order.Subtotal.Mul(rate).Round(2)), "tax for %+v", in)
		stored, err := f.svc.Get(context.Background(), order.ID)
		require.NoError(t, err)
		lines := make([]pricing.Line, 0, len(stored.Items))
		for _, item := range stored.Items {
			line := pricing.Line{Quantity: item.Quantity, UnitPrice: item.UnitPrice, Discount: item.Discount}
			require.True(t, item.Total.Equal(line.Total()), "line total for %+v", in)
			lines = append(lines, line)
		}
		require.True(t, stored.Total.Equal(f.svc.calc.SalesOrder(lines, stored.Discount).Total), "stored total for %+v", in)
	}
}
