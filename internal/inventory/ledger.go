package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/crm-ims/crm-ims/internal/shared"
)

// TxStore is the transactional view of inventory records used by the ledger.
// LockRecord must take a row lock held until the surrounding transaction ends.
type TxStore interface {
	LockRecord(ctx context.Context, key Key) (Record, error)
	EnsureRecord(ctx context.Context, key Key) error
	SaveQuantities(ctx context.Context, rec Record) error
	InsertMovement(ctx context.Context, mv Movement) error
}

const msgNoInventory = "no inventory for product %d at warehouse %d"

type demand struct {
	key Key
	qty decimal.Decimal
}

// aggregate sums quantities per key and orders keys so locks are always taken in the same order.
func aggregate(lines []Line) []demand {
	totals := make(map[Key]decimal.Decimal, len(lines))
	for _, l := range lines {
		k := Key{ProductID: l.ProductID, WarehouseID: l.WarehouseID}
		totals[k] = totals[k].Add(l.Quantity)
	}
	out := make([]demand, 0, len(totals))
	for k, q := range totals {
		out = append(out, demand{key: k, qty: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.less(out[j].key) })
	return out
}

type locked struct {
	rec Record
	qty decimal.Decimal
}

func lockAll(ctx context.Context, tx TxStore, demands []demand) ([]locked, error) {
	out := make([]locked, 0, len(demands))
	for _, d := range demands {
		rec, err := tx.LockRecord(ctx, d.key)
		if errors.Is(err, ErrRecordNotFound) {
			return nil, shared.NotFound(msgNoInventory, d.key.ProductID, d.key.WarehouseID)
		}
		if err != nil {
			return nil, fmt.Errorf("inventory: lock %d/%d: %w", d.key.ProductID, d.key.WarehouseID, err)
		}
		out = append(out, locked{rec: rec, qty: d.qty})
	}
	return out, nil
}

func apply(ctx context.Context, tx TxStore, rec Record, kind MovementKind, qtyDelta, reservedDelta decimal.Decimal, ref Ref) (Record, error) {
	rec.Quantity = rec.Quantity.Add(qtyDelta)
	rec.ReservedQuantity = rec.ReservedQuantity.Add(reservedDelta)
	if err := tx.SaveQuantities(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("inventory: save %d/%d: %w", rec.ProductID, rec.WarehouseID, err)
	}
	mv := Movement{
		ProductID:     rec.ProductID,
		WarehouseID:   rec.WarehouseID,
		Kind:          kind,
		QuantityDelta: qtyDelta,
		ReservedDelta: reservedDelta,
		RefModule:     ref.Module,
		RefID:         ref.ID,
		ActorID:       ref.ActorID,
		Note:          ref.Note,
	}
	if err := tx.InsertMovement(ctx, mv); err != nil {
		return Record{}, fmt.Errorf("inventory: journal %s: %w", kind, err)
	}
	return rec, nil
}

// Reserve holds stock for every line. All records are locked and checked
// before any is written, so a failure leaves every record untouched.
func Reserve(ctx context.Context, tx TxStore, lines []Line, ref Ref) ([]Record, error) {
	rows, err := lockAll(ctx, tx, aggregate(lines))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if avail := row.rec.Available(); avail.LessThan(row.qty) {
			return nil, &shared.InsufficientStockError{
				ProductID:   row.rec.ProductID,
				ProductName: row.rec.ProductName,
				WarehouseID: row.rec.WarehouseID,
				Available:   avail,
				Requested:   row.qty,
			}
		}
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := apply(ctx, tx, row.rec, MovementReserve, decimal.Zero, row.qty, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Release returns reserved stock. Reserved quantity is floored at zero.
func Release(ctx context.Context, tx TxStore, lines []Line, ref Ref) ([]Record, error) {
	rows, err := lockAll(ctx, tx, aggregate(lines))
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		delta := decimal.Min(row.qty, row.rec.ReservedQuantity).Neg()
		rec, err := apply(ctx, tx, row.rec, MovementRelease, decimal.Zero, delta, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Ship deducts reserved stock from both on-hand and reserved quantity.
// Every line must be covered by its reservation.
func Ship(ctx context.Context, tx TxStore, lines []Line, ref Ref) ([]Record, error) {
	rows, err := lockAll(ctx, tx, aggregate(lines))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.rec.ReservedQuantity.LessThan(row.qty) {
			return nil, &shared.InsufficientReservationError{
				ProductID:   row.rec.ProductID,
				WarehouseID: row.rec.WarehouseID,
				Reserved:    row.rec.ReservedQuantity,
				Requested:   row.qty,
			}
		}
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		qtyDelta := decimal.Min(row.qty, row.rec.Quantity).Neg()
		rec, err := apply(ctx, tx, row.rec, MovementShip, qtyDelta, row.qty.Neg(), ref)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Receive adds stock, creating the record at zero when it does not exist yet.
func Receive(ctx context.Context, tx TxStore, lines []Line, ref Ref) ([]Record, error) {
	demands := aggregate(lines)
	for _, d := range demands {
		if err := tx.EnsureRecord(ctx, d.key); err != nil {
			return nil, fmt.Errorf("inventory: ensure %d/%d: %w", d.key.ProductID, d.key.WarehouseID, err)
		}
	}
	rows, err := lockAll(ctx, tx, demands)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := apply(ctx, tx, row.rec, MovementReceive, row.qty, decimal.Zero, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Adjust applies a manual correction to an existing record.
func Adjust(ctx context.Context, tx TxStore, in AdjustmentInput, ref Ref) (Record, error) {
	if !in.Type.Valid() {
		return Record{}, shared.Validation("invalid adjustment type %q", string(in.Type))
	}
	if in.Quantity.IsNegative() {
		return Record{}, shared.Validation("quantity must not be negative")
	}
	if in.Reserved != nil && in.Reserved.IsNegative() {
		return Record{}, shared.Validation("quantity must not be negative")
	}
	rows, err := lockAll(ctx, tx, []demand{{key: Key{ProductID: in.ProductID, WarehouseID: in.WarehouseID}}})
	if err != nil {
		return Record{}, err
	}
	rec := rows[0].rec

	newQty := rec.Quantity
	switch in.Type {
	case AdjustAdd:
		newQty = newQty.Add(in.Quantity)
	case AdjustSubtract:
		newQty = decimal.Max(decimal.Zero, newQty.Sub(in.Quantity))
	case AdjustSet:
		newQty = in.Quantity
	}
	newReserved := rec.ReservedQuantity
	if in.Reserved != nil {
		newReserved = *in.Reserved
	}
	if newReserved.GreaterThan(newQty) {
		return Record{}, shared.Validation("reserved quantity cannot exceed on-hand quantity")
	}
	return apply(ctx, tx, rec, MovementAdjust, newQty.Sub(rec.Quantity), newReserved.Sub(rec.ReservedQuantity), ref)
}
