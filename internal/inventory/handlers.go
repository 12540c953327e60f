package inventory

import "context"

// ChangeHandler receives inventory change notifications after commit.
type ChangeHandler interface {
	InventoryChanged(ctx context.Context, evt ChangedEvent)
}
