package sales

import (
	"context"
	"time"
)

// TaskOrderEvent is the background task type used to publish status changes.
const TaskOrderEvent = "sales:order_event"

// OrderEvent describes a committed status change.
type OrderEvent struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	From        Status    `json:"from"`
	To          Status    `json:"to"`
	ActorID     int64     `json:"actor_id,omitempty"`
	At          time.Time `json:"at"`
}

// EventPublisher delivers order events after commit. Failures never undo the transition.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, evt OrderEvent) error
}
