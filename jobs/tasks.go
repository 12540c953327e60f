package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/crm-ims/crm-ims/internal/sales"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan recomputes the low-stock snapshot.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskIdempotencyCleanup removes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
	// TaskOrderEvent carries a committed sales order status change.
	TaskOrderEvent = sales.TaskOrderEvent
)

// IdempotencyCleanupPayload configures key expiry.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewLowStockScanTask builds the scheduled scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// NewIdempotencyCleanupTask builds the scheduled cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewOrderEventTask wraps a sales order event.
func NewOrderEventTask(evt sales.OrderEvent) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderEvent, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}
