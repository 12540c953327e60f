package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/crm-ims/crm-ims/internal/inventory"
	"github.com/crm-ims/crm-ims/internal/observability"
	"github.com/crm-ims/crm-ims/internal/sales"
)

const defaultKeyTTL = 24 * time.Hour

// LowStockRefresher recomputes the cached low-stock list.
type LowStockRefresher interface {
	RefreshLowStock(ctx context.Context) ([]inventory.LowStockItem, error)
}

// KeyCleaner deletes idempotency keys older than a cutoff.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// LowStockJob refreshes the low-stock snapshot and logs every item at or below its reorder level.
type LowStockJob struct {
	inventory LowStockRefresher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewLowStockJob builds the job.
func NewLowStockJob(inv LowStockRefresher, logger *slog.Logger, metrics *observability.Metrics) *LowStockJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LowStockJob{inventory: inv, logger: logger, metrics: metrics}
}

// Handle processes TaskLowStockScan.
func (j *LowStockJob) Handle(ctx context.Context, _ *asynq.Task) error {
	items, err := j.inventory.RefreshLowStock(ctx)
	j.metrics.ObserveJob(TaskLowStockScan, err)
	if err != nil {
		return fmt.Errorf("refresh low stock: %w", err)
	}
	for _, item := range items {
		j.logger.WarnContext(ctx, "low stock",
			slog.Int64("product_id", item.ProductID),
			slog.String("sku", item.ProductSKU),
			slog.Int64("warehouse_id", item.WarehouseID),
			slog.String("quantity", item.Quantity.String()),
			slog.String("reorder_level", item.ReorderLevel.String()))
	}
	j.logger.InfoContext(ctx, "low stock scan complete", slog.Int("items", len(items)))
	return nil
}

// IdempotencyCleanupJob expires stored idempotency keys.
type IdempotencyCleanupJob struct {
	keys    KeyCleaner
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIdempotencyCleanupJob builds the job.
func NewIdempotencyCleanupJob(keys KeyCleaner, logger *slog.Logger, metrics *observability.Metrics) *IdempotencyCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyCleanupJob{keys: keys, logger: logger, metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	payload := IdempotencyCleanupPayload{OlderThan: defaultKeyTTL}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			j.metrics.ObserveJob(TaskIdempotencyCleanup, err)
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.OlderThan <= 0 {
		payload.OlderThan = defaultKeyTTL
	}
	removed, err := j.keys.Cleanup(ctx, payload.OlderThan)
	j.metrics.ObserveJob(TaskIdempotencyCleanup, err)
	if err != nil {
		return fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	j.logger.InfoContext(ctx, "idempotency keys cleaned", slog.Int64("removed", removed))
	return nil
}

// OrderEventJob records committed sales order status changes.
type OrderEventJob struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewOrderEventJob builds the job.
func NewOrderEventJob(logger *slog.Logger, metrics *observability.Metrics) *OrderEventJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderEventJob{logger: logger, metrics: metrics}
}

// Handle processes TaskOrderEvent.
func (j *OrderEventJob) Handle(ctx context.Context, t *asynq.Task) error {
	var evt sales.OrderEvent
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		j.metrics.ObserveJob(TaskOrderEvent, err)
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	j.metrics.ObserveJob(TaskOrderEvent, nil)
	j.logger.InfoContext(ctx, "sales order status changed",
		slog.Int64("order_id", evt.OrderID),
		slog.String("order_number", evt.OrderNumber),
		slog.String("from", string(evt.From)),
		slog.String("to", string(evt.To)),
		slog.Int64("actor_id", evt.ActorID),
		slog.Time("at", evt.At))
	return nil
}
