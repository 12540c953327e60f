package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/crm-ims/crm-ims/internal/observability"
	"github.com/crm-ims/crm-ims/internal/platform/cache"
	"github.com/crm-ims/crm-ims/internal/pricing"
	"github.com/crm-ims/crm-ims/internal/shared"
)

const lowStockCacheKey = "low_stock"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	List(ctx context.Context, filter ListFilter) ([]Record, int, error)
	LowStock(ctx context.Context) ([]LowStockItem, error)
	Movements(ctx context.Context, key Key, limit int) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Cache   *cache.JSONCache
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Service coordinates inventory queries and manual adjustments.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	cache   *cache.JSONCache
	logger  *slog.Logger
	metrics *observability.Metrics
	loads   singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cfg.Cache, logger: logger, metrics: cfg.Metrics}
}

// List returns inventory records with available quantity.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]RecordView, int, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, shared.Internal("list inventory", err)
	}
	views := make([]RecordView, 0, len(records))
	for _, rec := range records {
		views = append(views, rec.View())
	}
	return views, total, nil
}

// Movements lists the journal of one record.
func (s *Service) Movements(ctx context.Context, key Key, limit int) ([]Movement, error) {
	mvs, err := s.repo.Movements(ctx, key, limit)
	if err != nil {
		return nil, shared.Internal("list movements", err)
	}
	return mvs, nil
}

// Adjust applies a manual correction. Records are never created here;
// they come into existence when purchase orders are received.
func (s *Service) Adjust(ctx context.Context, in AdjustmentInput) (Record, error) {
	if in.ProductID <= 0 {
		return Record{}, shared.Validation("invalid %s", "product_id")
	}
	if in.WarehouseID <= 0 {
		return Record{}, shared.Validation("invalid %s", "warehouse_id")
	}
	if !pricing.FitsQuantity(in.Quantity) || (in.Reserved != nil && !pricing.FitsQuantity(*in.Reserved)) {
		return Record{}, shared.Validation("quantity allows at most %d decimal places", pricing.QuantityPlaces)
	}
	var out Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		rec, err := Adjust(ctx, tx, in, Ref{Module: "inventory", ActorID: in.ActorID, Note: in.Note})
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return Record{}, shared.WrapInternal("adjust inventory", err)
	}
	s.InventoryChanged(ctx, ChangedEvent{Kind: MovementAdjust, Keys: []Key{out.Key()}})
	s.logger.InfoContext(ctx, "inventory adjusted",
		slog.Int64("product_id", out.ProductID),
		slog.Int64("warehouse_id", out.WarehouseID),
		slog.String("type", string(in.Type)),
		slog.String("quantity", out.Quantity.String()),
		slog.String("reserved_quantity", out.ReservedQuantity.String()))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "inventory:adjust",
			Entity:   "inventory",
			EntityID: fmt.Sprintf("%d:%d", out.ProductID, out.WarehouseID),
			Meta: map[string]any{
				"type":     string(in.Type),
				"quantity": in.Quantity.String(),
				"note":     in.Note,
			},
		})
	}
	return out, nil
}

// LowStock returns records at or below reorder level, served from cache when warm.
func (s *Service) LowStock(ctx context.Context) ([]LowStockItem, error) {
	var items []LowStockItem
	hit, err := s.cache.Get(ctx, lowStockCacheKey, &items)
	if err != nil {
		s.logger.WarnContext(ctx, "low stock cache read failed", slog.Any("error", err))
	}
	if hit {
		return items, nil
	}
	res := s.loads.DoChan(lowStockCacheKey, func() (any, error) {
		return s.RefreshLowStock(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]LowStockItem), nil
	}
}

// RefreshLowStock recomputes the low-stock list and stores it in cache.
func (s *Service) RefreshLowStock(ctx context.Context) ([]LowStockItem, error) {
	items, err := s.repo.LowStock(ctx)
	if err != nil {
		return nil, shared.Internal("load low stock", err)
	}
	if err := s.cache.Set(ctx, lowStockCacheKey, items); err != nil {
		s.logger.WarnContext(ctx, "low stock cache write failed", slog.Any("error", err))
	}
	return items, nil
}

// InventoryChanged invalidates derived data after committed inventory writes.
func (s *Service) InventoryChanged(ctx context.Context, evt ChangedEvent) {
	s.metrics.ObserveInventoryMutation(string(evt.Kind), len(evt.Keys))
	if len(evt.Keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, lowStockCacheKey); err != nil {
		s.logger.WarnContext(ctx, "low stock cache invalidation failed", slog.Any("error", err))
	}
}
