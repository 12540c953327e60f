package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/crm-ims/crm-ims/internal/inventory"
	"github.com/crm-ims/crm-ims/internal/rbac"
	"github.com/crm-ims/crm-ims/internal/sales"
	"github.com/crm-ims/crm-ims/internal/shared"
)

type refresherFunc func(context.Context) ([]inventory.LowStockItem, error)

func (f refresherFunc) RefreshLowStock(ctx context.Context) ([]inventory.LowStockItem, error) {
	return f(ctx)
}

type cleanerFunc func(context.Context, time.Duration) (int64, error)

func (f cleanerFunc) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	return f(ctx, olderThan)
}

func TestLowStockJob(t *testing.T) {
	calls := 0
	job := NewLowStockJob(refresherFunc(func(context.Context) ([]inventory.LowStockItem, error) {
		calls++
		return []inventory.LowStockItem{{ProductID: 1, WarehouseID: 10, Quantity: decimal.NewFromInt(2), ReorderLevel: decimal.NewFromInt(5)}}, nil
	}), nil, nil)
	require.NoError(t, job.Handle(context.Background(), NewLowStockScanTask()))
	require.Equal(t, 1, calls)

	failing := NewLowStockJob(refresherFunc(func(context.Context) ([]inventory.LowStockItem, error) {
		return nil, errors.New("db down")
	}), nil, nil)
	require.Error(t, failing.Handle(context.Background(), NewLowStockScanTask()))
}

func TestIdempotencyCleanupJob(t *testing.T) {
	var got time.Duration
	job := NewIdempotencyCleanupJob(cleanerFunc(func(_ context.Context, olderThan time.Duration) (int64, error) {
		got = olderThan
		return 3, nil
	}), nil, nil)

	task, err := NewIdempotencyCleanupTask(2 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 2*time.Hour, got)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, 24*time.Hour, got)

	err = job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestOrderEventJobRejectsMalformedPayload(t *testing.T) {
	job := NewOrderEventJob(nil, nil)
	task, err := NewOrderEventTask(sales.OrderEvent{OrderID: 4, From: sales.StatusPending, To: sales.StatusConfirmed})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	err = job.Handle(context.Background(), asynq.NewTask(TaskOrderEvent, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestClientPublishesOrderEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	evt := sales.OrderEvent{OrderID: 9, OrderNumber: "SO-20260101-00000001", From: sales.StatusConfirmed, To: sales.StatusShipped, At: time.Now().UTC()}
	require.NoError(t, client.PublishOrderEvent(context.Background(), evt))

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHandlerHealth(t *testing.T) {
	serve := func(inspector QueueInspector, role string) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := shared.ContextWithPrincipal(req.Context(), shared.Principal{UserID: 1, Role: role})
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
		r.Route("/jobs", NewHandler(inspector, nil, nil, rbac.Middleware{}).MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rec
	}

	rec := serve(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Failed: 1}}, "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 4, body.Pending)
	require.Equal(t, 1, body.Failed)

	rec = serve(stubInspector{err: errors.New("redis down")}, "admin")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(stubInspector{}, "viewer")
	require.Equal(t, http.StatusForbidden, rec.Code)
}
