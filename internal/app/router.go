package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crm-ims/crm-ims/internal/auth"
	"github.com/crm-ims/crm-ims/internal/crm/leads"
	"github.com/crm-ims/crm-ims/internal/inventory"
	"github.com/crm-ims/crm-ims/internal/masterdata/customers"
	"github.com/crm-ims/crm-ims/internal/masterdata/products"
	"github.com/crm-ims/crm-ims/internal/masterdata/suppliers"
	"github.com/crm-ims/crm-ims/internal/masterdata/warehouses"
	"github.com/crm-ims/crm-ims/internal/observability"
	"github.com/crm-ims/crm-ims/internal/platform/httpx"
	"github.com/crm-ims/crm-ims/internal/procurement"
	"github.com/crm-ims/crm-ims/internal/rbac"
	"github.com/crm-ims/crm-ims/internal/sales"
	"github.com/crm-ims/crm-ims/internal/users"
	"github.com/crm-ims/crm-ims/jobs"
)

// Pinger reports dependency health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Tokens     *auth.TokenIssuer
	Principals auth.PrincipalResolver

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	CustomersHandler   *customers.Handler
	LeadsHandler       *leads.Handler
	ProductsHandler    *products.Handler
	WarehousesHandler  *warehouses.Handler
	SuppliersHandler   *suppliers.Handler
	InventoryHandler   *inventory.Handler
	SalesHandler       *sales.Handler
	ProcurementHandler *procurement.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobsHandler        *jobs.Handler

	Health  map[string]Pinger
	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:     params.Logger,
		Config:     params.Config,
		Tokens:     params.Tokens,
		Principals: params.Principals,
		Metrics:    params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), "")
	})

	r.Get("/healthz", healthHandler(params.Logger, params.Health))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		mount(r, "/auth", params.AuthHandler)
		mount(r, "/users", params.UsersHandler)
		mount(r, "/customers", params.CustomersHandler)
		mount(r, "/leads", params.LeadsHandler)
		mount(r, "/products", params.ProductsHandler)
		mount(r, "/warehouses", params.WarehousesHandler)
		mount(r, "/suppliers", params.SuppliersHandler)
		mount(r, "/inventory", params.InventoryHandler)
		mount(r, "/sales-orders", params.SalesHandler)
		mount(r, "/purchase-orders", params.ProcurementHandler)
		mount(r, "/permissions", params.PermissionsHandler)
		mount(r, "/jobs", params.JobsHandler)
	})
	return r
}

type routeMounter interface {
	MountRoutes(r chi.Router)
}

// mount skips handlers left nil by the caller.
func mount[T interface {
	comparable
	routeMounter
}](r chi.Router, pattern string, h T) {
	var zero T
	if h == zero {
		return
	}
	r.Route(pattern, h.MountRoutes)
}

func healthHandler(logger *slog.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make(map[string]string, len(deps))
		status := http.StatusOK
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", slog.String("dependency", name), slog.Any("error", err))
				checks[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "up"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httpx.JSON(w, status, map[string]any{"status": state, "checks": checks})
	}
}
