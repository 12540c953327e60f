package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/crm-ims/crm-ims/internal/app"
	"github.com/crm-ims/crm-ims/internal/auth"
	"github.com/crm-ims/crm-ims/internal/crm/leads"
	"github.com/crm-ims/crm-ims/internal/inventory"
	"github.com/crm-ims/crm-ims/internal/masterdata/customers"
	"github.com/crm-ims/crm-ims/internal/masterdata/products"
	"github.com/crm-ims/crm-ims/internal/masterdata/suppliers"
	"github.com/crm-ims/crm-ims/internal/masterdata/warehouses"
	"github.com/crm-ims/crm-ims/internal/observability"
	"github.com/crm-ims/crm-ims/internal/platform/cache"
	"github.com/crm-ims/crm-ims/internal/platform/db"
	"github.com/crm-ims/crm-ims/internal/procurement"
	"github.com/crm-ims/crm-ims/internal/rbac"
	"github.com/crm-ims/crm-ims/internal/sales"
	"github.com/crm-ims/crm-ims/internal/shared"
	"github.com/crm-ims/crm-ims/internal/users"
	"github.com/crm-ims/crm-ims/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Default().Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 20, MaxConnLifetime: time.Hour})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var lowStockCache *cache.JSONCache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, low stock cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		lowStockCache = cache.NewJSONCache(redisClient, "crmims:inventory", cfg.LowStockCacheTTL)
	}

	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{}
	audit := shared.NewAuditLogger(pool)

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(auth.NewRepository(pool), tokens, logger)
	usersService := users.NewService(users.NewRepository(pool), authService, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	inventoryService := inventory.NewService(inventory.NewRepository(pool), audit, inventory.ServiceConfig{
		Cache:   lowStockCache,
		Logger:  logger,
		Metrics: metrics,
	})
	calculator := cfg.Calculator()
	salesService := sales.NewService(sales.NewRepository(pool), sales.ServiceConfig{
		Calculator:  calculator,
		Numbers:     shared.NewNumberGenerator("SO"),
		Idempotency: shared.NewIdempotencyStore(pool),
		Audit:       audit,
		Inventory:   inventoryService,
		Events:      jobClient,
		Metrics:     metrics,
		Logger:      logger,
	})
	procurementService := procurement.NewService(procurement.NewRepository(pool), procurement.ServiceConfig{
		Calculator:         calculator,
		Numbers:            shared.NewNumberGenerator("PO"),
		Audit:              audit,
		Inventory:          inventoryService,
		Logger:             logger,
		DefaultWarehouseID: cfg.DefaultReceivingWarehouseID,
	})

	health := map[string]app.Pinger{"postgres": pool}
	if redisClient != nil {
		health["redis"] = redisPinger{client: redisClient}
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Tokens:             tokens,
		Principals:         authService,
		AuthHandler:        auth.NewHandler(logger, authService, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, usersService, rbacMiddleware),
		CustomersHandler:   customers.NewHandler(logger, customers.NewService(customers.NewRepository(pool)), rbacMiddleware),
		LeadsHandler:       leads.NewHandler(logger, leads.NewService(leads.NewRepository(pool)), rbacMiddleware),
		ProductsHandler:    products.NewHandler(logger, products.NewService(products.NewRepository(pool)), rbacMiddleware),
		WarehousesHandler:  warehouses.NewHandler(logger, warehouses.NewService(warehouses.NewRepository(pool)), rbacMiddleware),
		SuppliersHandler:   suppliers.NewHandler(logger, suppliers.NewService(suppliers.NewRepository(pool)), rbacMiddleware),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		SalesHandler:       sales.NewHandler(logger, salesService, rbacMiddleware),
		ProcurementHandler: procurement.NewHandler(logger, procurementService, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(),
		JobsHandler:        jobs.NewHandler(inspector, jobClient, logger, rbacMiddleware),
		Health:             health,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server starting", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
