package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/candemirel/vitrin-backend/api/routes"
	"github.com/candemirel/vitrin-backend/internal/audit"
	"github.com/candemirel/vitrin-backend/internal/coupons"
	"github.com/candemirel/vitrin-backend/internal/loyalty"
	"github.com/candemirel/vitrin-backend/internal/orders"
	"github.com/candemirel/vitrin-backend/internal/payments"
	"github.com/candemirel/vitrin-backend/pkg/config"
	"github.com/candemirel/vitrin-backend/pkg/db"
	"github.com/candemirel/vitrin-backend/pkg/logger"
	"github.com/candemirel/vitrin-backend/pkg/migrate"
	"github.com/candemirel/vitrin-backend/pkg/paytr"
	"github.com/candemirel/vitrin-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	auditService, err := audit.NewService(audit.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create audit service", err)
		os.Exit(1)
	}

	couponsService, err := coupons.NewService(coupons.ServiceParams{
		Repo:  coupons.NewRepository(dbClient.DB()),
		Audit: auditService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create coupons service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(orders.ServiceParams{
		Logger:    logg,
		Repo:      ordersRepo,
		Tx:        dbClient,
		Inventory: orders.NewInventoryReleaser(),
		Audit:     auditService,
		Reclaim:   cfg.Reclaim,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	loyaltyService, err := loyalty.NewService(loyalty.ServiceParams{
		Repo:    loyalty.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Coupons: couponsService,
		Audit:   auditService,
		Config:  cfg.Loyalty,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create loyalty service", err)
		os.Exit(1)
	}

	paytrClient := paytr.New(paytr.Config{
		MerchantID:   cfg.PayTR.MerchantID,
		MerchantKey:  cfg.PayTR.MerchantKey,
		MerchantSalt: cfg.PayTR.MerchantSalt,
	})
	if !cfg.PayTR.Configured() {
		logg.Warn(context.Background(), "paytr credentials incomplete, webhook verification disabled")
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Logger:    logg,
		PayTR:     paytrClient,
		Orders:    ordersRepo,
		Lifecycle: ordersService,
		Loyalty:   loyaltyService,
		Audit:     auditService,
		Tx:        dbClient,
		Views:     redisClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	webhookGuard, err := payments.NewIdempotencyGuard(redisClient, cfg.PayTR.IdempotencyTTL, "paytr-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			paymentsService,
			webhookGuard,
			couponsService,
			loyaltyService,
			ordersService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
