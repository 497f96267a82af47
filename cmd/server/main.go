package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-pos-billing/internal/auth"
	"go-pos-billing/internal/checkout"
	"go-pos-billing/internal/config"
	"go-pos-billing/internal/database"
	"go-pos-billing/internal/handlers"
	"go-pos-billing/internal/inventory"
	"go-pos-billing/internal/logger"
	"go-pos-billing/internal/notify"
	"go-pos-billing/internal/tenant"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		panic(err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Env:    cfg.App.Env,
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.GormLevel), cfg.Log.SlowQuery)
	db, err := database.Connect(cfg.Database, gormLog, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	keys, closeKeys := newKeyStore(cfg, log)
	defer closeKeys()

	notifier, closeNotifier := newNotifier(cfg, log)
	defer closeNotifier()

	sessions := auth.NewSessionManager(cfg.Session.Secret, cfg.Session.TTL)
	tenants := tenant.NewStore(db)
	backfillOwners(tenants, cfg.Tenants.OwnerBackfill, log)
	api := &handlers.API{
		DB:          db,
		Config:      cfg,
		Tenants:     tenants,
		Resolver:    tenant.NewResolver(tenants, sessions, cfg.Session.CookieName),
		Sessions:    sessions,
		Credentials: auth.NewCredentialService(tenants),
		Catalog:     inventory.NewCatalog(db),
		Checkout: checkout.NewFinalizer(db, keys,
			notify.NewResilient(notifier, cfg.Notify.Timeout, cfg.Notify.Retries, log),
			checkout.NewLinkBridge(cfg.Bridge.BaseURL),
			checkout.Options{PendingTTL: cfg.Checkout.PendingTTL, IdempotencyTTL: cfg.Checkout.IdempotencyTTL},
			log),
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.RequestID(), logger.GinMiddleware(log), logger.Recovery(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Merchant-Id", "X-Api-Key", "X-Api-Token", handlers.IdempotencyHeader},
		ExposeHeaders:    []string{"Content-Length", logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.RegisterRoutes(r)
	if cfg.App.AllowRegistration {
		log.Warn("Registration route is OPEN. Disable this in production!")
	}

	// Serve the POS front-end build; unknown paths fall back to index.html for the SPA router
	r.Static("/assets", "./web/assets")
	r.NoRoute(func(c *gin.Context) {
		c.File("./web/index.html")
	})

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("base_url", cfg.App.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

// backfillOwners binds ownerless tenants from the operator's mapping. Failures are
// logged and do not stop the server.
func backfillOwners(tenants *tenant.Store, mapping map[string]string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for merchantID, email := range mapping {
		t, err := tenants.AssignOwner(ctx, merchantID, email)
		if err != nil {
			log.Warn("Owner backfill skipped", zap.String("merchant_id", merchantID), zap.Error(err))
			continue
		}
		log.Info("Owner backfilled", zap.String("merchant_id", t.MerchantID), zap.String("owner", t.Owner()))
	}
}

// newKeyStore uses Redis when configured so every instance shares checkout keys
func newKeyStore(cfg *config.Config, log *zap.Logger) (checkout.KeyStore, func()) {
	if cfg.Redis.Addr == "" {
		log.Info("Using in-memory idempotency store")
		s := checkout.NewMemoryKeyStore()
		return s, func() { _ = s.Close() }
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	log.Info("Using Redis idempotency store", zap.String("addr", cfg.Redis.Addr))
	return checkout.NewRedisKeyStore(client, ""), func() { _ = client.Close() }
}

// newNotifier publishes receipts to Kafka, or only logs them when no broker is set
func newNotifier(cfg *config.Config, log *zap.Logger) (notify.Notifier, func()) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("No Kafka brokers configured; receipts are logged only")
		return notify.NewLogNotifier(log), func() {}
	}
	n := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.ReceiptTopic)
	log.Info("Publishing receipts to Kafka",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.ReceiptTopic))
	return n, func() {
		if err := n.Close(); err != nil {
			log.Warn("Failed to close Kafka writer", zap.Error(err))
		}
	}
}
