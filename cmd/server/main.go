// Package main is the entry point for the venuepos API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"venuepos/internal/domain/catalog"
	"venuepos/internal/domain/journal"
	"venuepos/internal/domain/ledger"
	"venuepos/internal/domain/notify"
	"venuepos/internal/domain/settlement"
	"venuepos/internal/infrastructure/cache"
	"venuepos/internal/infrastructure/config"
	v1 "venuepos/internal/infrastructure/http/v1"
	"venuepos/internal/infrastructure/storage/postgres"
	"venuepos/internal/infrastructure/storage/postgres/catalog_repo"
	"venuepos/internal/infrastructure/storage/postgres/journal_repo"
	"venuepos/internal/infrastructure/storage/postgres/ledger_repo"
	"venuepos/pkg/logger"
	"venuepos/pkg/numerator"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Info("starting venuepos server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN())
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	// --- Repositories ---
	productRepo := catalog_repo.NewProductRepo(txManager)
	ledgerRepo := ledger_repo.NewLedgerRepo(txManager)
	journalRepo := journal_repo.NewJournalRepo(txManager, auditService)

	// --- Optional catalog cache ---
	var productCatalog catalog.Catalog = productRepo
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			// Cache is an optimization: start without it rather than fail.
			log.Warnw("redis unavailable, catalog cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			productCatalog = cache.NewCatalogCache(productRepo, redisClient, cfg.Redis.CatalogTTL)
			log.Infow("catalog cache enabled", "ttl", cfg.Redis.CatalogTTL)
		}
	}

	// --- Services ---
	ledgerCfg := ledger.DefaultConfig()
	if cfg.Stock.Mode == "strict" {
		ledgerCfg.Mode = ledger.Strict
	}
	ledgerCfg.MaxRetries = cfg.Stock.MaxRetries

	notifier := notify.NewLogNotifier()
	ledgerService := ledger.NewService(ledgerRepo, ledgerCfg)
	journalService := journal.NewService(journalRepo, notifier)
	numbers := numerator.New(pool)
	coordinator := settlement.NewCoordinator(productCatalog, ledgerService, journalService, numbers, notifier)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		AppName:        cfg.App.Name,
		Logger:         log,
		Pool:           pool.Pool,
		Redis:          redisClient,
		Coordinator:    coordinator,
		JournalService: journalService,
		LedgerService:  ledgerService,
		Catalog:        productCatalog,
		ProductLister:  productRepo,
		Audit:          auditService,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port, "stock_mode", cfg.Stock.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	postgres.LogPoolStats(ctx, pool.Pool)
	log.Info("server stopped")
}
