// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"venuepos/internal/domain/catalog"
	"venuepos/internal/domain/journal"
	"venuepos/internal/domain/ledger"
	"venuepos/internal/domain/settlement"
	"venuepos/internal/infrastructure/http/v1/handlers"
	"venuepos/internal/infrastructure/http/v1/middleware"
	"venuepos/internal/infrastructure/storage/postgres"
	"venuepos/pkg/logger"
)

// RouterConfig holds the wired services the router exposes.
type RouterConfig struct {
	AppName string

	// Logger for request logging
	Logger *logger.Logger

	// Pool is the database pool, used for readiness checks.
	Pool *pgxpool.Pool

	// Redis is nil when catalog caching is disabled.
	Redis *redis.Client

	Coordinator    *settlement.Coordinator
	JournalService *journal.Service
	LedgerService  *ledger.Service
	Catalog        catalog.Catalog
	ProductLister  handlers.ProductLister
	Audit          *postgres.AuditService
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Redis, cfg.AppName)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler()
	orderHandler := handlers.NewOrderHandler(base, cfg.Coordinator, cfg.JournalService, cfg.Audit)
	stockHandler := handlers.NewStockHandler(base, cfg.LedgerService, cfg.Audit)
	catalogHandler := handlers.NewCatalogHandler(base, cfg.Catalog, cfg.ProductLister)

	api := router.Group("/api/v1")
	venues := api.Group("/venues/:venueId")
	{
		orders := venues.Group("/orders")
		{
			orders.POST("", orderHandler.Create)
			orders.GET("", orderHandler.List)
			orders.GET("/:orderId", orderHandler.Get)
			orders.POST("/:orderId/status", orderHandler.Transition)
			orders.POST("/:orderId/payment", orderHandler.MarkPayment)
			orders.GET("/:orderId/audit", orderHandler.AuditTrail)
		}

		venues.GET("/summary", orderHandler.Summary)
		venues.POST("/summary/verify", orderHandler.VerifyAggregate)

		products := venues.Group("/products")
		{
			products.GET("", catalogHandler.List)
			products.GET("/:productId", catalogHandler.Get)

			stock := products.Group("/:productId/stock")
			{
				stock.POST("", stockHandler.AddStock)
				stock.POST("/wastage", stockHandler.Wastage)
				stock.POST("/expire", stockHandler.Expire)
				stock.GET("/availability", stockHandler.Availability)
				stock.GET("/history", stockHandler.History)
			}
		}
	}

	return router
}
