package routes

import (
	"context"
	"net/http"
	"time"

	"boxoffice/internal/analytics"
	"boxoffice/internal/auth"
	"boxoffice/internal/checkout"
	"boxoffice/internal/events"
	"boxoffice/internal/fulfillment"
	"boxoffice/internal/ledger"
	"boxoffice/internal/orders"
	"boxoffice/internal/payments"
	"boxoffice/internal/reconciliation"
	"boxoffice/internal/shared/clock"
	"boxoffice/internal/shared/config"
	"boxoffice/internal/shared/database"
	"boxoffice/internal/tickets"
	"boxoffice/pkg/cache"
	"boxoffice/pkg/idempotency"
	"boxoffice/pkg/logger"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const serviceName = "boxoffice-backend"

// Router wires every component of the checkout pipeline and owns the
// background workers it starts.
type Router struct {
	config *config.Config
	db     *database.DB
	clock  clock.Clock
	log    *logger.Logger

	ledger     *ledger.Ledger
	orderRepo  orders.Repository
	eventRepo  events.Repository
	tickets    tickets.Service
	registry   *payments.Registry
	queue      reconciliation.FulfillmentQueue
	producer   *fulfillment.Producer
	consumer   *fulfillment.Consumer
	jobs       *reconciliation.JobProcessor
	idempotent *idempotency.Store
}

// NewRouter builds the dependency graph. Kafka is optional: with the
// broker disabled, fulfillment runs in-process and reconciliation retries it.
func NewRouter(cfg *config.Config, db *database.DB, log *logger.Logger) (*Router, error) {
	r := &Router{
		config: cfg,
		db:     db,
		clock:  clock.NewSystem(),
		log:    logger.OrDefault(log),
	}

	pg := db.PostgreSQL
	r.ledger = ledger.NewLedger(db.Redis, r.clock, cfg.Checkout.HoldTTL)
	r.orderRepo = orders.NewRepository(pg)
	r.eventRepo = events.NewRepository(pg)
	r.tickets = tickets.NewService(tickets.NewRepository(pg), r.orderRepo, r.clock, r.log)
	r.registry = payments.NewRegistry(
		payments.NewMercadoPago(cfg.Payments),
		payments.NewOpenPay(cfg.Payments),
	)

	if err := r.setupFulfillment(); err != nil {
		return nil, err
	}

	r.jobs = reconciliation.NewJobProcessor(
		r.orderRepo,
		r.ledger,
		r.queue,
		r.clock,
		reconciliation.JobConfigFrom(cfg.Reconciliation),
		r.log,
	)

	if cfg.Idempotency.Enabled {
		r.idempotent = idempotency.NewStore(db.Redis, idempotency.Config{
			Enabled: true,
			TTL:     cfg.Idempotency.TTL,
			LockTTL: cfg.Idempotency.LockTTL,
		})
	}
	return r, nil
}

func (r *Router) setupFulfillment() error {
	if !r.config.Kafka.Enabled {
		processor := fulfillment.NewProcessor(r.tickets, r.orderRepo, fulfillment.NewLogPublisher(r.log), r.clock, r.log)
		r.queue = fulfillment.NewDirectQueue(processor, r.clock)
		r.log.Info("Kafka disabled, fulfillment runs in-process")
		return nil
	}

	producer, err := fulfillment.NewProducer(fulfillment.DefaultProducerConfig(r.config.Kafka), r.log)
	if err != nil {
		return err
	}
	processor := fulfillment.NewProcessor(r.tickets, r.orderRepo, producer, r.clock, r.log)
	handler := fulfillment.NewHandler(processor, producer, r.config.Kafka.MaxAttempts, r.config.Kafka.RetryBackoff, r.log)

	consumer, err := fulfillment.NewConsumer(fulfillment.DefaultConsumerConfig(r.config.Kafka), handler, r.log)
	if err != nil {
		producer.Close()
		return err
	}

	r.producer = producer
	r.consumer = consumer
	r.queue = producer
	return nil
}

// Start launches the fulfillment consumer and the reconciliation loops.
func (r *Router) Start(ctx context.Context) {
	if err := r.ledger.PreloadScripts(ctx); err != nil {
		// Script.Run falls back to EVAL on NOSCRIPT
		r.log.ErrorWithContext(ctx, "failed to preload ledger scripts", err, nil)
	}
	if r.consumer != nil {
		r.consumer.Start(ctx)
	}
	if r.config.Reconciliation.Enabled {
		r.jobs.Start(ctx)
	}
}

// Stop drains background work. The caller closes the database after.
func (r *Router) Stop() {
	if r.config.Reconciliation.Enabled {
		r.jobs.Stop()
	}
	if r.consumer != nil {
		if err := r.consumer.Stop(); err != nil {
			r.log.Error("failed to stop fulfillment consumer", "error", err)
		}
	}
	if r.producer != nil {
		if err := r.producer.Close(); err != nil {
			r.log.Error("failed to close fulfillment producer", "error", err)
		}
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupAuthRoutes(api)
		r.setupEventRoutes(api)
		r.setupCheckoutRoutes(api)
		r.setupWebhookRoutes(api)
		r.setupTicketRoutes(api)
		r.setupAnalyticsRoutes(api)
	}
}

func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   serviceName,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   serviceName,
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "operational",
			"api_version":    r.config.APIVersion,
			"timestamp":      time.Now(),
			"gateways":       r.registry.Names(),
			"kafka":          r.config.Kafka.Enabled,
			"reconciliation": r.jobs.Status(),
		})
	})
}

func (r *Router) setupAuthRoutes(rg *gin.RouterGroup) {
	authService := auth.NewService(auth.NewRepository(r.db.PostgreSQL), r.config, r.log)
	auth.SetupAuthRoutes(rg, auth.NewController(authService), r.config)
}

func (r *Router) setupEventRoutes(rg *gin.RouterGroup) {
	eventService := events.NewService(r.eventRepo, r.config, r.log)
	eventService.SetCacheService(cache.NewService(r.db.Redis))
	eventService.SetAvailabilityReader(r.ledger)

	events.SetupEventRoutes(rg, events.NewController(eventService))
}

func (r *Router) setupCheckoutRoutes(rg *gin.RouterGroup) {
	checkoutService := checkout.NewService(
		checkout.NewRepository(r.db.PostgreSQL),
		r.orderRepo,
		r.eventRepo,
		r.ledger,
		r.registry,
		r.clock,
		r.config.Checkout,
		r.log,
	)

	var guards []gin.HandlerFunc
	if r.idempotent != nil {
		guards = append(guards, idempotency.Middleware(r.idempotent, r.log))
	}
	checkout.SetupCheckoutRoutes(rg, checkout.NewController(checkoutService), guards...)
}

func (r *Router) setupWebhookRoutes(rg *gin.RouterGroup) {
	paymentService := payments.NewService(
		payments.NewRepository(r.db.PostgreSQL),
		r.orderRepo,
		r.registry,
		r.ledger,
		r.queue,
		r.clock,
		r.config.Payments,
		r.log,
	)
	payments.SetupWebhookRoutes(rg, payments.NewController(paymentService))
}

func (r *Router) setupTicketRoutes(rg *gin.RouterGroup) {
	tickets.SetupTicketRoutes(rg, tickets.NewController(r.tickets))
}

func (r *Router) setupAnalyticsRoutes(rg *gin.RouterGroup) {
	analyticsService := analytics.NewService(
		analytics.NewRepository(r.db.PostgreSQL),
		r.ledger,
		r.tickets,
		r.queue,
		r.clock,
		r.config.Payments,
		r.log,
	)
	analyticsService.SetCacheService(cache.NewService(r.db.Redis))

	analytics.SetupAnalyticsRoutes(rg, analytics.NewController(analyticsService))
}
