package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vhvplatform/go-inspection-alert-service/internal/consumer"
	"github.com/vhvplatform/go-inspection-alert-service/internal/delivery"
	"github.com/vhvplatform/go-inspection-alert-service/internal/engine"
	"github.com/vhvplatform/go-inspection-alert-service/internal/handler"
	"github.com/vhvplatform/go-inspection-alert-service/internal/ledger"
	"github.com/vhvplatform/go-inspection-alert-service/internal/middleware"
	"github.com/vhvplatform/go-inspection-alert-service/internal/report"
	"github.com/vhvplatform/go-inspection-alert-service/internal/repository"
	"github.com/vhvplatform/go-inspection-alert-service/internal/scheduler"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/config"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/logger"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/mongodb"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/rabbitmq"
	"github.com/vhvplatform/go-inspection-alert-service/internal/shared/redis"
)

const sweepLockKey = "inspection_alerts:sweep_lock"

func main() {
	root := &cobra.Command{
		Use:           "inspection-alert-service",
		Short:         "Due-date alerts and reports for fire safety inventory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newSweepCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, item event consumer and sweep engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one automation sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context())
		},
	}
}

// app holds the wired service components
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	mongo     *mongodb.MongoClient
	rabbit    *rabbitmq.RabbitMQClient
	redis     *goredis.Client
	prefs     *repository.PreferencesRepository
	items     *repository.ItemRepository
	triggers  *repository.TriggerRepository
	delivery  *delivery.CronDelivery
	scheduler *scheduler.NotificationScheduler
	engine    *engine.AutomationSweepEngine
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}

	// Initialize MongoDB
	a.mongo, err = mongodb.NewMongoClient(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Initialize RabbitMQ. Without it push delivery is disabled.
	var publisher delivery.Publisher
	if cfg.RabbitMQ.URL != "" {
		a.rabbit, err = rabbitmq.NewRabbitMQClient(cfg.RabbitMQ.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		if err := a.rabbit.DeclarePublishExchange(cfg.Delivery.Exchange, "topic"); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to declare alert exchange: %w", err)
		}
		publisher = a.rabbit
	} else {
		log.Warn("RabbitMQ not configured, push delivery disabled")
	}

	// Initialize repositories
	a.prefs = repository.NewPreferencesRepository(a.mongo, cfg.Automation.OwnerID, log)
	a.items = repository.NewItemRepository(a.mongo)
	a.triggers = repository.NewTriggerRepository(a.mongo)
	if err := a.triggers.EnsureIndexes(ctx); err != nil {
		log.Warn("Failed to create trigger indexes", "error", err)
	}
	reportRuns := repository.NewReportRunRepository(a.mongo, cfg.Automation.OwnerID)

	a.delivery = delivery.NewCronDelivery(delivery.Config{
		Exchange:      cfg.Delivery.Exchange,
		RatePerSecond: cfg.Delivery.RatePerSecond,
		Burst:         cfg.Delivery.Burst,
	}, publisher, a.triggers, log)

	schedulerOpts := []scheduler.Option{}
	engineOpts := []engine.Option{engine.WithReportRunStore(reportRuns)}

	// Initialize Redis. Without it immediate alerts are not deduplicated and
	// sweeps are only serialized within this process.
	if cfg.Redis.Addr != "" {
		a.redis, err = redis.NewClient(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("Redis unavailable, continuing without alert ledger", "error", err)
		} else {
			alertLedger := ledger.NewRedisLedger(a.redis, cfg.Automation.LedgerTTL)
			schedulerOpts = append(schedulerOpts, scheduler.WithLedger(alertLedger))
			engineOpts = append(engineOpts,
				engine.WithLedger(alertLedger),
				engine.WithLocker(redis.NewLocker(a.redis, sweepLockKey, cfg.Automation.LockTTL, log)),
			)
		}
	}

	// Initialize report storage. Without MinIO reports are kept in memory only.
	var store report.ArtifactStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := report.NewMinIOStore(ctx, report.MinIOConfig{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			UseSSL:          cfg.MinIO.UseSSL,
			Bucket:          cfg.MinIO.Bucket,
		}, log)
		if err != nil {
			log.Warn("MinIO unavailable, reports will not be stored", "error", err)
		} else {
			store = minioStore
		}
	}
	reports := report.NewExcelGenerator(a.items, store, cfg.Automation.HorizonDays, log)

	a.scheduler = scheduler.NewNotificationScheduler(a.delivery, a.prefs, a.items, log, schedulerOpts...)
	a.engine = engine.NewAutomationSweepEngine(engine.Config{
		OwnerID:     cfg.Automation.OwnerID,
		Interval:    cfg.Automation.SweepInterval,
		HorizonDays: cfg.Automation.HorizonDays,
	}, a.prefs, a.items, a.delivery, reports, log, engineOpts...)

	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.rabbit != nil {
		a.rabbit.Close()
	}
	if a.mongo != nil {
		a.mongo.Disconnect(context.Background())
	}
	a.log.Sync()
}

func runSweep(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.engine.Sweep(ctx)
	if err != nil {
		return err
	}

	a.log.Info("Sweep finished",
		"skipped", result.Skipped,
		"items", result.ItemsChecked,
		"alerts_sent", result.AlertsSent,
		"failures", result.Failures,
	)
	return nil
}

func runServe() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	log := a.log
	cfg := a.cfg
	log.Info("Starting Inspection Alert Service...")

	// Reload pending triggers and arm their timers
	if err := a.delivery.Start(ctx); err != nil {
		return fmt.Errorf("failed to start alert delivery: %w", err)
	}
	defer a.delivery.Stop()

	settings := a.prefs.GetAutomationSettings(ctx)
	if settings.AutoNotifications || settings.AutoGenerateReports {
		if err := a.engine.Start(ctx); err != nil {
			log.Error("Failed to start sweep engine", "error", err)
		}
	}
	defer a.engine.Stop()

	// Initialize HTTP handlers
	preferencesHandler := handler.NewPreferencesHandler(a.prefs, a.scheduler, a.engine, log)
	itemHandler := handler.NewItemHandler(a.items, a.scheduler, a.triggers, log)

	// Initialize rate limiter
	rateLimiter := middleware.NewClientRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	// Health check endpoints
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := a.mongo.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "mongodb": err.Error()})
			return
		}
		if a.rabbit != nil && !a.rabbit.Healthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "rabbitmq": "connection closed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes with rate limiting
	v1 := router.Group("/api/v1")
	v1.Use(middleware.RateLimitMiddleware(rateLimiter))
	handler.RegisterRoutes(v1, preferencesHandler, itemHandler)

	// Start RabbitMQ consumer
	if a.rabbit != nil {
		eventConsumer := consumer.NewEventConsumer(a.rabbit, cfg.Delivery.ItemsExchange, cfg.Delivery.ItemsQueue, a.items, a.scheduler, log)
		go eventConsumer.Run(ctx)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("Inspection Alert Service started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		log.Error("HTTP server failed", "error", err)
	}

	log.Info("Shutting down Inspection Alert Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Inspection Alert Service stopped")
	return nil
}
