package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/urevent360-byte/urevent360-plus/internal/di"
	"github.com/urevent360-byte/urevent360-plus/internal/handler"
	"github.com/urevent360-byte/urevent360-plus/internal/metrics"
	"github.com/urevent360-byte/urevent360-plus/internal/repository"
	"github.com/urevent360-byte/urevent360-plus/internal/service"
	"github.com/urevent360-byte/urevent360-plus/pkg/config"
	"github.com/urevent360-byte/urevent360-plus/pkg/database"
	"github.com/urevent360-byte/urevent360-plus/pkg/logger"
	"github.com/urevent360-byte/urevent360-plus/pkg/middleware"
	"github.com/urevent360-byte/urevent360-plus/pkg/mongodb"
	pkgredis "github.com/urevent360-byte/urevent360-plus/pkg/redis"
	"github.com/urevent360-byte/urevent360-plus/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "portal-api"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting portal API...", zap.String("environment", cfg.App.Environment))

	ctx := context.Background()

	// Tracing and metrics
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Telemetry disabled", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()
	if err := metrics.Init(); err != nil {
		appLog.Warn("Metrics disabled", zap.Error(err))
	}

	// Entity store
	store, closeStore, err := openStore(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("Entity store unavailable", zap.Error(err))
	}
	defer closeStore()

	// Redis backs the idempotency middleware only, so it is optional
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, &pkgredis.Config{
			Host:          cfg.Redis.Host,
			Port:          cfg.Redis.Port,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MinIdleConns:  cfg.Redis.MinIdleConns,
			DialTimeout:   cfg.Redis.DialTimeout,
			ReadTimeout:   cfg.Redis.ReadTimeout,
			WriteTimeout:  cfg.Redis.WriteTimeout,
			MaxRetries:    3,
			RetryInterval: 100 * time.Millisecond,
		})
		if err != nil {
			appLog.Warn("Redis connection failed, idempotency keys disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
			appLog.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	// Notifications and calendar sync share one Kafka producer
	var notifier service.Notifier = service.NewNoOpNotifier()
	var calendar service.CalendarSyncer = service.NewLocalCalendarSyncer()
	healthChecks := map[string]handler.CheckFunc{}
	if cfg.Kafka.Enabled {
		kn, err := service.NewKafkaNotifier(ctx, &service.NotifierConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.NotificationsTopic,
			ServiceName: serviceName,
			ClientID:    cfg.Kafka.ClientID,
		})
		if err != nil {
			appLog.Warn("Kafka connection failed, using no-op notifier", zap.Error(err))
		} else {
			notifier = kn
			calendar = service.NewKafkaCalendarSyncer(kn.Producer(), cfg.Kafka.CalendarTopic)
			healthChecks["kafka"] = kn.Producer().Ping
			appLog.Info("Kafka notifier connected", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	}
	defer notifier.Close()

	blobs, err := service.NewLocalBlobStore(cfg.Uploads.Dir, cfg.Uploads.PublicBaseURL, cfg.Uploads.MaxBytes)
	if err != nil {
		appLog.Fatal("Upload directory unavailable", zap.Error(err))
	}

	// Build dependency injection container
	base := service.BaseConfig{NotifyTimeout: cfg.Kafka.NotifyTimeout}
	container := di.NewContainer(&di.ContainerConfig{
		Store:        store,
		Redis:        redisClient,
		Logger:       appLog,
		Notifier:     notifier,
		Calendar:     calendar,
		Blobs:        blobs,
		HealthChecks: healthChecks,
		LeadConfig: &service.LeadServiceConfig{
			BaseConfig:                  base,
			GalleryReleaseDelayDays:     cfg.Portal.GalleryReleaseDelayDays,
			GalleryVisibilityWindowDays: cfg.Portal.GalleryVisibilityWindowDays,
			GalleryAutoPurgeDays:        cfg.Portal.GalleryAutoPurgeDays,
			UploadTokenTTL:              cfg.Portal.UploadTokenTTL,
			ProjectNumberPrefix:         cfg.Portal.ProjectNumberPrefix,
		},
		EventConfig: &service.EventServiceConfig{
			BaseConfig:            base,
			DefaultDepositPercent: cfg.Portal.DefaultDepositPercent,
		},
		AddonConfig: &service.AddonServiceConfig{BaseConfig: base},
		BaseConfig:  &base,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(appLog))
	router.Use(telemetry.TracingMiddleware(serviceName))
	router.Use(corsMiddleware(cfg.Server.CORSOrigins))
	router.MaxMultipartMemory = 8 << 20

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Local uploads are served next to the API unless a CDN fronts them
	if strings.HasPrefix(cfg.Uploads.PublicBaseURL, "/") {
		router.Static(cfg.Uploads.PublicBaseURL, blobs.Dir())
	}

	registerRoutes(router, container, cfg, redisClient)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info("Portal API listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server forced to shutdown", zap.Error(err))
	}

	appLog.Info("Server exited gracefully")
}

// openStore connects the configured entity store and wraps it with the timeout guard
func openStore(ctx context.Context, cfg *config.Config, appLog *logger.Logger) (repository.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		if err := cfg.ValidateDatabase(); err != nil {
			return nil, nil, err
		}
		db, err := database.NewPostgres(ctx, &database.PostgresConfig{
			DSN:             cfg.Database.DSN(),
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnectTimeout:  5 * time.Second,
			MaxRetries:      3,
			RetryInterval:   time.Second,
			EnableTracing:   cfg.OTel.Enabled,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		pg := repository.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		appLog.Info("Entity store: postgres")
		return repository.NewGuardedStore(pg, cfg.Store.Timeout), db.Close, nil

	case config.StoreDriverMongo:
		if err := cfg.ValidateMongoDB(); err != nil {
			return nil, nil, err
		}
		client, err := mongodb.NewClient(ctx, &mongodb.Config{
			URI:            cfg.MongoDB.URI,
			Database:       cfg.MongoDB.Database,
			ConnectTimeout: cfg.MongoDB.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("mongodb: %w", err)
		}
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(closeCtx)
		}
		ms := repository.NewMongoStore(client)
		if err := ms.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("mongodb indexes: %w", err)
		}
		appLog.Info("Entity store: mongodb")
		return repository.NewGuardedStore(ms, cfg.Store.Timeout), closeFn, nil

	default:
		appLog.Warn("Entity store: in-memory, data is lost on restart")
		return repository.NewGuardedStore(repository.NewMemoryStore(), cfg.Store.Timeout), func() {}, nil
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowCredentials := true
	for _, origin := range origins {
		if origin == "*" {
			allowCredentials = false
			break
		}
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", middleware.IdempotencyKeyHeader},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: allowCredentials,
		MaxAge:           12 * time.Hour,
	})
}

func registerRoutes(router *gin.Engine, c *di.Container, cfg *config.Config, redisClient *pkgredis.Client) {
	auth := middleware.JWTAuth(&middleware.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	optionalAuth := middleware.JWTAuth(&middleware.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Optional: true})

	// Write operations replay on a repeated idempotency key when redis is available
	idem := func(ctx *gin.Context) { ctx.Next() }
	if redisClient != nil {
		idem = middleware.Idempotency(middleware.DefaultIdempotencyConfig(redisClient))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": cfg.App.Version,
				"service": serviceName,
			})
		})

		// Public: inquiries and guest uploads through a QR token
		v1.POST("/leads", optionalAuth, idem, c.LeadHandler.CreateLead)
		v1.POST("/uploads/:token", c.GalleryHandler.UploadGuestFile)

		leads := v1.Group("/leads", auth)
		{
			leads.GET("", c.LeadHandler.ListLeads)
			leads.GET("/:id", c.LeadHandler.GetLead)
			leads.POST("/:id/contacted", c.LeadHandler.MarkContacted)
			leads.POST("/:id/quote", c.LeadHandler.SendQuote)
			leads.POST("/:id/accept", c.LeadHandler.MarkAccepted)
			leads.POST("/:id/reject", c.LeadHandler.RejectLead)
			leads.POST("/:id/convert", idem, c.LeadHandler.ConvertToEvent)
		}

		events := v1.Group("/events", auth)
		{
			events.GET("", c.EventHandler.ListEvents)
			events.GET("/:id", c.EventHandler.GetEvent)
			events.POST("/:id/contract/send", c.EventHandler.SendContract)
			events.POST("/:id/contract/signed", c.EventHandler.MarkContractSigned)
			events.POST("/:id/invoice", idem, c.EventHandler.CreateInvoice)
			events.GET("/:id/payment", c.EventHandler.GetActivePayment)
			events.POST("/:id/payment/simulate-deposit", idem, c.EventHandler.SimulateDepositPaid)
			events.POST("/:id/payments", idem, c.EventHandler.RecordPayment)
			events.POST("/:id/deposit-due", c.EventHandler.MarkDepositDue)
			events.POST("/:id/complete", c.EventHandler.CompleteEvent)
			events.POST("/:id/cancel", c.EventHandler.CancelEvent)
			events.POST("/:id/uploads/pause", c.EventHandler.PauseUploads)
			events.POST("/:id/uploads/resume", c.EventHandler.ResumeUploads)
			events.POST("/:id/uploads/expire", c.EventHandler.ExpireUploads)

			events.GET("/:id/services", c.AddonHandler.ListServiceRequests)
			events.POST("/:id/services", idem, c.AddonHandler.RequestAddons)
			events.POST("/:id/services/:requestId/approve", c.AddonHandler.ApproveServiceRequest)
			events.POST("/:id/services/:requestId/reject", c.AddonHandler.RejectServiceRequest)

			events.GET("/:id/change-requests", c.ChangeRequestHandler.ListChangeRequests)
			events.POST("/:id/change-requests", idem, c.ChangeRequestHandler.CreateChangeRequest)
			events.POST("/:id/change-requests/:requestId/approve", c.ChangeRequestHandler.ApproveChangeRequest)
			events.POST("/:id/change-requests/:requestId/reject", c.ChangeRequestHandler.RejectChangeRequest)

			events.GET("/:id/timeline", c.TimelineHandler.ListTimeline)
			events.POST("/:id/timeline", idem, c.TimelineHandler.AddTimelineItem)
			events.POST("/:id/timeline/sync", c.TimelineHandler.SyncTimeline)

			events.GET("/:id/gallery", c.GalleryHandler.ListGallery)
			events.POST("/:id/files", c.GalleryHandler.AttachFile)
		}
	}
}
