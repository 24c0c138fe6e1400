package di

import (
	"github.com/urevent360-byte/urevent360-plus/internal/handler"
	"github.com/urevent360-byte/urevent360-plus/internal/repository"
	"github.com/urevent360-byte/urevent360-plus/internal/service"
	"github.com/urevent360-byte/urevent360-plus/pkg/logger"
	"github.com/urevent360-byte/urevent360-plus/pkg/redis"
)

// Container holds all dependencies for the portal API
type Container struct {
	// Infrastructure
	Store  repository.Store
	Redis  *redis.Client
	Logger *logger.Logger

	// Collaborators
	Notifier service.Notifier
	Calendar service.CalendarSyncer
	Blobs    service.BlobStore

	// Services
	LeadService          service.LeadService
	EventService         service.EventService
	AddonService         service.AddonService
	ChangeRequestService service.ChangeRequestService
	TimelineService      service.TimelineService
	GalleryService       service.GalleryService

	// Handlers
	HealthHandler        *handler.HealthHandler
	LeadHandler          *handler.LeadHandler
	EventHandler         *handler.EventHandler
	AddonHandler         *handler.AddonHandler
	ChangeRequestHandler *handler.ChangeRequestHandler
	TimelineHandler      *handler.TimelineHandler
	GalleryHandler       *handler.GalleryHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Store    repository.Store
	Redis    *redis.Client
	Logger   *logger.Logger
	Notifier service.Notifier
	Calendar service.CalendarSyncer
	Blobs    service.BlobStore

	// HealthChecks are reported by /ready next to the store and redis
	HealthChecks map[string]handler.CheckFunc

	LeadConfig  *service.LeadServiceConfig
	EventConfig *service.EventServiceConfig
	AddonConfig *service.AddonServiceConfig
	BaseConfig  *service.BaseConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		Store:    cfg.Store,
		Redis:    cfg.Redis,
		Logger:   cfg.Logger,
		Notifier: cfg.Notifier,
		Calendar: cfg.Calendar,
		Blobs:    cfg.Blobs,
	}
	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
	if c.Notifier == nil {
		c.Notifier = service.NewNoOpNotifier()
	}
	if c.Calendar == nil {
		c.Calendar = service.NewLocalCalendarSyncer()
	}

	// Initialize services
	c.LeadService = service.NewLeadService(c.Store, c.Notifier, c.Logger, cfg.LeadConfig)
	c.EventService = service.NewEventService(c.Store, c.Notifier, c.Logger, cfg.EventConfig)
	c.AddonService = service.NewAddonService(c.Store, c.Notifier, c.Logger, cfg.AddonConfig)
	c.ChangeRequestService = service.NewChangeRequestService(c.Store, c.Notifier, c.Logger, cfg.BaseConfig)
	c.TimelineService = service.NewTimelineService(c.Store, c.Calendar, c.Logger, cfg.BaseConfig)
	c.GalleryService = service.NewGalleryService(c.Store, c.Blobs, c.Logger, cfg.BaseConfig)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.healthChecks(cfg.HealthChecks))
	c.LeadHandler = handler.NewLeadHandler(c.LeadService)
	c.EventHandler = handler.NewEventHandler(c.EventService)
	c.AddonHandler = handler.NewAddonHandler(c.AddonService)
	c.ChangeRequestHandler = handler.NewChangeRequestHandler(c.ChangeRequestService)
	c.TimelineHandler = handler.NewTimelineHandler(c.TimelineService)
	c.GalleryHandler = handler.NewGalleryHandler(c.GalleryService)

	return c
}

func (c *Container) healthChecks(extra map[string]handler.CheckFunc) map[string]handler.CheckFunc {
	checks := map[string]handler.CheckFunc{"store": nil, "redis": nil}
	if hc := storeHealth(c.Store); hc != nil {
		checks["store"] = hc.HealthCheck
	}
	if c.Redis != nil {
		checks["redis"] = c.Redis.HealthCheck
	}
	for name, fn := range extra {
		checks[name] = fn
	}
	return checks
}

// storeHealth finds a health checker on the store or the store it wraps
func storeHealth(s repository.Store) repository.HealthChecker {
	for s != nil {
		if hc, ok := s.(repository.HealthChecker); ok {
			return hc
		}
		g, ok := s.(*repository.GuardedStore)
		if !ok {
			return nil
		}
		s = g.Unwrap()
	}
	return nil
}
