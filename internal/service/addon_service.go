package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/metrics"
	"github.com/urevent360-byte/urevent360-plus/internal/repository"
	"github.com/urevent360-byte/urevent360-plus/pkg/logger"
	"github.com/urevent360-byte/urevent360-plus/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// addonNamespace derives add-on request ids from (event, service, generation)
var addonNamespace = uuid.MustParse("b5e2a7c4-1f3d-4c8a-a6e9-2d7f0c9b4e13")

// AddonService defines the interface for the add-on request workflow
type AddonService interface {
	// RequestAddons creates one requested add-on per name. It fails with
	// domain.ErrDuplicateRequest when any name is already pending or granted.
	RequestAddons(ctx context.Context, actor domain.Actor, eventID string, serviceNames []string) ([]*domain.RequestedService, error)

	ApproveServiceRequest(ctx context.Context, actor domain.Actor, eventID, requestID string) (*domain.RequestedService, error)
	RejectServiceRequest(ctx context.Context, actor domain.Actor, eventID, requestID, reason string) (*domain.RequestedService, error)

	// ListServiceRequests lists the event's services, optionally by status
	ListServiceRequests(ctx context.Context, actor domain.Actor, eventID string, status domain.RequestedServiceStatus) ([]*domain.RequestedService, error)
}

// AddonServiceConfig contains configuration for the add-on service
type AddonServiceConfig struct {
	BaseConfig
	MaxPerRequest int
}

// addonService implements AddonService
type addonService struct {
	core
	maxPerRequest int
}

// NewAddonService creates a new add-on service
func NewAddonService(store repository.Store, notifier Notifier, log *logger.Logger, cfg *AddonServiceConfig) AddonService {
	s := &addonService{maxPerRequest: 20}
	var base BaseConfig
	if cfg != nil {
		base = cfg.BaseConfig
		if cfg.MaxPerRequest > 0 {
			s.maxPerRequest = cfg.MaxPerRequest
		}
	}
	s.core = newCore(store, notifier, log, base)
	return s
}

// serviceKey folds a name into the identifier used for duplicate detection
func serviceKey(name string) string {
	return strings.ReplaceAll(domain.NormalizeServiceName(strings.NewReplacer("_", " ", "-", " ").Replace(name)), " ", "_")
}

// RequestAddons creates one requested add-on per name
func (s *addonService) RequestAddons(ctx context.Context, actor domain.Actor, eventID string, serviceNames []string) ([]*domain.RequestedService, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.addon.request")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID), attribute.Int("count", len(serviceNames)))

	names, keys, err := s.parseNames(serviceNames)
	if err != nil {
		return nil, fail(span, err)
	}

	var created []*domain.RequestedService
	err = s.exec.run(ctx, "addon.request", func(ctx context.Context) error {
		created = nil
		return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
			event, err := loadEvent(ctx, tx, eventID)
			if err != nil {
				return err
			}
			if err := requireManager(actor, event, "request add-ons"); err != nil {
				return err
			}
			if err := event.CheckMutable("request add-ons"); err != nil {
				return err
			}

			existing, err := repository.List[domain.RequestedService](ctx, tx, domain.EntityRequestedService, repository.Where("eventId", eventID))
			if err != nil {
				return err
			}
			rejected := map[string]int{}
			for _, rs := range existing {
				key := serviceKey(rs.ServiceName)
				idKey := serviceKey(rs.ServiceID)
				if rs.Status == domain.RequestedServiceRejected {
					rejected[key]++
					continue
				}
				for i, k := range keys {
					if k == key || k == idKey {
						return fmt.Errorf("add-on %q on event %s is %s: %w", names[i], eventID, rs.Status, domain.ErrDuplicateRequest)
					}
				}
			}

			now := s.clock()
			for i, name := range names {
				rs := &domain.RequestedService{
					// a concurrent duplicate derives the same id and collides on create
					ID:          uuid.NewSHA1(addonNamespace, []byte(eventID+"|"+keys[i]+"|"+strconv.Itoa(rejected[keys[i]]))).String(),
					EventID:     eventID,
					ServiceID:   keys[i],
					ServiceName: name,
					Title:       name,
					Qty:         1,
					Status:      domain.RequestedServiceRequested,
					RequestedBy: actor.Label(),
					RequestedAt: now,
				}
				err := repository.Insert(ctx, tx, domain.EntityRequestedService, rs)
				if errors.Is(err, domain.ErrAlreadyExists) {
					return fmt.Errorf("add-on %q on event %s: %w", name, eventID, domain.ErrDuplicateRequest)
				}
				if err != nil {
					return err
				}
				created = append(created, rs)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}

	s.log.InfoContext(ctx, "add-ons requested", zap.String("event_id", eventID), zap.Strings("services", names))
	s.notify.send(ctx, NotificationAddonRequested, "", string(domain.EntityEvent), eventID, map[string]interface{}{
		"services": names,
	})
	return created, nil
}

// parseNames trims the requested names and rejects empty or repeated ones
func (s *addonService) parseNames(serviceNames []string) ([]string, []string, error) {
	verr := &domain.ValidationError{}
	if len(serviceNames) == 0 {
		verr.Add("serviceNames", "must contain at least one service")
		return nil, nil, verr
	}
	if len(serviceNames) > s.maxPerRequest {
		verr.Add("serviceNames", fmt.Sprintf("must contain at most %d services", s.maxPerRequest))
		return nil, nil, verr
	}

	names := make([]string, 0, len(serviceNames))
	keys := make([]string, 0, len(serviceNames))
	seen := map[string]bool{}
	for i, raw := range serviceNames {
		name := strings.Join(strings.Fields(raw), " ")
		if name == "" {
			verr.Add(fmt.Sprintf("serviceNames[%d]", i), "is required")
			continue
		}
		key := serviceKey(name)
		if seen[key] {
			return nil, nil, fmt.Errorf("add-on %q listed twice: %w", name, domain.ErrDuplicateRequest)
		}
		seen[key] = true
		names = append(names, name)
		keys = append(keys, key)
	}
	if err := verr.OrNil(); err != nil {
		return nil, nil, err
	}
	return names, keys, nil
}

// ApproveServiceRequest grants a requested add-on
func (s *addonService) ApproveServiceRequest(ctx context.Context, actor domain.Actor, eventID, requestID string) (*domain.RequestedService, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.addon.approve")
	defer span.End()

	rs, err := s.decide(ctx, actor, eventID, requestID, domain.RequestedServiceApproved, "")
	return rs, fail(span, err)
}

// RejectServiceRequest declines a requested add-on
func (s *addonService) RejectServiceRequest(ctx context.Context, actor domain.Actor, eventID, requestID, reason string) (*domain.RequestedService, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.addon.reject")
	defer span.End()

	rs, err := s.decide(ctx, actor, eventID, requestID, domain.RequestedServiceRejected, reason)
	return rs, fail(span, err)
}

func (s *addonService) decide(ctx context.Context, actor domain.Actor, eventID, requestID string, to domain.RequestedServiceStatus, reason string) (*domain.RequestedService, error) {
	action := "approve"
	if to == domain.RequestedServiceRejected {
		action = "reject"
	}
	if err := requireAdmin(actor, action+" add-on"); err != nil {
		return nil, err
	}

	var rs *domain.RequestedService
	err := s.exec.run(ctx, "addon."+action, func(ctx context.Context) error {
		var err error
		rs, err = repository.Get[domain.RequestedService](ctx, s.store, domain.EntityRequestedService, requestID)
		if err != nil {
			return err
		}
		if rs.EventID != eventID {
			return fmt.Errorf("request %s on event %s: %w", requestID, eventID, domain.ErrRequestedServiceNotFound)
		}
		if err := rs.CheckDecision(action); err != nil {
			return err
		}
		event, err := loadEvent(ctx, s.store, eventID)
		if err != nil {
			return err
		}
		if err := event.CheckMutable(action + " add-on"); err != nil {
			return err
		}

		now := s.clock()
		rs.Status = to
		rs.DecidedBy = actor.Label()
		rs.DecidedAt = &now
		rs.Reason = strings.TrimSpace(reason)
		return repository.Save(ctx, s.store, domain.EntityRequestedService, rs)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordAddonDecision(ctx, string(to))
	s.log.InfoContext(ctx, "add-on decided",
		zap.String("event_id", eventID),
		zap.String("request_id", requestID),
		zap.String("status", string(to)),
	)
	return rs, nil
}

// ListServiceRequests lists the event's services, optionally by status
func (s *addonService) ListServiceRequests(ctx context.Context, actor domain.Actor, eventID string, status domain.RequestedServiceStatus) ([]*domain.RequestedService, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.addon.list")
	defer span.End()

	filter := repository.Where("eventId", eventID)
	if status != "" {
		filter = filter.And("status", string(status))
	}

	var items []*domain.RequestedService
	err := s.exec.run(ctx, "addon.list", func(ctx context.Context) error {
		event, err := loadEvent(ctx, s.store, eventID)
		if err != nil {
			return err
		}
		if err := requireManager(actor, event, "list add-ons"); err != nil {
			return err
		}
		items, err = repository.List[domain.RequestedService](ctx, s.store, domain.EntityRequestedService, filter)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return items, nil
}
