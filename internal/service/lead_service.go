package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/metrics"
	"github.com/urevent360-byte/urevent360-plus/internal/repository"
	"github.com/urevent360-byte/urevent360-plus/pkg/logger"
	"github.com/urevent360-byte/urevent360-plus/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// eventNamespace derives event ids from lead ids, which makes conversion safe to retry
var eventNamespace = uuid.MustParse("6c1d3f0e-8a4b-4f5e-9d2c-71b0e4a5c3d8")

// EventIDForLead is the id an event converted from leadID gets
func EventIDForLead(leadID string) string {
	return uuid.NewSHA1(eventNamespace, []byte(leadID)).String()
}

// LeadService defines the interface for the lead lifecycle
type LeadService interface {
	// CreateLead validates and stores a new inquiry
	CreateLead(ctx context.Context, actor domain.Actor, sub *domain.LeadSubmission) (*domain.Lead, error)

	// GetLead retrieves a lead visible to the actor
	GetLead(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error)

	// ListLeads lists every lead for admins and the actor's own leads for hosts
	ListLeads(ctx context.Context, actor domain.Actor, status domain.LeadStatus) ([]*domain.Lead, error)

	MarkContacted(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error)
	SendQuote(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error)
	MarkAccepted(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error)
	RejectLead(ctx context.Context, actor domain.Actor, id, reason string) (*domain.Lead, error)

	// ConvertToEvent turns an accepted lead into an event. Converting an already
	// converted lead returns its existing event id.
	ConvertToEvent(ctx context.Context, actor domain.Actor, id string) (*ConversionResult, error)
}

// ConversionResult is the outcome of ConvertToEvent
type ConversionResult struct {
	EventID          string `json:"eventId"`
	ProjectNumber    string `json:"projectNumber,omitempty"`
	AlreadyConverted bool   `json:"alreadyConverted"`
}

// LeadServiceConfig contains configuration for the lead service
type LeadServiceConfig struct {
	BaseConfig
	GalleryReleaseDelayDays     int
	GalleryVisibilityWindowDays int
	GalleryAutoPurgeDays        int
	// UploadTokenTTL is counted from the event date; zero leaves the token open-ended
	UploadTokenTTL      time.Duration
	ProjectNumberPrefix string
}

// leadService implements LeadService
type leadService struct {
	core
	releaseDelayDays     int
	visibilityWindowDays int
	autoPurgeDays        int
	uploadTokenTTL       time.Duration
	projectPrefix        string
}

// NewLeadService creates a new lead service
func NewLeadService(store repository.Store, notifier Notifier, log *logger.Logger, cfg *LeadServiceConfig) LeadService {
	s := &leadService{
		releaseDelayDays:     2,
		visibilityWindowDays: 90,
		projectPrefix:        "UE",
	}
	var base BaseConfig
	if cfg != nil {
		base = cfg.BaseConfig
		if cfg.GalleryReleaseDelayDays > 0 {
			s.releaseDelayDays = cfg.GalleryReleaseDelayDays
		}
		if cfg.GalleryVisibilityWindowDays > 0 {
			s.visibilityWindowDays = cfg.GalleryVisibilityWindowDays
		}
		if cfg.GalleryAutoPurgeDays > 0 {
			s.autoPurgeDays = cfg.GalleryAutoPurgeDays
		}
		if cfg.UploadTokenTTL > 0 {
			s.uploadTokenTTL = cfg.UploadTokenTTL
		}
		if cfg.ProjectNumberPrefix != "" {
			s.projectPrefix = cfg.ProjectNumberPrefix
		}
	}
	s.core = newCore(store, notifier, log, base)
	return s
}

// CreateLead validates and stores a new inquiry
func (s *leadService) CreateLead(ctx context.Context, actor domain.Actor, sub *domain.LeadSubmission) (*domain.Lead, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.lead.create")
	defer span.End()

	if sub == nil {
		return nil, fail(span, &domain.ValidationError{Fields: []domain.FieldError{{Field: "body", Message: "is required"}}})
	}
	// a signed-in host always files the inquiry under their own identity
	if actor.IsHost() && actor.Email != "" {
		sub.HostEmail = actor.Email
	}
	sub.Normalize()
	if err := sub.Validate(); err != nil {
		return nil, fail(span, err)
	}

	now := s.clock()
	lead := &domain.Lead{
		ID:                uuid.New().String(),
		HostEmail:         sub.HostEmail,
		Status:            domain.LeadStatusNewRequest,
		EventDraft:        sub.EventDraft,
		RequestedServices: sub.RequestedServices,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if actor.IsHost() {
		lead.HostID = actor.UserID
	}
	span.SetAttributes(attribute.String("lead_id", lead.ID))

	err := s.exec.run(ctx, "lead.create", func(ctx context.Context) error {
		err := repository.Insert(ctx, s.store, domain.EntityLead, lead)
		if errors.Is(err, domain.ErrAlreadyExists) {
			// a retried create whose first attempt landed
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}

	s.log.InfoContext(ctx, "lead created", zap.String("lead_id", lead.ID), zap.String("event_type", lead.EventDraft.Type))
	s.notify.send(ctx, NotificationLeadReceived, lead.HostEmail, string(domain.EntityLead), lead.ID, map[string]interface{}{
		"eventName": lead.EventDraft.Name,
		"eventDate": lead.EventDraft.Date,
	})
	return lead, nil
}

// GetLead retrieves a lead visible to the actor
func (s *leadService) GetLead(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.lead.get")
	defer span.End()
	span.SetAttributes(attribute.String("lead_id", id))

	var lead *domain.Lead
	err := s.exec.run(ctx, "lead.get", func(ctx context.Context) error {
		var err error
		lead, err = loadLead(ctx, s.store, id)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	if !actor.CanManage(lead.HostID, lead.HostEmail) {
		return nil, fail(span, fmt.Errorf("read lead %s: %w", id, domain.ErrForbidden))
	}
	return lead, nil
}

// ListLeads lists every lead for admins and the actor's own leads for hosts
func (s *leadService) ListLeads(ctx context.Context, actor domain.Actor, status domain.LeadStatus) ([]*domain.Lead, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.lead.list")
	defer span.End()

	var filter repository.Filter
	switch {
	case actor.IsAdmin():
	case actor.IsHost():
		filter = ownerFilter(actor)
	default:
		return nil, fail(span, fmt.Errorf("list leads: %w", domain.ErrForbidden))
	}
	if status != "" {
		filter = filter.And("status", string(status))
	}

	var leads []*domain.Lead
	err := s.exec.run(ctx, "lead.list", func(ctx context.Context) error {
		var err error
		leads, err = repository.List[domain.Lead](ctx, s.store, domain.EntityLead, filter)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return leads, nil
}

// MarkContacted records that an admin reached out to the host
func (s *leadService) MarkContacted(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.lead.mark_contacted")
	defer span.End()

	if err := requireAdmin(actor, "mark lead contacted"); err != nil {
		return nil, fail(span, err)
	}
	lead, err := s.transition(ctx, id, domain.LeadStatusContacted, "mark contacted", nil)
	return lead, fail(span, err)
}

// SendQuote moves a lead to quote_sent and notifies the host
func (s *leadService) SendQuote(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.lead.send_quote")
	defer span.End()

	if err := requireAdmin(actor, "send quote"); err != nil {
		return nil, fail(span, err)
	}
	lead, err := s.transition(ctx, id, domain.LeadStatusQuoteSent, "send quote", nil)
	if err != nil {
		return nil, fail(span, err)
	}

	s.notify.send(ctx, NotificationQuoteSent, lead.HostEmail, string(domain.EntityLead), lead.ID, map[string]interface{}{
		"eventName": lead.EventDraft.Name,
	})
	return lead, nil
}

// MarkAccepted records the host's acceptance of the quote
func (s *leadService) MarkAccepted(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.lead.mark_accepted")
	defer span.End()

	lead, err := s.transition(ctx, id, domain.LeadStatusAccepted, "accept quote", func(l *domain.Lead) error {
		if !actor.CanManage(l.HostID, l.HostEmail) {
			return fmt.Errorf("accept quote on lead %s: %w", l.ID, domain.ErrForbidden)
		}
		return nil
	})
	return lead, fail(span, err)
}

// RejectLead closes a lead that will not become an event
func (s *leadService) RejectLead(ctx context.Context, actor domain.Actor, id, reason string) (*domain.Lead, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.lead.reject")
	defer span.End()

	if err := requireAdmin(actor, "reject lead"); err != nil {
		return nil, fail(span, err)
	}
	lead, err := s.transition(ctx, id, domain.LeadStatusRejected, "reject", func(l *domain.Lead) error {
		l.RejectionReason = strings.TrimSpace(reason)
		return nil
	})
	return lead, fail(span, err)
}

// transition runs read, verify and conditional write for a status change.
// prepare may reject the change or adjust the lead before it is saved.
func (s *leadService) transition(ctx context.Context, id string, to domain.LeadStatus, action string, prepare func(*domain.Lead) error) (*domain.Lead, error) {
	var lead *domain.Lead
	err := s.exec.run(ctx, "lead."+string(to), func(ctx context.Context) error {
		var err error
		lead, err = loadLead(ctx, s.store, id)
		if err != nil {
			return err
		}
		if prepare != nil {
			if err := prepare(lead); err != nil {
				return err
			}
		}
		if err := lead.CheckTransition(to, action); err != nil {
			return err
		}
		lead.Status = to
		lead.UpdatedAt = s.clock()
		return repository.Save(ctx, s.store, domain.EntityLead, lead)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordLeadTransition(ctx, string(to))
	s.log.InfoContext(ctx, "lead status changed", zap.String("lead_id", id), zap.String("status", string(to)))
	return lead, nil
}

// ConvertToEvent turns an accepted lead into an event
func (s *leadService) ConvertToEvent(ctx context.Context, actor domain.Actor, id string) (*ConversionResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.lead.convert_to_event")
	defer span.End()
	span.SetAttributes(attribute.String("lead_id", id))

	if err := requireAdmin(actor, "convert lead"); err != nil {
		return nil, fail(span, err)
	}

	var result *ConversionResult
	err := s.exec.run(ctx, "lead.convert", func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
			var err error
			result, err = s.convert(ctx, tx, id)
			return err
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.String("event_id", result.EventID), attribute.Bool("already_converted", result.AlreadyConverted))
	if !result.AlreadyConverted {
		metrics.RecordLeadTransition(ctx, string(domain.LeadStatusConverted))
		metrics.RecordLeadConverted(ctx)
		s.log.InfoContext(ctx, "lead converted to event",
			zap.String("lead_id", id),
			zap.String("event_id", result.EventID),
			zap.String("project_number", result.ProjectNumber),
		)
	}
	return result, nil
}

func (s *leadService) convert(ctx context.Context, tx repository.Store, id string) (*ConversionResult, error) {
	lead, err := loadLead(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if lead.Status == domain.LeadStatusConverted && lead.EventID != nil {
		event, err := loadEvent(ctx, tx, *lead.EventID)
		if err != nil {
			return nil, err
		}
		return &ConversionResult{EventID: event.ID, ProjectNumber: event.ProjectNumber, AlreadyConverted: true}, nil
	}
	if err := lead.CheckTransition(domain.LeadStatusConverted, "convert"); err != nil {
		return nil, err
	}

	// an earlier attempt may have created the event but not the lead update
	event, err := loadEvent(ctx, tx, EventIDForLead(lead.ID))
	switch {
	case err == nil:
	case domain.IsNotFoundError(err):
		if event, err = s.newEvent(lead); err != nil {
			return nil, err
		}
		err = repository.Insert(ctx, tx, domain.EntityEvent, event)
		if errors.Is(err, domain.ErrAlreadyExists) {
			// a concurrent conversion won; the retry sees the converted lead
			return nil, fmt.Errorf("event %s: %w", event.ID, domain.ErrVersionConflict)
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	for i, line := range lead.RequestedServices {
		rs := &domain.RequestedService{
			ID:          uuid.NewSHA1(eventNamespace, []byte(fmt.Sprintf("%s|selected|%d", event.ID, i))).String(),
			EventID:     event.ID,
			ServiceID:   line.ServiceID,
			ServiceName: serviceName(line),
			Title:       line.Title,
			Qty:         line.Qty,
			Notes:       line.Notes,
			Status:      domain.RequestedServiceSelected,
			RequestedBy: lead.HostEmail,
			RequestedAt: event.CreatedAt,
		}
		if err := repository.Insert(ctx, tx, domain.EntityRequestedService, rs); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
	}

	lead.Status = domain.LeadStatusConverted
	lead.EventID = &event.ID
	lead.UpdatedAt = s.clock()
	if err := repository.Save(ctx, tx, domain.EntityLead, lead); err != nil {
		return nil, err
	}
	return &ConversionResult{EventID: event.ID, ProjectNumber: event.ProjectNumber}, nil
}

// newEvent seeds an event from the lead's draft
func (s *leadService) newEvent(lead *domain.Lead) (*domain.Event, error) {
	token, err := newToken(16)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	id := EventIDForLead(lead.ID)
	event := &domain.Event{
		ID:            id,
		ProjectNumber: fmt.Sprintf("%s-%d-%s", s.projectPrefix, now.Year(), strings.ToUpper(strings.ReplaceAll(id, "-", "")[:6])),
		LeadID:        lead.ID,
		HostID:        lead.HostID,
		HostEmail:     lead.HostEmail,
		EventDetails:  lead.EventDraft,
		Status:        domain.EventStatusQuoteRequested,
		GalleryPolicy: &domain.GalleryPolicy{
			ReleaseDelayDays:     s.releaseDelayDays,
			VisibilityWindowDays: s.visibilityWindowDays,
		},
		QRUpload:  &domain.QRUpload{Token: token, Status: domain.QRUploadActive},
		Design:    domain.Design{Status: domain.DesignStatusPending},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.autoPurgeDays > 0 {
		days := s.autoPurgeDays
		event.GalleryPolicy.AutoPurgeDays = &days
	}
	if s.uploadTokenTTL > 0 {
		event.QRUpload.TTLSeconds = int64(s.uploadTokenTTL / time.Second)
		if date, err := event.EventDate(); err == nil {
			event.QRUpload.Reschedule(date)
		}
	}
	return event, nil
}

func serviceName(line domain.RequestedServiceLine) string {
	if line.Title != "" {
		return line.Title
	}
	return line.ServiceID
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
