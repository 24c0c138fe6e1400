package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/entitlement"
	"github.com/urevent360-byte/urevent360-plus/internal/metrics"
	"github.com/urevent360-byte/urevent360-plus/internal/repository"
	"github.com/urevent360-byte/urevent360-plus/pkg/logger"
	"github.com/urevent360-byte/urevent360-plus/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// EventService defines the interface for the event lifecycle and billing
type EventService interface {
	// GetEvent retrieves an event together with its current entitlements
	GetEvent(ctx context.Context, actor domain.Actor, id string) (*EventView, error)

	// ListEvents lists every event for admins and the actor's own events for hosts
	ListEvents(ctx context.Context, actor domain.Actor, status domain.EventStatus) ([]*EventView, error)

	SendContract(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error)

	// MarkContractSigned sets contractSigned. It is idempotent and never changes the status.
	MarkContractSigned(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error)

	// CreateInvoice opens a new active payment and moves the event to invoice_sent
	CreateInvoice(ctx context.Context, actor domain.Actor, id string, in *InvoiceInput) (*BillingResult, error)

	GetActivePayment(ctx context.Context, actor domain.Actor, id string) (*domain.Payment, error)

	// SimulateDepositPaid applies the deposit to the active payment and books the event
	SimulateDepositPaid(ctx context.Context, actor domain.Actor, id string) (*BillingResult, error)

	// RecordPayment applies a manual payment; the event is booked once the deposit is covered
	RecordPayment(ctx context.Context, actor domain.Actor, id string, in *PaymentInput) (*BillingResult, error)

	MarkDepositDue(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error)
	CompleteEvent(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error)
	CancelEvent(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error)

	PauseUploads(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error)
	ResumeUploads(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error)
	ExpireUploads(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error)
}

// EventView is an event with the flags derived from it at read time
type EventView struct {
	Event        *domain.Event
	Entitlements entitlement.Entitlements
}

// InvoiceInput describes a new invoice. A nil DepositRequired uses the default deposit percentage.
type InvoiceInput struct {
	InvoiceID       string
	Total           float64
	DepositRequired *float64
}

// PaymentInput is a payment recorded by an admin
type PaymentInput struct {
	Amount float64
	Method string
	Note   string
}

// BillingResult is the event and active payment after a billing operation
type BillingResult struct {
	Event   *domain.Event
	Payment *domain.Payment
}

// EventServiceConfig contains configuration for the event service
type EventServiceConfig struct {
	BaseConfig
	DefaultDepositPercent int
}

// eventService implements EventService
type eventService struct {
	core
	depositPercent int
}

// NewEventService creates a new event service
func NewEventService(store repository.Store, notifier Notifier, log *logger.Logger, cfg *EventServiceConfig) EventService {
	s := &eventService{depositPercent: 30}
	var base BaseConfig
	if cfg != nil {
		base = cfg.BaseConfig
		if cfg.DefaultDepositPercent > 0 && cfg.DefaultDepositPercent <= 100 {
			s.depositPercent = cfg.DefaultDepositPercent
		}
	}
	s.core = newCore(store, notifier, log, base)
	return s
}

// GetEvent retrieves an event together with its current entitlements
func (s *eventService) GetEvent(ctx context.Context, actor domain.Actor, id string) (*EventView, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.get")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	var event *domain.Event
	err := s.exec.run(ctx, "event.get", func(ctx context.Context) error {
		var err error
		event, err = loadEvent(ctx, s.store, id)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	if err := requireManager(actor, event, "read"); err != nil {
		return nil, fail(span, err)
	}
	return &EventView{Event: event, Entitlements: entitlement.Project(event, s.clock())}, nil
}

// ListEvents lists every event for admins and the actor's own events for hosts
func (s *eventService) ListEvents(ctx context.Context, actor domain.Actor, status domain.EventStatus) ([]*EventView, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.list")
	defer span.End()

	var filter repository.Filter
	switch {
	case actor.IsAdmin():
	case actor.IsHost():
		filter = ownerFilter(actor)
	default:
		return nil, fail(span, fmt.Errorf("list events: %w", domain.ErrForbidden))
	}
	if status != "" {
		filter = filter.And("status", string(status))
	}

	var events []*domain.Event
	err := s.exec.run(ctx, "event.list", func(ctx context.Context) error {
		var err error
		events, err = repository.List[domain.Event](ctx, s.store, domain.EntityEvent, filter)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}

	now := s.clock()
	views := make([]*EventView, 0, len(events))
	for _, e := range events {
		views = append(views, &EventView{Event: e, Entitlements: entitlement.Project(e, now)})
	}
	return views, nil
}

// SendContract moves the event to contract_sent
func (s *eventService) SendContract(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.send_contract")
	defer span.End()

	if err := requireAdmin(actor, "send contract"); err != nil {
		return nil, fail(span, err)
	}
	event, err := s.transition(ctx, id, domain.EventStatusContractSent, "send contract")
	if err != nil {
		return nil, fail(span, err)
	}
	s.notify.send(ctx, NotificationContractSent, event.HostEmail, string(domain.EntityEvent), event.ID, map[string]interface{}{
		"projectNumber": event.ProjectNumber,
	})
	return event, nil
}

// MarkDepositDue moves an invoiced event to deposit_due
func (s *eventService) MarkDepositDue(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.mark_deposit_due")
	defer span.End()

	if err := requireAdmin(actor, "mark deposit due"); err != nil {
		return nil, fail(span, err)
	}
	event, err := s.transition(ctx, id, domain.EventStatusDepositDue, "mark deposit due")
	return event, fail(span, err)
}

// CompleteEvent closes a booked event after it took place
func (s *eventService) CompleteEvent(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.complete")
	defer span.End()

	if err := requireAdmin(actor, "complete event"); err != nil {
		return nil, fail(span, err)
	}
	event, err := s.transition(ctx, id, domain.EventStatusCompleted, "complete")
	return event, fail(span, err)
}

// CancelEvent cancels any event that is not yet terminal
func (s *eventService) CancelEvent(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.cancel")
	defer span.End()

	if err := requireAdmin(actor, "cancel event"); err != nil {
		return nil, fail(span, err)
	}
	event, err := s.transition(ctx, id, domain.EventStatusCanceled, "cancel")
	return event, fail(span, err)
}

// transition runs read, verify and conditional write for a status change
func (s *eventService) transition(ctx context.Context, id string, to domain.EventStatus, action string) (*domain.Event, error) {
	var (
		event *domain.Event
		from  domain.EventStatus
	)
	err := s.exec.run(ctx, "event."+string(to), func(ctx context.Context) error {
		var err error
		event, err = loadEvent(ctx, s.store, id)
		if err != nil {
			return err
		}
		if err := event.CheckTransition(to, action); err != nil {
			return err
		}
		from = event.Status
		event.Status = to
		event.UpdatedAt = s.clock()
		return repository.Save(ctx, s.store, domain.EntityEvent, event)
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(ctx, event, from)
	return event, nil
}

func (s *eventService) recordTransition(ctx context.Context, event *domain.Event, from domain.EventStatus) {
	metrics.RecordEventTransition(ctx, string(from), string(event.Status))
	s.log.InfoContext(ctx, "event status changed",
		zap.String("event_id", event.ID),
		zap.String("from", string(from)),
		zap.String("to", string(event.Status)),
	)
}

// MarkContractSigned sets contractSigned without touching the status
func (s *eventService) MarkContractSigned(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.mark_contract_signed")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	var event *domain.Event
	err := s.exec.run(ctx, "event.contract_signed", func(ctx context.Context) error {
		var err error
		event, err = loadEvent(ctx, s.store, id)
		if err != nil {
			return err
		}
		if err := requireManager(actor, event, "sign contract"); err != nil {
			return err
		}
		if err := event.CheckMutable("sign contract"); err != nil {
			return err
		}
		if event.ContractSigned {
			return nil
		}
		now := s.clock()
		event.ContractSigned = true
		event.ContractSignedAt = &now
		event.UpdatedAt = now
		return repository.Save(ctx, s.store, domain.EntityEvent, event)
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return event, nil
}

// CreateInvoice opens a new active payment and moves the event to invoice_sent
func (s *eventService) CreateInvoice(ctx context.Context, actor domain.Actor, id string, in *InvoiceInput) (*BillingResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.create_invoice")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	if err := requireAdmin(actor, "create invoice"); err != nil {
		return nil, fail(span, err)
	}
	if in == nil {
		in = &InvoiceInput{}
	}
	deposit := s.defaultDeposit(in.Total)
	if in.DepositRequired != nil {
		deposit = *in.DepositRequired
	}

	var (
		result *BillingResult
		from   domain.EventStatus
	)
	err := s.exec.run(ctx, "event.create_invoice", func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
			event, err := loadEvent(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := event.CheckTransition(domain.EventStatusInvoiceSent, "create invoice"); err != nil {
				return err
			}

			now := s.clock()
			previous, err := repository.List[domain.Payment](ctx, tx, domain.EntityPayment, repository.Where("eventId", id))
			if err != nil {
				return err
			}
			for _, p := range previous {
				if !p.IsActive {
					continue
				}
				p.Void(now)
				if err := repository.Save(ctx, tx, domain.EntityPayment, p); err != nil {
					return err
				}
			}

			invoiceID := strings.TrimSpace(in.InvoiceID)
			if invoiceID == "" {
				invoiceID = fmt.Sprintf("INV-%s-%d", event.ProjectNumber, len(previous)+1)
			}
			payment, err := domain.NewPayment(uuid.New().String(), id, invoiceID, in.Total, deposit, now)
			if err != nil {
				return err
			}
			if err := repository.Insert(ctx, tx, domain.EntityPayment, payment); err != nil {
				return err
			}

			from = event.Status
			event.Status = domain.EventStatusInvoiceSent
			event.UpdatedAt = now
			if err := repository.Save(ctx, tx, domain.EntityEvent, event); err != nil {
				return err
			}
			result = &BillingResult{Event: event, Payment: payment}
			return nil
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}

	s.recordTransition(ctx, result.Event, from)
	s.notify.send(ctx, NotificationInvoiceCreated, result.Event.HostEmail, string(domain.EntityPayment), result.Payment.ID, map[string]interface{}{
		"eventId":         result.Event.ID,
		"invoiceId":       result.Payment.InvoiceID,
		"total":           result.Payment.Total,
		"depositRequired": result.Payment.DepositRequired,
	})
	return result, nil
}

// defaultDeposit is the configured share of total, rounded to cents
func (s *eventService) defaultDeposit(total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(total*float64(s.depositPercent)) / 100
}

// GetActivePayment returns the event's active payment
func (s *eventService) GetActivePayment(ctx context.Context, actor domain.Actor, id string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.get_active_payment")
	defer span.End()

	var payment *domain.Payment
	err := s.exec.run(ctx, "event.get_active_payment", func(ctx context.Context) error {
		event, err := loadEvent(ctx, s.store, id)
		if err != nil {
			return err
		}
		if err := requireManager(actor, event, "read payment"); err != nil {
			return err
		}
		payment, err = activePayment(ctx, s.store, id)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return payment, nil
}

// SimulateDepositPaid applies the deposit to the active payment and books the event
func (s *eventService) SimulateDepositPaid(ctx context.Context, actor domain.Actor, id string) (*BillingResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.simulate_deposit_paid")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	if err := requireAdmin(actor, "simulate deposit"); err != nil {
		return nil, fail(span, err)
	}

	var (
		result *BillingResult
		from   domain.EventStatus
	)
	err := s.exec.run(ctx, "event.simulate_deposit", func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
			event, err := loadEvent(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := event.CheckTransition(domain.EventStatusBooked, "record deposit"); err != nil {
				return err
			}
			payment, err := activePayment(ctx, tx, id)
			if err != nil {
				return err
			}

			now := s.clock()
			entry := domain.PaymentEntry{
				ID:        uuid.New().String(),
				Amount:    payment.DepositAmount(),
				Method:    domain.PaymentMethodSimulated,
				Note:      "simulated deposit",
				AppliedAt: now,
				AppliedBy: actor.Label(),
			}
			if err := payment.Apply(entry); err != nil {
				return err
			}
			if err := repository.Save(ctx, tx, domain.EntityPayment, payment); err != nil {
				return err
			}

			from = event.Status
			event.Status = domain.EventStatusBooked
			event.UpdatedAt = now
			if err := repository.Save(ctx, tx, domain.EntityEvent, event); err != nil {
				return err
			}
			result = &BillingResult{Event: event, Payment: payment}
			return nil
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}

	metrics.RecordPaymentApplied(ctx, domain.PaymentMethodSimulated)
	s.recordTransition(ctx, result.Event, from)
	s.notify.send(ctx, NotificationEventBooked, result.Event.HostEmail, string(domain.EntityEvent), result.Event.ID, map[string]interface{}{
		"projectNumber": result.Event.ProjectNumber,
		"depositPaid":   result.Payment.DepositPaid,
	})
	return result, nil
}

// RecordPayment applies a manual payment to the active invoice
func (s *eventService) RecordPayment(ctx context.Context, actor domain.Actor, id string, in *PaymentInput) (*BillingResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.record_payment")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	if err := requireAdmin(actor, "record payment"); err != nil {
		return nil, fail(span, err)
	}
	if in == nil {
		in = &PaymentInput{}
	}
	method := strings.TrimSpace(in.Method)
	if method == "" {
		method = domain.PaymentMethodManual
	}

	var (
		result *BillingResult
		from   domain.EventStatus
		booked bool
	)
	err := s.exec.run(ctx, "event.record_payment", func(ctx context.Context) error {
		booked = false
		return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
			event, err := loadEvent(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := event.CheckMutable("record payment"); err != nil {
				return err
			}
			payment, err := activePayment(ctx, tx, id)
			if err != nil {
				return err
			}

			now := s.clock()
			err = payment.Apply(domain.PaymentEntry{
				ID:        uuid.New().String(),
				Amount:    in.Amount,
				Method:    method,
				Note:      strings.TrimSpace(in.Note),
				AppliedAt: now,
				AppliedBy: actor.Label(),
			})
			if err != nil {
				return err
			}
			if err := repository.Save(ctx, tx, domain.EntityPayment, payment); err != nil {
				return err
			}

			covered := payment.Status == domain.PaymentStatusDepositPaid || payment.Status == domain.PaymentStatusPaidInFull
			if covered && event.CheckTransition(domain.EventStatusBooked, "book") == nil {
				from = event.Status
				event.Status = domain.EventStatusBooked
				event.UpdatedAt = now
				if err := repository.Save(ctx, tx, domain.EntityEvent, event); err != nil {
					return err
				}
				booked = true
			}
			result = &BillingResult{Event: event, Payment: payment}
			return nil
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}

	metrics.RecordPaymentApplied(ctx, method)
	if booked {
		s.recordTransition(ctx, result.Event, from)
		s.notify.send(ctx, NotificationEventBooked, result.Event.HostEmail, string(domain.EntityEvent), result.Event.ID, map[string]interface{}{
			"projectNumber": result.Event.ProjectNumber,
			"depositPaid":   result.Payment.DepositPaid,
		})
	}
	return result, nil
}

// PauseUploads stops guest uploads until they are resumed
func (s *eventService) PauseUploads(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.pause_uploads")
	defer span.End()
	event, err := s.moveUploads(ctx, actor, id, domain.QRUploadPaused, "pause uploads")
	return event, fail(span, err)
}

// ResumeUploads reactivates a paused upload token
func (s *eventService) ResumeUploads(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.resume_uploads")
	defer span.End()
	event, err := s.moveUploads(ctx, actor, id, domain.QRUploadActive, "resume uploads")
	return event, fail(span, err)
}

// ExpireUploads permanently closes the upload token, also on completed and canceled events
func (s *eventService) ExpireUploads(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.expire_uploads")
	defer span.End()
	event, err := s.moveUploads(ctx, actor, id, domain.QRUploadExpired, "expire uploads")
	return event, fail(span, err)
}

func (s *eventService) moveUploads(ctx context.Context, actor domain.Actor, id string, to domain.QRUploadStatus, action string) (*domain.Event, error) {
	if err := requireAdmin(actor, action); err != nil {
		return nil, err
	}

	var event *domain.Event
	err := s.exec.run(ctx, "event.uploads_"+string(to), func(ctx context.Context) error {
		var err error
		event, err = loadEvent(ctx, s.store, id)
		if err != nil {
			return err
		}
		if to != domain.QRUploadExpired {
			if err := event.CheckMutable(action); err != nil {
				return err
			}
		}
		if event.QRUpload == nil {
			return fmt.Errorf("event %s has no upload token: %w", id, domain.ErrInvalidTransition)
		}
		if !event.QRUpload.CanMoveTo(to) {
			return &domain.TransitionError{
				Entity:   domain.EntityEvent,
				ID:       id,
				From:     "upload token " + string(event.QRUpload.Status),
				Action:   action,
				Terminal: event.QRUpload.Status == domain.QRUploadExpired,
			}
		}
		event.QRUpload.Status = to
		event.UpdatedAt = s.clock()
		return repository.Save(ctx, s.store, domain.EntityEvent, event)
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "upload token changed", zap.String("event_id", id), zap.String("status", string(to)))
	return event, nil
}
