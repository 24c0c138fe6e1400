package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/repository"
	"github.com/urevent360-byte/urevent360-plus/pkg/logger"
	"github.com/urevent360-byte/urevent360-plus/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// BaseConfig is shared by every service config
type BaseConfig struct {
	Retry         *RetryConfig
	Now           func() time.Time // overrides the clock, mostly for tests
	NotifyTimeout time.Duration    // bounds each notification; defaults to 3s
}

// core holds the dependencies every portal service shares
type core struct {
	store  repository.Store
	exec   *executor
	notify *notifier
	log    *logger.Logger
	now    func() time.Time
}

func newCore(store repository.Store, n Notifier, log *logger.Logger, base BaseConfig) core {
	if log == nil {
		log = logger.NewNop()
	}
	now := base.Now
	if now == nil {
		now = time.Now
	}
	return core{
		store:  store,
		exec:   newExecutor(base.Retry, log),
		notify: newNotifier(n, log, now, base.NotifyTimeout),
		log:    log,
		now:    now,
	}
}

func (c *core) clock() time.Time {
	return c.now().UTC()
}

// fail records err on span unless it is an expected lookup miss
func fail(span trace.Span, err error) error {
	if err != nil && !domain.IsNotFoundError(err) {
		telemetry.RecordError(span, err)
	}
	return err
}

// fieldError is a validation error on a single field
func fieldError(field, message string) error {
	verr := &domain.ValidationError{}
	verr.Add(field, message)
	return verr
}

func requireAdmin(actor domain.Actor, action string) error {
	if actor.IsAdmin() {
		return nil
	}
	return fmt.Errorf("%s requires an admin: %w", action, domain.ErrForbidden)
}

func requireManager(actor domain.Actor, event *domain.Event, action string) error {
	if event.OwnedBy(actor) {
		return nil
	}
	return fmt.Errorf("%s on event %s: %w", action, event.ID, domain.ErrForbidden)
}

func loadEvent(ctx context.Context, st repository.Store, id string) (*domain.Event, error) {
	return repository.Get[domain.Event](ctx, st, domain.EntityEvent, id)
}

func loadLead(ctx context.Context, st repository.Store, id string) (*domain.Lead, error) {
	return repository.Get[domain.Lead](ctx, st, domain.EntityLead, id)
}

// activePayment returns the event's active payment
func activePayment(ctx context.Context, st repository.Store, eventID string) (*domain.Payment, error) {
	payments, err := repository.List[domain.Payment](ctx, st, domain.EntityPayment,
		repository.Where("eventId", eventID).And("isActive", true))
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, fmt.Errorf("no active payment for event %s: %w", eventID, domain.ErrPaymentNotFound)
	}
	return payments[len(payments)-1], nil
}

// newToken returns a random hex token of n bytes
func newToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ownerFilter selects the records of the hosting actor
func ownerFilter(actor domain.Actor) repository.Filter {
	if actor.Email != "" {
		return repository.Where("hostEmail", normalizeEmail(actor.Email))
	}
	return repository.Where("hostId", actor.UserID)
}
