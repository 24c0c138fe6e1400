package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
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

// ChangeRequestService defines the interface for the change request workflow
type ChangeRequestService interface {
	// CreateChangeRequest stores a pending patch proposal for the event
	CreateChangeRequest(ctx context.Context, actor domain.Actor, eventID string, patch map[string]interface{}) (*domain.ChangeRequest, error)

	// ApproveChangeRequest merges the patch into the event and marks the request
	// approved. Both writes commit together or not at all.
	ApproveChangeRequest(ctx context.Context, actor domain.Actor, eventID, requestID string) (*domain.Event, error)

	RejectChangeRequest(ctx context.Context, actor domain.Actor, eventID, requestID, reason string) (*domain.ChangeRequest, error)
	ListChangeRequests(ctx context.Context, actor domain.Actor, eventID string, status domain.ChangeRequestStatus) ([]*domain.ChangeRequest, error)
}

// changeRequestService implements ChangeRequestService
type changeRequestService struct {
	core
}

// NewChangeRequestService creates a new change request service
func NewChangeRequestService(store repository.Store, notifier Notifier, log *logger.Logger, cfg *BaseConfig) ChangeRequestService {
	var base BaseConfig
	if cfg != nil {
		base = *cfg
	}
	return &changeRequestService{core: newCore(store, notifier, log, base)}
}

// CreateChangeRequest stores a pending patch proposal for the event
func (s *changeRequestService) CreateChangeRequest(ctx context.Context, actor domain.Actor, eventID string, patch map[string]interface{}) (*domain.ChangeRequest, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.change_request.create")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	if err := domain.ValidatePatchKeys(patch); err != nil {
		return nil, fail(span, err)
	}

	var cr *domain.ChangeRequest
	err := s.exec.run(ctx, "change_request.create", func(ctx context.Context) error {
		event, err := loadEvent(ctx, s.store, eventID)
		if err != nil {
			return err
		}
		if err := requireManager(actor, event, "request changes"); err != nil {
			return err
		}
		if err := event.CheckMutable("request changes"); err != nil {
			return err
		}
		if _, err := mergeDetails(event, patch); err != nil {
			return err
		}

		cr = &domain.ChangeRequest{
			ID:            uuid.New().String(),
			EventID:       eventID,
			ProposedPatch: patch,
			Status:        domain.ChangeRequestPending,
			SubmittedBy:   actor.Label(),
			SubmittedAt:   s.clock(),
		}
		return repository.Insert(ctx, s.store, domain.EntityChangeRequest, cr)
	})
	if err != nil {
		return nil, fail(span, err)
	}

	s.log.InfoContext(ctx, "change request submitted", zap.String("event_id", eventID), zap.String("request_id", cr.ID))
	s.notify.send(ctx, NotificationChangeRequested, "", string(domain.EntityChangeRequest), cr.ID, map[string]interface{}{
		"eventId": eventID,
		"fields":  patchKeys(patch),
	})
	return cr, nil
}

// ApproveChangeRequest merges the patch into the event and marks the request approved
func (s *changeRequestService) ApproveChangeRequest(ctx context.Context, actor domain.Actor, eventID, requestID string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.change_request.approve")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID), attribute.String("request_id", requestID))

	if err := requireAdmin(actor, "approve change request"); err != nil {
		return nil, fail(span, err)
	}

	var (
		event *domain.Event
		cr    *domain.ChangeRequest
	)
	err := s.exec.run(ctx, "change_request.approve", func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
			var err error
			cr, err = s.loadRequest(ctx, tx, eventID, requestID)
			if err != nil {
				return err
			}
			if err := cr.CheckDecision("approve"); err != nil {
				return err
			}
			current, err := loadEvent(ctx, tx, eventID)
			if err != nil {
				return err
			}
			if err := current.CheckMutable("apply change request"); err != nil {
				return err
			}
			merged, err := mergeDetails(current, cr.ProposedPatch)
			if err != nil {
				return err
			}

			now := s.clock()
			partial := make(map[string]interface{}, len(cr.ProposedPatch)+2)
			for k, v := range cr.ProposedPatch {
				partial[k] = v
			}
			partial["updatedAt"] = now.Format(time.RFC3339Nano)
			qr, err := rescheduleUploads(current, merged, cr.ProposedPatch)
			if err != nil {
				return err
			}
			if qr != nil {
				partial["qrUpload"] = qr
			}
			rec, err := tx.Patch(ctx, domain.EntityEvent, eventID, partial, current.Version)
			if err != nil {
				return err
			}
			event = &domain.Event{}
			if err := repository.Decode(rec, event); err != nil {
				return err
			}

			cr.Status = domain.ChangeRequestApproved
			cr.DecidedBy = actor.Label()
			cr.DecidedAt = &now
			return repository.Save(ctx, tx, domain.EntityChangeRequest, cr)
		})
	})
	if err != nil {
		return nil, fail(span, err)
	}

	metrics.RecordChangeRequestDecision(ctx, string(domain.ChangeRequestApproved))
	s.log.InfoContext(ctx, "change request applied",
		zap.String("event_id", eventID),
		zap.String("request_id", requestID),
		zap.Strings("fields", patchKeys(cr.ProposedPatch)),
	)
	s.notify.send(ctx, NotificationChangeRequestDecision, event.HostEmail, string(domain.EntityChangeRequest), requestID, map[string]interface{}{
		"eventId": eventID,
		"status":  string(domain.ChangeRequestApproved),
	})
	return event, nil
}

// RejectChangeRequest closes a pending request without touching the event
func (s *changeRequestService) RejectChangeRequest(ctx context.Context, actor domain.Actor, eventID, requestID, reason string) (*domain.ChangeRequest, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.change_request.reject")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID), attribute.String("request_id", requestID))

	if err := requireAdmin(actor, "reject change request"); err != nil {
		return nil, fail(span, err)
	}

	var (
		cr        *domain.ChangeRequest
		hostEmail string
	)
	err := s.exec.run(ctx, "change_request.reject", func(ctx context.Context) error {
		var err error
		cr, err = s.loadRequest(ctx, s.store, eventID, requestID)
		if err != nil {
			return err
		}
		if err := cr.CheckDecision("reject"); err != nil {
			return err
		}
		event, err := loadEvent(ctx, s.store, eventID)
		if err != nil {
			return err
		}
		hostEmail = event.HostEmail

		now := s.clock()
		cr.Status = domain.ChangeRequestRejected
		cr.DecidedBy = actor.Label()
		cr.DecidedAt = &now
		cr.Reason = strings.TrimSpace(reason)
		return repository.Save(ctx, s.store, domain.EntityChangeRequest, cr)
	})
	if err != nil {
		return nil, fail(span, err)
	}

	metrics.RecordChangeRequestDecision(ctx, string(domain.ChangeRequestRejected))
	s.notify.send(ctx, NotificationChangeRequestDecision, hostEmail, string(domain.EntityChangeRequest), requestID, map[string]interface{}{
		"eventId": eventID,
		"status":  string(domain.ChangeRequestRejected),
		"reason":  cr.Reason,
	})
	return cr, nil
}

// ListChangeRequests lists the event's change requests, optionally by status
func (s *changeRequestService) ListChangeRequests(ctx context.Context, actor domain.Actor, eventID string, status domain.ChangeRequestStatus) ([]*domain.ChangeRequest, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.change_request.list")
	defer span.End()

	filter := repository.Where("eventId", eventID)
	if status != "" {
		filter = filter.And("status", string(status))
	}

	var items []*domain.ChangeRequest
	err := s.exec.run(ctx, "change_request.list", func(ctx context.Context) error {
		event, err := loadEvent(ctx, s.store, eventID)
		if err != nil {
			return err
		}
		if err := requireManager(actor, event, "list change requests"); err != nil {
			return err
		}
		items, err = repository.List[domain.ChangeRequest](ctx, s.store, domain.EntityChangeRequest, filter)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return items, nil
}

func (s *changeRequestService) loadRequest(ctx context.Context, st repository.Store, eventID, requestID string) (*domain.ChangeRequest, error) {
	cr, err := repository.Get[domain.ChangeRequest](ctx, st, domain.EntityChangeRequest, requestID)
	if err != nil {
		return nil, err
	}
	if cr.EventID != eventID {
		return nil, fmt.Errorf("change request %s on event %s: %w", requestID, eventID, domain.ErrChangeRequestNotFound)
	}
	return cr, nil
}

// mergeDetails applies patch to a copy of the event's descriptive fields and
// validates the result. Offending fields are reported under proposedPatch.
func mergeDetails(event *domain.Event, patch map[string]interface{}) (domain.EventDetails, error) {
	base, err := repository.ToMap(event.EventDetails)
	if err != nil {
		return domain.EventDetails{}, err
	}
	for k, v := range patch {
		base[k] = v
	}

	var merged domain.EventDetails
	raw, err := json.Marshal(base)
	if err != nil {
		return merged, fieldError("proposedPatch", "is not valid JSON")
	}
	if err := json.Unmarshal(raw, &merged); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return merged, fieldError("proposedPatch."+typeErr.Field, "has the wrong type")
		}
		return merged, fieldError("proposedPatch", "has values of the wrong type")
	}

	if err := merged.Validate(); err != nil {
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			return merged, err
		}
		out := &domain.ValidationError{}
		for _, f := range verr.Fields {
			out.Add("proposedPatch."+f.Field, f.Message)
		}
		return merged, out
	}
	return merged, nil
}

// rescheduleUploads recomputes the upload token expiry when patch moves the
// event day. It returns the token to write, or nil when nothing changes.
func rescheduleUploads(event *domain.Event, merged domain.EventDetails, patch map[string]interface{}) (map[string]interface{}, error) {
	_, moved := patch["date"]
	if _, ok := patch["timeZone"]; ok {
		moved = true
	}
	if !moved || event.QRUpload == nil {
		return nil, nil
	}
	date, err := merged.EventDate()
	if err != nil {
		return nil, err
	}
	qr := *event.QRUpload
	if !qr.Reschedule(date) {
		return nil, nil
	}
	return repository.ToMap(&qr)
}

func patchKeys(patch map[string]interface{}) []string {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
