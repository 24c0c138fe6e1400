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

// ErrCalendarSync is returned when the calendar collaborator rejected one or more items
var ErrCalendarSync = errors.New("calendar sync failed")

// TimelineService defines the interface for event timelines
type TimelineService interface {
	AddTimelineItem(ctx context.Context, actor domain.Actor, eventID string, in *TimelineItemInput) (*domain.TimelineItem, error)
	ListTimeline(ctx context.Context, actor domain.Actor, eventID string) ([]*domain.TimelineItem, error)

	// ToggleSyncToGoogle syncs one item, or every item when itemID is domain.SyncAll.
	// Items that are already synced are left alone.
	ToggleSyncToGoogle(ctx context.Context, actor domain.Actor, eventID, itemID string) ([]*domain.TimelineItem, error)
}

// TimelineItemInput describes a new timeline item
type TimelineItemInput struct {
	Title    string
	StartsAt time.Time
	EndsAt   *time.Time
	Notes    string
}

// timelineService implements TimelineService
type timelineService struct {
	core
	syncer CalendarSyncer
}

// NewTimelineService creates a new timeline service
func NewTimelineService(store repository.Store, syncer CalendarSyncer, log *logger.Logger, cfg *BaseConfig) TimelineService {
	var base BaseConfig
	if cfg != nil {
		base = *cfg
	}
	if syncer == nil {
		syncer = NewLocalCalendarSyncer()
	}
	return &timelineService{core: newCore(store, nil, log, base), syncer: syncer}
}

// AddTimelineItem schedules a new activity on the event
func (s *timelineService) AddTimelineItem(ctx context.Context, actor domain.Actor, eventID string, in *TimelineItemInput) (*domain.TimelineItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.timeline.add")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	if in == nil {
		in = &TimelineItemInput{}
	}
	item := &domain.TimelineItem{
		ID:       uuid.New().String(),
		EventID:  eventID,
		Title:    strings.TrimSpace(in.Title),
		StartsAt: in.StartsAt.UTC(),
		Notes:    strings.TrimSpace(in.Notes),
	}
	if in.EndsAt != nil {
		ends := in.EndsAt.UTC()
		item.EndsAt = &ends
	}
	if err := item.Validate(); err != nil {
		return nil, fail(span, err)
	}

	err := s.exec.run(ctx, "timeline.add", func(ctx context.Context) error {
		event, err := loadEvent(ctx, s.store, eventID)
		if err != nil {
			return err
		}
		if err := requireManager(actor, event, "add timeline item"); err != nil {
			return err
		}
		if err := event.CheckMutable("add timeline item"); err != nil {
			return err
		}
		item.CreatedAt = s.clock()
		err = repository.Insert(ctx, s.store, domain.EntityTimelineItem, item)
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return item, nil
}

// ListTimeline returns the event's items in creation order
func (s *timelineService) ListTimeline(ctx context.Context, actor domain.Actor, eventID string) ([]*domain.TimelineItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.timeline.list")
	defer span.End()

	var items []*domain.TimelineItem
	err := s.exec.run(ctx, "timeline.list", func(ctx context.Context) error {
		event, err := loadEvent(ctx, s.store, eventID)
		if err != nil {
			return err
		}
		if err := requireManager(actor, event, "read timeline"); err != nil {
			return err
		}
		items, err = repository.List[domain.TimelineItem](ctx, s.store, domain.EntityTimelineItem, repository.Where("eventId", eventID))
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	return items, nil
}

// ToggleSyncToGoogle pushes unsynced items to the host calendar
func (s *timelineService) ToggleSyncToGoogle(ctx context.Context, actor domain.Actor, eventID, itemID string) ([]*domain.TimelineItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.timeline.sync")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID), attribute.String("item_id", itemID))

	if strings.TrimSpace(itemID) == "" {
		return nil, fail(span, fieldError("itemId", "is required"))
	}

	var (
		event   *domain.Event
		targets []*domain.TimelineItem
	)
	err := s.exec.run(ctx, "timeline.sync_load", func(ctx context.Context) error {
		var err error
		event, err = loadEvent(ctx, s.store, eventID)
		if err != nil {
			return err
		}
		if err := requireManager(actor, event, "sync timeline"); err != nil {
			return err
		}
		if err := event.CheckMutable("sync timeline"); err != nil {
			return err
		}
		if itemID == domain.SyncAll {
			targets, err = repository.List[domain.TimelineItem](ctx, s.store, domain.EntityTimelineItem, repository.Where("eventId", eventID))
			return err
		}
		item, err := repository.Get[domain.TimelineItem](ctx, s.store, domain.EntityTimelineItem, itemID)
		if err != nil {
			return err
		}
		if item.EventID != eventID {
			return fmt.Errorf("timeline item %s on event %s: %w", itemID, eventID, domain.ErrTimelineItemNotFound)
		}
		targets = []*domain.TimelineItem{item}
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	synced := make([]*domain.TimelineItem, 0, len(targets))
	var failed []error
	for _, target := range targets {
		item, err := s.syncItem(ctx, event, target.ID)
		if err != nil {
			failed = append(failed, err)
			continue
		}
		synced = append(synced, item)
	}

	if len(failed) > 0 {
		return synced, fail(span, fmt.Errorf("%d of %d timeline items not synced: %w: %w", len(failed), len(targets), ErrCalendarSync, errors.Join(failed...)))
	}
	return synced, nil
}

// syncItem syncs one item unless it already is. The external id is stable, so a
// retry after a lost write does not duplicate the calendar entry.
func (s *timelineService) syncItem(ctx context.Context, event *domain.Event, itemID string) (*domain.TimelineItem, error) {
	var item *domain.TimelineItem
	err := s.exec.run(ctx, "timeline.sync_item", func(ctx context.Context) error {
		var err error
		item, err = repository.Get[domain.TimelineItem](ctx, s.store, domain.EntityTimelineItem, itemID)
		if err != nil {
			return err
		}
		if item.IsSyncedToGoogle {
			return nil
		}

		externalID, err := s.syncer.Sync(ctx, event, item)
		if err != nil {
			metrics.RecordCalendarSyncFailure(ctx)
			s.log.WarnContext(ctx, "calendar sync failed",
				zap.String("event_id", event.ID),
				zap.String("item_id", itemID),
				zap.Error(err),
			)
			return fmt.Errorf("sync timeline item %s: %w", itemID, err)
		}

		now := s.clock()
		item.IsSyncedToGoogle = true
		item.GoogleEventID = externalID
		item.SyncedAt = &now
		return repository.Save(ctx, s.store, domain.EntityTimelineItem, item)
	})
	return item, err
}
