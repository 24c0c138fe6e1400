package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
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

// GalleryService defines the interface for event files and the host gallery
type GalleryService interface {
	// UploadGuestFile stores a guest upload for the event owning token.
	// The token must be active.
	UploadGuestFile(ctx context.Context, token string, blob *Blob) (*domain.FileRecord, error)

	// AttachFile stores a file uploaded by staff or the host
	AttachFile(ctx context.Context, actor domain.Actor, eventID string, kind domain.FileKind, blob *Blob) (*domain.FileRecord, error)

	// ListGallery returns the gallery. Hosts only see it once it is visible.
	ListGallery(ctx context.Context, actor domain.Actor, eventID string) (*GalleryView, error)
}

// GalleryView is the gallery listing with the visibility window that applies to it
type GalleryView struct {
	EventID      string
	Entitlements entitlement.Entitlements
	Files        []*domain.FileRecord
}

// galleryService implements GalleryService
type galleryService struct {
	core
	blobs BlobStore
}

// NewGalleryService creates a new gallery service
func NewGalleryService(store repository.Store, blobs BlobStore, log *logger.Logger, cfg *BaseConfig) GalleryService {
	var base BaseConfig
	if cfg != nil {
		base = *cfg
	}
	return &galleryService{core: newCore(store, nil, log, base), blobs: blobs}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeFileName keeps a readable, path-free version of a client file name
func safeFileName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Trim(unsafeFileChars.ReplaceAllString(base, "_"), "._")
	if base == "" {
		return "file"
	}
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	return base
}

// UploadGuestFile stores a guest upload for the event owning token
func (s *galleryService) UploadGuestFile(ctx context.Context, token string, blob *Blob) (*domain.FileRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.gallery.upload_guest_file")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fail(span, domain.ErrUploadsInactive)
	}

	var event *domain.Event
	err := s.exec.run(ctx, "gallery.find_token", func(ctx context.Context) error {
		events, err := repository.List[domain.Event](ctx, s.store, domain.EntityEvent, repository.Filter{
			Equals: map[string]interface{}{"qrUpload.token": token},
			Limit:  1,
		})
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return domain.ErrUploadsInactive
		}
		event = events[0]
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.String("event_id", event.ID))

	if !entitlement.IsUploadTokenActive(event, s.clock()) {
		return nil, fail(span, fmt.Errorf("event %s: %w", event.ID, domain.ErrUploadsInactive))
	}

	file, err := s.put(ctx, event.ID, domain.FileKindGuestUpload, domain.Guest(), blob)
	if err != nil {
		return nil, fail(span, err)
	}
	metrics.RecordGuestUpload(ctx)
	return file, nil
}

// AttachFile stores a file uploaded by staff or the host
func (s *galleryService) AttachFile(ctx context.Context, actor domain.Actor, eventID string, kind domain.FileKind, blob *Blob) (*domain.FileRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.gallery.attach_file")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID), attribute.String("kind", string(kind)))

	if !kind.Valid() {
		return nil, fail(span, fieldError("kind", "is not a known file kind"))
	}

	var event *domain.Event
	err := s.exec.run(ctx, "gallery.load_event", func(ctx context.Context) error {
		var err error
		event, err = loadEvent(ctx, s.store, eventID)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	if err := requireManager(actor, event, "attach file"); err != nil {
		return nil, fail(span, err)
	}
	// hosts contribute their own photos; everything else is staff work
	if !actor.IsAdmin() && kind != domain.FileKindGallery {
		return nil, fail(span, fmt.Errorf("attach %s file: %w", kind, domain.ErrForbidden))
	}
	if err := event.CheckMutable("attach file"); err != nil {
		return nil, fail(span, err)
	}

	file, err := s.put(ctx, eventID, kind, actor, blob)
	if err != nil {
		return nil, fail(span, err)
	}

	if kind == domain.FileKindDesign {
		err := s.exec.run(ctx, "gallery.design_preview", func(ctx context.Context) error {
			event, err := loadEvent(ctx, s.store, eventID)
			if err != nil {
				return err
			}
			event.Design = domain.Design{Status: domain.DesignStatusInReview, PreviewURL: file.URL}
			event.UpdatedAt = s.clock()
			return repository.Save(ctx, s.store, domain.EntityEvent, event)
		})
		if err != nil {
			return nil, fail(span, err)
		}
	}
	return file, nil
}

// put checks the content type, stores the bytes and records the file
func (s *galleryService) put(ctx context.Context, eventID string, kind domain.FileKind, actor domain.Actor, blob *Blob) (*domain.FileRecord, error) {
	if blob == nil || blob.Body == nil {
		return nil, fieldError("file", "is required")
	}
	mt, err := sniff(blob)
	if err != nil {
		return nil, err
	}
	if !allowedUpload(kind, mt) {
		return nil, fieldError("file", fmt.Sprintf("type %s is not accepted for %s files", mt.String(), kind))
	}
	blob.ContentType = mt.String()

	id := uuid.New().String()
	name := safeFileName(blob.FileName)
	stored, err := s.blobs.Put(ctx, path.Join("events", eventID, string(kind), id+"-"+name), blob)
	if errors.Is(err, ErrBlobTooLarge) {
		return nil, fieldError("file", err.Error())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	file := &domain.FileRecord{
		ID:          id,
		EventID:     eventID,
		Kind:        kind,
		URL:         stored.URL,
		FileName:    name,
		ContentType: stored.ContentType,
		Size:        stored.Size,
		UploadedBy:  actor.Label(),
		CreatedAt:   s.clock(),
	}
	err = s.exec.run(ctx, "gallery.record_file", func(ctx context.Context) error {
		err := repository.Insert(ctx, s.store, domain.EntityFileRecord, file)
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "file stored",
		zap.String("event_id", eventID),
		zap.String("file_id", id),
		zap.String("kind", string(kind)),
		zap.Int64("size", file.Size),
	)
	return file, nil
}

// ListGallery returns the gallery files of the event
func (s *galleryService) ListGallery(ctx context.Context, actor domain.Actor, eventID string) (*GalleryView, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.gallery.list")
	defer span.End()

	var (
		event *domain.Event
		files []*domain.FileRecord
	)
	err := s.exec.run(ctx, "gallery.list", func(ctx context.Context) error {
		var err error
		event, err = loadEvent(ctx, s.store, eventID)
		if err != nil {
			return err
		}
		files, err = repository.List[domain.FileRecord](ctx, s.store, domain.EntityFileRecord, repository.Where("eventId", eventID))
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	if err := requireManager(actor, event, "view gallery"); err != nil {
		return nil, fail(span, err)
	}

	view := &GalleryView{EventID: eventID, Entitlements: entitlement.Project(event, s.clock())}
	if !actor.IsAdmin() && !view.Entitlements.GalleryVisible {
		return nil, fail(span, fmt.Errorf("event %s: %w", eventID, domain.ErrGalleryLocked))
	}

	view.Files = make([]*domain.FileRecord, 0, len(files))
	for _, f := range files {
		if f.Kind.IsGalleryContent() {
			view.Files = append(view.Files, f)
		}
	}
	return view, nil
}
