package handler

import (
	"mime/multipart"

	"github.com/gin-gonic/gin"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/dto"
	"github.com/urevent360-byte/urevent360-plus/internal/service"
	"github.com/urevent360-byte/urevent360-plus/pkg/response"
	"github.com/urevent360-byte/urevent360-plus/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// formFileField is the multipart field carrying the upload
const formFileField = "file"

// GalleryHandler handles file upload and gallery HTTP requests
type GalleryHandler struct {
	galleryService service.GalleryService
}

// NewGalleryHandler creates a new gallery handler
func NewGalleryHandler(galleryService service.GalleryService) *GalleryHandler {
	return &GalleryHandler{galleryService: galleryService}
}

// UploadGuestFile handles POST /uploads/:token. No login is needed, the QR token
// identifies the event.
func (h *GalleryHandler) UploadGuestFile(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.gallery.guest_upload")
	defer span.End()

	fh, err := c.FormFile(formFileField)
	if err != nil {
		response.BadRequest(c, "multipart field \"file\" is required")
		return
	}
	blob, closeFn, err := openBlob(fh)
	if err != nil {
		fail(c, span, err)
		return
	}
	defer closeFn()

	record, err := h.galleryService.UploadGuestFile(ctx, c.Param("token"), blob)
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetAttributes(
		attribute.String("event_id", record.EventID),
		attribute.Int64("size", record.Size),
	)
	span.SetStatus(codes.Ok, "")
	response.Created(c, record)
}

// AttachFile handles POST /events/:id/files with a "kind" form field
func (h *GalleryHandler) AttachFile(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.gallery.attach")
	defer span.End()

	kind := domain.FileKind(c.PostForm("kind"))
	span.SetAttributes(
		attribute.String("event_id", c.Param("id")),
		attribute.String("kind", string(kind)),
	)

	fh, err := c.FormFile(formFileField)
	if err != nil {
		response.BadRequest(c, "multipart field \"file\" is required")
		return
	}
	blob, closeFn, err := openBlob(fh)
	if err != nil {
		fail(c, span, err)
		return
	}
	defer closeFn()

	record, err := h.galleryService.AttachFile(ctx, actorFrom(c), c.Param("id"), kind, blob)
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Created(c, record)
}

// ListGallery handles GET /events/:id/gallery
func (h *GalleryHandler) ListGallery(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.gallery.list")
	defer span.End()

	view, err := h.galleryService.ListGallery(ctx, actorFrom(c), c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Success(c, dto.GalleryResponse{
		EventID:      view.EventID,
		Entitlements: view.Entitlements,
		Files:        view.Files,
	})
}

func openBlob(fh *multipart.FileHeader) (*service.Blob, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	blob := &service.Blob{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}
	return blob, func() { _ = f.Close() }, nil
}
