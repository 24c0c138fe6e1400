package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/urevent360-byte/urevent360-plus/internal/dto"
	"github.com/urevent360-byte/urevent360-plus/internal/service"
	"github.com/urevent360-byte/urevent360-plus/pkg/response"
	"github.com/urevent360-byte/urevent360-plus/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TimelineHandler handles event timeline HTTP requests
type TimelineHandler struct {
	timelineService service.TimelineService
}

// NewTimelineHandler creates a new timeline handler
func NewTimelineHandler(timelineService service.TimelineService) *TimelineHandler {
	return &TimelineHandler{timelineService: timelineService}
}

// AddTimelineItem handles POST /events/:id/timeline
func (h *TimelineHandler) AddTimelineItem(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.timeline.add")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", c.Param("id")))

	var req dto.TimelineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	item, err := h.timelineService.AddTimelineItem(ctx, actorFrom(c), c.Param("id"), &service.TimelineItemInput{
		Title:    req.Title,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		Notes:    req.Notes,
	})
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Created(c, item)
}

// ListTimeline handles GET /events/:id/timeline
func (h *TimelineHandler) ListTimeline(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.timeline.list")
	defer span.End()

	items, err := h.timelineService.ListTimeline(ctx, actorFrom(c), c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}
	response.List(c, items, len(items))
}

// SyncTimeline handles POST /events/:id/timeline/sync with an item id or "all".
// On a partial failure the items that did sync are returned in the error details.
func (h *TimelineHandler) SyncTimeline(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.timeline.sync")
	defer span.End()

	var req dto.SyncTimelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	span.SetAttributes(
		attribute.String("event_id", c.Param("id")),
		attribute.String("item_id", req.ItemID),
	)

	synced, err := h.timelineService.ToggleSyncToGoogle(ctx, actorFrom(c), c.Param("id"), req.ItemID)
	if err != nil {
		if errors.Is(err, service.ErrCalendarSync) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			response.Error(c, http.StatusBadGateway, "CALENDAR_SYNC_FAILED", err.Error(), gin.H{"synced": synced})
			return
		}
		fail(c, span, err)
		return
	}

	span.SetAttributes(attribute.Int("synced", len(synced)))
	response.List(c, synced, len(synced))
}
