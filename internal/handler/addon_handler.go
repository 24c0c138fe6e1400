package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/dto"
	"github.com/urevent360-byte/urevent360-plus/internal/service"
	"github.com/urevent360-byte/urevent360-plus/pkg/response"
	"github.com/urevent360-byte/urevent360-plus/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AddonHandler handles add-on request HTTP requests
type AddonHandler struct {
	addonService service.AddonService
}

// NewAddonHandler creates a new add-on handler
func NewAddonHandler(addonService service.AddonService) *AddonHandler {
	return &AddonHandler{addonService: addonService}
}

// RequestAddons handles POST /events/:id/services
func (h *AddonHandler) RequestAddons(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.addon.request")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", c.Param("id")))

	var req dto.RequestAddonsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	created, err := h.addonService.RequestAddons(ctx, actorFrom(c), c.Param("id"), req.ServiceNames)
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetAttributes(attribute.Int("requested", len(created)))
	span.SetStatus(codes.Ok, "")
	response.Created(c, created)
}

// ListServiceRequests handles GET /events/:id/services?status=
func (h *AddonHandler) ListServiceRequests(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.addon.list")
	defer span.End()

	items, err := h.addonService.ListServiceRequests(ctx, actorFrom(c), c.Param("id"), domain.RequestedServiceStatus(c.Query("status")))
	if err != nil {
		fail(c, span, err)
		return
	}
	response.List(c, items, len(items))
}

// ApproveServiceRequest handles POST /events/:id/services/:requestId/approve
func (h *AddonHandler) ApproveServiceRequest(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.addon.approve")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", c.Param("id")),
		attribute.String("request_id", c.Param("requestId")),
	)

	rs, err := h.addonService.ApproveServiceRequest(ctx, actorFrom(c), c.Param("id"), c.Param("requestId"))
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Success(c, rs)
}

// RejectServiceRequest handles POST /events/:id/services/:requestId/reject
func (h *AddonHandler) RejectServiceRequest(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.addon.reject")
	defer span.End()

	var req dto.ReasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	rs, err := h.addonService.RejectServiceRequest(ctx, actorFrom(c), c.Param("id"), c.Param("requestId"), req.Reason)
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Success(c, rs)
}
