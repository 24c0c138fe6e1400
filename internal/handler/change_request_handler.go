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

// ChangeRequestHandler handles event change request HTTP requests
type ChangeRequestHandler struct {
	changeService service.ChangeRequestService
}

// NewChangeRequestHandler creates a new change request handler
func NewChangeRequestHandler(changeService service.ChangeRequestService) *ChangeRequestHandler {
	return &ChangeRequestHandler{changeService: changeService}
}

// CreateChangeRequest handles POST /events/:id/change-requests
func (h *ChangeRequestHandler) CreateChangeRequest(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.change_request.create")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", c.Param("id")))

	var req dto.ChangeRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	cr, err := h.changeService.CreateChangeRequest(ctx, actorFrom(c), c.Param("id"), req.ProposedPatch)
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetAttributes(attribute.String("change_request_id", cr.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, cr)
}

// ListChangeRequests handles GET /events/:id/change-requests?status=
func (h *ChangeRequestHandler) ListChangeRequests(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.change_request.list")
	defer span.End()

	items, err := h.changeService.ListChangeRequests(ctx, actorFrom(c), c.Param("id"), domain.ChangeRequestStatus(c.Query("status")))
	if err != nil {
		fail(c, span, err)
		return
	}
	response.List(c, items, len(items))
}

// ApproveChangeRequest handles POST /events/:id/change-requests/:requestId/approve.
// The response carries the updated event.
func (h *ChangeRequestHandler) ApproveChangeRequest(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.change_request.approve")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", c.Param("id")),
		attribute.String("change_request_id", c.Param("requestId")),
	)

	event, err := h.changeService.ApproveChangeRequest(ctx, actorFrom(c), c.Param("id"), c.Param("requestId"))
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Success(c, event)
}

// RejectChangeRequest handles POST /events/:id/change-requests/:requestId/reject
func (h *ChangeRequestHandler) RejectChangeRequest(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.change_request.reject")
	defer span.End()

	var req dto.ReasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	cr, err := h.changeService.RejectChangeRequest(ctx, actorFrom(c), c.Param("id"), c.Param("requestId"), req.Reason)
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Success(c, cr)
}
