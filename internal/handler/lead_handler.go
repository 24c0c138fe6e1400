package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/dto"
	"github.com/urevent360-byte/urevent360-plus/internal/service"
	"github.com/urevent360-byte/urevent360-plus/pkg/response"
	"github.com/urevent360-byte/urevent360-plus/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// LeadHandler handles inquiry HTTP requests
type LeadHandler struct {
	leadService service.LeadService
}

// NewLeadHandler creates a new lead handler
func NewLeadHandler(leadService service.LeadService) *LeadHandler {
	return &LeadHandler{leadService: leadService}
}

// CreateLead handles POST /leads. Guests may submit.
func (h *LeadHandler) CreateLead(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.lead.create")
	defer span.End()

	var req domain.LeadSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	lead, err := h.leadService.CreateLead(ctx, actorFrom(c), &req)
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetAttributes(attribute.String("lead_id", lead.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, lead)
}

// GetLead handles GET /leads/:id
func (h *LeadHandler) GetLead(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.lead.get")
	defer span.End()

	lead, err := h.leadService.GetLead(ctx, actorFrom(c), c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Success(c, lead)
}

// ListLeads handles GET /leads?status=
func (h *LeadHandler) ListLeads(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.lead.list")
	defer span.End()

	leads, err := h.leadService.ListLeads(ctx, actorFrom(c), domain.LeadStatus(c.Query("status")))
	if err != nil {
		fail(c, span, err)
		return
	}
	response.List(c, leads, len(leads))
}

// MarkContacted handles POST /leads/:id/contacted
func (h *LeadHandler) MarkContacted(c *gin.Context) {
	h.step(c, "handler.lead.contacted", h.leadService.MarkContacted)
}

// SendQuote handles POST /leads/:id/quote
func (h *LeadHandler) SendQuote(c *gin.Context) {
	h.step(c, "handler.lead.quote", h.leadService.SendQuote)
}

// MarkAccepted handles POST /leads/:id/accept
func (h *LeadHandler) MarkAccepted(c *gin.Context) {
	h.step(c, "handler.lead.accept", h.leadService.MarkAccepted)
}

// RejectLead handles POST /leads/:id/reject
func (h *LeadHandler) RejectLead(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.lead.reject")
	defer span.End()

	var req dto.ReasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	lead, err := h.leadService.RejectLead(ctx, actorFrom(c), c.Param("id"), req.Reason)
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Success(c, lead)
}

// ConvertToEvent handles POST /leads/:id/convert
func (h *LeadHandler) ConvertToEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.lead.convert")
	defer span.End()
	span.SetAttributes(attribute.String("lead_id", c.Param("id")))

	res, err := h.leadService.ConvertToEvent(ctx, actorFrom(c), c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}

	body := dto.ConversionResponse{EventID: res.EventID, ProjectNumber: res.ProjectNumber, AlreadyConverted: res.AlreadyConverted}
	if res.AlreadyConverted {
		response.SuccessWithMeta(c, body, response.Meta{Message: "lead was already converted"})
		return
	}
	response.Created(c, body)
}

func (h *LeadHandler) step(c *gin.Context, name string, fn func(ctx context.Context, actor domain.Actor, id string) (*domain.Lead, error)) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), name)
	defer span.End()
	span.SetAttributes(attribute.String("lead_id", c.Param("id")))

	lead, err := fn(ctx, actorFrom(c), c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Success(c, lead)
}
