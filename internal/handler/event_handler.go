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

// EventHandler handles event lifecycle and billing HTTP requests
type EventHandler struct {
	eventService service.EventService
}

// NewEventHandler creates a new event handler
func NewEventHandler(eventService service.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

func eventResponse(v *service.EventView) dto.EventResponse {
	return dto.EventResponse{Event: v.Event, Entitlements: v.Entitlements}
}

// GetEvent handles GET /events/:id
func (h *EventHandler) GetEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.get")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", c.Param("id")))

	view, err := h.eventService.GetEvent(ctx, actorFrom(c), c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Success(c, eventResponse(view))
}

// ListEvents handles GET /events?status=
func (h *EventHandler) ListEvents(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.list")
	defer span.End()

	views, err := h.eventService.ListEvents(ctx, actorFrom(c), domain.EventStatus(c.Query("status")))
	if err != nil {
		fail(c, span, err)
		return
	}

	items := make([]dto.EventResponse, 0, len(views))
	for _, v := range views {
		items = append(items, eventResponse(v))
	}
	response.List(c, items, len(items))
}

// SendContract handles POST /events/:id/contract/send
func (h *EventHandler) SendContract(c *gin.Context) {
	h.step(c, "handler.event.send_contract", h.eventService.SendContract)
}

// MarkContractSigned handles POST /events/:id/contract/signed
func (h *EventHandler) MarkContractSigned(c *gin.Context) {
	h.step(c, "handler.event.contract_signed", h.eventService.MarkContractSigned)
}

// MarkDepositDue handles POST /events/:id/deposit-due
func (h *EventHandler) MarkDepositDue(c *gin.Context) {
	h.step(c, "handler.event.deposit_due", h.eventService.MarkDepositDue)
}

// CompleteEvent handles POST /events/:id/complete
func (h *EventHandler) CompleteEvent(c *gin.Context) {
	h.step(c, "handler.event.complete", h.eventService.CompleteEvent)
}

// CancelEvent handles POST /events/:id/cancel
func (h *EventHandler) CancelEvent(c *gin.Context) {
	h.step(c, "handler.event.cancel", h.eventService.CancelEvent)
}

// PauseUploads handles POST /events/:id/uploads/pause
func (h *EventHandler) PauseUploads(c *gin.Context) {
	h.step(c, "handler.event.uploads_pause", h.eventService.PauseUploads)
}

// ResumeUploads handles POST /events/:id/uploads/resume
func (h *EventHandler) ResumeUploads(c *gin.Context) {
	h.step(c, "handler.event.uploads_resume", h.eventService.ResumeUploads)
}

// ExpireUploads handles POST /events/:id/uploads/expire
func (h *EventHandler) ExpireUploads(c *gin.Context) {
	h.step(c, "handler.event.uploads_expire", h.eventService.ExpireUploads)
}

// CreateInvoice handles POST /events/:id/invoice
func (h *EventHandler) CreateInvoice(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.create_invoice")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", c.Param("id")))

	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	res, err := h.eventService.CreateInvoice(ctx, actorFrom(c), c.Param("id"), &service.InvoiceInput{
		InvoiceID:       req.InvoiceID,
		Total:           req.Total,
		DepositRequired: req.DepositRequired,
	})
	if err != nil {
		fail(c, span, err)
		return
	}

	span.SetAttributes(attribute.String("invoice_id", res.Payment.InvoiceID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.BillingResponse{Event: res.Event, Payment: res.Payment})
}

// GetActivePayment handles GET /events/:id/payment
func (h *EventHandler) GetActivePayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.get_payment")
	defer span.End()

	payment, err := h.eventService.GetActivePayment(ctx, actorFrom(c), c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Success(c, payment)
}

// SimulateDepositPaid handles POST /events/:id/payment/simulate-deposit
func (h *EventHandler) SimulateDepositPaid(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.simulate_deposit")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", c.Param("id")))

	res, err := h.eventService.SimulateDepositPaid(ctx, actorFrom(c), c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Success(c, dto.BillingResponse{Event: res.Event, Payment: res.Payment})
}

// RecordPayment handles POST /events/:id/payments
func (h *EventHandler) RecordPayment(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.record_payment")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", c.Param("id")))

	var req dto.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		bindError(c, err)
		return
	}

	res, err := h.eventService.RecordPayment(ctx, actorFrom(c), c.Param("id"), &service.PaymentInput{
		Amount: req.Amount,
		Method: req.Method,
		Note:   req.Note,
	})
	if err != nil {
		fail(c, span, err)
		return
	}
	response.Success(c, dto.BillingResponse{Event: res.Event, Payment: res.Payment})
}

func (h *EventHandler) step(c *gin.Context, name string, fn func(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error)) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), name)
	defer span.End()
	span.SetAttributes(attribute.String("event_id", c.Param("id")))

	event, err := fn(ctx, actorFrom(c), c.Param("id"))
	if err != nil {
		fail(c, span, err)
		return
	}
	span.SetAttributes(attribute.String("status", string(event.Status)))
	response.Success(c, event)
}
