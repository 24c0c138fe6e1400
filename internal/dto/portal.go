package dto

import (
	"time"

	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/entitlement"
)

// ReasonRequest carries an optional free-text reason for a rejection
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// CreateInvoiceRequest represents request to invoice an event
type CreateInvoiceRequest struct {
	InvoiceID       string   `json:"invoiceId,omitempty"`
	Total           float64  `json:"total" binding:"required,gt=0"`
	DepositRequired *float64 `json:"depositRequired,omitempty" binding:"omitempty,gte=0"`
}

// RecordPaymentRequest represents a payment entered by staff
type RecordPaymentRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
	Method string  `json:"method,omitempty"`
	Note   string  `json:"note,omitempty"`
}

// RequestAddonsRequest represents request to add services to a booked event
type RequestAddonsRequest struct {
	ServiceNames []string `json:"serviceNames" binding:"required,min=1"`
}

// ChangeRequestRequest represents a host-proposed change to event details
type ChangeRequestRequest struct {
	ProposedPatch map[string]interface{} `json:"proposedPatch" binding:"required"`
}

// TimelineItemRequest represents a new timeline item
type TimelineItemRequest struct {
	Title    string     `json:"title" binding:"required"`
	StartsAt time.Time  `json:"startsAt" binding:"required"`
	EndsAt   *time.Time `json:"endsAt,omitempty"`
	Notes    string     `json:"notes,omitempty"`
}

// SyncTimelineRequest selects the item to sync, or "all"
type SyncTimelineRequest struct {
	ItemID string `json:"itemId" binding:"required"`
}

// EventResponse is an event with its entitlements
type EventResponse struct {
	*domain.Event
	Entitlements entitlement.Entitlements `json:"entitlements"`
}

// ConversionResponse represents response after converting a lead
type ConversionResponse struct {
	EventID          string `json:"eventId"`
	ProjectNumber    string `json:"projectNumber"`
	AlreadyConverted bool   `json:"alreadyConverted"`
}

// BillingResponse is the event and its active payment after a billing operation
type BillingResponse struct {
	Event   *domain.Event   `json:"event"`
	Payment *domain.Payment `json:"payment"`
}

// GalleryResponse lists gallery files with the window they are visible in
type GalleryResponse struct {
	EventID      string                   `json:"eventId"`
	Entitlements entitlement.Entitlements `json:"entitlements"`
	Files        []*domain.FileRecord     `json:"files"`
}
