package domain

import (
	"strings"
	"time"
)

// LeadStatus represents the status of a lead
type LeadStatus string

const (
	LeadStatusNewRequest LeadStatus = "new_request"
	LeadStatusContacted  LeadStatus = "contacted"
	LeadStatusQuoteSent  LeadStatus = "quote_sent"
	LeadStatusAccepted   LeadStatus = "accepted"
	LeadStatusRejected   LeadStatus = "rejected"
	LeadStatusConverted  LeadStatus = "converted"
)

var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadStatusNewRequest: {LeadStatusContacted, LeadStatusQuoteSent, LeadStatusRejected},
	LeadStatusContacted:  {LeadStatusQuoteSent, LeadStatusRejected},
	LeadStatusQuoteSent:  {LeadStatusAccepted, LeadStatusRejected},
	LeadStatusAccepted:   {LeadStatusConverted, LeadStatusRejected},
}

// IsTerminal reports statuses a lead never leaves
func (s LeadStatus) IsTerminal() bool {
	return s == LeadStatusConverted || s == LeadStatusRejected
}

// RequestedServiceLine is a service picked on the inquiry form
type RequestedServiceLine struct {
	ServiceID string `json:"serviceId" validate:"required"`
	Title     string `json:"title,omitempty"`
	Qty       int    `json:"qty" validate:"gte=1"`
	Notes     string `json:"notes,omitempty"`
}

// Lead is a pre-booking inquiry
type Lead struct {
	ID                string                 `json:"id"`
	HostID            string                 `json:"hostId,omitempty"`
	HostEmail         string                 `json:"hostEmail"`
	Status            LeadStatus             `json:"status"`
	EventDraft        EventDetails           `json:"eventDraft"`
	RequestedServices []RequestedServiceLine `json:"requestedServices"`
	EventID           *string                `json:"eventId"`
	RejectionReason   string                 `json:"rejectionReason,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
	Versioned
}

func (l *Lead) EntityID() string { return l.ID }

// CheckTransition verifies the lead may move to status `to`
func (l *Lead) CheckTransition(to LeadStatus, action string) error {
	for _, allowed := range leadTransitions[l.Status] {
		if allowed == to {
			return nil
		}
	}
	return &TransitionError{
		Entity:   EntityLead,
		ID:       l.ID,
		From:     string(l.Status),
		Action:   action,
		Terminal: l.Status.IsTerminal(),
	}
}

// LeadSubmission is the inquiry form input
type LeadSubmission struct {
	HostEmail         string                 `json:"hostEmail" validate:"required,email"`
	EventDraft        EventDetails           `json:"eventDraft"`
	RequestedServices []RequestedServiceLine `json:"requestedServices" validate:"min=1,dive"`
}

// Normalize trims input and defaults missing quantities to one
func (s *LeadSubmission) Normalize() {
	s.HostEmail = strings.ToLower(strings.TrimSpace(s.HostEmail))
	s.EventDraft.Name = strings.TrimSpace(s.EventDraft.Name)
	s.EventDraft.Type = strings.TrimSpace(s.EventDraft.Type)
	s.EventDraft.VenueName = strings.TrimSpace(s.EventDraft.VenueName)
	for i := range s.RequestedServices {
		s.RequestedServices[i].ServiceID = strings.TrimSpace(s.RequestedServices[i].ServiceID)
		if s.RequestedServices[i].Qty == 0 {
			s.RequestedServices[i].Qty = 1
		}
	}
}

// Validate returns a *ValidationError listing every offending field
func (s *LeadSubmission) Validate() error {
	verr := validateStruct(s, "")
	return verr.OrNil()
}
