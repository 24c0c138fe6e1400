package domain

import (
	"strings"
	"time"
)

// RequestedServiceStatus represents the approval state of an add-on
type RequestedServiceStatus string

const (
	RequestedServiceSelected  RequestedServiceStatus = "selected"
	RequestedServiceRequested RequestedServiceStatus = "requested"
	RequestedServiceApproved  RequestedServiceStatus = "approved"
	RequestedServiceRejected  RequestedServiceStatus = "rejected"
)

// RequestedService is a service attached to an event, either booked with the lead or requested later
type RequestedService struct {
	ID          string                 `json:"id"`
	EventID     string                 `json:"eventId"`
	ServiceID   string                 `json:"serviceId"`
	ServiceName string                 `json:"serviceName"`
	Title       string                 `json:"title,omitempty"`
	Qty         int                    `json:"qty"`
	Notes       string                 `json:"notes,omitempty"`
	Status      RequestedServiceStatus `json:"status"`
	RequestedBy string                 `json:"requestedBy"`
	RequestedAt time.Time              `json:"requestedAt"`
	DecidedBy   string                 `json:"decidedBy,omitempty"`
	DecidedAt   *time.Time             `json:"decidedAt,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
	Versioned
}

func (r *RequestedService) EntityID() string { return r.ID }

// CheckDecision verifies the request is still awaiting an admin decision
func (r *RequestedService) CheckDecision(action string) error {
	if r.Status == RequestedServiceRequested {
		return nil
	}
	return &TransitionError{
		Entity: EntityRequestedService,
		ID:     r.ID,
		From:   string(r.Status),
		Action: action,
	}
}

// NormalizeServiceName folds a service name for duplicate detection
func NormalizeServiceName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
