package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	// Not found
	ErrLeadNotFound             = errors.New("lead not found")
	ErrEventNotFound            = errors.New("event not found")
	ErrPaymentNotFound          = errors.New("payment not found")
	ErrRequestedServiceNotFound = errors.New("requested service not found")
	ErrChangeRequestNotFound    = errors.New("change request not found")
	ErrTimelineItemNotFound     = errors.New("timeline item not found")
	ErrFileNotFound             = errors.New("file not found")
	ErrRecordNotFound           = errors.New("record not found")

	// State machine
	ErrInvalidTransition = errors.New("action not available in the current status")
	ErrTerminalState     = errors.New("record is in a terminal status and can no longer change")

	// Concurrency and storage
	ErrVersionConflict  = errors.New("this record was just updated, please refresh")
	ErrAlreadyExists    = errors.New("record already exists")
	ErrStoreUnavailable = errors.New("entity store unavailable")

	// Workflow
	ErrDuplicateRequest = errors.New("a request for this item already exists")
	ErrForbidden        = errors.New("caller is not permitted to perform this action")
	ErrValidation       = errors.New("validation failed")
	ErrUploadsInactive  = errors.New("uploads are not active for this event")
	ErrGalleryLocked    = errors.New("gallery is not visible yet")
)

// NotFoundFor returns the not-found error of an entity type
func NotFoundFor(t EntityType) error {
	switch t {
	case EntityLead:
		return ErrLeadNotFound
	case EntityEvent:
		return ErrEventNotFound
	case EntityPayment:
		return ErrPaymentNotFound
	case EntityRequestedService:
		return ErrRequestedServiceNotFound
	case EntityChangeRequest:
		return ErrChangeRequestNotFound
	case EntityTimelineItem:
		return ErrTimelineItemNotFound
	case EntityFileRecord:
		return ErrFileNotFound
	default:
		return ErrRecordNotFound
	}
}

// TransitionError reports an operation attempted from a status that does not allow it.
// It matches ErrInvalidTransition, and ErrTerminalState as well when From is terminal.
type TransitionError struct {
	Entity   EntityType
	ID       string
	From     string
	Action   string
	Terminal bool
}

func (e *TransitionError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("%s %s is %s: %s is not allowed", e.Entity, e.ID, e.From, e.Action)
	}
	return fmt.Sprintf("cannot %s %s %s from status %s", e.Action, e.Entity, e.ID, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition || (e.Terminal && target == ErrTerminalState)
}

// FieldError is one offending input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every offending field of an input
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add appends a field error
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when it holds at least one field, nil otherwise
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrLeadNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrRequestedServiceNotFound) ||
		errors.Is(err, ErrChangeRequestNotFound) ||
		errors.Is(err, ErrTimelineItemNotFound) ||
		errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}

// IsRetryable reports errors a caller may retry: store outages and lost races
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrVersionConflict)
}
