package domain

import (
	"sort"
	"time"
)

// ChangeRequestStatus represents the review state of a change request
type ChangeRequestStatus string

const (
	ChangeRequestPending  ChangeRequestStatus = "pending"
	ChangeRequestApproved ChangeRequestStatus = "approved"
	ChangeRequestRejected ChangeRequestStatus = "rejected"
)

// ChangeRequest is a host-proposed patch to an event's descriptive fields
type ChangeRequest struct {
	ID            string                 `json:"id"`
	EventID       string                 `json:"eventId"`
	ProposedPatch map[string]interface{} `json:"proposedPatch"`
	Status        ChangeRequestStatus    `json:"status"`
	SubmittedBy   string                 `json:"submittedBy"`
	SubmittedAt   time.Time              `json:"submittedAt"`
	DecidedBy     string                 `json:"decidedBy,omitempty"`
	DecidedAt     *time.Time             `json:"decidedAt,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	Versioned
}

func (c *ChangeRequest) EntityID() string { return c.ID }

// CheckDecision verifies the request is still pending
func (c *ChangeRequest) CheckDecision(action string) error {
	if c.Status == ChangeRequestPending {
		return nil
	}
	return &TransitionError{
		Entity: EntityChangeRequest,
		ID:     c.ID,
		From:   string(c.Status),
		Action: action,
	}
}

// ValidatePatchKeys rejects empty patches and keys outside ChangeableEventFields
func ValidatePatchKeys(patch map[string]interface{}) error {
	verr := &ValidationError{}
	if len(patch) == 0 {
		verr.Add("proposedPatch", "must contain at least one field")
		return verr
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := ChangeableEventFields[k]; !ok {
			verr.Add("proposedPatch."+k, "cannot be changed by request")
		}
	}
	return verr.OrNil()
}
