package domain

import "time"

// SyncAll targets every timeline item of an event
const SyncAll = "all"

// TimelineItem is a scheduled activity within an event
type TimelineItem struct {
	ID               string     `json:"id"`
	EventID          string     `json:"eventId"`
	Title            string     `json:"title"`
	StartsAt         time.Time  `json:"startsAt"`
	EndsAt           *time.Time `json:"endsAt,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	IsSyncedToGoogle bool       `json:"isSyncedToGoogle"`
	GoogleEventID    string     `json:"googleEventId,omitempty"`
	SyncedAt         *time.Time `json:"syncedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	Versioned
}

func (t *TimelineItem) EntityID() string { return t.ID }

// Validate checks a new timeline item
func (t *TimelineItem) Validate() error {
	verr := &ValidationError{}
	if t.Title == "" {
		verr.Add("title", "is required")
	}
	if t.StartsAt.IsZero() {
		verr.Add("startsAt", "is required")
	}
	if t.EndsAt != nil && t.EndsAt.Before(t.StartsAt) {
		verr.Add("endsAt", "must not be before startsAt")
	}
	return verr.OrNil()
}
