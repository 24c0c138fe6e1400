package domain

import "time"

// EventStatus represents the status of an event
type EventStatus string

const (
	EventStatusQuoteRequested EventStatus = "quote_requested"
	EventStatusContractSent   EventStatus = "contract_sent"
	EventStatusInvoiceSent    EventStatus = "invoice_sent"
	EventStatusDepositDue     EventStatus = "deposit_due"
	EventStatusBooked         EventStatus = "booked"
	EventStatusCompleted      EventStatus = "completed"
	EventStatusCanceled       EventStatus = "canceled"
)

var eventTransitions = map[EventStatus][]EventStatus{
	EventStatusQuoteRequested: {EventStatusContractSent, EventStatusInvoiceSent, EventStatusCanceled},
	EventStatusContractSent:   {EventStatusInvoiceSent, EventStatusCanceled},
	EventStatusInvoiceSent:    {EventStatusDepositDue, EventStatusBooked, EventStatusCanceled},
	EventStatusDepositDue:     {EventStatusBooked, EventStatusCanceled},
	EventStatusBooked:         {EventStatusCompleted, EventStatusCanceled},
}

// IsTerminal reports statuses an event never leaves
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusCompleted || s == EventStatusCanceled
}

// GalleryPolicy controls when the photo gallery opens and closes
type GalleryPolicy struct {
	ReleaseDelayDays     int  `json:"releaseDelayDays"`
	VisibilityWindowDays int  `json:"visibilityWindowDays"`
	AutoPurgeDays        *int `json:"autoPurgeDays,omitempty"`
}

// QRUploadStatus is the state of the guest upload token
type QRUploadStatus string

const (
	QRUploadActive  QRUploadStatus = "active"
	QRUploadPaused  QRUploadStatus = "paused"
	QRUploadExpired QRUploadStatus = "expired"
)

// QRUpload is the guest upload token printed on the event QR code
type QRUpload struct {
	Token      string         `json:"token"`
	Status     QRUploadStatus `json:"status"`
	ExpiresAt  *time.Time     `json:"expiresAt,omitempty"`
	// TTLSeconds is how long after the event date the token stays valid; zero means open-ended
	TTLSeconds int64          `json:"ttlSeconds,omitempty"`
}

// Reschedule moves the expiry to eventDate plus the token's TTL.
// It reports false, changing nothing, when the token has no TTL.
func (q *QRUpload) Reschedule(eventDate time.Time) bool {
	if q == nil || q.TTLSeconds <= 0 {
		return false
	}
	expires := eventDate.Add(time.Duration(q.TTLSeconds) * time.Second).UTC()
	q.ExpiresAt = &expires
	return true
}

// CanMoveTo reports whether the token may change to status `to`.
// Expired tokens are final; paused tokens can only be reactivated or expired.
func (q *QRUpload) CanMoveTo(to QRUploadStatus) bool {
	switch q.Status {
	case QRUploadActive:
		return to == QRUploadPaused || to == QRUploadExpired
	case QRUploadPaused:
		return to == QRUploadActive || to == QRUploadExpired
	default:
		return false
	}
}

// DesignStatus is the review state of the event artwork
type DesignStatus string

const (
	DesignStatusPending  DesignStatus = "pending"
	DesignStatusInReview DesignStatus = "in_review"
	DesignStatusApproved DesignStatus = "approved"
)

// Design is the event artwork preview
type Design struct {
	Status     DesignStatus `json:"status"`
	PreviewURL string       `json:"previewUrl,omitempty"`
}

// Event is a confirmed or in-progress booking
type Event struct {
	ID            string `json:"id"`
	ProjectNumber string `json:"projectNumber"`
	LeadID        string `json:"leadId"`
	HostID        string `json:"hostId,omitempty"`
	HostEmail     string `json:"hostEmail"`
	EventDetails
	Status           EventStatus    `json:"status"`
	ContractSigned   bool           `json:"contractSigned"`
	ContractSignedAt *time.Time     `json:"contractSignedAt,omitempty"`
	GalleryPolicy    *GalleryPolicy `json:"galleryPolicy,omitempty"`
	QRUpload         *QRUpload      `json:"qrUpload,omitempty"`
	PhotoboothLink   string         `json:"photoboothLink,omitempty"`
	Design           Design         `json:"design"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	Versioned
}

func (e *Event) EntityID() string { return e.ID }

// CheckTransition verifies the event may move to status `to`
func (e *Event) CheckTransition(to EventStatus, action string) error {
	for _, allowed := range eventTransitions[e.Status] {
		if allowed == to {
			return nil
		}
	}
	return e.transitionError(action)
}

// CheckMutable rejects changes to completed or canceled events
func (e *Event) CheckMutable(action string) error {
	if e.Status.IsTerminal() {
		return e.transitionError(action)
	}
	return nil
}

func (e *Event) transitionError(action string) error {
	return &TransitionError{
		Entity:   EntityEvent,
		ID:       e.ID,
		From:     string(e.Status),
		Action:   action,
		Terminal: e.Status.IsTerminal(),
	}
}

// OwnedBy reports whether actor may act on the event as host or admin
func (e *Event) OwnedBy(actor Actor) bool {
	return actor.CanManage(e.HostID, e.HostEmail)
}
