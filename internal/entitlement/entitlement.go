// Package entitlement derives read-only access flags from an event snapshot and the current time.
// Every function fails closed: a missing policy or token grants nothing.
package entitlement

import (
	"time"

	"github.com/urevent360-byte/urevent360-plus/internal/domain"
)

// Entitlements is the projection returned alongside an event
type Entitlements struct {
	PortalLocked      bool       `json:"portalLocked"`
	GalleryVisible    bool       `json:"galleryVisible"`
	GalleryReleaseAt  *time.Time `json:"galleryReleaseAt"`
	GalleryExpiresAt  *time.Time `json:"galleryExpiresAt"`
	GalleryPurgeAt    *time.Time `json:"galleryPurgeAt"`
	UploadTokenActive bool       `json:"uploadTokenActive"`
}

// Project computes every flag for event at now
func Project(event *domain.Event, now time.Time) Entitlements {
	return Entitlements{
		PortalLocked:      IsPortalLocked(event),
		GalleryVisible:    IsGalleryVisible(event, now),
		GalleryReleaseAt:  GalleryReleaseAt(event),
		GalleryExpiresAt:  GalleryExpiresAt(event),
		GalleryPurgeAt:    GalleryPurgeAt(event),
		UploadTokenActive: IsUploadTokenActive(event, now),
	}
}

// IsPortalLocked is true whenever the event is not booked
func IsPortalLocked(event *domain.Event) bool {
	return event == nil || event.Status != domain.EventStatusBooked
}

// GalleryReleaseAt is the event date plus the release delay
func GalleryReleaseAt(event *domain.Event) *time.Time {
	if event == nil || event.GalleryPolicy == nil {
		return nil
	}
	return offset(event, event.GalleryPolicy.ReleaseDelayDays)
}

// IsGalleryVisible reports now >= release instant. Status plays no part.
func IsGalleryVisible(event *domain.Event, now time.Time) bool {
	release := GalleryReleaseAt(event)
	if release == nil {
		return false
	}
	return !now.Before(*release)
}

// GalleryExpiresAt is the release instant plus the visibility window, nil without a policy
func GalleryExpiresAt(event *domain.Event) *time.Time {
	if event == nil || event.GalleryPolicy == nil {
		return nil
	}
	p := event.GalleryPolicy
	return offset(event, p.ReleaseDelayDays+p.VisibilityWindowDays)
}

// GalleryPurgeAt is when stored gallery files may be deleted, nil when no purge is configured
func GalleryPurgeAt(event *domain.Event) *time.Time {
	if event == nil || event.GalleryPolicy == nil || event.GalleryPolicy.AutoPurgeDays == nil {
		return nil
	}
	p := event.GalleryPolicy
	return offset(event, p.ReleaseDelayDays+p.VisibilityWindowDays+*p.AutoPurgeDays)
}

// IsUploadTokenActive reports an active QR token that has not passed its expiry
func IsUploadTokenActive(event *domain.Event, now time.Time) bool {
	if event == nil || event.QRUpload == nil {
		return false
	}
	q := event.QRUpload
	if q.Status != domain.QRUploadActive {
		return false
	}
	return q.ExpiresAt == nil || now.Before(*q.ExpiresAt)
}

// offset adds calendar days in the event's time zone so DST shifts keep local midnight.
// An unparseable date yields nil.
func offset(event *domain.Event, days int) *time.Time {
	date, err := event.EventDate()
	if err != nil {
		return nil
	}
	t := date.AddDate(0, 0, days)
	return &t
}
