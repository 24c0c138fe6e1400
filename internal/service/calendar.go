package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/pkg/kafka"
)

// calendarNamespace scopes external calendar ids derived from timeline item ids
var calendarNamespace = uuid.MustParse("0f7c6a52-52f4-4b36-9a3e-3c1b7f1e9a10")

// CalendarSyncer pushes a timeline item to the host's external calendar and
// returns the external event id
type CalendarSyncer interface {
	Sync(ctx context.Context, event *domain.Event, item *domain.TimelineItem) (string, error)
}

// ExternalEventID is the calendar id used for a timeline item. It is stable so a
// repeated sync updates the same calendar entry.
func ExternalEventID(itemID string) string {
	return strings.ReplaceAll(uuid.NewSHA1(calendarNamespace, []byte(itemID)).String(), "-", "")
}

// calendarSyncRequest is the message consumed by the calendar worker
type calendarSyncRequest struct {
	ExternalID string     `json:"externalId"`
	EventID    string     `json:"eventId"`
	ItemID     string     `json:"itemId"`
	HostEmail  string     `json:"hostEmail"`
	Title      string     `json:"title"`
	Notes      string     `json:"notes,omitempty"`
	StartsAt   time.Time  `json:"startsAt"`
	EndsAt     *time.Time `json:"endsAt,omitempty"`
	TimeZone   string     `json:"timeZone,omitempty"`
	Location   string     `json:"location,omitempty"`
}

// KafkaCalendarSyncer hands sync requests to the calendar worker over Kafka
type KafkaCalendarSyncer struct {
	producer *kafka.Producer
	topic    string
}

// NewKafkaCalendarSyncer creates a syncer on an existing producer
func NewKafkaCalendarSyncer(producer *kafka.Producer, topic string) *KafkaCalendarSyncer {
	if topic == "" {
		topic = "calendar-sync"
	}
	return &KafkaCalendarSyncer{producer: producer, topic: topic}
}

// Sync publishes the item and returns its external id once the broker acknowledged it
func (k *KafkaCalendarSyncer) Sync(ctx context.Context, event *domain.Event, item *domain.TimelineItem) (string, error) {
	req := calendarSyncRequest{
		ExternalID: ExternalEventID(item.ID),
		EventID:    event.ID,
		ItemID:     item.ID,
		HostEmail:  event.HostEmail,
		Title:      item.Title,
		Notes:      item.Notes,
		StartsAt:   item.StartsAt,
		EndsAt:     item.EndsAt,
		TimeZone:   event.TimeZone,
		Location:   event.VenueName,
	}
	value, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal calendar sync: %w", err)
	}

	err = k.producer.Produce(ctx, &kafka.Message{
		Topic:     k.topic,
		Key:       []byte(event.ID),
		Value:     value,
		Headers:   map[string]string{"content_type": "application/json"},
		Timestamp: time.Now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish calendar sync: %w", err)
	}
	return req.ExternalID, nil
}

// LocalCalendarSyncer accepts every item without contacting a calendar
type LocalCalendarSyncer struct{}

// NewLocalCalendarSyncer creates a new local syncer
func NewLocalCalendarSyncer() *LocalCalendarSyncer {
	return &LocalCalendarSyncer{}
}

// Sync returns the external id the item would have
func (l *LocalCalendarSyncer) Sync(ctx context.Context, event *domain.Event, item *domain.TimelineItem) (string, error) {
	return ExternalEventID(item.ID), nil
}
