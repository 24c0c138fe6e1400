package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/urevent360-byte/urevent360-plus/internal/metrics"
	"github.com/urevent360-byte/urevent360-plus/pkg/kafka"
	"github.com/urevent360-byte/urevent360-plus/pkg/logger"
	"go.uber.org/zap"
)

// NotificationKind identifies the template the mailer renders
type NotificationKind string

const (
	NotificationLeadReceived          NotificationKind = "lead.received"
	NotificationQuoteSent             NotificationKind = "lead.quote_sent"
	NotificationContractSent          NotificationKind = "event.contract_sent"
	NotificationInvoiceCreated        NotificationKind = "event.invoice_created"
	NotificationEventBooked           NotificationKind = "event.booked"
	NotificationAddonRequested        NotificationKind = "addon.requested"
	NotificationChangeRequested       NotificationKind = "change_request.submitted"
	NotificationChangeRequestDecision NotificationKind = "change_request.decided"
)

// Notification is one message for the notification collaborator
type Notification struct {
	ID         string                 `json:"id"`
	Kind       NotificationKind       `json:"kind"`
	Recipient  string                 `json:"recipient,omitempty"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Data       map[string]interface{} `json:"data,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// Notifier delivers notifications. Callers never fail an operation on its error.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
	Close() error
}

// KafkaNotifier publishes notifications as JSON to a Kafka topic
type KafkaNotifier struct {
	producer    *kafka.Producer
	topic       string
	serviceName string
}

// NotifierConfig contains configuration for the Kafka notifier
type NotifierConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaNotifier creates a new Kafka notifier
func NewKafkaNotifier(ctx context.Context, cfg *NotifierConfig) (*KafkaNotifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notifier config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "portal-notifications"
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "portal-api"
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = serviceName + "-notifier"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		BatchSize:     100,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaNotifier{producer: producer, topic: topic, serviceName: serviceName}, nil
}

// Notify publishes n keyed by its entity so one record's notifications stay ordered
func (k *KafkaNotifier) Notify(ctx context.Context, n *Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := &kafka.Message{
		Topic: k.topic,
		Key:   []byte(n.EntityType + ":" + n.EntityID),
		Value: value,
		Headers: map[string]string{
			"notification_kind": string(n.Kind),
			"notification_id":   n.ID,
			"source":            k.serviceName,
			"content_type":      "application/json",
		},
		Timestamp: n.CreatedAt,
	}
	if err := k.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s notification: %w", n.Kind, err)
	}
	return nil
}

// Producer exposes the underlying producer so other publishers can share the connection
func (k *KafkaNotifier) Producer() *kafka.Producer {
	return k.producer
}

// Close flushes and closes the producer
func (k *KafkaNotifier) Close() error {
	if k.producer != nil {
		k.producer.Close()
	}
	return nil
}

// NoOpNotifier drops every notification
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new no-op notifier
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Notify is a no-op
func (n *NoOpNotifier) Notify(ctx context.Context, notification *Notification) error {
	return nil
}

// Close is a no-op
func (n *NoOpNotifier) Close() error {
	return nil
}

// notifier wraps a Notifier so failures are logged and counted, never returned
type notifier struct {
	next    Notifier
	log     *logger.Logger
	now     func() time.Time
	timeout time.Duration
}

const defaultNotifyTimeout = 3 * time.Second

func newNotifier(next Notifier, log *logger.Logger, now func() time.Time, timeout time.Duration) *notifier {
	if next == nil {
		next = NewNoOpNotifier()
	}
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &notifier{next: next, log: log, now: now, timeout: timeout}
}

func (n *notifier) send(ctx context.Context, kind NotificationKind, recipient, entityType, entityID string, data map[string]interface{}) {
	msg := &Notification{
		ID:         uuid.New().String(),
		Kind:       kind,
		Recipient:  recipient,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
		CreatedAt:  n.now().UTC(),
	}
	// publishes never outlive the notify timeout, whatever the request deadline
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.next.Notify(ctx, msg); err != nil {
		metrics.RecordNotificationFailure(ctx, string(kind))
		n.log.WarnContext(ctx, "notification not delivered",
			zap.String("kind", string(kind)),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}
