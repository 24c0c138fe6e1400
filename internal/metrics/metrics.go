package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/urevent360-byte/urevent360-plus/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Lifecycle counters
	LeadTransitions  *telemetry.Counter
	EventTransitions *telemetry.Counter
	LeadsConverted   *telemetry.Counter

	// Workflow counters
	AddonDecisions         *telemetry.Counter
	ChangeRequestDecisions *telemetry.Counter
	PaymentsApplied        *telemetry.Counter
	GuestUploads           *telemetry.Counter

	// Concurrency and collaborator failures
	VersionConflicts     *telemetry.Counter
	StoreRetries         *telemetry.Counter
	NotificationFailures *telemetry.Counter
	CalendarSyncFailures *telemetry.Counter

	// Histograms
	OperationDuration *telemetry.Histogram

	initOnce sync.Once
	initErr  error
)

// Init initializes all portal metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		target **telemetry.Counter
		opts   telemetry.MetricOpts
	}{
		{&LeadTransitions, telemetry.MetricOpts{Name: "portal_lead_transitions_total", Description: "Lead status transitions", Unit: "1"}},
		{&EventTransitions, telemetry.MetricOpts{Name: "portal_event_transitions_total", Description: "Event status transitions", Unit: "1"}},
		{&LeadsConverted, telemetry.MetricOpts{Name: "portal_leads_converted_total", Description: "Leads converted into events", Unit: "1"}},
		{&AddonDecisions, telemetry.MetricOpts{Name: "portal_addon_decisions_total", Description: "Add-on requests approved or rejected", Unit: "1"}},
		{&ChangeRequestDecisions, telemetry.MetricOpts{Name: "portal_change_request_decisions_total", Description: "Change requests approved or rejected", Unit: "1"}},
		{&PaymentsApplied, telemetry.MetricOpts{Name: "portal_payments_applied_total", Description: "Payments appended to invoice history", Unit: "1"}},
		{&GuestUploads, telemetry.MetricOpts{Name: "portal_guest_uploads_total", Description: "Files uploaded through event QR tokens", Unit: "1"}},
		{&VersionConflicts, telemetry.MetricOpts{Name: "portal_version_conflicts_total", Description: "Optimistic concurrency conflicts", Unit: "1"}},
		{&StoreRetries, telemetry.MetricOpts{Name: "portal_store_retries_total", Description: "Operations retried after a retryable store error", Unit: "1"}},
		{&NotificationFailures, telemetry.MetricOpts{Name: "portal_notification_failures_total", Description: "Notifications that could not be published", Unit: "1"}},
		{&CalendarSyncFailures, telemetry.MetricOpts{Name: "portal_calendar_sync_failures_total", Description: "Timeline items that failed to sync", Unit: "1"}},
	}

	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.opts)
		if err != nil {
			return err
		}
		*c.target = counter
	}

	var err error
	OperationDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "portal_operation_duration_ms",
		Description: "Duration of core operations",
		Unit:        "ms",
	})
	return err
}

// RecordLeadTransition records a lead moving to a new status
func RecordLeadTransition(ctx context.Context, to string) {
	LeadTransitions.Inc(ctx, attribute.String("to", to))
}

// RecordEventTransition records an event moving to a new status
func RecordEventTransition(ctx context.Context, from, to string) {
	EventTransitions.Inc(ctx, attribute.String("from", from), attribute.String("to", to))
}

// RecordLeadConverted records a lead conversion
func RecordLeadConverted(ctx context.Context) {
	LeadsConverted.Inc(ctx)
}

// RecordAddonDecision records an add-on decision
func RecordAddonDecision(ctx context.Context, decision string) {
	AddonDecisions.Inc(ctx, attribute.String("decision", decision))
}

// RecordChangeRequestDecision records a change request decision
func RecordChangeRequestDecision(ctx context.Context, decision string) {
	ChangeRequestDecisions.Inc(ctx, attribute.String("decision", decision))
}

// RecordPaymentApplied records a payment history entry
func RecordPaymentApplied(ctx context.Context, method string) {
	PaymentsApplied.Inc(ctx, attribute.String("method", method))
}

// RecordGuestUpload records a guest upload
func RecordGuestUpload(ctx context.Context) {
	GuestUploads.Inc(ctx)
}

// RecordVersionConflict records a lost optimistic write
func RecordVersionConflict(ctx context.Context, operation string) {
	VersionConflicts.Inc(ctx, attribute.String("operation", operation))
}

// RecordStoreRetry records a retry of a whole operation
func RecordStoreRetry(ctx context.Context, operation, reason string) {
	StoreRetries.Inc(ctx, attribute.String("operation", operation), attribute.String("reason", reason))
}

// RecordNotificationFailure records a notification that was dropped
func RecordNotificationFailure(ctx context.Context, kind string) {
	NotificationFailures.Inc(ctx, attribute.String("kind", kind))
}

// RecordCalendarSyncFailure records a failed calendar sync
func RecordCalendarSyncFailure(ctx context.Context) {
	CalendarSyncFailures.Inc(ctx)
}

// RecordOperationDuration records how long an operation took
func RecordOperationDuration(ctx context.Context, operation string, d time.Duration, ok bool) {
	OperationDuration.Record(ctx, float64(d.Microseconds())/1000.0,
		attribute.String("operation", operation),
		attribute.Bool("success", ok),
	)
}
