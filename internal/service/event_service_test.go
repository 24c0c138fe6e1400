package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/entitlement"
	"github.com/urevent360-byte/urevent360-plus/internal/repository"
)

func float(v float64) *float64 { return &v }

func TestEventService_DepositScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.newEvent(t)

	invoice, err := f.events.CreateInvoice(ctx, adminActor, event.ID, &InvoiceInput{Total: 1000, DepositRequired: float(300)})
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusInvoiceSent, invoice.Event.Status)
	assert.Equal(t, domain.PaymentStatusUnpaid, invoice.Payment.Status)
	assert.True(t, invoice.Payment.IsActive)
	assert.Equal(t, 1000.0, invoice.Payment.Remaining)
	assert.True(t, entitlement.IsPortalLocked(invoice.Event))

	res, err := f.events.SimulateDepositPaid(ctx, adminActor, event.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.EventStatusBooked, res.Event.Status)
	assert.GreaterOrEqual(t, res.Payment.DepositPaid, 300.0)
	assert.Equal(t, 1000.0-res.Payment.DepositPaid, res.Payment.Remaining)
	assert.Equal(t, domain.PaymentStatusDepositPaid, res.Payment.Status)
	require.Len(t, res.Payment.History, 1)
	assert.Equal(t, domain.PaymentMethodSimulated, res.Payment.History[0].Method)
	assert.Equal(t, "admin:admin-1", res.Payment.History[0].AppliedBy)
	assert.False(t, entitlement.IsPortalLocked(res.Event))

	view, err := f.events.GetEvent(ctx, hostActor, event.ID)
	require.NoError(t, err)
	assert.False(t, view.Entitlements.PortalLocked)

	stored, err := f.events.GetActivePayment(ctx, hostActor, event.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Payment.DepositPaid, stored.DepositPaid)

	assert.Contains(t, f.notifier.Kinds(), NotificationInvoiceCreated)
	assert.Contains(t, f.notifier.Kinds(), NotificationEventBooked)
}

func TestEventService_CreateInvoice_DefaultDeposit(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t)

	res, err := f.events.CreateInvoice(context.Background(), adminActor, event.ID, &InvoiceInput{Total: 1250})
	require.NoError(t, err)
	assert.Equal(t, 375.0, res.Payment.DepositRequired)
	assert.Equal(t, "INV-"+event.ProjectNumber+"-1", res.Payment.InvoiceID)
}

func TestEventService_CreateInvoice_VoidsPreviousActivePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.newEvent(t)

	old, err := domain.NewPayment("pay-old", event.ID, "INV-OLD", 800, 200, testNow)
	require.NoError(t, err)
	require.NoError(t, repository.Insert(ctx, f.store, domain.EntityPayment, old))

	res, err := f.events.CreateInvoice(ctx, adminActor, event.ID, &InvoiceInput{Total: 1000, InvoiceID: "INV-77"})
	require.NoError(t, err)
	assert.Equal(t, "INV-77", res.Payment.InvoiceID)

	voided, err := repository.Get[domain.Payment](ctx, f.store, domain.EntityPayment, "pay-old")
	require.NoError(t, err)
	assert.False(t, voided.IsActive)
	assert.Equal(t, domain.PaymentStatusVoid, voided.Status)

	active, err := f.events.GetActivePayment(ctx, adminActor, event.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Payment.ID, active.ID)
}

func TestEventService_CreateInvoice_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		actor   domain.Actor
		input   *InvoiceInput
		prepare func(f *fixture, id string)
		wantErr error
	}{
		{name: "host", actor: hostActor, input: &InvoiceInput{Total: 100}, wantErr: domain.ErrForbidden},
		{name: "zero total", actor: adminActor, input: &InvoiceInput{Total: 0}, wantErr: domain.ErrValidation},
		{name: "deposit above total", actor: adminActor, input: &InvoiceInput{Total: 100, DepositRequired: float(150)}, wantErr: domain.ErrValidation},
		{
			name:  "already invoiced",
			actor: adminActor,
			input: &InvoiceInput{Total: 100},
			prepare: func(f *fixture, id string) {
				_, err := f.events.CreateInvoice(context.Background(), adminActor, id, &InvoiceInput{Total: 100})
				require.NoError(t, err)
			},
			wantErr: domain.ErrInvalidTransition,
		},
		{
			name:  "canceled",
			actor: adminActor,
			input: &InvoiceInput{Total: 100},
			prepare: func(f *fixture, id string) {
				_, err := f.events.CancelEvent(context.Background(), adminActor, id)
				require.NoError(t, err)
			},
			wantErr: domain.ErrTerminalState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			event := f.newEvent(t)
			if tt.prepare != nil {
				tt.prepare(f, event.ID)
			}
			before := f.memory.Count(domain.EntityPayment)

			_, err := f.events.CreateInvoice(context.Background(), tt.actor, event.ID, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, f.memory.Count(domain.EntityPayment))
		})
	}
}

func TestEventService_SimulateDepositPaid_RequiresInvoice(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t)

	_, err := f.events.SimulateDepositPaid(context.Background(), adminActor, event.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	view, err := f.events.GetEvent(context.Background(), adminActor, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusQuoteRequested, view.Event.Status)
}

func TestEventService_SimulateDepositPaid_FromDepositDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.newEvent(t)

	_, err := f.events.CreateInvoice(ctx, adminActor, event.ID, &InvoiceInput{Total: 500, DepositRequired: float(0)})
	require.NoError(t, err)
	_, err = f.events.MarkDepositDue(ctx, adminActor, event.ID)
	require.NoError(t, err)

	res, err := f.events.SimulateDepositPaid(ctx, adminActor, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusBooked, res.Event.Status)
	// without a required deposit the whole balance is applied
	assert.Equal(t, domain.PaymentStatusPaidInFull, res.Payment.Status)
	assert.Equal(t, 0.0, res.Payment.Remaining)
}

func TestEventService_RecordPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.newEvent(t)

	_, err := f.events.CreateInvoice(ctx, adminActor, event.ID, &InvoiceInput{Total: 1000, DepositRequired: float(300)})
	require.NoError(t, err)

	res, err := f.events.RecordPayment(ctx, adminActor, event.ID, &PaymentInput{Amount: 100, Note: "check #1021"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusUnpaid, res.Payment.Status)
	assert.Equal(t, domain.EventStatusInvoiceSent, res.Event.Status)

	res, err = f.events.RecordPayment(ctx, adminActor, event.ID, &PaymentInput{Amount: 200})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusDepositPaid, res.Payment.Status)
	assert.Equal(t, domain.EventStatusBooked, res.Event.Status)

	res, err = f.events.RecordPayment(ctx, adminActor, event.ID, &PaymentInput{Amount: 700, Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaidInFull, res.Payment.Status)
	assert.Equal(t, 0.0, res.Payment.Remaining)
	assert.Len(t, res.Payment.History, 3)

	_, err = f.events.RecordPayment(ctx, adminActor, event.ID, &PaymentInput{Amount: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.events.RecordPayment(ctx, adminActor, event.ID, &PaymentInput{Amount: -5})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEventService_MarkContractSigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.newEvent(t)

	signed, err := f.events.MarkContractSigned(ctx, hostActor, event.ID)
	require.NoError(t, err)
	assert.True(t, signed.ContractSigned)
	require.NotNil(t, signed.ContractSignedAt)
	assert.Equal(t, domain.EventStatusQuoteRequested, signed.Status)

	again, err := f.events.MarkContractSigned(ctx, adminActor, event.ID)
	require.NoError(t, err)
	assert.True(t, again.ContractSigned)
	assert.Equal(t, signed.Version, again.Version)

	_, err = f.events.MarkContractSigned(ctx, otherHost, event.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.events.CancelEvent(ctx, adminActor, event.ID)
	require.NoError(t, err)
	_, err = f.events.MarkContractSigned(ctx, hostActor, event.ID)
	assert.ErrorIs(t, err, domain.ErrTerminalState)
}

func TestEventService_StatusMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.newEvent(t)

	_, err := f.events.CompleteEvent(ctx, adminActor, event.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	sent, err := f.events.SendContract(ctx, adminActor, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusContractSent, sent.Status)
	assert.Contains(t, f.notifier.Kinds(), NotificationContractSent)

	_, err = f.events.SendContract(ctx, adminActor, event.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.events.CreateInvoice(ctx, adminActor, event.ID, &InvoiceInput{Total: 1000})
	require.NoError(t, err)
	_, err = f.events.SimulateDepositPaid(ctx, adminActor, event.ID)
	require.NoError(t, err)

	done, err := f.events.CompleteEvent(ctx, adminActor, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusCompleted, done.Status)

	_, err = f.events.CancelEvent(ctx, adminActor, event.ID)
	assert.ErrorIs(t, err, domain.ErrTerminalState)
	_, err = f.events.SendContract(ctx, adminActor, event.ID)
	assert.ErrorIs(t, err, domain.ErrTerminalState)

	_, err = f.events.CancelEvent(ctx, hostActor, event.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestEventService_UploadToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.newEvent(t)

	paused, err := f.events.PauseUploads(ctx, adminActor, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QRUploadPaused, paused.QRUpload.Status)
	assert.False(t, entitlement.IsUploadTokenActive(paused, testNow))

	resumed, err := f.events.ResumeUploads(ctx, adminActor, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QRUploadActive, resumed.QRUpload.Status)
	assert.Equal(t, event.QRUpload.Token, resumed.QRUpload.Token)

	_, err = f.events.ResumeUploads(ctx, adminActor, event.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.events.PauseUploads(ctx, hostActor, event.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.events.CancelEvent(ctx, adminActor, event.ID)
	require.NoError(t, err)
	_, err = f.events.PauseUploads(ctx, adminActor, event.ID)
	assert.ErrorIs(t, err, domain.ErrTerminalState)

	expired, err := f.events.ExpireUploads(ctx, adminActor, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QRUploadExpired, expired.QRUpload.Status)

	_, err = f.events.ExpireUploads(ctx, adminActor, event.ID)
	assert.ErrorIs(t, err, domain.ErrTerminalState)
}

func TestEventService_ListEvents_Scoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.newEvent(t)
	f.bookedEvent(t)

	own, err := f.events.ListEvents(ctx, hostActor, "")
	require.NoError(t, err)
	assert.Len(t, own, 2)

	booked, err := f.events.ListEvents(ctx, adminActor, domain.EventStatusBooked)
	require.NoError(t, err)
	require.Len(t, booked, 1)
	assert.False(t, booked[0].Entitlements.PortalLocked)

	none, err := f.events.ListEvents(ctx, otherHost, "")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.events.GetEvent(ctx, otherHost, booked[0].Event.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestEventService_RetriesStoreUnavailable(t *testing.T) {
	memory := repository.NewMemoryStore()
	seed := newFixtureWithStore(t, memory, memory)
	event := seed.newEvent(t)

	flaky := &flakyStore{Store: memory, failures: 2}
	f := newFixtureWithStore(t, flaky, memory)
	view, err := f.events.GetEvent(context.Background(), adminActor, event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.ID, view.Event.ID)
	assert.Equal(t, int32(3), flaky.calls)

	flaky = &flakyStore{Store: memory, failures: 3}
	f = newFixtureWithStore(t, flaky, memory)
	_, err = f.events.GetEvent(context.Background(), adminActor, event.ID)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, int32(3), flaky.calls)
}

func TestEventService_GalleryWindowInView(t *testing.T) {
	f := newFixture(t)
	event := f.bookedEvent(t)

	view, err := f.events.GetEvent(context.Background(), hostActor, event.ID)
	require.NoError(t, err)
	assert.False(t, view.Entitlements.GalleryVisible)
	require.NotNil(t, view.Entitlements.GalleryReleaseAt)

	// 2026-11-14 in New York plus the two day delay
	want := time.Date(2026, 11, 16, 0, 0, 0, 0, event.Location())
	assert.True(t, want.Equal(*view.Entitlements.GalleryReleaseAt))

	f.clock.Set(want)
	view, err = f.events.GetEvent(context.Background(), hostActor, event.ID)
	require.NoError(t, err)
	assert.True(t, view.Entitlements.GalleryVisible)
}
