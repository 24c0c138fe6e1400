package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/internal/repository"
)

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	NotifyFunc func(ctx context.Context, n *Notification) error

	mu   sync.Mutex
	sent []*Notification
}

func (m *MockNotifier) Notify(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	m.sent = append(m.sent, n)
	m.mu.Unlock()
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, n)
	}
	return nil
}

func (m *MockNotifier) Close() error { return nil }

// Kinds returns the kinds of every notification sent so far
func (m *MockNotifier) Kinds() []NotificationKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NotificationKind, 0, len(m.sent))
	for _, n := range m.sent {
		out = append(out, n.Kind)
	}
	return out
}

// MockCalendarSyncer is a mock implementation of CalendarSyncer
type MockCalendarSyncer struct {
	SyncFunc func(ctx context.Context, event *domain.Event, item *domain.TimelineItem) (string, error)
	calls    int32
}

func (m *MockCalendarSyncer) Sync(ctx context.Context, event *domain.Event, item *domain.TimelineItem) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.SyncFunc != nil {
		return m.SyncFunc(ctx, event, item)
	}
	return ExternalEventID(item.ID), nil
}

func (m *MockCalendarSyncer) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

// MockBlobStore is a mock implementation of BlobStore that keeps blobs in memory
type MockBlobStore struct {
	PutFunc func(ctx context.Context, key string, blob *Blob) (*StoredBlob, error)

	mu    sync.Mutex
	blobs map[string][]byte
}

func (m *MockBlobStore) Put(ctx context.Context, key string, blob *Blob) (*StoredBlob, error) {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, key, blob)
	}
	data, err := io.ReadAll(blob.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blobs == nil {
		m.blobs = map[string][]byte{}
	}
	m.blobs[key] = data
	return &StoredBlob{URL: "/files/" + key, ContentType: blob.ContentType, Size: int64(len(data))}, nil
}

func (m *MockBlobStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

// flakyStore fails the first n Get calls with ErrStoreUnavailable
type flakyStore struct {
	repository.Store
	failures int32
	calls    int32
}

func (f *flakyStore) Get(ctx context.Context, entity domain.EntityType, id string) (*repository.Record, error) {
	atomic.AddInt32(&f.calls, 1)
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, fmt.Errorf("dial tcp 10.0.0.5:5432: connection refused: %w", domain.ErrStoreUnavailable)
	}
	return f.Store.Get(ctx, entity, id)
}

// failingStore fails every Patch of one entity type, inside transactions too
type failingStore struct {
	repository.Store
	entity domain.EntityType
	err    error
}

func (f *failingStore) Patch(ctx context.Context, entity domain.EntityType, id string, partial map[string]interface{}, expectedVersion int64) (*repository.Record, error) {
	if entity == f.entity {
		return nil, f.err
	}
	return f.Store.Patch(ctx, entity, id, partial, expectedVersion)
}

func (f *failingStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	return f.Store.WithTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return fn(ctx, &failingStore{Store: tx, entity: f.entity, err: f.err})
	})
}

// testClock is a settable clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

var (
	testNow = time.Date(2026, 10, 1, 15, 0, 0, 0, time.UTC)

	adminActor = domain.Actor{Role: domain.RoleAdmin, UserID: "admin-1", Email: "ops@urevent360.com"}
	hostActor  = domain.Actor{Role: domain.RoleHost, UserID: "host-1", Email: "maria@example.com"}
	otherHost  = domain.Actor{Role: domain.RoleHost, UserID: "host-2", Email: "jon@example.com"}
)

// fixture wires every service against one memory store
type fixture struct {
	store    repository.Store
	memory   *repository.MemoryStore
	clock    *testClock
	notifier *MockNotifier
	syncer   *MockCalendarSyncer
	blobs    *MockBlobStore
	base     BaseConfig

	leads    LeadService
	events   EventService
	addons   AddonService
	changes  ChangeRequestService
	timeline TimelineService
	gallery  GalleryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	memory := repository.NewMemoryStore()
	return newFixtureWithStore(t, memory, memory)
}

func newFixtureWithStore(t *testing.T, store repository.Store, memory *repository.MemoryStore) *fixture {
	t.Helper()
	f := &fixture{
		store:    store,
		memory:   memory,
		clock:    &testClock{now: testNow},
		notifier: &MockNotifier{},
		syncer:   &MockCalendarSyncer{},
		blobs:    &MockBlobStore{},
	}
	base := BaseConfig{
		Retry: &RetryConfig{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
		Now:   f.clock.Now,
	}
	f.base = base

	f.leads = NewLeadService(store, f.notifier, nil, &LeadServiceConfig{
		BaseConfig:                  base,
		GalleryReleaseDelayDays:     2,
		GalleryVisibilityWindowDays: 30,
		ProjectNumberPrefix:         "UE",
	})
	f.events = NewEventService(store, f.notifier, nil, &EventServiceConfig{BaseConfig: base, DefaultDepositPercent: 30})
	f.addons = NewAddonService(store, f.notifier, nil, &AddonServiceConfig{BaseConfig: base})
	f.changes = NewChangeRequestService(store, f.notifier, nil, &base)
	f.timeline = NewTimelineService(store, f.syncer, nil, &base)
	f.gallery = NewGalleryService(store, f.blobs, nil, &base)
	return f
}

func newSubmission() *domain.LeadSubmission {
	return &domain.LeadSubmission{
		HostEmail: "Maria@Example.com ",
		EventDraft: domain.EventDetails{
			Name:       "Maria's Quinceañera",
			Type:       "quinceanera",
			GuestCount: 150,
			Date:       "2026-11-14",
			TimeWindow: "6 PM - 11 PM",
			TimeZone:   "America/New_York",
			VenueName:  "Crystal Ballroom",
			City:       "Orlando",
			State:      "FL",
			OnsiteContact: domain.OnsiteContact{
				Name:  "Rosa",
				Phone: "+1 407 555 0100",
			},
		},
		RequestedServices: []domain.RequestedServiceLine{{ServiceID: "360_booth", Title: "360 Booth", Qty: 1}},
	}
}

// acceptedLead creates a lead and walks it to accepted
func (f *fixture) acceptedLead(t *testing.T) *domain.Lead {
	t.Helper()
	ctx := context.Background()
	lead, err := f.leads.CreateLead(ctx, domain.Guest(), newSubmission())
	require.NoError(t, err)
	_, err = f.leads.SendQuote(ctx, adminActor, lead.ID)
	require.NoError(t, err)
	lead, err = f.leads.MarkAccepted(ctx, hostActor, lead.ID)
	require.NoError(t, err)
	return lead
}

// newEvent converts a fresh lead and returns the event in quote_requested
func (f *fixture) newEvent(t *testing.T) *domain.Event {
	t.Helper()
	lead := f.acceptedLead(t)
	res, err := f.leads.ConvertToEvent(context.Background(), adminActor, lead.ID)
	require.NoError(t, err)
	view, err := f.events.GetEvent(context.Background(), adminActor, res.EventID)
	require.NoError(t, err)
	return view.Event
}

// bookedEvent invoices a new event and simulates the deposit
func (f *fixture) bookedEvent(t *testing.T) *domain.Event {
	t.Helper()
	event := f.newEvent(t)
	_, err := f.events.CreateInvoice(context.Background(), adminActor, event.ID, &InvoiceInput{Total: 1000})
	require.NoError(t, err)
	res, err := f.events.SimulateDepositPaid(context.Background(), adminActor, event.ID)
	require.NoError(t, err)
	return res.Event
}
