package repository

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urevent360-byte/urevent360-plus/internal/domain"
)

func TestInsertGetSave(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	event := &domain.Event{
		ID:     "evt-1",
		Status: domain.EventStatusQuoteRequested,
		EventDetails: domain.EventDetails{
			Name:       "Gala",
			GuestCount: 150,
			Date:       "2026-11-14",
			TimeWindow: "6 PM - 11 PM",
		},
		GalleryPolicy: &domain.GalleryPolicy{ReleaseDelayDays: 2, VisibilityWindowDays: 90},
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, Insert(ctx, store, domain.EntityEvent, event))
	assert.Equal(t, int64(1), event.Version)

	rec, err := store.Get(ctx, domain.EntityEvent, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "Gala", rec.Data["name"], "details are stored flat")
	assert.NotContains(t, rec.Data, "version")

	loaded, err := Get[domain.Event](ctx, store, domain.EntityEvent, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 150, loaded.GuestCount)
	assert.Equal(t, int64(1), loaded.Version)
	assert.True(t, event.CreatedAt.Equal(loaded.CreatedAt))

	loaded.Status = domain.EventStatusInvoiceSent
	require.NoError(t, Save(ctx, store, domain.EntityEvent, loaded))
	assert.Equal(t, int64(2), loaded.Version)

	// a stale copy loses
	event.Status = domain.EventStatusCanceled
	assert.ErrorIs(t, Save(ctx, store, domain.EntityEvent, event), domain.ErrVersionConflict)
}

func TestList_Typed(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"cr-1", "cr-2"} {
		require.NoError(t, Insert(ctx, store, domain.EntityChangeRequest, &domain.ChangeRequest{
			ID:            id,
			EventID:       "evt-1",
			Status:        domain.ChangeRequestPending,
			ProposedPatch: map[string]interface{}{"timeWindow": "7 PM - 1 AM"},
		}))
	}

	got, err := List[domain.ChangeRequest](ctx, store, domain.EntityChangeRequest, Where("eventId", "evt-1"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "7 PM - 1 AM", got[0].ProposedPatch["timeWindow"])
	assert.Equal(t, int64(1), got[1].Version)
}

func TestSave_ClearsOmittedFields(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	event := &domain.Event{
		ID:             "evt-1",
		Status:         domain.EventStatusBooked,
		EventDetails:   domain.EventDetails{Name: "Gala", Date: "2026-11-14", Notes: "bring the gold backdrop"},
		PhotoboothLink: "https://booth.example.com/evt-1",
		GalleryPolicy:  &domain.GalleryPolicy{ReleaseDelayDays: 2},
	}
	require.NoError(t, Insert(ctx, store, domain.EntityEvent, event))

	event.PhotoboothLink = ""
	event.Notes = ""
	event.GalleryPolicy = nil
	require.NoError(t, Save(ctx, store, domain.EntityEvent, event))
	assert.Equal(t, int64(2), event.Version)

	loaded, err := Get[domain.Event](ctx, store, domain.EntityEvent, "evt-1")
	require.NoError(t, err)
	assert.Empty(t, loaded.PhotoboothLink)
	assert.Empty(t, loaded.Notes)
	assert.Nil(t, loaded.GalleryPolicy)
	assert.Equal(t, "Gala", loaded.Name)

	rec, err := store.Get(ctx, domain.EntityEvent, "evt-1")
	require.NoError(t, err)
	assert.NotContains(t, rec.Data, "version")
}

func TestFieldNames_FlattensEmbedded(t *testing.T) {
	names := fieldNames(reflect.TypeOf(&domain.Event{}))
	assert.Contains(t, names, "photoboothLink")
	assert.Contains(t, names, "timeWindow")
	assert.Contains(t, names, "version")
	assert.NotContains(t, names, "EventDetails")
}
