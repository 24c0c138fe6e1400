package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
)

func TestAddonService_RequestAddons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.bookedEvent(t)

	created, err := f.addons.RequestAddons(ctx, hostActor, event.ID, []string{"Photo Booth", "  Glow   Sticks "})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "photo_booth", created[0].ServiceID)
	assert.Equal(t, "Glow Sticks", created[1].ServiceName)
	for _, rs := range created {
		assert.Equal(t, domain.RequestedServiceRequested, rs.Status)
		assert.Equal(t, "host:host-1", rs.RequestedBy)
	}
	assert.Contains(t, f.notifier.Kinds(), NotificationAddonRequested)

	pending, err := f.addons.ListServiceRequests(ctx, adminActor, event.ID, domain.RequestedServiceRequested)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestAddonService_RequestAddons_Duplicates(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		wantErr error
	}{
		{name: "selected at conversion", names: []string{"360 Booth"}, wantErr: domain.ErrDuplicateRequest},
		{name: "selected by id", names: []string{"360-booth"}, wantErr: domain.ErrDuplicateRequest},
		{name: "repeated in input", names: []string{"Photo Booth", "photo  booth"}, wantErr: domain.ErrDuplicateRequest},
		{name: "empty list", names: nil, wantErr: domain.ErrValidation},
		{name: "blank name", names: []string{"Uplighting", " "}, wantErr: domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			event := f.bookedEvent(t)
			before := f.memory.Count(domain.EntityRequestedService)

			_, err := f.addons.RequestAddons(context.Background(), hostActor, event.ID, tt.names)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, f.memory.Count(domain.EntityRequestedService))
		})
	}
}

func TestAddonService_RequestAgainAfterDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.bookedEvent(t)

	first, err := f.addons.RequestAddons(ctx, hostActor, event.ID, []string{"Photo Booth"})
	require.NoError(t, err)

	_, err = f.addons.RequestAddons(ctx, hostActor, event.ID, []string{"photo booth"})
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)

	rejected, err := f.addons.RejectServiceRequest(ctx, adminActor, event.ID, first[0].ID, "sold out that night")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestedServiceRejected, rejected.Status)
	assert.Equal(t, "sold out that night", rejected.Reason)

	second, err := f.addons.RequestAddons(ctx, hostActor, event.ID, []string{"Photo Booth"})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].ID, second[0].ID)

	_, err = f.addons.ApproveServiceRequest(ctx, adminActor, event.ID, second[0].ID)
	require.NoError(t, err)

	_, err = f.addons.RequestAddons(ctx, hostActor, event.ID, []string{"Photo Booth"})
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
}

func TestAddonService_Decisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.bookedEvent(t)

	created, err := f.addons.RequestAddons(ctx, hostActor, event.ID, []string{"Cold Sparklers"})
	require.NoError(t, err)
	id := created[0].ID

	_, err = f.addons.ApproveServiceRequest(ctx, hostActor, event.ID, id)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.addons.ApproveServiceRequest(ctx, adminActor, "another-event", id)
	assert.ErrorIs(t, err, domain.ErrRequestedServiceNotFound)

	approved, err := f.addons.ApproveServiceRequest(ctx, adminActor, event.ID, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestedServiceApproved, approved.Status)
	assert.Equal(t, "admin:admin-1", approved.DecidedBy)
	require.NotNil(t, approved.DecidedAt)

	_, err = f.addons.ApproveServiceRequest(ctx, adminActor, event.ID, id)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.NotErrorIs(t, err, domain.ErrTerminalState)

	_, err = f.addons.RejectServiceRequest(ctx, adminActor, event.ID, id, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	selected, err := f.addons.ListServiceRequests(ctx, adminActor, event.ID, domain.RequestedServiceSelected)
	require.NoError(t, err)
	require.Len(t, selected, 1)
	_, err = f.addons.ApproveServiceRequest(ctx, adminActor, event.ID, selected[0].ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestAddonService_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.bookedEvent(t)

	_, err := f.addons.RequestAddons(ctx, otherHost, event.ID, []string{"Uplighting"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.addons.ListServiceRequests(ctx, otherHost, event.ID, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.addons.RequestAddons(ctx, hostActor, "missing", []string{"Uplighting"})
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	_, err = f.events.CompleteEvent(ctx, adminActor, event.ID)
	require.NoError(t, err)
	_, err = f.addons.RequestAddons(ctx, hostActor, event.ID, []string{"Uplighting"})
	assert.ErrorIs(t, err, domain.ErrTerminalState)
}

func TestAddonService_ConcurrentApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.bookedEvent(t)

	created, err := f.addons.RequestAddons(ctx, hostActor, event.ID, []string{"Photo Booth"})
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		errs      []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.addons.ApproveServiceRequest(ctx, adminActor, event.ID, created[0].ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range errs {
		assert.True(t, errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrVersionConflict), "unexpected error: %v", err)
	}

	list, err := f.addons.ListServiceRequests(ctx, adminActor, event.ID, domain.RequestedServiceApproved)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
