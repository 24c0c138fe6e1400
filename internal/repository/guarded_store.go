package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GuardedStore bounds every call of the wrapped Store with a timeout and traces it.
// A call that runs out of time returns domain.ErrStoreUnavailable.
type GuardedStore struct {
	next    Store
	timeout time.Duration
}

// NewGuardedStore wraps next. A non-positive timeout defaults to 5s.
func NewGuardedStore(next Store, timeout time.Duration) *GuardedStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &GuardedStore{next: next, timeout: timeout}
}

// Unwrap returns the wrapped store
func (g *GuardedStore) Unwrap() Store {
	return g.next
}

func (g *GuardedStore) Get(ctx context.Context, entity domain.EntityType, id string) (*Record, error) {
	ctx, span, cancel := g.begin(ctx, "repo.store.get", entity, attribute.String("record_id", id))
	defer cancel()
	defer span.End()

	rec, err := g.next.Get(ctx, entity, id)
	return rec, g.finish(span, err)
}

func (g *GuardedStore) List(ctx context.Context, entity domain.EntityType, filter Filter) ([]*Record, error) {
	ctx, span, cancel := g.begin(ctx, "repo.store.list", entity, attribute.Int("limit", filter.Limit))
	defer cancel()
	defer span.End()

	recs, err := g.next.List(ctx, entity, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("result_count", len(recs)))
	}
	return recs, g.finish(span, err)
}

func (g *GuardedStore) Create(ctx context.Context, entity domain.EntityType, rec *Record) (*Record, error) {
	ctx, span, cancel := g.begin(ctx, "repo.store.create", entity, attribute.String("record_id", rec.ID))
	defer cancel()
	defer span.End()

	out, err := g.next.Create(ctx, entity, rec)
	return out, g.finish(span, err)
}

func (g *GuardedStore) Patch(ctx context.Context, entity domain.EntityType, id string, partial map[string]interface{}, expectedVersion int64) (*Record, error) {
	ctx, span, cancel := g.begin(ctx, "repo.store.patch", entity,
		attribute.String("record_id", id),
		attribute.Int64("expected_version", expectedVersion),
	)
	defer cancel()
	defer span.End()

	out, err := g.next.Patch(ctx, entity, id, partial, expectedVersion)
	return out, g.finish(span, err)
}

// WithTx bounds the whole transaction by one timeout. Calls made through tx are
// traced but share the transaction deadline.
func (g *GuardedStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	ctx, span, cancel := g.begin(ctx, "repo.store.tx", "")
	defer cancel()
	defer span.End()

	err := g.next.WithTx(ctx, func(ctx context.Context, tx Store) error {
		return fn(ctx, &GuardedStore{next: tx, timeout: g.timeout})
	})
	return g.finish(span, err)
}

func (g *GuardedStore) begin(ctx context.Context, name string, entity domain.EntityType, attrs ...attribute.KeyValue) (context.Context, trace.Span, context.CancelFunc) {
	ctx, span := telemetry.StartSpan(ctx, name)
	if entity != "" {
		span.SetAttributes(attribute.String("entity_type", string(entity)))
	}
	span.SetAttributes(attrs...)
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	return ctx, span, cancel
}

func (g *GuardedStore) finish(span trace.Span, err error) error {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if !errors.Is(err, domain.ErrStoreUnavailable) && errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: timed out after %s: %w", domain.ErrStoreUnavailable, g.timeout, err)
	}
	if domain.IsNotFoundError(err) {
		span.SetAttributes(attribute.Bool("not_found", true))
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
