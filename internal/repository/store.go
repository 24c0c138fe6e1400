package repository

import (
	"context"
	"time"

	"github.com/urevent360-byte/urevent360-plus/internal/domain"
)

// Record is a stored document. Data holds the JSON shape of the entity without its version.
type Record struct {
	ID        string
	Version   int64
	Data      map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter selects records whose data fields equal the given values.
// Keys may be dotted paths into nested objects, e.g. "qrUpload.token".
type Filter struct {
	Equals map[string]interface{}
	Limit  int
}

// Where is shorthand for an equality filter on one field
func Where(field string, value interface{}) Filter {
	return Filter{Equals: map[string]interface{}{field: value}}
}

// And adds another equality condition
func (f Filter) And(field string, value interface{}) Filter {
	eq := make(map[string]interface{}, len(f.Equals)+1)
	for k, v := range f.Equals {
		eq[k] = v
	}
	eq[field] = value
	f.Equals = eq
	return f
}

// Store is the entity store contract.
//
// Errors: a missing record returns domain.NotFoundFor(entity); Create on an
// existing id returns domain.ErrAlreadyExists; Patch with a non-zero
// expectedVersion that does not match returns domain.ErrVersionConflict;
// timeouts and connectivity failures return domain.ErrStoreUnavailable.
type Store interface {
	Get(ctx context.Context, entity domain.EntityType, id string) (*Record, error)
	List(ctx context.Context, entity domain.EntityType, filter Filter) ([]*Record, error)
	Create(ctx context.Context, entity domain.EntityType, rec *Record) (*Record, error)
	// Patch shallow-merges partial into the record data and bumps the version.
	// expectedVersion 0 skips the version check.
	Patch(ctx context.Context, entity domain.EntityType, id string, partial map[string]interface{}, expectedVersion int64) (*Record, error)
	// WithTx runs fn with a store whose writes commit together or not at all.
	// Calling WithTx on the store passed to fn runs inline in the same transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// HealthChecker is implemented by stores backed by a network database
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
