package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/pkg/database"
)

// EntitiesSchema creates the document table used by PostgresStore
const EntitiesSchema = `
CREATE TABLE IF NOT EXISTS entities (
	entity_type TEXT        NOT NULL,
	id          TEXT        NOT NULL,
	version     BIGINT      NOT NULL DEFAULT 1,
	data        JSONB       NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (entity_type, id)
);
CREATE INDEX IF NOT EXISTS idx_entities_data ON entities USING GIN (data jsonb_path_ops);
CREATE INDEX IF NOT EXISTS idx_entities_created ON entities (entity_type, created_at);
`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store as JSONB documents in a single table
type PostgresStore struct {
	db   *database.PostgresDB
	q    querier
	inTx bool
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *database.PostgresDB) *PostgresStore {
	return &PostgresStore{db: db, q: db.Pool()}
}

// EnsureSchema creates the entities table when missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, EntitiesSchema); err != nil {
		return fmt.Errorf("failed to create entities schema: %w", mapPgError(err))
	}
	return nil
}

// HealthCheck pings the database
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, entity domain.EntityType, id string) (*Record, error) {
	query := `
		SELECT id, version, data, created_at, updated_at
		FROM entities
		WHERE entity_type = $1 AND id = $2
	`

	rec, err := scanRecord(s.q.QueryRow(ctx, query, string(entity), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", entity, id, domain.NotFoundFor(entity))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", entity, id, mapPgError(err))
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, entity domain.EntityType, filter Filter) ([]*Record, error) {
	query := `
		SELECT id, version, data, created_at, updated_at
		FROM entities
		WHERE entity_type = $1 AND data @> $2::jsonb
		ORDER BY created_at, id
		LIMIT $3
	`

	contains := containment(filter.Equals)
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	rows, err := s.q.Query(ctx, query, string(entity), contains, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", entity, mapPgError(err))
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", entity, mapPgError(err))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", entity, mapPgError(err))
	}
	return out, nil
}

func (s *PostgresStore) Create(ctx context.Context, entity domain.EntityType, rec *Record) (*Record, error) {
	query := `
		INSERT INTO entities (entity_type, id, version, data, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $4, $4)
		ON CONFLICT (entity_type, id) DO NOTHING
		RETURNING id, version, data, created_at, updated_at
	`

	data := withoutVersion(rec.Data)
	out, err := scanRecord(s.q.QueryRow(ctx, query, string(entity), rec.ID, data, time.Now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", entity, rec.ID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %s: %w", entity, rec.ID, mapPgError(err))
	}
	return out, nil
}

func (s *PostgresStore) Patch(ctx context.Context, entity domain.EntityType, id string, partial map[string]interface{}, expectedVersion int64) (*Record, error) {
	query := `
		UPDATE entities
		SET data = data || $3::jsonb, version = version + 1, updated_at = $4
		WHERE entity_type = $1 AND id = $2 AND ($5::bigint = 0 OR version = $5)
		RETURNING id, version, data, created_at, updated_at
	`

	patch := withoutVersion(partial)
	out, err := scanRecord(s.q.QueryRow(ctx, query, string(entity), id, patch, time.Now().UTC(), expectedVersion))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to patch %s %s: %w", entity, id, mapPgError(err))
	}

	var exists bool
	if err := s.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entities WHERE entity_type = $1 AND id = $2)`,
		string(entity), id,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to patch %s %s: %w", entity, id, mapPgError(err))
	}
	if !exists {
		return nil, fmt.Errorf("%s %s: %w", entity, id, domain.NotFoundFor(entity))
	}
	return nil, fmt.Errorf("%s %s, expected version %d: %w", entity, id, expectedVersion, domain.ErrVersionConflict)
}

// WithTx runs fn inside a database transaction
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &PostgresStore{db: s.db, q: tx, inTx: true})
	})
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

// containment turns dotted equality paths into the nested document used with @>
func containment(equals map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for path, v := range equals {
		parts := strings.Split(path, ".")
		cur := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = v
	}
	return out
}

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	if err := row.Scan(&rec.ID, &rec.Version, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if rec.Data == nil {
		rec.Data = map[string]interface{}{}
	}
	return rec, nil
}

// mapPgError classifies driver errors into store errors. Domain errors pass through.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, domain.ErrVersionConflict) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", domain.ErrVersionConflict, pgErr.Message)
		case "08000", "08003", "08006", "57P01", "57P03":
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) ||
		pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}
