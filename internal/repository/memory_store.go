package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/urevent360-byte/urevent360-plus/internal/domain"
)

type memoryState map[domain.EntityType]map[string]*Record

func (st memoryState) clone() memoryState {
	out := make(memoryState, len(st))
	for entity, recs := range st {
		m := make(map[string]*Record, len(recs))
		for id, rec := range recs {
			m[id] = rec
		}
		out[entity] = m
	}
	return out
}

// MemoryStore is an in-memory Store for development and tests.
// Stored records are immutable; writes replace them so readers can share pointers.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{}, now: time.Now}
}

// Count returns the number of records of an entity type
func (s *MemoryStore) Count(entity domain.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state[entity])
}

func (s *MemoryStore) Get(ctx context.Context, entity domain.EntityType, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memoryTx{state: s.state, now: s.now}).Get(ctx, entity, id)
}

func (s *MemoryStore) List(ctx context.Context, entity domain.EntityType, filter Filter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memoryTx{state: s.state, now: s.now}).List(ctx, entity, filter)
}

func (s *MemoryStore) Create(ctx context.Context, entity domain.EntityType, rec *Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memoryTx{state: s.state, now: s.now}).Create(ctx, entity, rec)
}

func (s *MemoryStore) Patch(ctx context.Context, entity domain.EntityType, id string, partial map[string]interface{}, expectedVersion int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memoryTx{state: s.state, now: s.now}).Patch(ctx, entity, id, partial, expectedVersion)
}

// WithTx runs fn against a copy of the state and swaps it in when fn succeeds.
// The write lock is held for the duration of fn.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{state: s.state.clone(), now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// memoryTx operates on a state without locking. MemoryStore holds the lock around it.
type memoryTx struct {
	state memoryState
	now   func() time.Time
}

func (t *memoryTx) Get(ctx context.Context, entity domain.EntityType, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	rec, ok := t.state[entity][id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", entity, id, domain.NotFoundFor(entity))
	}
	return copyRecord(rec)
}

func (t *memoryTx) List(ctx context.Context, entity domain.EntityType, filter Filter) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	want, err := normalize(filter.Equals)
	if err != nil {
		return nil, err
	}

	matched := make([]*Record, 0)
	for _, rec := range t.state[entity] {
		if matches(rec.Data, want) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make([]*Record, 0, len(matched))
	for _, rec := range matched {
		c, err := copyRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (t *memoryTx) Create(ctx context.Context, entity domain.EntityType, rec *Record) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("%s: record id is required", entity)
	}
	if _, exists := t.state[entity][rec.ID]; exists {
		return nil, fmt.Errorf("%s %s: %w", entity, rec.ID, domain.ErrAlreadyExists)
	}

	data, err := normalize(rec.Data)
	if err != nil {
		return nil, err
	}
	delete(data, versionKey)

	now := t.now().UTC()
	stored := &Record{ID: rec.ID, Version: 1, Data: data, CreatedAt: now, UpdatedAt: now}
	if t.state[entity] == nil {
		t.state[entity] = map[string]*Record{}
	}
	t.state[entity][rec.ID] = stored
	return copyRecord(stored)
}

func (t *memoryTx) Patch(ctx context.Context, entity domain.EntityType, id string, partial map[string]interface{}, expectedVersion int64) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	cur, ok := t.state[entity][id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", entity, id, domain.NotFoundFor(entity))
	}
	if expectedVersion != 0 && cur.Version != expectedVersion {
		return nil, fmt.Errorf("%s %s at version %d, expected %d: %w", entity, id, cur.Version, expectedVersion, domain.ErrVersionConflict)
	}

	patch, err := normalize(partial)
	if err != nil {
		return nil, err
	}
	delete(patch, versionKey)

	data := make(map[string]interface{}, len(cur.Data)+len(patch))
	for k, v := range cur.Data {
		data[k] = v
	}
	for k, v := range patch {
		data[k] = v
	}

	stored := &Record{
		ID:        id,
		Version:   cur.Version + 1,
		Data:      data,
		CreatedAt: cur.CreatedAt,
		UpdatedAt: t.now().UTC(),
	}
	t.state[entity][id] = stored
	return copyRecord(stored)
}

func (t *memoryTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}

// normalize deep-copies m into plain JSON values so stored data never aliases caller memory
func normalize(m map[string]interface{}) (map[string]interface{}, error) {
	if len(m) == 0 {
		return map[string]interface{}{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("invalid record data: %w", err)
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid record data: %w", err)
	}
	return out, nil
}

func copyRecord(rec *Record) (*Record, error) {
	data, err := normalize(rec.Data)
	if err != nil {
		return nil, err
	}
	c := *rec
	c.Data = data
	return &c, nil
}

func matches(data, want map[string]interface{}) bool {
	for path, v := range want {
		got, ok := lookup(data, path)
		if !ok || !reflect.DeepEqual(got, v) {
			return false
		}
	}
	return true
}

// lookup resolves a dotted path such as "qrUpload.token"
func lookup(data map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = data
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
