package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/urevent360-byte/urevent360-plus/internal/domain"
)

const versionKey = "version"

// Encode converts an entity into record data
func Encode(v interface{}) (map[string]interface{}, error) {
	data, err := ToMap(v)
	if err != nil {
		return nil, err
	}
	delete(data, versionKey)
	return data, nil
}

// ToMap converts any JSON-serializable value into its generic map form
func ToMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

// withoutVersion returns a shallow copy of m minus the version key
func withoutVersion(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k != versionKey {
			out[k] = v
		}
	}
	return out
}

// Decode fills v from a record and stamps the record version
func Decode(rec *Record, v domain.Entity) error {
	raw, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to decode record %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode record %s: %w", rec.ID, err)
	}
	v.SetVersion(rec.Version)
	return nil
}

// entityPtr constrains PT to a pointer to T implementing domain.Entity
type entityPtr[T any] interface {
	*T
	domain.Entity
}

// Get loads and decodes one entity
func Get[T any, PT entityPtr[T]](ctx context.Context, s Store, entity domain.EntityType, id string) (PT, error) {
	rec, err := s.Get(ctx, entity, id)
	if err != nil {
		return nil, err
	}
	var v T
	if err := Decode(rec, PT(&v)); err != nil {
		return nil, err
	}
	return &v, nil
}

// List loads and decodes every entity matching filter
func List[T any, PT entityPtr[T]](ctx context.Context, s Store, entity domain.EntityType, filter Filter) ([]PT, error) {
	recs, err := s.List(ctx, entity, filter)
	if err != nil {
		return nil, err
	}
	out := make([]PT, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := Decode(rec, PT(&v)); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, nil
}

// Insert creates v and stamps the stored version onto it
func Insert(ctx context.Context, s Store, entity domain.EntityType, v domain.Entity) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	rec, err := s.Create(ctx, entity, &Record{ID: v.EntityID(), Data: data})
	if err != nil {
		return err
	}
	v.SetVersion(rec.Version)
	return nil
}

// Save writes the whole of v conditioned on the version it was loaded with.
// Fields omitted by the encoder are written as null so cleared values do not
// survive the store's shallow merge.
func Save(ctx context.Context, s Store, entity domain.EntityType, v domain.Entity) error {
	data, err := Encode(v)
	if err != nil {
		return err
	}
	for _, name := range fieldNames(reflect.TypeOf(v)) {
		if _, ok := data[name]; !ok && name != versionKey {
			data[name] = nil
		}
	}
	rec, err := s.Patch(ctx, entity, v.EntityID(), data, v.GetVersion())
	if err != nil {
		return err
	}
	v.SetVersion(rec.Version)
	return nil
}

// fieldNames lists the top-level JSON keys of a struct, flattening embedded structs
func fieldNames(t reflect.Type) []string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	var names []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			names = append(names, fieldNames(f.Type)...)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		names = append(names, name)
	}
	return names
}
