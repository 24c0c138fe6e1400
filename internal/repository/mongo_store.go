package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urevent360-byte/urevent360-plus/internal/domain"
	"github.com/urevent360-byte/urevent360-plus/pkg/mongodb"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// mongoWriteDoc is the stored shape of a record, one collection per entity type
type mongoWriteDoc struct {
	ID        string                 `bson:"_id"`
	Version   int64                  `bson:"version"`
	Data      map[string]interface{} `bson:"data"`
	CreatedAt time.Time              `bson:"createdAt"`
	UpdatedAt time.Time              `bson:"updatedAt"`
}

type mongoReadDoc struct {
	ID        string    `bson:"_id"`
	Version   int64     `bson:"version"`
	Data      bson.Raw  `bson:"data"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// MongoStore implements Store on MongoDB. Transactions require a replica set.
type MongoStore struct {
	client *mongodb.Client
	inTx   bool
}

// NewMongoStore creates a new MongoStore
func NewMongoStore(client *mongodb.Client) *MongoStore {
	return &MongoStore{client: client}
}

// EnsureIndexes creates the lookup indexes used by List
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	for _, entity := range domain.AllEntityTypes {
		field := "data.eventId"
		if entity == domain.EntityLead {
			field = "data.hostEmail"
		}
		model := mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}, {Key: "createdAt", Value: 1}}}
		if _, err := s.collection(entity).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", entity, mapMongoError(err))
		}
	}
	return nil
}

// HealthCheck pings the primary
func (s *MongoStore) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

func (s *MongoStore) collection(entity domain.EntityType) *mongo.Collection {
	return s.client.Database().Collection(string(entity))
}

func (s *MongoStore) Get(ctx context.Context, entity domain.EntityType, id string) (*Record, error) {
	var doc mongoReadDoc
	err := s.collection(entity).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s %s: %w", entity, id, domain.NotFoundFor(entity))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", entity, id, mapMongoError(err))
	}
	return doc.record()
}

func (s *MongoStore) List(ctx context.Context, entity domain.EntityType, filter Filter) ([]*Record, error) {
	query := bson.M{}
	for k, v := range filter.Equals {
		query["data."+k] = v
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.collection(entity).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", entity, mapMongoError(err))
	}
	defer cursor.Close(ctx)

	var out []*Record
	for cursor.Next(ctx) {
		var doc mongoReadDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", entity, err)
		}
		rec, err := doc.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", entity, mapMongoError(err))
	}
	return out, nil
}

func (s *MongoStore) Create(ctx context.Context, entity domain.EntityType, rec *Record) (*Record, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := mongoWriteDoc{
		ID:        rec.ID,
		Version:   1,
		Data:      withoutVersion(rec.Data),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.collection(entity).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%s %s: %w", entity, rec.ID, domain.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create %s %s: %w", entity, rec.ID, mapMongoError(err))
	}

	return &Record{ID: doc.ID, Version: doc.Version, Data: doc.Data, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *MongoStore) Patch(ctx context.Context, entity domain.EntityType, id string, partial map[string]interface{}, expectedVersion int64) (*Record, error) {
	set := bson.M{"updatedAt": time.Now().UTC().Truncate(time.Millisecond)}
	for k, v := range withoutVersion(partial) {
		set["data."+k] = v
	}

	filter := bson.M{"_id": id}
	if expectedVersion != 0 {
		filter["version"] = expectedVersion
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoReadDoc
	err := s.collection(entity).FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.record()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to patch %s %s: %w", entity, id, mapMongoError(err))
	}

	n, err := s.collection(entity).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to patch %s %s: %w", entity, id, mapMongoError(err))
	}
	if n == 0 {
		return nil, fmt.Errorf("%s %s: %w", entity, id, domain.NotFoundFor(entity))
	}
	return nil, fmt.Errorf("%s %s, expected version %d: %w", entity, id, expectedVersion, domain.ErrVersionConflict)
}

// WithTx runs fn inside a session transaction. The driver retries transient
// transaction errors and unknown commit results on its own. Any failed write,
// a duplicate key included, aborts the transaction, so fn must look documents
// up rather than recover from a failed Create.
func (s *MongoStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	session, err := s.client.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start mongodb session: %w", mapMongoError(err))
	}
	defer session.EndSession(context.Background())

	txStore := &MongoStore{client: s.client, inTx: true}
	_, err = session.WithTransaction(ctx, func(sc context.Context) (interface{}, error) {
		return nil, fn(sc, txStore)
	})
	if err != nil {
		return mapMongoError(err)
	}
	return nil
}

func (d *mongoReadDoc) record() (*Record, error) {
	data := map[string]interface{}{}
	if len(d.Data) > 0 {
		raw, err := bson.MarshalExtJSON(d.Data, false, false)
		if err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", d.ID, err)
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", d.ID, err)
		}
	}
	return &Record{
		ID:        d.ID,
		Version:   d.Version,
		Data:      data,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// mapMongoError classifies driver errors into store errors. Domain errors pass through.
func mapMongoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, domain.ErrVersionConflict) {
		return err
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.HasErrorLabel("TransientTransactionError") {
		return fmt.Errorf("%w: %w", domain.ErrVersionConflict, err)
	}
	return err
}
