package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/root-sector/docvault/types"
)

// Collection names
const (
	CollectionDocuments = "documents"
	CollectionTemplates = "biometric_templates"
	CollectionAttempts  = "access_attempts"
	CollectionObjects   = "carrier_objects"
)

// Connect opens a MongoDB client and returns the named database
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, client.Database(database), nil
}

// EnsureIndexes creates the unique indexes the stores rely on
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []struct {
		collection string
		model      mongo.IndexModel
	}{
		{
			collection: CollectionTemplates,
			model: mongo.IndexModel{
				Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "kind", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		{
			collection: CollectionAttempts,
			model: mongo.IndexModel{
				Keys:    bson.D{{Key: "documentId", Value: 1}, {Key: "sequence", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		{
			collection: CollectionDocuments,
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: 1}},
			},
		},
	}
	for _, idx := range indexes {
		if _, err := db.Collection(idx.collection).Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", idx.collection, err)
		}
	}
	log.Debug().Str("component", "store").Msg("MongoDB indexes ensured")
	return nil
}

// MongoObjectStore implements interfaces.ObjectStore with one document per object
type MongoObjectStore struct {
	db *mongo.Database
}

type objectDocument struct {
	Key       string    `bson:"_id"`
	Data      []byte    `bson:"data"`
	Size      int       `bson:"size"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// NewMongoObjectStore creates an object store on db
func NewMongoObjectStore(db *mongo.Database) *MongoObjectStore {
	return &MongoObjectStore{db: db}
}

// Put upserts an object
func (s *MongoObjectStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.db.Collection(CollectionObjects).UpdateOne(
		ctx,
		bson.M{"_id": key},
		bson.M{
			"$set": bson.M{
				"data":      data,
				"size":      len(data),
				"updatedAt": time.Now().UTC(),
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to store object: %w", err)
	}
	return nil
}

// Get loads an object
func (s *MongoObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	var doc objectDocument
	err := s.db.Collection(CollectionObjects).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("object %q: %w", key, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return doc.Data, nil
}

// Delete removes an object
func (s *MongoObjectStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Collection(CollectionObjects).DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// MongoDocumentStore implements interfaces.DocumentStore
type MongoDocumentStore struct {
	db *mongo.Database
}

// NewMongoDocumentStore creates a document store on db
func NewMongoDocumentStore(db *mongo.Database) *MongoDocumentStore {
	return &MongoDocumentStore{db: db}
}

// Create inserts a document record
func (s *MongoDocumentStore) Create(ctx context.Context, record *types.DocumentRecord) error {
	if _, err := s.db.Collection(CollectionDocuments).InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: document %q already exists", types.ErrValidation, record.ID)
		}
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// Get loads a document record
func (s *MongoDocumentStore) Get(ctx context.Context, id string) (*types.DocumentRecord, error) {
	var record types.DocumentRecord
	err := s.db.Collection(CollectionDocuments).FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("document %q: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	normalizeRecordTimes(&record)
	return &record, nil
}

// UpdateWindow replaces the access window of a document
func (s *MongoDocumentStore) UpdateWindow(ctx context.Context, id string, window types.AccessWindow, updatedAt time.Time) error {
	return s.set(ctx, id, bson.M{
		"window":    window,
		"updatedAt": updatedAt,
	})
}

// MarkRevoked sets the terminal revoked status
func (s *MongoDocumentStore) MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error {
	return s.set(ctx, id, bson.M{
		"status":    types.DocumentRevoked,
		"revokedAt": revokedAt,
		"updatedAt": revokedAt,
	})
}

func (s *MongoDocumentStore) set(ctx context.Context, id string, fields bson.M) error {
	result, err := s.db.Collection(CollectionDocuments).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("document %q: %w", id, types.ErrNotFound)
	}
	return nil
}

// ListByOwner returns the owner's documents ordered by creation time
func (s *MongoDocumentStore) ListByOwner(ctx context.Context, ownerID string) ([]*types.DocumentRecord, error) {
	cursor, err := s.db.Collection(CollectionDocuments).Find(
		ctx,
		bson.M{"ownerId": ownerID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*types.DocumentRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	for _, r := range records {
		normalizeRecordTimes(r)
	}
	return records, nil
}

// BSON datetimes decode in local time; the gate compares in UTC.
func normalizeRecordTimes(r *types.DocumentRecord) {
	r.Window.StartTime = r.Window.StartTime.UTC()
	r.Window.EndTime = r.Window.EndTime.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	r.Package.CreatedAt = r.Package.CreatedAt.UTC()
	if r.RevokedAt != nil {
		t := r.RevokedAt.UTC()
		r.RevokedAt = &t
	}
}

// MongoTemplateStore implements interfaces.TemplateStore keyed by owner and kind
type MongoTemplateStore struct {
	db *mongo.Database
}

// NewMongoTemplateStore creates a template store on db
func NewMongoTemplateStore(db *mongo.Database) *MongoTemplateStore {
	return &MongoTemplateStore{db: db}
}

// Get loads the active template
func (s *MongoTemplateStore) Get(ctx context.Context, ownerID string, kind types.BiometricKind) (*types.BiometricTemplate, error) {
	var tmpl types.BiometricTemplate
	err := s.db.Collection(CollectionTemplates).FindOne(ctx, bson.M{"ownerId": ownerID, "kind": kind}).Decode(&tmpl)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, types.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	tmpl.EnrolledAt = tmpl.EnrolledAt.UTC()
	return &tmpl, nil
}

// Replace swaps in a new template in a single upsert
func (s *MongoTemplateStore) Replace(ctx context.Context, template *types.BiometricTemplate) (*types.BiometricTemplate, error) {
	_, err := s.db.Collection(CollectionTemplates).ReplaceOne(
		ctx,
		bson.M{"ownerId": template.OwnerID, "kind": template.Kind},
		template,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store template: %w", err)
	}
	return template.Clone(), nil
}

// Delete removes the template for owner and kind
func (s *MongoTemplateStore) Delete(ctx context.Context, ownerID string, kind types.BiometricKind) error {
	result, err := s.db.Collection(CollectionTemplates).DeleteOne(ctx, bson.M{"ownerId": ownerID, "kind": kind})
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if result.DeletedCount == 0 {
		return types.ErrTemplateNotFound
	}
	return nil
}

// DeleteOwner removes all of an owner's templates
func (s *MongoTemplateStore) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	result, err := s.db.Collection(CollectionTemplates).DeleteMany(ctx, bson.M{"ownerId": ownerID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete templates: %w", err)
	}
	return int(result.DeletedCount), nil
}

// MongoAttemptStore implements interfaces.AttemptStore
type MongoAttemptStore struct {
	db *mongo.Database
}

// NewMongoAttemptStore creates an attempt store on db
func NewMongoAttemptStore(db *mongo.Database) *MongoAttemptStore {
	return &MongoAttemptStore{db: db}
}

// Append inserts an attempt. The unique index rejects a reused sequence.
func (s *MongoAttemptStore) Append(ctx context.Context, attempt *types.AccessAttempt) error {
	if _, err := s.db.Collection(CollectionAttempts).InsertOne(ctx, attempt); err != nil {
		return fmt.Errorf("failed to append attempt: %w", err)
	}
	return nil
}

// List returns a document's attempts in sequence order
func (s *MongoAttemptStore) List(ctx context.Context, documentID string) ([]*types.AccessAttempt, error) {
	cursor, err := s.db.Collection(CollectionAttempts).Find(
		ctx,
		bson.M{"documentId": documentID},
		options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer cursor.Close(ctx)

	var attempts []*types.AccessAttempt
	if err := cursor.All(ctx, &attempts); err != nil {
		return nil, fmt.Errorf("failed to decode attempts: %w", err)
	}
	for _, a := range attempts {
		a.Timestamp = a.Timestamp.UTC()
	}
	return attempts, nil
}

// LastSequence returns the highest sequence recorded for a document
func (s *MongoAttemptStore) LastSequence(ctx context.Context, documentID string) (int64, error) {
	var result struct {
		Sequence int64 `bson:"sequence"`
	}
	err := s.db.Collection(CollectionAttempts).FindOne(
		ctx,
		bson.M{"documentId": documentID},
		options.FindOne().
			SetSort(bson.D{{Key: "sequence", Value: -1}}).
			SetProjection(bson.M{"sequence": 1}),
	).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read last attempt sequence: %w", err)
	}
	return result.Sequence, nil
}
