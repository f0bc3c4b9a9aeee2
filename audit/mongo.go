package audit

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/root-sector/docvault/types"
)

// CollectionAuditEvents holds persisted audit events
const CollectionAuditEvents = "audit_events"

// MongoAuditLogger persists audit events and mirrors them to the stdout logger
type MongoAuditLogger struct {
	db     *mongo.Database
	stdout *StdoutAuditLogger
}

// NewMongoAuditLogger creates a MongoDB-backed audit logger
func NewMongoAuditLogger(db *mongo.Database) *MongoAuditLogger {
	return &MongoAuditLogger{db: db, stdout: NewStdoutAuditLogger()}
}

// Printf implements interfaces.AuditLogger
func (l *MongoAuditLogger) Printf(format string, v ...interface{}) {
	l.stdout.Printf(format, v...)
}

// LogEvent inserts the event
func (l *MongoAuditLogger) LogEvent(ctx context.Context, event *types.AuditEvent) error {
	if err := prepare(ctx, event); err != nil {
		return err
	}
	if _, err := l.db.Collection(CollectionAuditEvents).InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}
	return l.stdout.LogEvent(ctx, event)
}

// GetEvents returns events matching the filters, newest first. Keys other than
// the top-level event fields are matched against the event context.
func (l *MongoAuditLogger) GetEvents(ctx context.Context, filters map[string]interface{}) ([]*types.AuditEvent, error) {
	filter := bson.M{}
	for key, value := range filters {
		switch key {
		case "event_type", "operation", "status", "document_id":
			filter[key] = value
		default:
			filter["context."+key] = value
		}
	}

	cursor, err := l.db.Collection(CollectionAuditEvents).Find(
		ctx,
		filter,
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*types.AuditEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}
	return events, nil
}
