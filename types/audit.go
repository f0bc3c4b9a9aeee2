package types

import (
	"time"
)

// AuditEvent records one vault operation. Access events carry the sequence
// number of the matching access attempt.
type AuditEvent struct {
	ID         string                 `json:"id" bson:"_id"`
	Timestamp  time.Time              `json:"timestamp" bson:"timestamp"`
	EventType  string                 `json:"event_type" bson:"event_type"`
	Operation  string                 `json:"operation" bson:"operation"`
	Status     string                 `json:"status" bson:"status"`
	DocumentID string                 `json:"document_id,omitempty" bson:"document_id,omitempty"`
	Sequence   int64                  `json:"sequence,omitempty" bson:"sequence,omitempty"`
	Context    map[string]string      `json:"context" bson:"context"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
}
