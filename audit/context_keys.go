// Package audit records vault operations: structured audit events and the
// append-only access attempt journal.
package audit

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// Context keys for vault operations
const (
	// Core context keys
	KeyDocumentID ContextKey = "documentId" // document being operated on
	KeyOwnerID    ContextKey = "ownerId"    // owner of the document or template
	KeyKind       ContextKey = "kind"       // biometric kind
	KeyStrategy   ContextKey = "strategy"   // key strategy
	KeyError      ContextKey = "error"      // Error message if operation failed
	KeyReason     ContextKey = "reason"     // access failure reason

	// Caller context keys
	KeyRequestID ContextKey = "requestId" // Request identifier
	KeyActorID   ContextKey = "actorId"   // Principal performing the request
	KeyOperation ContextKey = "operation" // Operation being performed
)

// contextKeys lists the keys copied from a context into an event
var contextKeys = []ContextKey{KeyRequestID, KeyActorID, KeyOperation}

// GetContextKey returns the ContextKey type for a given string
func GetContextKey(key string) ContextKey {
	return ContextKey(key)
}
