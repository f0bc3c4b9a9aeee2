package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/root-sector/docvault/types"
)

// Event types
const (
	EventTypeDocumentIngest = "document.ingest"
	EventTypeDocumentAccess = "document.access"
	EventTypeDocumentWindow = "document.window"
	EventTypeDocumentRevoke = "document.revoke"
	EventTypeTemplateEnroll = "template.enroll"
	EventTypeTemplateRemove = "template.remove"
	EventTypeOwnerDelete    = "owner.delete"
)

// Operations
const (
	OperationIngest  = "ingest"
	OperationAccess  = "access"
	OperationUpdate  = "update"
	OperationRevoke  = "revoke"
	OperationEnroll  = "enroll"
	OperationRemove  = "remove"
	OperationErasure = "erasure"
)

// Statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusDenied  = "denied"
)

// NewAuditEvent creates a new audit event with essential fields
func NewAuditEvent(eventType, operation string, at time.Time) *types.AuditEvent {
	return &types.AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: at.UTC(),
		EventType: eventType,
		Operation: operation,
		Status:    StatusSuccess,
		Context:   make(map[string]string),
		Metadata:  make(map[string]interface{}),
	}
}

// WithRequest adds caller information to the context
func WithRequest(ctx context.Context, requestID, actorID string) context.Context {
	if requestID != "" {
		ctx = context.WithValue(ctx, KeyRequestID, requestID)
	}
	if actorID != "" {
		ctx = context.WithValue(ctx, KeyActorID, actorID)
	}
	return ctx
}

// WithOperation adds operation information to the context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, KeyOperation, operation)
}

// fillFromContext copies caller values from ctx into the event context without
// overwriting fields that are already set
func fillFromContext(ctx context.Context, event *types.AuditEvent) {
	for _, key := range contextKeys {
		if _, set := event.Context[string(key)]; set {
			continue
		}
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			event.Context[string(key)] = v
		}
	}
}
