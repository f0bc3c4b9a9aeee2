package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector/docvault/types"
)

// prepare ensures required fields are set
func prepare(ctx context.Context, event *types.AuditEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Context == nil {
		event.Context = make(map[string]string)
	}
	fillFromContext(ctx, event)
	return nil
}

// StdoutAuditLogger implements interfaces.AuditLogger writing to the zerolog logger
type StdoutAuditLogger struct {
	logger zerolog.Logger
}

// NewStdoutAuditLogger creates a new stdout audit logger
func NewStdoutAuditLogger() *StdoutAuditLogger {
	return &StdoutAuditLogger{logger: log.With().Str("component", "audit").Logger()}
}

// Printf implements the required Printf method from the interfaces.AuditLogger interface
func (l *StdoutAuditLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msgf(format, v...)
}

// LogEvent logs an audit event with essential context information
func (l *StdoutAuditLogger) LogEvent(ctx context.Context, event *types.AuditEvent) error {
	if err := prepare(ctx, event); err != nil {
		return err
	}

	logEvent := l.logger.Info().
		Str("auditId", event.ID).
		Time("timestamp", event.Timestamp).
		Str("eventType", event.EventType).
		Str("operation", event.Operation).
		Str("status", event.Status)

	if event.DocumentID != "" {
		logEvent = logEvent.Str("documentId", event.DocumentID)
	}
	if event.Sequence > 0 {
		logEvent = logEvent.Int64("sequence", event.Sequence)
	}
	for _, key := range []ContextKey{KeyOwnerID, KeyKind, KeyStrategy, KeyReason, KeyError, KeyRequestID, KeyActorID} {
		if v := event.Context[string(key)]; v != "" {
			logEvent = logEvent.Str(string(key), v)
		}
	}

	logEvent.Msg("Audit event")
	return nil
}

// GetEvents returns events matching the filter (not implemented for stdout logger)
func (l *StdoutAuditLogger) GetEvents(ctx context.Context, filter map[string]interface{}) ([]*types.AuditEvent, error) {
	return nil, fmt.Errorf("getting events not supported for stdout logger")
}

// MemoryAuditLogger keeps events in memory and mirrors them to a StdoutAuditLogger.
// Used by the CLI and tests.
type MemoryAuditLogger struct {
	mu     sync.RWMutex
	events []*types.AuditEvent
	stdout *StdoutAuditLogger
}

// NewMemoryAuditLogger creates an empty in-memory audit logger
func NewMemoryAuditLogger() *MemoryAuditLogger {
	return &MemoryAuditLogger{stdout: NewStdoutAuditLogger()}
}

// Printf implements interfaces.AuditLogger
func (l *MemoryAuditLogger) Printf(format string, v ...interface{}) {
	l.stdout.Printf(format, v...)
}

// LogEvent stores a copy of the event
func (l *MemoryAuditLogger) LogEvent(ctx context.Context, event *types.AuditEvent) error {
	if err := prepare(ctx, event); err != nil {
		return err
	}
	stored := *event
	stored.Context = make(map[string]string, len(event.Context))
	for k, v := range event.Context {
		stored.Context[k] = v
	}
	l.mu.Lock()
	l.events = append(l.events, &stored)
	l.mu.Unlock()
	return l.stdout.LogEvent(ctx, event)
}

// GetEvents returns events whose fields equal every filter value. Supported
// filter keys are event_type, operation, status, document_id and any event
// context key.
func (l *MemoryAuditLogger) GetEvents(ctx context.Context, filters map[string]interface{}) ([]*types.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*types.AuditEvent, 0)
	for _, e := range l.events {
		if matches(e, filters) {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func matches(e *types.AuditEvent, filters map[string]interface{}) bool {
	for key, want := range filters {
		var got string
		switch key {
		case "event_type":
			got = e.EventType
		case "operation":
			got = e.Operation
		case "status":
			got = e.Status
		case "document_id":
			got = e.DocumentID
		default:
			got = e.Context[key]
		}
		if got != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
