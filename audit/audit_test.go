package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/root-sector/docvault/clock"
	"github.com/root-sector/docvault/interfaces"
	"github.com/root-sector/docvault/store"
	"github.com/root-sector/docvault/types"
)

var (
	_ interfaces.AuditLogger = (*StdoutAuditLogger)(nil)
	_ interfaces.AuditLogger = (*MemoryAuditLogger)(nil)
	_ interfaces.AuditLogger = (*MongoAuditLogger)(nil)
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestMemoryAuditLogger(t *testing.T) {
	ctx := WithRequest(context.Background(), "req-1", "alice")
	l := NewMemoryAuditLogger()

	ingest := NewAuditEvent(EventTypeDocumentIngest, OperationIngest, t0)
	ingest.DocumentID = "doc-1"
	ingest.Context[string(KeyOwnerID)] = "alice"
	if err := l.LogEvent(ctx, ingest); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	denied := NewAuditEvent(EventTypeDocumentAccess, OperationAccess, t0)
	denied.DocumentID = "doc-1"
	denied.Status = StatusDenied
	denied.Context[string(KeyReason)] = string(types.ReasonTimeGateClosed)
	if err := l.LogEvent(context.Background(), denied); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	if err := l.LogEvent(ctx, nil); err == nil {
		t.Error("LogEvent(nil) should fail")
	}

	tests := []struct {
		name    string
		filters map[string]interface{}
		want    int
	}{
		{"all", nil, 2},
		{"by document", map[string]interface{}{"document_id": "doc-1"}, 2},
		{"by status", map[string]interface{}{"status": StatusDenied}, 1},
		{"by context", map[string]interface{}{string(KeyRequestID): "req-1"}, 1},
		{"by reason", map[string]interface{}{string(KeyReason): "time_gate_closed"}, 1},
		{"no match", map[string]interface{}{"event_type": EventTypeDocumentRevoke}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := l.GetEvents(context.Background(), tt.filters)
			if err != nil {
				t.Fatalf("GetEvents() error = %v", err)
			}
			if len(events) != tt.want {
				t.Errorf("got %d events, want %d", len(events), tt.want)
			}
		})
	}

	events, _ := l.GetEvents(context.Background(), map[string]interface{}{"status": StatusSuccess})
	if events[0].Context[string(KeyActorID)] != "alice" {
		t.Errorf("actor not copied from context: %v", events[0].Context)
	}
}

func TestStdoutAuditLoggerGetEvents(t *testing.T) {
	l := NewStdoutAuditLogger()
	if err := l.LogEvent(context.Background(), NewAuditEvent(EventTypeTemplateEnroll, OperationEnroll, t0)); err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}
	if _, err := l.GetEvents(context.Background(), nil); err == nil {
		t.Error("GetEvents should not be supported")
	}
}

func TestAttemptLogSequence(t *testing.T) {
	ctx := context.Background()
	log := NewAttemptLog(store.NewMemoryAttemptStore(), clock.Fake(t0))

	for i := 1; i <= 3; i++ {
		a, err := log.Record(ctx, types.AccessAttempt{
			DocumentID:    "doc-1",
			FailureReason: types.ReasonBiometricMismatch,
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if a.Sequence != int64(i) || a.ID == "" || !a.Timestamp.Equal(t0) {
			t.Errorf("attempt %d = %+v", i, a)
		}
	}

	ok, _ := log.Record(ctx, types.AccessAttempt{
		DocumentID:    "doc-2",
		Succeeded:     true,
		FailureReason: types.ReasonLowQuality,
	})
	if ok.Sequence != 1 || ok.FailureReason != types.ReasonNone {
		t.Errorf("success attempt = %+v", ok)
	}

	if _, err := log.Record(ctx, types.AccessAttempt{}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("missing document id error = %v, want ErrValidation", err)
	}
}

func TestAttemptLogConcurrent(t *testing.T) {
	ctx := context.Background()
	log := NewAttemptLog(store.NewMemoryAttemptStore(), clock.Fake(t0))

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(doc string) {
			defer wg.Done()
			if _, err := log.Record(ctx, types.AccessAttempt{DocumentID: doc}); err != nil {
				t.Errorf("Record() error = %v", err)
			}
		}([]string{"a", "b"}[i%2])
	}
	wg.Wait()

	for _, doc := range []string{"a", "b"} {
		attempts, err := log.List(ctx, doc)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(attempts) != n/2 {
			t.Fatalf("%s: %d attempts, want %d", doc, len(attempts), n/2)
		}
		for i, a := range attempts {
			if a.Sequence != int64(i+1) {
				t.Errorf("%s: attempt %d has sequence %d", doc, i, a.Sequence)
			}
		}
	}
}

func TestAttemptLogDetachedFromCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := store.NewMemoryAttemptStore()
	log := NewAttemptLog(attempts, clock.Fake(t0))

	if _, err := log.Record(ctx, types.AccessAttempt{DocumentID: "doc", FailureReason: types.ReasonCancelled}); err != nil {
		t.Fatalf("Record() with cancelled context error = %v", err)
	}
	list, _ := attempts.List(context.Background(), "doc")
	if len(list) != 1 || list[0].FailureReason != types.ReasonCancelled {
		t.Errorf("attempts = %+v", list)
	}
}
