package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/root-sector/docvault/clock"
	"github.com/root-sector/docvault/interfaces"
	"github.com/root-sector/docvault/types"
)

// AttemptLog is the append-only access attempt journal. Appends for one
// document are serialized and numbered; different documents never contend.
type AttemptLog struct {
	store  interfaces.AttemptStore
	clock  clock.Clock
	locks  sync.Map
	logger zerolog.Logger
}

// NewAttemptLog creates an attempt journal over store
func NewAttemptLog(store interfaces.AttemptStore, clk clock.Clock) *AttemptLog {
	if clk == nil {
		clk = clock.Real()
	}
	return &AttemptLog{
		store:  store,
		clock:  clk,
		logger: log.With().Str("component", "attempts").Logger(),
	}
}

// Record appends one attempt and returns it with its assigned sequence. The
// write is detached from ctx cancellation so that a cancelled caller still
// leaves exactly one complete record.
func (l *AttemptLog) Record(ctx context.Context, attempt types.AccessAttempt) (*types.AccessAttempt, error) {
	if attempt.DocumentID == "" {
		return nil, fmt.Errorf("%w: attempt document id is required", types.ErrValidation)
	}
	ctx = context.WithoutCancel(ctx)

	mu := l.lock(attempt.DocumentID)
	mu.Lock()
	defer mu.Unlock()

	last, err := l.store.LastSequence(ctx, attempt.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read attempt sequence: %w", err)
	}

	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = l.clock.Now()
	}
	attempt.Sequence = last + 1
	if attempt.Succeeded {
		attempt.FailureReason = types.ReasonNone
	}

	if err := l.store.Append(ctx, &attempt); err != nil {
		l.logger.Error().
			Err(err).
			Str("documentId", attempt.DocumentID).
			Int64("sequence", attempt.Sequence).
			Msg("Failed to append access attempt")
		return nil, fmt.Errorf("failed to record access attempt: %w", err)
	}

	l.logger.Debug().
		Str("documentId", attempt.DocumentID).
		Int64("sequence", attempt.Sequence).
		Bool("succeeded", attempt.Succeeded).
		Str("reason", string(attempt.FailureReason)).
		Msg("Access attempt recorded")

	return &attempt, nil
}

// List returns a document's attempts in sequence order
func (l *AttemptLog) List(ctx context.Context, documentID string) ([]*types.AccessAttempt, error) {
	return l.store.List(ctx, documentID)
}

func (l *AttemptLog) lock(documentID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(documentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
