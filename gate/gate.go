// Package gate evaluates the time-window state of a document. State is derived
// from the stored window and the clock on every call; nothing is cached.
package gate

import (
	"time"

	"github.com/root-sector/docvault/clock"
	"github.com/root-sector/docvault/types"
)

// State is the access state of a document at an instant
type State string

const (
	Pending    State = "pending"
	Accessible State = "accessible"
	Expired    State = "expired"
	Revoked    State = "revoked"
)

// Evaluate returns the state of record at now. Both window bounds are inclusive.
// Revoked is terminal and wins over the window.
func Evaluate(record *types.DocumentRecord, now time.Time) State {
	if record.Status == types.DocumentRevoked {
		return Revoked
	}
	switch {
	case now.Before(record.Window.StartTime):
		return Pending
	case now.After(record.Window.EndTime):
		return Expired
	default:
		return Accessible
	}
}

// Gate evaluates states against an injected clock
type Gate struct {
	clock clock.Clock
}

// New creates a gate. A nil clock uses the wall clock.
func New(clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.Real()
	}
	return &Gate{clock: clk}
}

// State evaluates record now
func (g *Gate) State(record *types.DocumentRecord) State {
	return Evaluate(record, g.clock.Now())
}

// Now exposes the gate's clock reading
func (g *Gate) Now() time.Time {
	return g.clock.Now()
}

// Open reports whether record may be released now
func (g *Gate) Open(record *types.DocumentRecord) (State, bool) {
	s := g.State(record)
	return s, s == Accessible
}
