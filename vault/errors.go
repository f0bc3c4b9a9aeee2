package vault

import (
	"fmt"

	"github.com/root-sector/docvault/gate"
	"github.com/root-sector/docvault/types"
)

// AccessDeniedError reports why RequestAccess refused to release a document.
// It unwraps to the sentinel errors matching the reason.
type AccessDeniedError struct {
	Reason     types.FailureReason
	State      gate.State
	Similarity *float64
	// Retryable is set when the failure came from an unavailable dependency
	Retryable bool

	errs []error
}

func (e *AccessDeniedError) Error() string {
	msg := fmt.Sprintf("access denied: %s", e.Reason)
	if e.State != "" && e.State != gate.Accessible {
		msg += fmt.Sprintf(" (state %s)", e.State)
	}
	if len(e.errs) > 0 {
		msg += ": " + e.errs[len(e.errs)-1].Error()
	}
	return msg
}

// Unwrap returns the underlying errors
func (e *AccessDeniedError) Unwrap() []error {
	return e.errs
}

func denied(reason types.FailureReason, errs ...error) *AccessDeniedError {
	return &AccessDeniedError{Reason: reason, errs: errs}
}
