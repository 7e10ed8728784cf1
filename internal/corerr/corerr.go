// Package corerr implements the typed error-kind taxonomy shared across the
// whole system: a wrapped error carrying an Operation tag and a Kind so
// callers in any package can classify and route failures the same way.
package corerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed, driving retry/escalation policy.
type Kind string

const (
	Validation     Kind = "validation"      // malformed external input; never retried
	RiskRejected   Kind = "risk_rejected"   // failed the risk gate; not retried
	VenueTransient Kind = "venue_transient" // network/timeout/5xx; not retried automatically
	VenueFatal     Kind = "venue_fatal"     // auth failure, persistent rate limit; stops placement
	Integrity      Kind = "integrity"       // local/venue state disagreement
	Internal       Kind = "internal"        // programmer error / invariant violation
)

// CoreError tags an error with the Kind that should drive its handling and
// the Op (component/operation name) that produced it.
type CoreError struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the wrapped error.
func (e *CoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError constructs a CoreError, or passes an existing one through
// unchanged rather than double-wrapping it.
func NewError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return err
	}
	return &CoreError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it is (or wraps) a CoreError,
// defaulting to Internal when the error carries no classification.
func KindOf(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Internal
}
