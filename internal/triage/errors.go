// Package triage implements the classification pipeline and the triage
// queue projection, plus the domain error taxonomy both expose.
package triage

import (
	"errors"
	"fmt"
)

// NotFoundError reports that a referenced patient or visit does not exist.
// It is a caller error and is never retried.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Resource, e.ID)
}

// ValidationError reports missing or malformed caller input.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}

// ScorerErrorKind is the stable machine-readable failure class of a scorer call.
type ScorerErrorKind string

const (
	ScorerTimeout     ScorerErrorKind = "scorer_timeout"
	ScorerUnavailable ScorerErrorKind = "scorer_unavailable"
	ScorerBadResponse ScorerErrorKind = "scorer_bad_response"
)

// ScorerError reports a failed external scorer call. No prediction is written
// when a classify run fails with a ScorerError, so the caller may safely
// re-request the whole classification.
type ScorerError struct {
	Kind   ScorerErrorKind
	Status int // upstream HTTP status, 0 when the call never completed
	Detail string
	Err    error
}

func (e *ScorerError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *ScorerError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err chains to a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err chains to a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsScorerFailure reports whether err chains to a ScorerError. Scorer
// failures are transient from the caller's perspective: retrying the whole
// classify operation is safe because nothing was persisted.
func IsScorerFailure(err error) bool {
	var se *ScorerError
	return errors.As(err, &se)
}
