// Package perrors defines the error taxonomy shared by the event,
// webhook, and schema components: a small set of kinds each caller can
// switch on, plus a generic retry executor for the kinds that are
// worth retrying.
package perrors

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// KindInternal indicates a bug or unexpected invariant violation.
	KindInternal Kind = iota
	// KindInvalidInput indicates the caller supplied malformed or
	// out-of-range data.
	KindInvalidInput
	// KindNotFound indicates the referenced resource does not exist.
	KindNotFound
	// KindConflict indicates a concurrent or version conflict (e.g. a
	// stream append with a stale expected version).
	KindConflict
	// KindRejected indicates middleware or a validator explicitly
	// refused to process the input; retrying with the same input will
	// not help.
	KindRejected
	// KindTransient indicates a failure the caller should retry:
	// network errors, 5xx responses, timeouts.
	KindTransient
	// KindPermanent indicates a failure retrying will not fix: 4xx
	// responses other than 408 and 429, signature mismatches.
	KindPermanent
	// KindExpired indicates a time-bounded operation (a signed
	// payload, a replay window) is no longer valid.
	KindExpired
)

// String renders the kind's name.
func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal"
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRejected:
		return "rejected"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// PlatformError wraps an underlying error with a Kind and the
// operation that produced it.
type PlatformError struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements error.
func (e *PlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap returns the underlying error.
func (e *PlatformError) Unwrap() error {
	return e.Err
}

// New constructs a PlatformError.
func New(kind Kind, op string, err error) *PlatformError {
	return &PlatformError{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInternal if err
// does not wrap a PlatformError.
func KindOf(err error) Kind {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the kind is worth retrying.
func (k Kind) IsRetryable() bool {
	return k == KindTransient
}

// IsRetryable reports whether err should be retried by a caller.
func IsRetryable(err error) bool {
	return KindOf(err).IsRetryable()
}

// sentinels for common cases not tied to a specific operation.
var (
	ErrNotFound = New(KindNotFound, "", errors.New("not found"))
	ErrRejected = New(KindRejected, "", errors.New("rejected"))
	ErrExpired  = New(KindExpired, "", errors.New("expired"))
)
