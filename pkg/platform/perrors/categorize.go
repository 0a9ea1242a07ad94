package perrors

import (
	"context"
	"errors"
)

// HTTPError describes a failed HTTP call made by the webhook delivery
// engine, carrying enough information for Categorize to classify it.
type HTTPError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// TimeoutError indicates a bounded operation exceeded its deadline.
type TimeoutError struct {
	Operation string
}

func (e *TimeoutError) Error() string {
	return e.Operation + " timed out"
}

// ValidationError indicates an event or payload failed structural
// validation against a registered schema.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// Categorize inspects err and returns the Kind a retry loop or
// dispatcher should treat it as. Errors that already wrap a
// PlatformError keep their declared Kind; everything else is
// classified by type and, for HTTPError, by status code.
func Categorize(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return KindTransient
		case httpErr.StatusCode >= 500:
			return KindTransient
		case httpErr.StatusCode == 408:
			return KindTransient
		case httpErr.StatusCode >= 400:
			return KindPermanent
		default:
			return KindInternal
		}
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return KindTransient
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return KindInvalidInput
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}

	return KindInternal
}
