package perrors

import (
	"errors"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindInternal, "internal"},
		{KindInvalidInput, "invalid_input"},
		{KindNotFound, "not_found"},
		{KindConflict, "conflict"},
		{KindRejected, "rejected"},
		{KindTransient, "transient"},
		{KindPermanent, "permanent"},
		{KindExpired, "expired"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("Kind(%d).String() = %s, want %s", tt.kind, got, tt.want)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil error", nil, KindInternal},
		{"HTTP 429", &HTTPError{StatusCode: 429}, KindTransient},
		{"HTTP 503", &HTTPError{StatusCode: 503}, KindTransient},
		{"HTTP 500", &HTTPError{StatusCode: 500}, KindTransient},
		{"HTTP 401", &HTTPError{StatusCode: 401}, KindPermanent},
		{"HTTP 404", &HTTPError{StatusCode: 404}, KindPermanent},
		{"validation error", &ValidationError{Message: "missing field"}, KindInvalidInput},
		{"timeout error", &TimeoutError{Operation: "deliver"}, KindTransient},
		{"already a platform error", New(KindConflict, "append", errors.New("stale version")), KindConflict},
		{"unknown error", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err); got != tt.want {
				t.Errorf("Categorize() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(KindTransient, "deliver", errors.New("timeout"))) {
		t.Error("expected transient error to be retryable")
	}
	if IsRetryable(New(KindPermanent, "deliver", errors.New("bad request"))) {
		t.Error("expected permanent error to not be retryable")
	}
}

func TestIs(t *testing.T) {
	err := New(KindNotFound, "load", errors.New("no such stream"))
	if !Is(err, KindNotFound) {
		t.Error("expected Is(err, KindNotFound) to be true")
	}
	if Is(err, KindConflict) {
		t.Error("expected Is(err, KindConflict) to be false")
	}
}
