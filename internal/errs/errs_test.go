package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{ErrEmptyMessage, KindValidation},
		{fmt.Errorf("join: %w", ErrUsernameTaken), KindConflict},
		{Transient("append", errors.New("disk full")), KindTransient},
		{errors.New("plain"), KindUnknown},
		{nil, KindUnknown},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Fatalf("KindOf(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestWithKeepsSentinelIdentity(t *testing.T) {
	cause := errors.New("boom")
	err := With(ErrMessageTooLong, cause)
	if !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("expected errors.Is to match sentinel")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match cause")
	}
	if errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("matched unrelated sentinel")
	}
}

func TestTransientHidesInternals(t *testing.T) {
	err := Transient("range", errors.New("pebble: closed"))
	if Message(err) != "Internal server error" {
		t.Fatalf("message leaked internals: %q", Message(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("transient error should be retryable")
	}
	if Transient("x", nil) != nil {
		t.Fatalf("nil in, nil out")
	}
	if got := Transient("x", ErrUsernameTaken); !errors.Is(got, ErrUsernameTaken) || IsRetryable(got) {
		t.Fatalf("classified errors must pass through unchanged")
	}
}
