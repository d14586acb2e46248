package ferrors

import (
	"errors"
	"testing"
)

func TestErrorMessageIncludesOperationAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(StatusNoFabric, "open fabric", cause)

	msg := err.Error()
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to see through to cause")
	}
	if msg == "" {
		t.Fatal("expected non-empty message")
	}
}

func TestIsMatchesWrappedStatus(t *testing.T) {
	err := New(StatusTimeout, "readBlocking", "deadline exceeded")
	if !Is(err, StatusTimeout) {
		t.Fatal("expected Is to match StatusTimeout")
	}
	if Is(err, StatusInterrupted) {
		t.Fatal("did not expect Is to match StatusInterrupted")
	}
}

func TestStatusOfPlainError(t *testing.T) {
	if got := StatusOf(errors.New("boom")); got != StatusUnknown {
		t.Fatalf("expected StatusUnknown for a plain error, got %s", got)
	}
	if got := StatusOf(nil); got != StatusOK {
		t.Fatalf("expected StatusOK for nil, got %s", got)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusInvalidArg:     "InvalidArg",
		StatusNotReady:       "NotReady",
		StatusBufferTooSmall: "BufferTooSmall",
		Status(999):          "Unknown",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}
