package swarmerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew_CarriesKindAndMessage(t *testing.T) {
	err := New(NotFound, "worker %q not declared", "demo")
	if err.Kind != NotFound {
		t.Fatalf("expected Kind NotFound, got %v", err.Kind)
	}
	if err.Error() != `worker "demo" not declared` {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestIs_MatchesByKindNotMessage(t *testing.T) {
	err := New(Conflict, "max_sessions (%d) reached", 50)
	if !Is(err, Conflict) {
		t.Fatal("expected Is to match Conflict")
	}
	if Is(err, NotFound) {
		t.Fatal("expected Is to not match a different Kind")
	}
}

func TestWrap_PreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(NotConnected, cause, "dial worker: %v", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
	if !Is(err, NotConnected) {
		t.Fatal("expected Is to still report NotConnected")
	}
}

func TestError_ThroughFmtWrapping(t *testing.T) {
	inner := New(Timeout, "tool call timed out")
	wrapped := fmt.Errorf("call_tool: %w", inner)
	if !Is(wrapped, Timeout) {
		t.Fatal("expected Is to see through fmt.Errorf wrapping")
	}
}

func TestIs_PlainSentinelWithoutError(t *testing.T) {
	if Is(nil, Internal) {
		t.Fatal("expected Is(nil, ...) to report false")
	}
}
