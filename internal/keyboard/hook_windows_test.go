//go:build windows

package keyboard

import (
	"errors"
	"testing"
)

// NOTE: This file overrides postQuitFn and the process-wide hook slot.
// Do not use t.Parallel() here.

func attachForTest(t *testing.T) *Hook {
	t.Helper()
	h := NewHook()
	if err := h.Attach(func(Event) {}); err != nil {
		t.Skipf("low-level keyboard hook unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := h.Detach(); err != nil {
			t.Errorf("cleanup Detach() error = %v", err)
		}
	})
	return h
}

func TestDetachKeepsHookWhenQuitPostFails(t *testing.T) {
	h := attachForTest(t)

	origPost := postQuitFn
	t.Cleanup(func() { postQuitFn = origPost })
	postErr := errors.New("access denied")
	postQuitFn = func(uint32) error { return postErr }

	if err := h.Detach(); !errors.Is(err, postErr) {
		t.Fatalf("Detach() error = %v, want %v", err, postErr)
	}
	if !h.Attached() {
		t.Fatal("Attached() = false after failed Detach, hook thread would be orphaned")
	}
	if activeHandler.Load() == nil {
		t.Fatal("handler cleared after failed Detach")
	}
	if err := NewHook().Attach(func(Event) {}); !errors.Is(err, ErrHookBusy) {
		t.Fatalf("second Attach() error = %v, want ErrHookBusy", err)
	}

	postQuitFn = origPost
	if err := h.Detach(); err != nil {
		t.Fatalf("retried Detach() error = %v", err)
	}
	if h.Attached() || activeHandler.Load() != nil {
		t.Fatal("hook still attached after retried Detach")
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	h := attachForTest(t)
	if err := h.Detach(); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}
	if err := h.Detach(); err != nil {
		t.Fatalf("second Detach() error = %v", err)
	}
}
