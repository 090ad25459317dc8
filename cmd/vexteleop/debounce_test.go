package main

import (
	"testing"
	"time"
)

func TestDebouncer(t *testing.T) {
	d := newDebouncer(60)
	t0 := time.Unix(1000, 0)

	if !d.accept(BTN_SOUTH, t0) {
		t.Fatalf("first press must be accepted")
	}
	if d.accept(BTN_SOUTH, t0.Add(30*time.Millisecond)) {
		t.Fatalf("chatter inside the window must be rejected")
	}
	if !d.accept(BTN_EAST, t0.Add(30*time.Millisecond)) {
		t.Fatalf("other buttons have their own window")
	}
	// The rejected press did not extend the window.
	if !d.accept(BTN_SOUTH, t0.Add(60*time.Millisecond)) {
		t.Fatalf("press at window end must be accepted")
	}
}

func TestDebouncer_Disabled(t *testing.T) {
	d := newDebouncer(0)
	t0 := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		if !d.accept(BTN_SOUTH, t0) {
			t.Fatalf("disabled debouncer rejected press %d", i)
		}
	}
}
