package main

import (
	"sync"
	"time"
)

// debouncer rejects repeat presses of the same button inside a time window.
// Gamepad buttons chatter on press; one physical press must toggle once.
//
// Thread-safe: multiple input device goroutines may call accept() concurrently.
type debouncer struct {
	window time.Duration

	mu       sync.Mutex
	lastSeen map[uint16]time.Time
}

// newDebouncer creates a debouncer with a window in milliseconds.
// A window of zero or less accepts every press.
func newDebouncer(windowMS int) *debouncer {
	return &debouncer{
		window:   time.Duration(windowMS) * time.Millisecond,
		lastSeen: make(map[uint16]time.Time, 16),
	}
}

// accept records a press of code at now and reports whether it should be handled.
// Rejected presses do not extend the window.
func (d *debouncer) accept(code uint16, now time.Time) bool {
	if d.window <= 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastSeen[code]; ok && now.Sub(last) < d.window {
		return false
	}
	d.lastSeen[code] = now
	return true
}
