//go:build !linux

package main

import (
	"context"
	"os"
)

// startInputReaders falls back to one blocking reader goroutine per device.
// Closing the files unblocks the reads.
func startInputReaders(ctx context.Context, files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	for _, f := range files {
		go readInputEvents(ctx, f, events, readErr)
	}
}
