//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// startInputReaders waits on every gamepad from one epoll goroutine.
func startInputReaders(ctx context.Context, files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	go func() {
		if err := pollInputDevices(ctx, files, events); err != nil {
			reportReadErr(readErr, err)
		}
	}()
}

// evdevBatch is how many records one read may return.
const evdevBatch = 64

// epollWaitTimeout bounds how long the poller goes without checking ctx.
const epollWaitTimeout = 100 * time.Millisecond

// pollInputDevices returns nil once ctx is canceled.
func pollInputDevices(ctx context.Context, files []*os.File, events chan<- inputEvent) error {
	if len(files) == 0 {
		return errors.New("no input devices")
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	byFD := make(map[int32]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		byFD[int32(fd)] = f
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return fmt.Errorf("epoll_ctl %s: %w", f.Name(), err)
		}
	}

	ready := make([]unix.EpollEvent, len(files))
	batch := make([]byte, evdevBatch*inputEventSize)
	emit := func(ev inputEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	for {
		n, err := unix.EpollWait(epfd, ready, int(epollWaitTimeout.Milliseconds()))
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for _, r := range ready[:n] {
			f := byFD[r.Fd]
			// Unplugged or out-of-range gamepads report HUP or ERR.
			if r.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("input device %s went away", f.Name())
			}
			got, err := f.Read(batch)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read %s: %w", f.Name(), err)
			}
			if rest := decodeInputEvents(batch[:got], emit); rest != 0 {
				return fmt.Errorf("read %s: short record (%d bytes)", f.Name(), rest)
			}
		}
	}
}
