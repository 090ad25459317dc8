package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// startTestIPC runs the IPC server on a temp socket and returns its path.
func startTestIPC(t *testing.T, events chan Event) string {
	t.Helper()
	// Unix socket paths are short; t.TempDir() can exceed the limit.
	dir, err := os.MkdirTemp("", "vexipc")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "s.sock")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runIPCServer(ctx, path, events, slog.Default()) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("runIPCServer: %v", err)
			}
		case <-time.After(time.Second):
			t.Errorf("IPC server did not stop")
		}
	})

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, "socket not created")
	return path
}

func TestIPC_SendEvent(t *testing.T) {
	events := make(chan Event, 4)
	path := startTestIPC(t, events)

	if err := SendIPCEvent(path, CurveStep{Direction: 1}); err != nil {
		t.Fatalf("SendIPCEvent: %v", err)
	}
	select {
	case ev := <-events:
		if ev != (CurveStep{Direction: 1}) {
			t.Fatalf("got %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not forwarded")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o660 {
		t.Fatalf("socket mode = %o, want 660", perm)
	}
}

func TestIPC_ErrorsAndQueueFull(t *testing.T) {
	events := make(chan Event) // unbuffered and unread: always full
	path := startTestIPC(t, events)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	roundTrip := func(line string) IPCResponse {
		t.Helper()
		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			t.Fatal(err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		raw, err := r.ReadBytes('\n')
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		var resp IPCResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			t.Fatalf("bad response %q: %v", raw, err)
		}
		return resp
	}

	if resp := roundTrip(`{"type":"warp"}`); resp.Status != "error" || !strings.Contains(resp.Error, "unknown event type") {
		t.Fatalf("unknown type response = %+v", resp)
	}
	if resp := roundTrip(`{"type":"toggle_display"}`); resp.Status != "error" || resp.Error != "event queue full" {
		t.Fatalf("full queue response = %+v", resp)
	}
	// The same connection keeps working after errors.
	if resp := roundTrip(`{"type":"get_state"}`); resp.Status != "error" || !strings.Contains(resp.Error, "daemon busy") {
		t.Fatalf("busy state response = %+v", resp)
	}
}

func TestIPC_GetState(t *testing.T) {
	events := make(chan Event, 4)
	path := startTestIPC(t, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go answerSnapshots(ctx, events, StateSnapshot{BrakeMode: "hold", AutonRoutine: "blue_flag"})

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"type":"get_state"}` + "\n")); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.State == nil || resp.State.BrakeMode != "hold" || resp.State.AutonRoutine != "blue_flag" {
		t.Fatalf("unexpected response %+v", resp)
	}
}
