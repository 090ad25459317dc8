package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// IPC lets a pit laptop or script act as a second operator. Each line on the
// unix socket is one JSON request:
//
//	{"type": "cycle_spinner"}                        -> {"status":"ok"}
//	{"type": "curve_step", "data": {"direction": 1}} -> {"status":"ok"}
//	{"type": "get_state"}                            -> {"status":"ok","state":{...}}
//
// Failures answer {"status":"error","error":"..."} and keep the connection open.
// Actions received here are reduced exactly like gamepad presses.

// ipcQueryState is the only request type that is not an Action.
const ipcQueryState = "get_state"

// IPCResponse is one reply line.
type IPCResponse struct {
	Status string         `json:"status"`
	Error  string         `json:"error,omitempty"`
	State  *StateSnapshot `json:"state,omitempty"`
}

func ipcOK() IPCResponse { return IPCResponse{Status: "ok"} }

func ipcError(format string, args ...any) IPCResponse {
	return IPCResponse{Status: "error", Error: fmt.Sprintf(format, args...)}
}

type ipcServer struct {
	events chan<- Event
	logger *slog.Logger
}

// runIPCServer serves socketPath until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, events chan<- Event, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer os.Remove(socketPath)

	// Whoever can write to the socket can drive the robot.
	if err := os.Chmod(socketPath, 0o660); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	srv := &ipcServer{events: events, logger: logger}
	logger.Info("IPC listening", "socket", socketPath)
	return srv.serve(ctx, ln)
}

func (s *ipcServer) serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Debug("IPC listener closed")
				return nil
			}
			s.logger.Error("IPC accept failed", "error", err)
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *ipcServer) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.logger.With("remote_addr", conn.RemoteAddr().String())
	log.Debug("IPC connection opened")

	lines := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)
	for lines.Scan() {
		line := lines.Bytes()
		log.Debug("IPC request", "line", string(line))

		resp := s.dispatch(ctx, line)
		if err := enc.Encode(resp); err != nil {
			log.Warn("IPC reply failed", "error", err, "status", resp.Status)
			return
		}
	}
	log.Debug("IPC connection closed")
}

func (s *ipcServer) dispatch(ctx context.Context, line []byte) IPCResponse {
	if requestType(line) == ipcQueryState {
		snap, err := requestSnapshot(ctx, s.events)
		if err != nil {
			return ipcError("daemon busy: %v", err)
		}
		return IPCResponse{Status: "ok", State: &snap}
	}

	ev, err := UnmarshalEvent(line)
	if err != nil {
		return ipcError("parse event: %v", err)
	}
	// The loop may be running a routine; the caller gets an answer either way.
	select {
	case s.events <- ev:
		return ipcOK()
	default:
		return ipcError("event queue full")
	}
}

func requestType(line []byte) string {
	var env EventEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return ""
	}
	return env.Type
}

// SendIPCEvent delivers one action to the daemon at socketPath.
func SendIPCEvent(socketPath string, ev Event) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", strings.TrimSpace(string(data))); err != nil {
		return fmt.Errorf("send event: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("ipc error: %s", resp.Error)
	}
	return nil
}
