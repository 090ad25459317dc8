package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Telemetry frames are JSON text messages {type, ts, data}. A new viewer
// first receives "state_init" with a StateSnapshot, then the reducer's
// broadcasts as they happen. The display is a pure consumer: no viewers, or a
// disabled display, never changes what the drive does.

type wsDisplayLineData struct {
	Line DisplayLine `json:"line"`
	Text string      `json:"text"`
}

type wsRumbleData struct {
	Pattern string `json:"pattern"`
}

type wsAutonomousData struct {
	Routine string `json:"routine,omitempty"`
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

// wireFrame is the JSON shape of every telemetry message.
type wireFrame struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func encodeFrame(typ string, at time.Time, data any) ([]byte, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return json.Marshal(wireFrame{Type: typ, Ts: &at, Data: data})
}

// TelemetryServer serves the websocket stream and a JSON state endpoint.
// Snapshots are requested through the daemon's event channel so DaemonState
// is only ever read by the loop that owns it.
type TelemetryServer struct {
	logger *slog.Logger
	hub    *TelemetryHub
	events chan<- Event
}

// NewTelemetryServer wires a server to the daemon events channel. The caller
// runs Hub().Run and RunBroadcaster.
func NewTelemetryServer(logger *slog.Logger, events chan<- Event, cfg HubConfig) *TelemetryServer {
	return &TelemetryServer{
		logger: logger,
		hub:    NewTelemetryHub(logger, cfg),
		events: events,
	}
}

func (s *TelemetryServer) Hub() *TelemetryHub { return s.hub }

// Register mounts the websocket at path and the state endpoint at path+"/state".
func (s *TelemetryServer) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleWS)
	mux.HandleFunc(path+"/state", s.handleState)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *TelemetryServer) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := requestSnapshot(r.Context(), s.events)
	if err != nil {
		http.Error(w, "daemon busy: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Debug("state response write failed", "error", err)
	}
}

func (s *TelemetryServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("telemetry upgrade failed", "error", err)
		return
	}

	// Fetch the snapshot before joining the hub so state_init is the first
	// frame on the wire.
	snap, err := requestSnapshot(r.Context(), s.events)
	if err != nil {
		s.logger.Warn("telemetry snapshot request failed", "remote_addr", r.RemoteAddr, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "daemon busy"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	initFrame, err := encodeFrame("state_init", time.Time{}, snap)
	if err != nil {
		s.logger.Warn("telemetry state_init encode failed", "error", err)
		_ = conn.Close()
		return
	}

	v := s.hub.newViewer(conn, r.RemoteAddr)
	v.out <- initFrame
	s.hub.add(v)

	// The loops outlive the handler; the hub closes the connection.
	go v.writeLoop()
	go v.readLoop()
}

// wsDriveCoalesceWindow bounds how often drive_command frames go out. The
// reducer can emit one per tick; viewers only need the latest.
const wsDriveCoalesceWindow = 50 * time.Millisecond

// driveCoalescer holds back drive_command frames, latest wins, until the
// window expires or another frame must go out first.
type driveCoalescer struct {
	pending *BroadcastDriveCommand
	timer   *time.Timer
}

func (c *driveCoalescer) hold(b BroadcastDriveCommand) {
	c.pending = &b
	if c.timer == nil {
		c.timer = time.NewTimer(wsDriveCoalesceWindow)
	}
}

// expired is nil while nothing is held.
func (c *driveCoalescer) expired() <-chan time.Time {
	if c.timer == nil {
		return nil
	}
	return c.timer.C
}

// take returns the held command, if any, and resets the window.
func (c *driveCoalescer) take() (BroadcastDriveCommand, bool) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.pending == nil {
		return BroadcastDriveCommand{}, false
	}
	b := *c.pending
	c.pending = nil
	return b, true
}

// RunBroadcaster turns reducer broadcasts into telemetry frames and publishes
// them on the hub. Run it as a single goroutine.
func RunBroadcaster(ctx context.Context, hub *TelemetryHub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	publish := func(b StateBroadcast) {
		typ, at, data, ok := frameFor(b)
		if !ok {
			return
		}
		frame, err := encodeFrame(typ, at, data)
		if err != nil {
			logger.Warn("telemetry frame encode failed", "type", typ, "error", err)
			return
		}
		hub.Publish(frame)
	}

	var drive driveCoalescer
	flush := func() {
		if b, ok := drive.take(); ok {
			publish(b)
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case <-drive.expired():
			flush()

		case b, ok := <-src:
			if !ok {
				flush()
				logger.Info("telemetry broadcaster stopping (source closed)")
				return
			}
			if dc, isDrive := b.(BroadcastDriveCommand); isDrive {
				drive.hold(dc)
				continue
			}
			// A held drive update goes out before anything that came after it.
			flush()
			publish(b)
		}
	}
}

// broadcastType names the frame type b is published as.
func broadcastType(b StateBroadcast) string {
	typ, _, _, ok := frameFor(b)
	if !ok {
		return "unknown"
	}
	return typ
}

func frameFor(b StateBroadcast) (typ string, at time.Time, data any, ok bool) {
	switch ev := b.(type) {
	case BroadcastDisplayLine:
		return "display_line", ev.At, wsDisplayLineData{Line: ev.Line, Text: ev.Text}, true
	case BroadcastDriveCommand:
		return "drive_command", ev.At, ev.Command, true
	case BroadcastRumble:
		return "rumble", ev.At, wsRumbleData{Pattern: ev.Pattern}, true
	case BroadcastAutonomous:
		return "autonomous", ev.At, wsAutonomousData{Routine: ev.Routine, Running: ev.Running, Error: ev.Err}, true
	default:
		return "", time.Time{}, nil, false
	}
}
