package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TelemetryHub fans serialized telemetry frames out to connected viewers.
// Each viewer has its own outbound queue; a viewer whose queue is full when a
// frame arrives is dropped so the others keep up.
type TelemetryHub struct {
	logger *slog.Logger

	frames   chan []byte
	queueLen int

	mu      sync.Mutex
	viewers map[*viewer]struct{}
}

// HubConfig sizes the hub queues. Zero values use defaults.
type HubConfig struct {
	ViewerQueue int // frames buffered per viewer
	FrameQueue  int // frames buffered between the broadcaster and the fanout
}

func NewTelemetryHub(logger *slog.Logger, cfg HubConfig) *TelemetryHub {
	if cfg.ViewerQueue <= 0 {
		cfg.ViewerQueue = 32
	}
	if cfg.FrameQueue <= 0 {
		cfg.FrameQueue = 128
	}
	return &TelemetryHub{
		logger:   logger,
		frames:   make(chan []byte, cfg.FrameQueue),
		queueLen: cfg.ViewerQueue,
		viewers:  make(map[*viewer]struct{}),
	}
}

// Run delivers published frames until ctx is canceled, then disconnects
// every viewer.
func (h *TelemetryHub) Run(ctx context.Context) {
	h.logger.Info("telemetry hub starting")
	defer h.dropAll()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("telemetry hub stopping")
			return
		case frame := <-h.frames:
			h.fanout(frame)
		}
	}
}

func (h *TelemetryHub) fanout(frame []byte) {
	var lagging []*viewer

	h.mu.Lock()
	for v := range h.viewers {
		select {
		case v.out <- frame:
		default:
			lagging = append(lagging, v)
		}
	}
	h.mu.Unlock()

	for _, v := range lagging {
		h.remove(v, "lagging")
	}
}

// Publish queues a frame without blocking. Frames are dropped while the
// queue is full.
func (h *TelemetryHub) Publish(frame []byte) {
	select {
	case h.frames <- frame:
	default:
		h.logger.Warn("telemetry frame queue full, dropping frame", "bytes", len(frame))
	}
}

// Viewers returns the number of connected viewers.
func (h *TelemetryHub) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

func (h *TelemetryHub) add(v *viewer) {
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	n := len(h.viewers)
	h.mu.Unlock()
	h.logger.Info("telemetry viewer connected", "remote_addr", v.addr, "viewers", n)
}

func (h *TelemetryHub) remove(v *viewer, reason string) {
	h.mu.Lock()
	_, ok := h.viewers[v]
	delete(h.viewers, v)
	n := len(h.viewers)
	h.mu.Unlock()

	if !ok {
		return
	}
	v.shutdown()
	h.logger.Info("telemetry viewer disconnected", "remote_addr", v.addr, "reason", reason, "viewers", n)
}

func (h *TelemetryHub) dropAll() {
	h.mu.Lock()
	all := make([]*viewer, 0, len(h.viewers))
	for v := range h.viewers {
		all = append(all, v)
	}
	clear(h.viewers)
	h.mu.Unlock()

	for _, v := range all {
		v.shutdown()
	}
}

// viewer is one websocket connection on the hub. conn may be nil in tests.
type viewer struct {
	hub  *TelemetryHub
	conn *websocket.Conn
	out  chan []byte
	addr string

	closeOnce sync.Once
}

func (h *TelemetryHub) newViewer(conn *websocket.Conn, addr string) *viewer {
	return &viewer{
		hub:  h,
		conn: conn,
		out:  make(chan []byte, h.queueLen),
		addr: addr,
	}
}

// shutdown closes the connection and the outbound queue. Safe to call twice.
func (v *viewer) shutdown() {
	v.closeOnce.Do(func() {
		if v.conn != nil {
			_ = v.conn.Close()
		}
		close(v.out)
	})
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// writeLoop sends queued frames and keepalive pings. It returns when the
// queue is closed or a write fails.
func (v *viewer) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case frame, ok := <-v.out:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				v.logExit("write", err)
				v.hub.remove(v, "write_failed")
				return
			}
		case <-ping.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				v.logExit("ping", err)
				v.hub.remove(v, "ping_failed")
				return
			}
		}
	}
}

// readLoop discards inbound messages. Viewers never send anything useful;
// reading keeps pong handling alive and notices disconnects.
func (v *viewer) readLoop() {
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			v.logExit("read", err)
			v.hub.remove(v, "closed")
			return
		}
	}
}

func (v *viewer) logExit(op string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		v.hub.logger.Info("telemetry viewer closed", "op", op, "remote_addr", v.addr, "code", ce.Code, "reason", ce.Text)
		return
	}
	v.hub.logger.Debug("telemetry viewer io ended", "op", op, "remote_addr", v.addr, "error", err)
}
