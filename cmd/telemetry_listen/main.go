package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// telemetry_listen connects to the vexteleop telemetry websocket and prints
// the feedback display and events as they arrive.

type message struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type displayLine struct {
	Line string `json:"line"`
	Text string `json:"text"`
}

type driveCommand struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

type autonomous struct {
	Routine string `json:"routine"`
	Running bool   `json:"running"`
	Error   string `json:"error"`
}

type rumble struct {
	Pattern string `json:"pattern"`
}

type stateInit struct {
	DisplayLines map[string]string `json:"display_lines"`
}

// screen is the last known text of each display line.
type screen struct {
	mu    sync.Mutex
	lines map[string]string
}

var lineOrder = []string{"joystick", "motors", "spinner", "auton"}

func (s *screen) set(line, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[line] = text
}

func (s *screen) print() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Println("+------------------------------+")
	for _, l := range lineOrder {
		fmt.Printf("| %-28s |\n", s.lines[l])
	}
	// Lines this tool does not know about yet.
	var extra []string
	for l := range s.lines {
		known := false
		for _, k := range lineOrder {
			known = known || k == l
		}
		if !known {
			extra = append(extra, l)
		}
	}
	sort.Strings(extra)
	for _, l := range extra {
		fmt.Printf("| %-28s |\n", s.lines[l])
	}
	fmt.Println("+------------------------------+")
}

func main() {
	var (
		wsURL     = flag.String("ws", "ws://127.0.0.1:8080/telemetry", "vexteleop telemetry websocket URL")
		showDrive = flag.Bool("drive", false, "Print drive commands (up to 20 per second)")
		once      = flag.Bool("once", false, "Print the initial state and exit")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// The daemon pings; answering pongs is handled by the library. Extend the
	// deadline on every ping so a dead daemon is noticed.
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	scr := &screen{lines: make(map[string]string)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			var m message
			if err := json.Unmarshal(raw, &m); err != nil {
				fmt.Printf("[TEXT] %s\n", raw)
				continue
			}
			if handleMessage(m, scr, *showDrive) && *once {
				return
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		if !*once {
			log.Printf("connection closed")
		}
	}
}

// handleMessage prints one telemetry message. It reports whether m was the initial state.
func handleMessage(m message, scr *screen, showDrive bool) bool {
	switch m.Type {
	case "state_init":
		var st stateInit
		if err := json.Unmarshal(m.Data, &st); err == nil {
			for l, text := range st.DisplayLines {
				scr.set(l, text)
			}
		}
		pretty, _ := json.MarshalIndent(json.RawMessage(m.Data), "", "  ")
		fmt.Printf("[STATE]\n%s\n", pretty)
		scr.print()
		return true

	case "display_line":
		var dl displayLine
		if err := json.Unmarshal(m.Data, &dl); err != nil {
			return false
		}
		scr.set(dl.Line, dl.Text)
		scr.print()

	case "drive_command":
		if !showDrive {
			return false
		}
		var dc driveCommand
		if err := json.Unmarshal(m.Data, &dc); err == nil {
			fmt.Printf("[DRIVE] L %6.1f%%  R %6.1f%%\n", dc.Left, dc.Right)
		}

	case "rumble":
		var r rumble
		if err := json.Unmarshal(m.Data, &r); err == nil {
			fmt.Printf("[RUMBLE] %q\n", r.Pattern)
		}

	case "autonomous":
		var a autonomous
		if err := json.Unmarshal(m.Data, &a); err != nil {
			return false
		}
		switch {
		case a.Error != "":
			fmt.Printf("[AUTON] %s: %s\n", a.Routine, a.Error)
		case a.Running:
			fmt.Printf("[AUTON] %s running\n", a.Routine)
		default:
			fmt.Printf("[AUTON] %s finished\n", a.Routine)
		}

	default:
		fmt.Printf("[%s] %s\n", m.Type, m.Data)
	}
	return false
}
