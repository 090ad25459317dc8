package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// teleop-ctl sends one operator action to a running vexteleop over its unix
// socket: bench testing without a gamepad, or picking a routine in the pit.
//
//	teleop-ctl auton-run blue_flag
//	teleop-ctl -socket /run/vexteleop.sock status

// Payload shapes of the daemon actions this tool sends.
type axisMoved struct {
	Axis  string  `json:"axis"`
	Value float64 `json:"value"`
}

type direction struct {
	Direction int `json:"direction"`
}

type runAutonomous struct {
	Routine string `json:"routine,omitempty"`
}

// request is one line sent to the daemon.
type request struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// IPCResponse is one reply line from the daemon.
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

func main() {
	socketPath := "/tmp/vexteleop.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "teleop-ctl: -socket needs a path")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	req, err := parseCommand(args)
	if errors.Is(err, errHelp) {
		printUsage()
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "teleop-ctl:", err)
		printUsage()
		os.Exit(1)
	}

	resp, err := send(socketPath, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "teleop-ctl:", err)
		os.Exit(1)
	}

	if len(resp.State) > 0 {
		var pretty map[string]any
		if err := json.Unmarshal(resp.State, &pretty); err == nil {
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
			return
		}
		fmt.Println(string(resp.State))
		return
	}
	fmt.Println("ok")
}

var errHelp = errors.New("help requested")

func parseCommand(args []string) (request, error) {
	switch args[0] {
	case "reverse":
		return request{Type: "toggle_reversed"}, nil
	case "brake":
		return request{Type: "cycle_brake_mode"}, nil
	case "spinner":
		return request{Type: "cycle_spinner"}, nil
	case "weapon":
		if len(args) < 2 {
			return request{}, errors.New("weapon requires on or off")
		}
		switch args[1] {
		case "on":
			return request{Type: "weapon_on"}, nil
		case "off":
			return request{Type: "weapon_off"}, nil
		}
		return request{}, fmt.Errorf("invalid weapon state %q (on or off)", args[1])
	case "rpm-up":
		return request{Type: "spinner_rpm_step", Data: direction{Direction: 1}}, nil
	case "rpm-down":
		return request{Type: "spinner_rpm_step", Data: direction{Direction: -1}}, nil
	case "curve-up":
		return request{Type: "curve_step", Data: direction{Direction: 1}}, nil
	case "curve-down":
		return request{Type: "curve_step", Data: direction{Direction: -1}}, nil
	case "display":
		return request{Type: "toggle_display"}, nil
	case "auton-next":
		return request{Type: "cycle_auton_routine"}, nil

	case "auton-run":
		var r runAutonomous
		if len(args) > 1 {
			r.Routine = args[1]
		}
		if r.Routine == "" {
			return request{Type: "run_autonomous"}, nil
		}
		return request{Type: "run_autonomous", Data: r}, nil

	case "stick":
		if len(args) < 3 {
			return request{}, errors.New("stick requires an axis and a value")
		}
		switch args[1] {
		case "left_x", "left_y", "right_x", "right_y":
		default:
			return request{}, fmt.Errorf("invalid axis %q (left_x, left_y, right_x or right_y)", args[1])
		}
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return request{}, fmt.Errorf("invalid stick value: %v", err)
		}
		return request{Type: "axis_moved", Data: axisMoved{Axis: args[1], Value: v}}, nil

	case "center":
		return request{Type: "sticks_centered"}, nil
	case "stop", "estop":
		return request{Type: "emergency_stop"}, nil
	case "status", "state":
		return request{Type: "get_state"}, nil

	case "help", "-h", "--help":
		return request{}, errHelp

	default:
		return request{}, fmt.Errorf("unknown command: %s", args[0])
	}
}

func send(socketPath string, req request) (IPCResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := json.Marshal(req)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if response.Status == "error" {
		return response, fmt.Errorf("daemon error: %s", response.Error)
	}
	return response, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `teleop-ctl - Control the vexteleop daemon via IPC

Usage:
  teleop-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/vexteleop.sock)

Commands:
  reverse                 Toggle drive reversal
  brake                   Cycle brake mode (coast, brake, hold)
  spinner                 Cycle the spinner (off, forward, off, reverse)
  weapon on|off           Latch the spinner forward or off
  rpm-up, rpm-down        Step spinner speed
  curve-up, curve-down    Step the response curve exponent
  display                 Toggle the joystick/motor display lines
  auton-next              Select the next autonomous routine
  auton-run [name]        Run the selected (or named) routine
  stick <axis> <value>    Set a stick axis (left_x, left_y, right_x, right_y)
  center                  Center all sticks
  stop, estop             Emergency stop
  status, state           Print the daemon state
  help, -h, --help        Show this help message

Examples:
  teleop-ctl auton-run red_platform
  teleop-ctl stick right_y 64
  teleop-ctl -socket /run/vexteleop.sock status
`)
}
