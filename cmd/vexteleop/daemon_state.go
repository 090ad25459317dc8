package main

import (
	"context"
	"errors"
	"time"
)

// DaemonState is the top-level, daemon-owned state container.
//
// Only the reducer mutates it. Other goroutines receive copies through
// StateSnapshot.
type DaemonState struct {
	// Sticks holds the latest normalized reading of every axis.
	Sticks StickState

	// Toggles holds the operator's discrete settings.
	Toggles ToggleState

	// Curve is the live response curve. CurveStep adjusts its exponent.
	Curve ResponseCurveConfig

	// GTA integrator and the currently held GTA buttons.
	GTA     GTAState
	GTAHeld GTAButtons

	// Drive tracks what the motors were last told.
	Drive DriveOutputState

	// Arm tracks what the arm joints were last told.
	Arm ArmOutputState

	// Auton tracks autonomous execution.
	Auton AutonState

	// Display caches the last published display lines so unchanged lines are not re-sent.
	Display DisplayState
}

// StickState holds one reading per axis, in raw input units.
type StickState struct {
	LeftX  float64 `json:"left_x"`
	LeftY  float64 `json:"left_y"`
	RightX float64 `json:"right_x"`
	RightY float64 `json:"right_y"`
}

// ToggleState is the set of discrete operator settings.
type ToggleState struct {
	Reversed       bool
	BrakeMode      BrakeMode
	Spinner        SpinnerState
	SpinnerRPM     float64
	DisplayEnabled bool
	AutonRoutine   int // index into the configured routine list
}

// DriveOutputState is the reducer's view of the drive motors.
type DriveOutputState struct {
	// Last is the most recent drive command handed to the motors.
	Last DriveCommand
	// Sent is false until the first drive command goes out.
	Sent bool

	AppliedAt time.Time
	Failures  int
}

// ArmOutputState is the reducer's view of the arm motors.
type ArmOutputState struct {
	Last ArmCommand
	Sent bool
}

// AutonState tracks a running or finished autonomous routine.
type AutonState struct {
	Running bool
	Routine string

	LastRoutine string
	LastErr     string
	FinishedAt  time.Time
}

// DisplayState is the last text published for each display line.
type DisplayState struct {
	Lines map[DisplayLine]string
}

// NewDaemonState returns the initial state for a reducer config.
func NewDaemonState(cfg ReducerConfig) *DaemonState {
	rpm := cfg.Spinner.DefaultRPM
	if rpm <= 0 {
		rpm = defaultSpinnerRPM
	}
	return &DaemonState{
		Curve: cfg.Curve,
		Toggles: ToggleState{
			BrakeMode:      cfg.InitialBrakeMode,
			SpinnerRPM:     rpm,
			DisplayEnabled: cfg.DisplayEnabled,
		},
		Display: DisplayState{Lines: make(map[DisplayLine]string)},
	}
}

// StateSnapshot is an immutable copy of the externally visible state.
type StateSnapshot struct {
	Sticks StickState `json:"sticks"`

	Reversed       bool    `json:"reversed"`
	BrakeMode      string  `json:"brake_mode"`
	Spinner        string  `json:"spinner"`
	SpinnerRPM     float64 `json:"spinner_rpm"`
	DisplayEnabled bool    `json:"display_enabled"`
	Exponent       float64 `json:"exponent"`

	DriveMode DriveMode    `json:"drive_mode"`
	Drive     DriveCommand `json:"drive"`
	Arm       ArmCommand   `json:"arm"`

	AutonRoutine string `json:"auton_routine"`
	AutonRunning bool   `json:"auton_running"`

	DisplayLines map[DisplayLine]string `json:"display_lines,omitempty"`
}

// Snapshot copies the externally visible parts of s.
func (s *DaemonState) Snapshot(cfg ReducerConfig) StateSnapshot {
	lines := make(map[DisplayLine]string, len(s.Display.Lines))
	for k, v := range s.Display.Lines {
		if v != "" {
			lines[k] = v
		}
	}
	return StateSnapshot{
		Sticks:         s.Sticks,
		Reversed:       s.Toggles.Reversed,
		BrakeMode:      s.Toggles.BrakeMode.String(),
		Spinner:        s.Toggles.Spinner.String(),
		SpinnerRPM:     s.Toggles.SpinnerRPM,
		DisplayEnabled: s.Toggles.DisplayEnabled,
		Exponent:       s.Curve.Exponent,
		DriveMode:      cfg.Mode,
		Drive:          s.Drive.Last,
		Arm:            s.Arm.Last,
		AutonRoutine:   cfg.routineName(s.Toggles.AutonRoutine),
		AutonRunning:   s.Auton.Running,
		DisplayLines:   lines,
	}
}

// snapshotTimeout bounds how long a reader waits for the daemon loop, which
// stays busy for the whole of an autonomous routine.
const snapshotTimeout = time.Second

// requestSnapshot asks the daemon loop for a StateSnapshot. ctx without a
// deadline gets snapshotTimeout.
func requestSnapshot(ctx context.Context, events chan<- Event) (StateSnapshot, error) {
	if events == nil {
		return StateSnapshot{}, errors.New("no event channel")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, snapshotTimeout)
		defer cancel()
	}

	reply := make(chan StateSnapshot, 1)
	select {
	case events <- RequestStateSnapshot{Reply: reply}:
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	}
}
