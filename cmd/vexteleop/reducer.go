package main

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// This file implements the reducer-style architecture building blocks:
//
//   - Events: inputs to the reducer (operator actions, time ticks, actuator observations)
//   - Commands: side effects requested by the reducer (motor writes, autonomous runs)
//   - Broadcasts: telemetry for display clients
//   - Reduce(): computes next state + commands + broadcasts, without performing I/O
//
// The daemon loop is responsible for executing Commands and feeding observations back as Events.

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
// It can be an operator Action, a Tick, or an observation from the actuators.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop at a fixed cadence (one drive cycle).
// Dt is wall-clock delta in seconds between ticks.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// TimedEvent stamps an externally sourced event with its arrival time.
// Payload types stay free of timestamps.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// RequestStateSnapshot asks the reducer for a copy of the current state.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// DriveApplied is emitted after the motors accepted a drive command.
type DriveApplied struct {
	Command DriveCommand
	At      time.Time
}

func (DriveApplied) eventMarker() {}

// AutonomousFinished is emitted when an autonomous routine ends, successfully or not.
type AutonomousFinished struct {
	Routine string
	Err     error
	At      time.Time
}

func (AutonomousFinished) eventMarker() {}

// ActuatorFailed is emitted when executing a Command fails.
type ActuatorFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (ActuatorFailed) eventMarker() {}

// ==============================
// Reducer configuration
// ==============================

// DriveMode selects how stick and button input becomes drive power.
type DriveMode string

const (
	DriveModeArcade DriveMode = "arcade"
	DriveModeTank   DriveMode = "tank"
	DriveModeGTA    DriveMode = "gta"
)

// ArcadeStick selects which stick drives in arcade mode.
type ArcadeStick string

const (
	ArcadeStickLeft  ArcadeStick = "left"
	ArcadeStickRight ArcadeStick = "right"
)

// SpinnerConfig bounds the spinner speed adjustments.
type SpinnerConfig struct {
	DefaultRPM float64
	RPMMult    float64
	MinRPM     float64
	MaxRPM     float64
}

// ReducerConfig is everything the reducer needs besides state. It never changes at runtime.
type ReducerConfig struct {
	Mode        DriveMode
	ArcadeStick ArcadeStick

	Curve   ResponseCurveConfig
	GTA     GTAConfig
	Spinner SpinnerConfig

	Routines []AutonRoutine

	InitialBrakeMode BrakeMode
	DisplayEnabled   bool

	// ArmEnabled drives the arm from the stick the drive mode leaves free.
	ArmEnabled bool
}

// DefaultReducerConfig returns the reducer configuration used when nothing is configured.
func DefaultReducerConfig() ReducerConfig {
	return ReducerConfig{
		Mode:        DriveModeArcade,
		ArcadeStick: ArcadeStickRight,
		Curve:       DefaultResponseCurve(),
		GTA:         DefaultGTAConfig(),
		Spinner: SpinnerConfig{
			DefaultRPM: defaultSpinnerRPM,
			RPMMult:    defaultSpinnerRPMMult,
			MinRPM:     minSpinnerRPM,
			MaxRPM:     maxSpinnerRPM,
		},
		Routines:         DefaultAutonRoutines(),
		InitialBrakeMode: BrakeCoast,
		DisplayEnabled:   true,
	}
}

func (c ReducerConfig) arcadeSample(st StickState) JoystickSample {
	if c.ArcadeStick == ArcadeStickLeft {
		return JoystickSample{X: st.LeftX, Y: st.LeftY}
	}
	return JoystickSample{X: st.RightX, Y: st.RightY}
}

func (c ReducerConfig) routineAt(i int) (AutonRoutine, bool) {
	if i < 0 || i >= len(c.Routines) {
		return AutonRoutine{}, false
	}
	return c.Routines[i], true
}

func (c ReducerConfig) routineName(i int) string {
	r, _ := c.routineAt(i)
	return r.Name
}

// ==============================
// Reducer input/output
// ==============================

// ReduceResult is the output of Reduce(): next state plus Commands to execute and
// Broadcasts to publish.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// errAutonomousBusy is reported when a routine is requested while another runs.
var errAutonomousBusy = errors.New("autonomous routine already running")

// errUnknownRoutine is reported when a routine name does not match the configured list.
var errUnknownRoutine = errors.New("unknown autonomous routine")

// unknownRoutine wraps errUnknownRoutine with the requested name. The reducer
// and the effect runner both report through it.
func unknownRoutine(name string) error {
	return fmt.Errorf("%w %q", errUnknownRoutine, name)
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
//
// The daemon loop must:
// - execute Commands
// - translate results into Events
// - feed those Events back into Reduce()
func Reduce(s *DaemonState, e Event, cfg ReducerConfig) ReduceResult {
	if s == nil {
		s = NewDaemonState(cfg)
	}

	r := &reduction{s: s, cfg: cfg}

	switch ev := e.(type) {
	case Tick:
		r.at = ev.Now
		r.tick(ev.Dt)

	case TimedEvent:
		r.at = ev.At
		r.action(ev.Event)

	case RequestStateSnapshot:
		r.cmd(CmdPublishStateSnapshot{Reply: ev.Reply, Snapshot: s.Snapshot(cfg)})

	case DriveApplied:
		s.Drive.AppliedAt = ev.At

	case AutonomousFinished:
		r.at = ev.At
		s.Auton.Running = false
		s.Auton.Routine = ""
		s.Auton.LastRoutine = ev.Routine
		s.Auton.FinishedAt = ev.At
		s.Auton.LastErr = ""
		if ev.Err != nil {
			s.Auton.LastErr = ev.Err.Error()
		}
		// Routines leave the motors in hold; restore the operator's choice and
		// force the next tick to resend the drive command.
		r.cmd(CmdSetBrakeMode{Mode: s.Toggles.BrakeMode})
		s.Drive.Sent = false
		s.Drive.Last = DriveCommand{}
		s.Arm = ArmOutputState{}
		s.GTA = GTAState{}
		r.broadcast(BroadcastAutonomous{Routine: ev.Routine, Running: false, Err: s.Auton.LastErr, At: ev.At})

	case ActuatorFailed:
		r.at = ev.At
		s.Drive.Failures++
		// Unknown motor state: resend on the next tick.
		switch ev.Command.(type) {
		case CmdSpinDrive:
			s.Drive.Sent = false
		case CmdSpinArm:
			s.Arm.Sent = false
		}

	default:
		// Actions may also be reduced directly (tests, replay).
		if a, ok := e.(Action); ok {
			r.action(a)
		}
	}

	r.out = append(r.out, refreshDisplay(s, cfg, r.at)...)

	return ReduceResult{
		State:      s,
		Commands:   r.cmds,
		Broadcasts: r.out,
	}
}

// reduction accumulates the output of one Reduce call.
type reduction struct {
	s    *DaemonState
	cfg  ReducerConfig
	at   time.Time
	cmds []Command
	out  []StateBroadcast
}

func (r *reduction) cmd(c Command)              { r.cmds = append(r.cmds, c) }
func (r *reduction) broadcast(b StateBroadcast) { r.out = append(r.out, b) }

// tick runs one drive cycle: compute the command from scratch and send it if it changed.
func (r *reduction) tick(dt float64) {
	s := r.s
	if s.Auton.Running {
		return
	}

	var cmd DriveCommand
	switch r.cfg.Mode {
	case DriveModeTank:
		cmd = ComputeTankCommand(s.Sticks.LeftY, s.Sticks.RightY, s.Curve, s.Toggles.Reversed)
	case DriveModeGTA:
		s.GTA = StepGTAController(s.GTA, s.GTAHeld, dt, r.cfg.GTA)
		cmd = s.GTA.Command()
		if s.Toggles.Reversed {
			cmd = DriveCommand{Left: -cmd.Right, Right: -cmd.Left}
		}
	default:
		cmd = ComputeDriveCommand(r.cfg.arcadeSample(s.Sticks), s.Curve, s.Toggles.Reversed)
	}

	r.sendDrive(cmd)

	if r.cfg.ArmEnabled {
		if sample, ok := r.cfg.armSample(s.Sticks); ok {
			r.sendArm(ComputeArmCommand(sample, s.Curve))
		}
	}
}

func (r *reduction) sendDrive(cmd DriveCommand) {
	s := r.s
	if s.Drive.Sent && !cmd.differsFrom(s.Drive.Last, driveUpdateThresholdPct) {
		return
	}
	s.Drive.Last = cmd
	s.Drive.Sent = true
	r.cmd(CmdSpinDrive{Left: cmd.Left, Right: cmd.Right})
	r.broadcast(BroadcastDriveCommand{Command: cmd, At: r.at})
}

func (r *reduction) sendArm(cmd ArmCommand) {
	s := r.s
	if s.Arm.Sent && !cmd.differsFrom(s.Arm.Last, driveUpdateThresholdPct) {
		return
	}
	s.Arm.Last = cmd
	s.Arm.Sent = true
	r.cmd(CmdSpinArm{Upper: cmd.Upper, Lower: cmd.Lower})
}

// stopArm zeroes the arm unless it is already known to be stopped.
func (r *reduction) stopArm() {
	if !r.cfg.ArmEnabled {
		return
	}
	if r.s.Arm.Sent && r.s.Arm.Last.IsZero() {
		return
	}
	r.s.Arm.Last = ArmCommand{}
	r.s.Arm.Sent = true
	r.cmd(CmdSpinArm{})
}

func (r *reduction) action(e Event) {
	s := r.s
	cfg := r.cfg

	switch a := e.(type) {
	case AxisMoved:
		// Sticks are always tracked; ticks ignore them while autonomous runs.
		v := a.Value
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		switch a.Axis {
		case AxisLeftX:
			s.Sticks.LeftX = v
		case AxisLeftY:
			s.Sticks.LeftY = v
		case AxisRightX:
			s.Sticks.RightX = v
		case AxisRightY:
			s.Sticks.RightY = v
		}

	case SticksCentered:
		s.Sticks = StickState{}
		s.GTAHeld = GTAButtons{}

	case EmergencyStop:
		s.Sticks = StickState{}
		s.GTAHeld = GTAButtons{}
		s.GTA = GTAState{}
		s.Toggles.Spinner = SpinnerOff
		r.cmd(CmdSetSpinner{State: SpinnerOff, RPM: s.Toggles.SpinnerRPM})
		if s.Auton.Running {
			// The running routine owns the drivetrain until it finishes.
			return
		}
		s.Drive.Last = DriveCommand{}
		s.Drive.Sent = true
		r.cmd(CmdStopDrive{Mode: BrakeBrake})
		r.broadcast(BroadcastDriveCommand{At: r.at})
		r.stopArm()

	case ToggleReversed:
		s.Toggles.Reversed = !s.Toggles.Reversed
		r.broadcast(BroadcastRumble{Pattern: ".=", At: r.at})
		if s.Auton.Running {
			return
		}
		// Momentary zero so the direction change is not abrupt.
		s.Drive.Last = DriveCommand{}
		s.Drive.Sent = true
		r.cmd(CmdSpinDrive{})
		r.broadcast(BroadcastDriveCommand{At: r.at})

	case CycleBrakeMode:
		s.Toggles.BrakeMode = s.Toggles.BrakeMode.Next()
		r.broadcast(BroadcastRumble{Pattern: "..", At: r.at})
		if !s.Auton.Running {
			r.cmd(CmdSetBrakeMode{Mode: s.Toggles.BrakeMode})
		}

	case CycleSpinner:
		s.Toggles.Spinner = s.Toggles.Spinner.Next()
		r.cmd(CmdSetSpinner{State: s.Toggles.Spinner, RPM: s.Toggles.SpinnerRPM})

	case WeaponOn:
		s.Toggles.Spinner = SpinnerForward
		r.cmd(CmdSetSpinner{State: SpinnerForward, RPM: s.Toggles.SpinnerRPM})

	case WeaponOff:
		s.Toggles.Spinner = SpinnerOff
		r.cmd(CmdSetSpinner{State: SpinnerOff, RPM: s.Toggles.SpinnerRPM})

	case SpinnerRPMStep:
		if a.Direction == 0 {
			return
		}
		mult := cfg.Spinner.RPMMult
		if mult <= 1 {
			mult = defaultSpinnerRPMMult
		}
		rpm := s.Toggles.SpinnerRPM
		if a.Direction > 0 {
			rpm *= mult
		} else {
			rpm /= mult
		}
		if cfg.Spinner.MinRPM > 0 && rpm < cfg.Spinner.MinRPM {
			rpm = cfg.Spinner.MinRPM
		}
		if cfg.Spinner.MaxRPM > 0 && rpm > cfg.Spinner.MaxRPM {
			rpm = cfg.Spinner.MaxRPM
		}
		s.Toggles.SpinnerRPM = rpm
		r.cmd(CmdSetSpinner{State: s.Toggles.Spinner, RPM: rpm})

	case CurveStep:
		s.Curve = s.Curve.Adjust(a.Direction)

	case ToggleDisplay:
		s.Toggles.DisplayEnabled = !s.Toggles.DisplayEnabled

	case CycleAutonRoutine:
		if s.Auton.Running || len(cfg.Routines) == 0 {
			return
		}
		s.Toggles.AutonRoutine = (s.Toggles.AutonRoutine + 1) % len(cfg.Routines)

	case RunAutonomous:
		r.runAutonomous(a.Routine)

	case GTAButtonChanged:
		switch a.Button {
		case GTAButtonUp:
			s.GTAHeld.Up = a.Held
		case GTAButtonDown:
			s.GTAHeld.Down = a.Held
		case GTAButtonLeft:
			s.GTAHeld.Left = a.Held
		case GTAButtonRight:
			s.GTAHeld.Right = a.Held
		case GTAButtonBrake:
			s.GTAHeld.Brake = a.Held
		case GTAButtonCruise:
			s.GTAHeld.Cruise = a.Held
		}

	case RequestStateSnapshot:
		r.cmd(CmdPublishStateSnapshot{Reply: a.Reply, Snapshot: s.Snapshot(cfg)})

	default:
		// Unknown action: no-op.
	}
}

func (r *reduction) runAutonomous(name string) {
	s := r.s
	if s.Auton.Running {
		r.broadcast(BroadcastAutonomous{Routine: name, Running: true, Err: errAutonomousBusy.Error(), At: r.at})
		return
	}

	if name == "" {
		rt, ok := r.cfg.routineAt(s.Toggles.AutonRoutine)
		if !ok {
			r.broadcast(BroadcastAutonomous{Err: unknownRoutine("").Error(), At: r.at})
			return
		}
		name = rt.Name
	} else {
		if _, ok := findRoutine(r.cfg.Routines, name); !ok {
			r.broadcast(BroadcastAutonomous{Routine: name, Err: unknownRoutine(name).Error(), At: r.at})
			return
		}
	}

	// The routine owns the drivetrain; nothing else should keep moving.
	r.stopArm()
	s.Auton.Running = true
	s.Auton.Routine = name
	s.Drive.Sent = false
	r.cmd(CmdRunAutonomous{Routine: name})
	r.broadcast(BroadcastAutonomous{Routine: name, Running: true, At: r.at})
}
