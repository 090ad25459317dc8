package main

import (
	"fmt"
	"time"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
// In this codebase, those are motor writes and autonomous routines.
type Command interface {
	commandMarker()
	String() string
}

// CmdSpinDrive sets the power of both drivetrain sides (percent).
type CmdSpinDrive struct {
	Left  float64
	Right float64
}

func (CmdSpinDrive) commandMarker() {}
func (c CmdSpinDrive) String() string {
	return fmt.Sprintf("CmdSpinDrive(left=%.2f, right=%.2f)", c.Left, c.Right)
}

// CmdSpinArm sets the power of both arm joints (percent).
type CmdSpinArm struct {
	Upper float64
	Lower float64
}

func (CmdSpinArm) commandMarker() {}
func (c CmdSpinArm) String() string {
	return fmt.Sprintf("CmdSpinArm(upper=%.2f, lower=%.2f)", c.Upper, c.Lower)
}

// CmdStopDrive stops both drivetrain sides with the given stopping mode.
type CmdStopDrive struct {
	Mode BrakeMode
}

func (CmdStopDrive) commandMarker() {}
func (c CmdStopDrive) String() string {
	return fmt.Sprintf("CmdStopDrive(mode=%s)", c.Mode)
}

// CmdSetBrakeMode applies a stopping mode to every drive motor.
type CmdSetBrakeMode struct {
	Mode BrakeMode
}

func (CmdSetBrakeMode) commandMarker() {}
func (c CmdSetBrakeMode) String() string {
	return fmt.Sprintf("CmdSetBrakeMode(mode=%s)", c.Mode)
}

// CmdSetSpinner drives the spinner. RPM is ignored for SpinnerOff states.
type CmdSetSpinner struct {
	State SpinnerState
	RPM   float64
}

func (CmdSetSpinner) commandMarker() {}
func (c CmdSetSpinner) String() string {
	return fmt.Sprintf("CmdSetSpinner(state=%s, rpm=%.0f)", c.State, c.RPM)
}

// CmdRunAutonomous runs an open-loop routine to completion. It blocks the effect stage.
type CmdRunAutonomous struct {
	Routine string
}

func (CmdRunAutonomous) commandMarker() {}
func (c CmdRunAutonomous) String() string {
	return fmt.Sprintf("CmdRunAutonomous(routine=%s)", c.Routine)
}

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// ==============================
// Broadcasts (telemetry)
// ==============================

// StateBroadcast is a reducer-emitted notification for telemetry clients.
// Broadcasts never feed back into the reducer.
type StateBroadcast interface {
	broadcastMarker()
}

// DisplayLine identifies one line of the feedback display.
type DisplayLine string

const (
	DisplayLineJoystick DisplayLine = "joystick"
	DisplayLineMotors   DisplayLine = "motors"
	DisplayLineSpinner  DisplayLine = "spinner"
	DisplayLineAuton    DisplayLine = "auton"
)

// BroadcastDisplayLine replaces one display line. Empty Text clears it.
type BroadcastDisplayLine struct {
	Line DisplayLine
	Text string
	At   time.Time
}

func (BroadcastDisplayLine) broadcastMarker() {}

// BroadcastDriveCommand reports a drive command that was handed to the motors.
type BroadcastDriveCommand struct {
	Command DriveCommand
	At      time.Time
}

func (BroadcastDriveCommand) broadcastMarker() {}

// BroadcastRumble asks the operator's controller to rumble a pattern
// ("." short, "-" long, " " pause).
type BroadcastRumble struct {
	Pattern string
	At      time.Time
}

func (BroadcastRumble) broadcastMarker() {}

// BroadcastAutonomous reports autonomous start/finish.
type BroadcastAutonomous struct {
	Routine string
	Running bool
	Err     string
	At      time.Time
}

func (BroadcastAutonomous) broadcastMarker() {}
