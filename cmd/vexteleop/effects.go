package main

import (
	"context"
	"log/slog"
	"time"
)

// Actuators groups the hardware the effect stage drives.
type Actuators struct {
	Drive   *Drivetrain
	Spinner MotorGroup
	Auton   *Autonomous

	// Either joint may be nil when only one is wired.
	ArmUpper MotorGroup
	ArmLower MotorGroup

	Routines []AutonRoutine
}

// runEffect performs one Command against the actuators and reports the
// outcome through onEvent. The outcome is reduced by the daemon loop, never
// here. CmdRunAutonomous blocks until the routine finishes or ctx is canceled.
func runEffect(
	ctx context.Context,
	act *Actuators,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		return
	}

	now := time.Now()

	// Snapshots need no hardware.
	if c, ok := cmd.(CmdPublishStateSnapshot); ok {
		publishSnapshot(c, logger)
		return
	}

	if act == nil || act.Drive == nil {
		onEvent(ActuatorFailed{Command: cmd, Err: errNoDrivetrain{}, At: now})
		return
	}

	switch c := cmd.(type) {
	case CmdSpinDrive:
		dc := DriveCommand{Left: c.Left, Right: c.Right}
		if err := act.Drive.Spin(ctx, dc); err != nil {
			logger.Error("drive spin failed", "error", err, "left", c.Left, "right", c.Right)
			onEvent(ActuatorFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(DriveApplied{Command: dc, At: now})

	case CmdStopDrive:
		if err := act.Drive.Stop(ctx, c.Mode); err != nil {
			logger.Error("drive stop failed", "error", err, "mode", c.Mode.String())
			onEvent(ActuatorFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(DriveApplied{At: now})

	case CmdSetBrakeMode:
		if err := act.Drive.SetBrakeMode(ctx, c.Mode); err != nil {
			logger.Error("set brake mode failed", "error", err, "mode", c.Mode.String())
			onEvent(ActuatorFailed{Command: cmd, Err: err, At: now})
			return
		}
		logger.Debug("brake mode applied", "mode", c.Mode.String())

	case CmdSpinArm:
		if act.ArmUpper == nil && act.ArmLower == nil {
			onEvent(ActuatorFailed{Command: cmd, Err: errNoArm{}, At: now})
			return
		}
		var err error
		if act.ArmUpper != nil {
			err = act.ArmUpper.Spin(ctx, c.Upper)
		}
		if act.ArmLower != nil && err == nil {
			err = act.ArmLower.Spin(ctx, c.Lower)
		}
		if err != nil {
			logger.Error("arm spin failed", "error", err, "upper", c.Upper, "lower", c.Lower)
			onEvent(ActuatorFailed{Command: cmd, Err: err, At: now})
			return
		}

	case CmdSetSpinner:
		if act.Spinner == nil {
			logger.Warn("spinner command without spinner motor", "command", cmd.String())
			onEvent(ActuatorFailed{Command: cmd, Err: errNoSpinner{}, At: now})
			return
		}
		var err error
		switch c.State {
		case SpinnerForward:
			err = act.Spinner.SpinRPM(ctx, c.RPM)
		case SpinnerReverse:
			err = act.Spinner.SpinRPM(ctx, -c.RPM)
		default:
			err = act.Spinner.Stop(ctx, BrakeCoast)
		}
		if err != nil {
			logger.Error("spinner command failed", "error", err, "state", c.State.String(), "rpm", c.RPM)
			onEvent(ActuatorFailed{Command: cmd, Err: err, At: now})
			return
		}

	case CmdRunAutonomous:
		if act.Auton == nil {
			onEvent(AutonomousFinished{Routine: c.Routine, Err: errNoAutonomous{}, At: now})
			return
		}
		routine, ok := findRoutine(act.Routines, c.Routine)
		if !ok {
			onEvent(AutonomousFinished{Routine: c.Routine, Err: unknownRoutine(c.Routine), At: now})
			return
		}
		err := act.Auton.Run(ctx, routine)
		if err != nil {
			logger.Warn("autonomous routine ended with error", "routine", c.Routine, "error", err)
		}
		onEvent(AutonomousFinished{Routine: c.Routine, Err: err, At: time.Now()})

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(ActuatorFailed{
			Command: cmd,
			Err:     errUnknownCommand{cmd: cmd},
			At:      now,
		})
	}
}

// publishSnapshot delivers a reducer-produced snapshot to the requester.
func publishSnapshot(c CmdPublishStateSnapshot, logger *slog.Logger) {
	if c.Reply == nil {
		logger.Warn("state snapshot requested with nil reply channel")
		return
	}

	// Never block the daemon loop indefinitely.
	select {
	case c.Reply <- c.Snapshot:
	default:
		logger.Warn("state snapshot reply channel not ready; dropping snapshot")
	}
}

// errNoDrivetrain indicates the daemon was asked to execute a command without motors.
type errNoDrivetrain struct{}

func (errNoDrivetrain) Error() string { return "no drivetrain configured" }

type errNoSpinner struct{}

func (errNoSpinner) Error() string { return "no spinner motor configured" }

type errNoArm struct{}

func (errNoArm) Error() string { return "no arm motors configured" }

type errNoAutonomous struct{}

func (errNoAutonomous) Error() string { return "autonomous runner not configured" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
