package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ============================================================================
// Autonomous (open loop)
// ============================================================================
// Routines are timed sequences of straight moves, in-place rotations and
// pauses. There is no feedback: distance and angle come from calibrated
// speeds, so drift is expected.
// ============================================================================

// Sleeper blocks for a duration or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AutonDrive is the part of the drivetrain autonomous routines use.
type AutonDrive interface {
	Spin(ctx context.Context, cmd DriveCommand) error
	SetBrakeMode(ctx context.Context, mode BrakeMode) error
	Stop(ctx context.Context, mode BrakeMode) error
}

// RotateCalibration converts a rotation angle into a drive time.
//
//	base = |a| / 9 * MSPerNineDeg           (integer division)
//	|a| < SmallBelow:  base + SmallBonus / |a|
//	|a| < MediumBelow: base + MediumBonus / |a|
//	otherwise:         base - LargePenalty / |a|
type RotateCalibration struct {
	MSPerNineDeg int `yaml:"ms_per_nine_deg"`
	SmallBelow   int `yaml:"small_below_deg"`
	SmallBonus   int `yaml:"small_bonus"`
	MediumBelow  int `yaml:"medium_below_deg"`
	MediumBonus  int `yaml:"medium_bonus"`
	LargePenalty int `yaml:"large_penalty"`
}

// DefaultRotateCalibration is tuned for a full-power spin of about 0.36 deg/ms.
func DefaultRotateCalibration() RotateCalibration {
	return RotateCalibration{
		MSPerNineDeg: 25,
		SmallBelow:   80,
		SmallBonus:   1500,
		MediumBelow:  190,
		MediumBonus:  2300,
		LargePenalty: 700,
	}
}

// Duration returns how long to spin for degrees. Zero degrees is zero time.
func (c RotateCalibration) Duration(degrees int) time.Duration {
	a := degrees
	if a < 0 {
		a = -a
	}
	if a == 0 {
		return 0
	}
	ms := a / 9 * c.MSPerNineDeg
	switch {
	case a < c.SmallBelow:
		ms += c.SmallBonus / a
	case a < c.MediumBelow:
		ms += c.MediumBonus / a
	default:
		ms -= c.LargePenalty / a
	}
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// AutonConfig holds the open-loop calibration.
type AutonConfig struct {
	SpeedMPS  float64 // straight-line speed at full power
	FullPower float64 // percent used for moves and rotations
	Rotate    RotateCalibration
}

// DefaultAutonConfig returns the calibration used when nothing is configured.
func DefaultAutonConfig() AutonConfig {
	return AutonConfig{
		SpeedMPS:  defaultAutonSpeedMPS,
		FullPower: defaultMaxOutput,
		Rotate:    DefaultRotateCalibration(),
	}
}

// Autonomous runs primitive moves against a drivetrain.
type Autonomous struct {
	Drive   AutonDrive
	Sleeper Sleeper
	Config  AutonConfig
	Logger  *slog.Logger
}

// MoveForTime drives both sides at power for d, then holds and stops.
func (a *Autonomous) MoveForTime(ctx context.Context, power float64, forward bool, d time.Duration) error {
	if !forward {
		power = -power
	}
	if err := a.Drive.Spin(ctx, DriveCommand{Left: power, Right: power}); err != nil {
		return a.abort(fmt.Errorf("move: %w", err))
	}
	if err := a.Sleeper.Sleep(ctx, d); err != nil {
		return a.abort(err)
	}
	if err := a.Drive.SetBrakeMode(ctx, BrakeHold); err != nil {
		return a.abort(fmt.Errorf("move: %w", err))
	}
	if err := a.Drive.Stop(ctx, BrakeHold); err != nil {
		return fmt.Errorf("move: %w", err)
	}
	return nil
}

// MoveDistance drives meters at full power using the calibrated speed.
func (a *Autonomous) MoveDistance(ctx context.Context, meters float64, forward bool) error {
	speed := a.Config.SpeedMPS
	if speed <= 0 {
		speed = defaultAutonSpeedMPS
	}
	ms := int(meters / speed * 1000)
	return a.MoveForTime(ctx, a.fullPower(), forward, time.Duration(ms)*time.Millisecond)
}

// RotateForAngle spins in place. Positive degrees turn right
// (left side forward, right side reverse), negative turn left.
func (a *Autonomous) RotateForAngle(ctx context.Context, degrees int) error {
	if degrees == 0 {
		return nil
	}
	p := a.fullPower()
	cmd := DriveCommand{Left: p, Right: -p}
	if degrees < 0 {
		cmd = DriveCommand{Left: -p, Right: p}
	}
	if err := a.Drive.Spin(ctx, cmd); err != nil {
		return a.abort(fmt.Errorf("rotate: %w", err))
	}
	if err := a.Sleeper.Sleep(ctx, a.Config.Rotate.Duration(degrees)); err != nil {
		return a.abort(err)
	}
	if err := a.Drive.Stop(ctx, BrakeHold); err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	return nil
}

// Run executes every step of r in order.
func (a *Autonomous) Run(ctx context.Context, r AutonRoutine) error {
	a.Logger.Info("autonomous starting", "routine", r.Name, "steps", len(r.Steps))
	start := time.Now()

	for i, st := range r.Steps {
		var err error
		switch st.Op {
		case AutonOpForward:
			err = a.MoveDistance(ctx, st.Meters, true)
		case AutonOpBackward:
			err = a.MoveDistance(ctx, st.Meters, false)
		case AutonOpRotate:
			err = a.RotateForAngle(ctx, st.Degrees)
		case AutonOpPause:
			if err = a.Sleeper.Sleep(ctx, time.Duration(st.MS)*time.Millisecond); err != nil {
				err = a.abort(err)
			}
		default:
			err = fmt.Errorf("unknown step op %q", st.Op)
		}
		if err != nil {
			return fmt.Errorf("routine %s step %d (%s): %w", r.Name, i, st.Op, err)
		}
	}

	a.Logger.Info("autonomous finished", "routine", r.Name, "elapsed", time.Since(start))
	return nil
}

// abort stops the drivetrain after a failed or canceled step. The stop uses a
// fresh context so it still goes out when ctx is already canceled.
func (a *Autonomous) abort(cause error) error {
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Drive.Stop(stopCtx, BrakeHold); err != nil {
		return errors.Join(cause, fmt.Errorf("stop after abort: %w", err))
	}
	return cause
}

func (a *Autonomous) fullPower() float64 {
	if a.Config.FullPower > 0 {
		return a.Config.FullPower
	}
	return defaultMaxOutput
}

// ============================================================================
// Routines
// ============================================================================

// AutonOp is the kind of one routine step.
type AutonOp string

const (
	AutonOpForward  AutonOp = "forward"
	AutonOpBackward AutonOp = "backward"
	AutonOpRotate   AutonOp = "rotate"
	AutonOpPause    AutonOp = "pause"
)

// AutonStep is one step of a routine.
type AutonStep struct {
	Op      AutonOp `yaml:"op"`
	Meters  float64 `yaml:"meters,omitempty"`
	Degrees int     `yaml:"degrees,omitempty"`
	MS      int     `yaml:"ms,omitempty"`
}

// AutonRoutine is a named sequence of steps. Label and Hint are shown on the display.
type AutonRoutine struct {
	Name  string      `yaml:"name"`
	Label string      `yaml:"label"`
	Hint  string      `yaml:"hint,omitempty"`
	Steps []AutonStep `yaml:"steps"`
}

// flagRoutine drives into the flag, backs up past the start, turns towards the
// platform side and drives on. Red turns left.
func flagRoutine(red bool) []AutonStep {
	turn := 90
	if red {
		turn = -90
	}
	return []AutonStep{
		{Op: AutonOpForward, Meters: 1.65},
		{Op: AutonOpPause, MS: defaultAutonPauseMS},
		{Op: AutonOpBackward, Meters: 2.3},
		{Op: AutonOpPause, MS: defaultAutonPauseMS},
		{Op: AutonOpRotate, Degrees: turn},
		{Op: AutonOpForward, Meters: 1.8},
	}
}

// platformRoutine sidesteps and climbs onto the platform.
func platformRoutine(red bool) []AutonStep {
	turn := 90
	if red {
		turn = -90
	}
	return []AutonStep{
		{Op: AutonOpRotate, Degrees: turn},
		{Op: AutonOpForward, Meters: 0.6},
		{Op: AutonOpRotate, Degrees: -turn},
		{Op: AutonOpForward, Meters: 1.3},
	}
}

// DefaultAutonRoutines returns the four built-in routines in selection order.
func DefaultAutonRoutines() []AutonRoutine {
	return []AutonRoutine{
		{Name: "red_flag", Label: "A1 - Red flag", Hint: "Face robot spinner towards flag", Steps: flagRoutine(true)},
		{Name: "blue_flag", Label: "A2 - Blue flag", Hint: "Face robot spinner towards flag", Steps: flagRoutine(false)},
		{Name: "red_platform", Label: "A3 - Red platform", Hint: "Face robot spinner towards opposite side", Steps: platformRoutine(true)},
		{Name: "blue_platform", Label: "A4 - Blue platform", Hint: "Face robot spinner towards opposite side", Steps: platformRoutine(false)},
	}
}

// findRoutine returns the routine called name.
func findRoutine(routines []AutonRoutine, name string) (AutonRoutine, bool) {
	for _, r := range routines {
		if r.Name == name {
			return r, true
		}
	}
	return AutonRoutine{}, false
}
