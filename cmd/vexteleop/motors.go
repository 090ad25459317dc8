package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ============================================================================
// Motor actuators
// ============================================================================
// A MotorGroup is a set of motors that always receive the same command (one
// side of the drivetrain, or the spinner). Groups talk to hardware through a
// MotorBus, so the same grouping logic serves the CAN, serial and log backends.
// ============================================================================

// BrakeMode is the stopping behaviour of a motor.
type BrakeMode uint8

const (
	BrakeCoast BrakeMode = iota
	BrakeBrake
	BrakeHold
)

func (m BrakeMode) String() string {
	switch m {
	case BrakeCoast:
		return "coast"
	case BrakeBrake:
		return "brake"
	case BrakeHold:
		return "hold"
	default:
		return fmt.Sprintf("BrakeMode(%d)", uint8(m))
	}
}

// Letter is the single-character form used on the display line.
func (m BrakeMode) Letter() byte {
	switch m {
	case BrakeBrake:
		return 'B'
	case BrakeHold:
		return 'H'
	default:
		return 'C'
	}
}

// Next returns the following mode in the coast -> brake -> hold cycle.
func (m BrakeMode) Next() BrakeMode {
	return (m + 1) % 3
}

// ParseBrakeMode parses "coast", "brake" or "hold".
func ParseBrakeMode(s string) (BrakeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coast":
		return BrakeCoast, nil
	case "brake":
		return BrakeBrake, nil
	case "hold":
		return BrakeHold, nil
	default:
		return BrakeCoast, fmt.Errorf("invalid brake mode: %q (must be coast, brake, or hold)", s)
	}
}

// SpinnerState is a position in the four-step spinner toggle.
// Two of the four positions are "off" so that consecutive "on" presses alternate direction.
type SpinnerState uint8

const (
	SpinnerOff SpinnerState = iota
	SpinnerForward
	SpinnerOffAfterForward
	SpinnerReverse
)

// Next returns the following toggle position.
func (s SpinnerState) Next() SpinnerState {
	return (s + 1) % 4
}

// Running reports whether the spinner should be turning.
func (s SpinnerState) Running() bool {
	return s == SpinnerForward || s == SpinnerReverse
}

// Short returns the display form: OFF, FWD or REV.
func (s SpinnerState) Short() string {
	switch s {
	case SpinnerForward:
		return "FWD"
	case SpinnerReverse:
		return "REV"
	default:
		return "OFF"
	}
}

func (s SpinnerState) String() string {
	switch s {
	case SpinnerForward:
		return "forward"
	case SpinnerReverse:
		return "reverse"
	default:
		return "off"
	}
}

// MotorOp is the kind of instruction carried by a MotorFrame.
type MotorOp uint8

const (
	MotorOpPower MotorOp = iota + 1
	MotorOpVelocity
	MotorOpStop
	MotorOpBrakeMode
)

func (o MotorOp) String() string {
	switch o {
	case MotorOpPower:
		return "power"
	case MotorOpVelocity:
		return "velocity"
	case MotorOpStop:
		return "stop"
	case MotorOpBrakeMode:
		return "brake_mode"
	default:
		return fmt.Sprintf("MotorOp(%d)", uint8(o))
	}
}

// MotorFrame is one instruction for one motor.
// Value is percent for MotorOpPower and rpm for MotorOpVelocity.
type MotorFrame struct {
	Op    MotorOp
	Value float64
	Brake BrakeMode
}

// MotorBus delivers frames to individual motors addressed by ID.
type MotorBus interface {
	Send(ctx context.Context, id uint32, f MotorFrame) error
	Close() error
}

// MotorGroup drives a set of motors as one.
type MotorGroup interface {
	Spin(ctx context.Context, pct float64) error
	SpinRPM(ctx context.Context, rpm float64) error
	SetBrakeMode(ctx context.Context, mode BrakeMode) error
	Stop(ctx context.Context, mode BrakeMode) error
}

// busMotorGroup fans one command out to every motor ID on a bus.
type busMotorGroup struct {
	name     string
	bus      MotorBus
	ids      []uint32
	inverted bool
}

// NewMotorGroup returns a group that sends every command to each id.
// Inverted groups negate power and velocity (motors mounted facing the other way).
func NewMotorGroup(name string, bus MotorBus, ids []uint32, inverted bool) MotorGroup {
	return &busMotorGroup{name: name, bus: bus, ids: append([]uint32(nil), ids...), inverted: inverted}
}

func (g *busMotorGroup) sign(v float64) float64 {
	if g.inverted {
		return -v
	}
	return v
}

func (g *busMotorGroup) sendAll(ctx context.Context, f MotorFrame) error {
	var errs []error
	for _, id := range g.ids {
		if err := g.bus.Send(ctx, id, f); err != nil {
			errs = append(errs, fmt.Errorf("%s motor %d %s: %w", g.name, id, f.Op, err))
		}
	}
	return errors.Join(errs...)
}

func (g *busMotorGroup) Spin(ctx context.Context, pct float64) error {
	return g.sendAll(ctx, MotorFrame{Op: MotorOpPower, Value: g.sign(pct)})
}

func (g *busMotorGroup) SpinRPM(ctx context.Context, rpm float64) error {
	return g.sendAll(ctx, MotorFrame{Op: MotorOpVelocity, Value: g.sign(rpm)})
}

func (g *busMotorGroup) SetBrakeMode(ctx context.Context, mode BrakeMode) error {
	return g.sendAll(ctx, MotorFrame{Op: MotorOpBrakeMode, Brake: mode})
}

func (g *busMotorGroup) Stop(ctx context.Context, mode BrakeMode) error {
	return g.sendAll(ctx, MotorFrame{Op: MotorOpStop, Brake: mode})
}

// Drivetrain is the pair of drive sides.
type Drivetrain struct {
	Left  MotorGroup
	Right MotorGroup
}

// Spin applies a drive command to both sides.
func (d *Drivetrain) Spin(ctx context.Context, cmd DriveCommand) error {
	return errors.Join(d.Left.Spin(ctx, cmd.Left), d.Right.Spin(ctx, cmd.Right))
}

// SetBrakeMode applies a stopping mode to both sides.
func (d *Drivetrain) SetBrakeMode(ctx context.Context, mode BrakeMode) error {
	return errors.Join(d.Left.SetBrakeMode(ctx, mode), d.Right.SetBrakeMode(ctx, mode))
}

// Stop stops both sides.
func (d *Drivetrain) Stop(ctx context.Context, mode BrakeMode) error {
	return errors.Join(d.Left.Stop(ctx, mode), d.Right.Stop(ctx, mode))
}

// ============================================================================
// Log bus (simulation / bench testing)
// ============================================================================

// logMotorBus writes every frame to the structured logger and remembers the
// last frame per motor so the simulation state can be inspected.
type logMotorBus struct {
	logger *slog.Logger

	mu   sync.Mutex
	last map[uint32]MotorFrame
}

func newLogMotorBus(logger *slog.Logger) *logMotorBus {
	return &logMotorBus{logger: logger, last: make(map[uint32]MotorFrame)}
}

func (b *logMotorBus) Send(_ context.Context, id uint32, f MotorFrame) error {
	b.mu.Lock()
	b.last[id] = f
	b.mu.Unlock()

	switch f.Op {
	case MotorOpPower:
		b.logger.Debug("motor power", "id", id, "pct", f.Value)
	case MotorOpVelocity:
		b.logger.Debug("motor velocity", "id", id, "rpm", f.Value)
	default:
		b.logger.Debug("motor "+f.Op.String(), "id", id, "brake", f.Brake.String())
	}
	return nil
}

// Last returns the most recent frame sent to id.
func (b *logMotorBus) Last(id uint32) (MotorFrame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.last[id]
	return f, ok
}

func (b *logMotorBus) Close() error { return nil }
