package main

import (
	"context"
	"log/slog"
	"time"
)

// The daemon loop is the only goroutine that touches DaemonState or the
// motors. Reduce computes state, commands and broadcasts without I/O; the
// loop executes the commands and reduces the resulting observations before
// reading the next input, so effects never nest.

// DaemonOptions bundles the inputs runDaemon needs.
type DaemonOptions struct {
	Events     <-chan Event
	Broadcasts chan<- StateBroadcast
	Actuators  *Actuators
	Config     ReducerConfig
	State      *DaemonState
	UpdateHz   int
	Logger     *slog.Logger
}

type daemonLoop struct {
	state      *DaemonState
	cfg        ReducerConfig
	act        *Actuators
	broadcasts chan<- StateBroadcast
	logger     *slog.Logger

	pending  []Event
	commands []Command
}

// runDaemon ticks the drive at UpdateHz and reduces every incoming event
// until ctx is canceled or Events is closed. On the way out it stops the
// drive and the spinner.
func runDaemon(ctx context.Context, opts DaemonOptions) {
	if opts.State == nil {
		opts.Logger.Error("daemon state is nil")
		return
	}

	hz := opts.UpdateHz
	if hz <= 0 {
		hz = defaultUpdateHz
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	l := &daemonLoop{
		state:      opts.State,
		cfg:        opts.Config,
		act:        opts.Actuators,
		broadcasts: opts.Broadcasts,
		logger:     opts.Logger,
	}
	// A late tick may integrate at most two periods of GTA ramp.
	l.cfg.GTA.MaxDt = 2.0 / float64(hz)

	// Brake mode is applied before the first drive cycle.
	l.commands = append(l.commands, CmdSetBrakeMode{Mode: l.state.Toggles.BrakeMode})
	l.run(ctx)

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("daemon stopping", "reason", "context canceled")
			stopActuators(l.act, l.state, l.logger)
			return

		case ev, ok := <-opts.Events:
			if !ok {
				l.logger.Info("daemon stopping", "reason", "events closed")
				stopActuators(l.act, l.state, l.logger)
				return
			}
			l.pending = append(l.pending, TimedEvent{Event: ev, At: time.Now()})
			l.run(ctx)

		case now := <-ticker.C:
			l.pending = append(l.pending, Tick{Now: now, Dt: now.Sub(lastTick).Seconds()})
			lastTick = now
			l.run(ctx)
		}
	}
}

// run reduces pending events and executes the commands they produce until
// both queues are empty.
func (l *daemonLoop) run(ctx context.Context) {
	l.reducePending()
	for len(l.commands) > 0 {
		cmd := l.commands[0]
		l.commands = l.commands[1:]
		runEffect(ctx, l.act, cmd, l.logger, func(ev Event) { l.pending = append(l.pending, ev) })
		// Observations first, so their follow-up commands keep their order.
		l.reducePending()
	}
}

func (l *daemonLoop) reducePending() {
	for len(l.pending) > 0 {
		ev := l.pending[0]
		l.pending = l.pending[1:]

		rr := Reduce(l.state, ev, l.cfg)
		if rr.State != nil {
			l.state = rr.State
		}
		l.commands = append(l.commands, rr.Commands...)
		l.publish(rr.Broadcasts)
	}
}

// publish never blocks; telemetry must not stall the drive.
func (l *daemonLoop) publish(bs []StateBroadcast) {
	if l.broadcasts == nil {
		return
	}
	for _, b := range bs {
		select {
		case l.broadcasts <- b:
		default:
			l.logger.Debug("broadcast queue full, dropping", "type", broadcastType(b))
		}
	}
}

// stopActuators brings the robot to rest during shutdown. It uses its own
// context because the daemon context is already canceled.
func stopActuators(act *Actuators, state *DaemonState, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	report := func(ev Event) {
		if f, ok := ev.(ActuatorFailed); ok {
			logger.Warn("shutdown stop failed", "command", f.Command.String(), "error", f.Err)
		}
	}
	runEffect(ctx, act, CmdStopDrive{Mode: state.Toggles.BrakeMode}, logger, report)
	if act != nil && act.Spinner != nil {
		runEffect(ctx, act, CmdSetSpinner{State: SpinnerOff}, logger, report)
	}
	if act != nil && (act.ArmUpper != nil || act.ArmLower != nil) {
		runEffect(ctx, act, CmdSpinArm{}, logger, report)
	}
}
