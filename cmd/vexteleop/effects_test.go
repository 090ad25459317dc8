package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"testing"
)

// recordingGroup is a MotorGroup that records calls and can fail on demand.
type recordingGroup struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (g *recordingGroup) record(s string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, s)
	return g.err
}

func (g *recordingGroup) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *recordingGroup) Spin(_ context.Context, pct float64) error {
	return g.record(fmt.Sprintf("spin %.0f", pct))
}

func (g *recordingGroup) SpinRPM(_ context.Context, rpm float64) error {
	return g.record(fmt.Sprintf("rpm %.0f", rpm))
}

func (g *recordingGroup) SetBrakeMode(_ context.Context, mode BrakeMode) error {
	return g.record("brake " + mode.String())
}

func (g *recordingGroup) Stop(_ context.Context, mode BrakeMode) error {
	return g.record("stop " + mode.String())
}

func newTestActuators() (*Actuators, *recordingGroup, *recordingGroup, *recordingGroup) {
	left, right, spinner := &recordingGroup{}, &recordingGroup{}, &recordingGroup{}
	drive := &Drivetrain{Left: left, Right: right}
	return &Actuators{
		Drive:   drive,
		Spinner: spinner,
		Auton: &Autonomous{
			Drive:   drive,
			Sleeper: &fakeSleeper{},
			Config:  DefaultAutonConfig(),
			Logger:  slog.Default(),
		},
		Routines: DefaultAutonRoutines(),
	}, left, right, spinner
}

func collect(events *[]Event) func(Event) {
	return func(e Event) { *events = append(*events, e) }
}

func TestRunEffect_SpinDrive(t *testing.T) {
	act, left, right, _ := newTestActuators()
	var got []Event

	runEffect(context.Background(), act, CmdSpinDrive{Left: 40, Right: -40}, slog.Default(), collect(&got))

	if !reflect.DeepEqual(left.Calls(), []string{"spin 40"}) || !reflect.DeepEqual(right.Calls(), []string{"spin -40"}) {
		t.Fatalf("unexpected calls left=%v right=%v", left.Calls(), right.Calls())
	}
	if len(got) != 1 {
		t.Fatalf("expected one observation, got %+v", got)
	}
	if applied, ok := got[0].(DriveApplied); !ok || applied.Command != (DriveCommand{Left: 40, Right: -40}) {
		t.Fatalf("expected DriveApplied, got %+v", got[0])
	}
}

func TestRunEffect_SpinDriveFailure(t *testing.T) {
	act, left, _, _ := newTestActuators()
	left.err = errors.New("motor timeout")
	var got []Event

	runEffect(context.Background(), act, CmdSpinDrive{Left: 10, Right: 10}, slog.Default(), collect(&got))

	if len(got) != 1 {
		t.Fatalf("expected one observation, got %+v", got)
	}
	f, ok := got[0].(ActuatorFailed)
	if !ok || !errors.Is(f.Err, left.err) {
		t.Fatalf("expected ActuatorFailed wrapping motor timeout, got %+v", got[0])
	}
}

func TestRunEffect_Spinner(t *testing.T) {
	tests := []struct {
		state SpinnerState
		want  string
	}{
		{SpinnerForward, "rpm 500"},
		{SpinnerReverse, "rpm -500"},
		{SpinnerOffAfterForward, "stop coast"},
		{SpinnerOff, "stop coast"},
	}
	for _, tt := range tests {
		act, _, _, spinner := newTestActuators()
		var got []Event
		runEffect(context.Background(), act, CmdSetSpinner{State: tt.state, RPM: 500}, slog.Default(), collect(&got))
		if calls := spinner.Calls(); len(calls) != 1 || calls[0] != tt.want {
			t.Errorf("%s: calls = %v, want [%s]", tt.state, calls, tt.want)
		}
		if len(got) != 0 {
			t.Errorf("%s: unexpected observations %+v", tt.state, got)
		}
	}
}

func TestRunEffect_SpinnerMissing(t *testing.T) {
	act, _, _, _ := newTestActuators()
	act.Spinner = nil
	var got []Event

	runEffect(context.Background(), act, CmdSetSpinner{State: SpinnerForward, RPM: 500}, slog.Default(), collect(&got))
	if len(got) != 1 {
		t.Fatalf("expected failure observation, got %+v", got)
	}
	if _, ok := got[0].(ActuatorFailed); !ok {
		t.Fatalf("expected ActuatorFailed, got %T", got[0])
	}
}

func TestRunEffect_RunAutonomous(t *testing.T) {
	act, left, right, _ := newTestActuators()
	var got []Event

	runEffect(context.Background(), act, CmdRunAutonomous{Routine: "blue_platform"}, slog.Default(), collect(&got))

	if len(got) != 1 {
		t.Fatalf("expected one observation, got %+v", got)
	}
	fin, ok := got[0].(AutonomousFinished)
	if !ok || fin.Routine != "blue_platform" || fin.Err != nil {
		t.Fatalf("expected clean AutonomousFinished, got %+v", got[0])
	}
	// Blue platform starts by turning right.
	if l, r := left.Calls(), right.Calls(); l[0] != "spin 100" || r[0] != "spin -100" {
		t.Fatalf("expected right turn first, got left=%v right=%v", l, r)
	}
}

func TestRunEffect_RunUnknownAutonomous(t *testing.T) {
	act, left, _, _ := newTestActuators()
	var got []Event

	runEffect(context.Background(), act, CmdRunAutonomous{Routine: "skills"}, slog.Default(), collect(&got))
	if len(got) != 1 {
		t.Fatalf("expected one observation, got %+v", got)
	}
	fin, ok := got[0].(AutonomousFinished)
	if !ok || !errors.Is(fin.Err, errUnknownRoutine) {
		t.Fatalf("expected unknown routine error, got %+v", got[0])
	}
	if len(left.Calls()) != 0 {
		t.Fatalf("expected no motor calls")
	}
}

func TestRunEffect_SpinArm(t *testing.T) {
	act, _, _, _ := newTestActuators()
	upper, lower := &recordingGroup{}, &recordingGroup{}
	act.ArmUpper, act.ArmLower = upper, lower
	var got []Event

	runEffect(context.Background(), act, CmdSpinArm{Upper: 60, Lower: -25}, slog.Default(), collect(&got))
	if !reflect.DeepEqual(upper.Calls(), []string{"spin 60"}) || !reflect.DeepEqual(lower.Calls(), []string{"spin -25"}) {
		t.Fatalf("unexpected calls upper=%v lower=%v", upper.Calls(), lower.Calls())
	}
	if len(got) != 0 {
		t.Fatalf("expected no observations, got %+v", got)
	}

	// One joint wired is enough.
	act.ArmLower = nil
	runEffect(context.Background(), act, CmdSpinArm{Upper: 10, Lower: 90}, slog.Default(), collect(&got))
	if c := upper.Calls(); c[len(c)-1] != "spin 10" || len(got) != 0 {
		t.Fatalf("upper-only arm: calls=%v events=%+v", c, got)
	}

	upper.err = errors.New("bus off")
	runEffect(context.Background(), act, CmdSpinArm{Upper: 20}, slog.Default(), collect(&got))
	if len(got) != 1 {
		t.Fatalf("expected one failure, got %+v", got)
	}
	if f, ok := got[0].(ActuatorFailed); !ok || f.Command != (CmdSpinArm{Upper: 20}) {
		t.Fatalf("expected ActuatorFailed for the arm, got %+v", got[0])
	}
}

func TestRunEffect_SpinArmWithoutArm(t *testing.T) {
	act, _, _, _ := newTestActuators()
	var got []Event

	runEffect(context.Background(), act, CmdSpinArm{Upper: 50}, slog.Default(), collect(&got))
	if len(got) != 1 {
		t.Fatalf("expected one observation, got %+v", got)
	}
	if f, ok := got[0].(ActuatorFailed); !ok || !errors.As(f.Err, new(errNoArm)) {
		t.Fatalf("expected errNoArm, got %+v", got[0])
	}
}

func TestRunEffect_NoDrivetrain(t *testing.T) {
	var got []Event
	runEffect(context.Background(), nil, CmdStopDrive{Mode: BrakeBrake}, slog.Default(), collect(&got))
	if len(got) != 1 {
		t.Fatalf("expected one observation, got %+v", got)
	}
	if _, ok := got[0].(ActuatorFailed); !ok {
		t.Fatalf("expected ActuatorFailed, got %T", got[0])
	}
}

func TestRunEffect_PublishSnapshotWithoutMotors(t *testing.T) {
	reply := make(chan StateSnapshot, 1)
	var got []Event

	runEffect(context.Background(), nil, CmdPublishStateSnapshot{Reply: reply, Snapshot: StateSnapshot{Reversed: true}}, slog.Default(), collect(&got))

	select {
	case snap := <-reply:
		if !snap.Reversed {
			t.Fatalf("unexpected snapshot %+v", snap)
		}
	default:
		t.Fatalf("expected snapshot delivered")
	}
	if len(got) != 0 {
		t.Fatalf("unexpected observations %+v", got)
	}
}
