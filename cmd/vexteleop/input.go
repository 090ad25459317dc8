package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// Button dispatch
// ============================================================================

// ButtonAction is the logical name a key code is bound to.
type ButtonAction string

const (
	ButtonToggleReversed ButtonAction = "toggle_reversed"
	ButtonCycleBrakeMode ButtonAction = "cycle_brake_mode"
	ButtonCycleSpinner   ButtonAction = "cycle_spinner"
	ButtonWeaponOn       ButtonAction = "weapon_on"
	ButtonWeaponOff      ButtonAction = "weapon_off"
	ButtonSpinnerRPMUp   ButtonAction = "spinner_rpm_up"
	ButtonSpinnerRPMDown ButtonAction = "spinner_rpm_down"
	ButtonCurveUp        ButtonAction = "curve_up"
	ButtonCurveDown      ButtonAction = "curve_down"
	ButtonToggleDisplay  ButtonAction = "toggle_display"
	ButtonCycleAuton     ButtonAction = "cycle_auton"
	ButtonRunAutonomous  ButtonAction = "run_autonomous"
	ButtonEmergencyStop  ButtonAction = "emergency_stop"
)

// Action returns the operator action for a press of b.
func (b ButtonAction) Action() (Action, bool) {
	switch b {
	case ButtonToggleReversed:
		return ToggleReversed{}, true
	case ButtonCycleBrakeMode:
		return CycleBrakeMode{}, true
	case ButtonCycleSpinner:
		return CycleSpinner{}, true
	case ButtonWeaponOn:
		return WeaponOn{}, true
	case ButtonWeaponOff:
		return WeaponOff{}, true
	case ButtonSpinnerRPMUp:
		return SpinnerRPMStep{Direction: 1}, true
	case ButtonSpinnerRPMDown:
		return SpinnerRPMStep{Direction: -1}, true
	case ButtonCurveUp:
		return CurveStep{Direction: 1}, true
	case ButtonCurveDown:
		return CurveStep{Direction: -1}, true
	case ButtonToggleDisplay:
		return ToggleDisplay{}, true
	case ButtonCycleAuton:
		return CycleAutonRoutine{}, true
	case ButtonRunAutonomous:
		return RunAutonomous{}, true
	case ButtonEmergencyStop:
		return EmergencyStop{}, true
	default:
		return nil, false
	}
}

// keyCodeNames lets config files name codes instead of using numbers.
var keyCodeNames = map[string]uint16{
	"BTN_SOUTH":      BTN_SOUTH,
	"BTN_A":          BTN_SOUTH,
	"BTN_EAST":       BTN_EAST,
	"BTN_B":          BTN_EAST,
	"BTN_NORTH":      BTN_NORTH,
	"BTN_X":          BTN_NORTH,
	"BTN_WEST":       BTN_WEST,
	"BTN_Y":          BTN_WEST,
	"BTN_TL":         BTN_TL,
	"BTN_TR":         BTN_TR,
	"BTN_SELECT":     BTN_SELECT,
	"BTN_START":      BTN_START,
	"BTN_MODE":       BTN_MODE,
	"BTN_DPAD_UP":    BTN_DPAD_UP,
	"BTN_DPAD_DOWN":  BTN_DPAD_DOWN,
	"BTN_DPAD_LEFT":  BTN_DPAD_LEFT,
	"BTN_DPAD_RIGHT": BTN_DPAD_RIGHT,
	"ABS_X":          ABS_X,
	"ABS_Y":          ABS_Y,
	"ABS_Z":          ABS_Z,
	"ABS_RX":         ABS_RX,
	"ABS_RY":         ABS_RY,
	"ABS_RZ":         ABS_RZ,
}

// parseCode accepts a symbolic name (BTN_SOUTH) or a number (304, 0x130).
func parseCode(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if c, ok := keyCodeNames[strings.ToUpper(s)]; ok {
		return c, nil
	}
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown input code %q", s)
	}
	return uint16(n), nil
}

// ============================================================================
// Translation: raw evdev events -> Actions
// ============================================================================

// AxisBinding maps one EV_ABS code onto a stick axis.
type AxisBinding struct {
	Code   string `yaml:"code"`
	Min    int32  `yaml:"min"`
	Max    int32  `yaml:"max"`
	Invert bool   `yaml:"invert,omitempty"`
}

type axisBinding struct {
	axis   AxisName
	min    int32
	max    int32
	invert bool
}

type inputTranslator struct {
	scale float64

	axes    map[uint16]axisBinding
	buttons map[uint16]ButtonAction

	// gta is nil unless GTA mode is active. Codes bound here are level
	// sampled and are not dispatched as button actions.
	gta map[uint16]GTAButton

	debounce *debouncer

	// Current hat direction per axis (-1, 0, 1).
	hatX int32
	hatY int32
}

// TranslatorConfig is the resolved input mapping.
type TranslatorConfig struct {
	InputScale float64
	Axes       map[AxisName]AxisBinding
	Buttons    map[string]ButtonAction
	GTAButtons map[string]GTAButton
	GTAEnabled bool
	DebounceMS int
}

func newInputTranslator(cfg TranslatorConfig) (*inputTranslator, error) {
	scale := cfg.InputScale
	if scale <= 0 {
		scale = defaultInputScale
	}
	t := &inputTranslator{
		scale:    scale,
		axes:     make(map[uint16]axisBinding, len(cfg.Axes)),
		buttons:  make(map[uint16]ButtonAction, len(cfg.Buttons)),
		debounce: newDebouncer(cfg.DebounceMS),
	}

	for axis, b := range cfg.Axes {
		code, err := parseCode(b.Code)
		if err != nil {
			return nil, fmt.Errorf("axis %s: %w", axis, err)
		}
		if b.Max <= b.Min {
			return nil, fmt.Errorf("axis %s: max must be > min", axis)
		}
		t.axes[code] = axisBinding{axis: axis, min: b.Min, max: b.Max, invert: b.Invert}
	}

	for name, action := range cfg.Buttons {
		code, err := parseCode(name)
		if err != nil {
			return nil, fmt.Errorf("button %s: %w", name, err)
		}
		if _, ok := action.Action(); !ok {
			return nil, fmt.Errorf("button %s: unknown action %q", name, action)
		}
		t.buttons[code] = action
	}

	if cfg.GTAEnabled {
		t.gta = make(map[uint16]GTAButton, len(cfg.GTAButtons))
		for name, b := range cfg.GTAButtons {
			code, err := parseCode(name)
			if err != nil {
				return nil, fmt.Errorf("gta button %s: %w", name, err)
			}
			t.gta[code] = b
		}
	}

	return t, nil
}

// normalize maps a raw axis value in [min,max] onto [-scale, scale].
func (b axisBinding) normalize(v int32, scale float64) float64 {
	center := (float64(b.min) + float64(b.max)) / 2
	half := (float64(b.max) - float64(b.min)) / 2
	n := (float64(v) - center) / half * scale
	n = clampFloat(n, -scale, scale)
	if b.invert {
		n = -n
	}
	return n
}

// translate converts one raw event into zero or more operator actions.
func (t *inputTranslator) translate(ev inputEvent, now time.Time) []Action {
	switch ev.Type {
	case EV_ABS:
		switch ev.Code {
		case ABS_HAT0X:
			return t.hat(&t.hatX, ev.Value, BTN_DPAD_LEFT, BTN_DPAD_RIGHT, now)
		case ABS_HAT0Y:
			return t.hat(&t.hatY, ev.Value, BTN_DPAD_UP, BTN_DPAD_DOWN, now)
		}
		b, ok := t.axes[ev.Code]
		if !ok {
			return nil
		}
		return []Action{AxisMoved{Axis: b.axis, Value: b.normalize(ev.Value, t.scale)}}

	case EV_KEY:
		return t.key(ev.Code, ev.Value, now)

	case EV_SYN:
		if ev.Code == SYN_DROPPED {
			// Kernel buffer overrun: state is unknown until the next full report.
			return []Action{SticksCentered{}}
		}
	}
	return nil
}

// hat turns a d-pad hat axis into press/release of the matching dpad codes.
func (t *inputTranslator) hat(cur *int32, v int32, neg, pos uint16, now time.Time) []Action {
	if v < 0 {
		v = -1
	} else if v > 0 {
		v = 1
	}
	if v == *cur {
		return nil
	}

	var out []Action
	codeFor := func(dir int32) uint16 {
		if dir < 0 {
			return neg
		}
		return pos
	}
	if *cur != 0 {
		out = append(out, t.key(codeFor(*cur), evValueRelease, now)...)
	}
	if v != 0 {
		out = append(out, t.key(codeFor(v), evValuePress, now)...)
	}
	*cur = v
	return out
}

func (t *inputTranslator) key(code uint16, value int32, now time.Time) []Action {
	if b, ok := t.gta[code]; ok {
		switch value {
		case evValuePress:
			return []Action{GTAButtonChanged{Button: b, Held: true}}
		case evValueRelease:
			return []Action{GTAButtonChanged{Button: b, Held: false}}
		}
		return nil
	}

	// Edge-triggered: autorepeat and release do nothing.
	if value != evValuePress {
		return nil
	}
	name, ok := t.buttons[code]
	if !ok {
		return nil
	}
	if !t.debounce.accept(code, now) {
		return nil
	}
	a, _ := name.Action()
	return []Action{a}
}

// ============================================================================
// Input pump
// ============================================================================

// openInputDevices opens every configured evdev device for reading.
func openInputDevices(paths []string) ([]*os.File, error) {
	files := make([]*os.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			for _, opened := range files {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("open input device %s: %w", p, err)
		}
		files = append(files, f)
	}
	return files, nil
}

// runInputPump reads the devices, translates events and forwards actions to the
// daemon. A device error centers the sticks and ends the pump with an error.
func runInputPump(ctx context.Context, files []*os.File, tr *inputTranslator, out chan<- Event, logger *slog.Logger) error {
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()

	// Readers stop on ctx or when the files close.
	readCtx, stopReaders := context.WithCancel(ctx)
	defer stopReaders()

	raw := make(chan inputEvent, 64)
	readErr := make(chan error, 1)
	startInputReaders(readCtx, files, raw, readErr)

	send := func(a Action) bool {
		select {
		case out <- a:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			logger.Error("input reader stopped", "error", err)
			select {
			case out <- SticksCentered{}:
			default:
			}
			return fmt.Errorf("input reader: %w", err)

		case ev := <-raw:
			for _, a := range tr.translate(ev, time.Now()) {
				if !send(a) {
					return nil
				}
			}
		}
	}
}
