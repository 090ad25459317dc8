package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_ABS = 0x03

	ABS_X     = 0x00
	ABS_Y     = 0x01
	ABS_Z     = 0x02
	ABS_RX    = 0x03
	ABS_RY    = 0x04
	ABS_RZ    = 0x05
	ABS_HAT0X = 0x10
	ABS_HAT0Y = 0x11

	SYN_DROPPED = 0x03

	BTN_SOUTH  = 0x130 // A
	BTN_EAST   = 0x131 // B
	BTN_NORTH  = 0x133 // X
	BTN_WEST   = 0x134 // Y
	BTN_TL     = 0x136 // L1
	BTN_TR     = 0x137 // R1
	BTN_SELECT = 0x13a
	BTN_START  = 0x13b
	BTN_MODE   = 0x13c

	BTN_DPAD_UP    = 0x220
	BTN_DPAD_DOWN  = 0x221
	BTN_DPAD_LEFT  = 0x222
	BTN_DPAD_RIGHT = 0x223
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Drive loop and response curve defaults
const (
	defaultUpdateHz = 200 // ~5ms per drive cycle

	defaultInputScale   = 127.0
	defaultDeadzone     = 0.02
	defaultExponent     = 0.55
	defaultExponentStep = 0.05
	defaultMinExponent  = -0.75
	defaultMaxExponent  = 1.0
	defaultMaxOutput    = 100.0 // percent

	// Minimum change (percent) before a new drive command is sent to the motors.
	driveUpdateThresholdPct = 0.01
)

// GTA (hold-to-accelerate) defaults
const (
	defaultGTAAccelPctPerS = 200.0 // 10% per 50ms press cycle
	defaultGTATurnPctPerS  = 100.0 // 10% per 100ms turn cycle
	defaultGTADecayTau     = 0.4
	defaultGTAMaxDt        = 0.05
)

// Spinner defaults
const (
	defaultSpinnerRPM     = 500.0
	defaultSpinnerRPMMult = 1.05
	minSpinnerRPM         = 10.0
	maxSpinnerRPM         = 3600.0
)

// Open-loop autonomous calibration defaults
const (
	defaultAutonSpeedMPS = 1.3 // full power straight-line speed
	defaultAutonPauseMS  = 100
)

// Button debounce
const defaultDebounceMS = 60
