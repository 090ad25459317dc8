package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("vexteleop v%s\n", version)
	fmt.Println("Gamepad teleoperation daemon for a skid-steer competition robot")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  vexteleop [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Reads a gamepad through Linux input devices, mixes the sticks into")
	fmt.Println("  left/right drive power once per cycle and writes it to the motors")
	fmt.Println("  over SocketCAN or a serial bridge. Buttons toggle reversal, brake")
	fmt.Println("  mode, the spinner and the response curve, and run open-loop")
	fmt.Println("  autonomous routines.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Bench test without motors (commands are logged)")
	fmt.Println("  vexteleop -input-device /dev/input/event4 -motor-backend log -log-level debug")
	fmt.Println()
	fmt.Println("  # Competition robot on can0")
	fmt.Println("  vexteleop -config /etc/vexteleop.yaml -motor-backend can -can-interface can0")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires read access to the input device (run as root or add user to 'input' group)")
	fmt.Println("  - Losing the gamepad stops the robot and exits")
	fmt.Println()
}

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		inputDevice = flag.String("input-device", "", "Linux input event device for the gamepad (overrides input.devices)")
		driveMode   = flag.String("drive-mode", "", "Drive mode: arcade|tank|gta")
		updateHz    = flag.Int("update-hz", defaultUpdateHz, "Drive loop frequency in Hz")

		motorBackend = flag.String("motor-backend", "", "Motor backend: log|can|serial")
		canIface     = flag.String("can-interface", "", "SocketCAN interface for the can backend")
		serialDevice = flag.String("serial-device", "", "Serial device for the serial backend")

		telemetryListen  = flag.String("telemetry-listen", "", "Telemetry HTTP listen address (e.g. :8080)")
		telemetryEnabled = flag.Bool("telemetry", true, "Serve telemetry over websocket")

		ipcSocketPath = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		logLevelStr   = flag.String("log-level", "", "Log level: error, warn, info, debug")
		logFormat     = flag.String("log-format", "", "Log format: text|json")
		showVersion   = flag.Bool("version", false, "Print version and exit")
		showHelp      = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input-device":
			o.InputDevice = inputDevice
		case "drive-mode":
			o.DriveMode = driveMode
		case "update-hz":
			o.UpdateHz = updateHz
		case "motor-backend":
			o.MotorBackend = motorBackend
		case "can-interface":
			o.CANInterface = canIface
		case "serial-device":
			o.SerialDevice = serialDevice
		case "telemetry-listen":
			o.TelemetryListen = telemetryListen
		case "telemetry":
			o.TelemetryEnabled = telemetryEnabled
		case "ipc-socket":
			o.IPCSocketPath = ipcSocketPath
		case "log-level":
			o.LogLevel = logLevelStr
		case "log-format":
			o.LogFormat = logFormat
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(os.Stdout, logLevel, LogFormat(cfg.Logging.Format))

	if err := run(cfg, logger); err != nil {
		logger.Error("vexteleop stopped", "error", err)
		os.Exit(1)
	}
}

// run wires the daemon together and blocks until a signal or a fatal error.
func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, err := openMotorBus(ctx, cfg.Motors, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Warn("motor bus close failed", "error", err)
		}
	}()

	act := newActuators(cfg, bus, logger)
	rcfg := cfg.ToReducerConfig()

	translator, err := newInputTranslator(cfg.ToTranslatorConfig())
	if err != nil {
		return fmt.Errorf("input mapping: %w", err)
	}
	files, err := openInputDevices(cfg.Input.Devices)
	if err != nil {
		logger.Error("failed to open input device", "error", err, "tip", "run as root or add user to 'input' group")
		return err
	}

	logger.Info("starting vexteleop",
		"version", version,
		"devices", cfg.Input.Devices,
		"drive_mode", cfg.Drive.Mode,
		"update_hz", cfg.Drive.UpdateHz,
		"motor_backend", cfg.Motors.Backend,
		"ipc", cfg.IPC.SocketPath,
		"telemetry", cfg.Telemetry.Enabled)

	events := make(chan Event, 64)

	g, gctx := errgroup.WithContext(ctx)

	opts := DaemonOptions{
		Events:    events,
		Actuators: act,
		Config:    rcfg,
		State:     NewDaemonState(rcfg),
		UpdateHz:  cfg.Drive.UpdateHz,
		Logger:    logger,
	}

	if cfg.Telemetry.Enabled {
		broadcasts := make(chan StateBroadcast, 256)
		opts.Broadcasts = broadcasts

		ts := NewTelemetryServer(logger, events, HubConfig{})
		g.Go(func() error {
			ts.Hub().Run(gctx)
			return nil
		})
		g.Go(func() error {
			RunBroadcaster(gctx, ts.Hub(), broadcasts, logger)
			return nil
		})
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.Telemetry.Listen, newTelemetryMux(ts, cfg.Telemetry.Path), logger)
		})
	}

	g.Go(func() error {
		runDaemon(gctx, opts)
		return nil
	})
	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger)
	})
	g.Go(func() error {
		return runInputPump(gctx, files, translator, events, logger)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("shutting down")
	return err
}

// openMotorBus connects to the configured motor transport.
func openMotorBus(ctx context.Context, mc MotorsConfig, logger *slog.Logger) (MotorBus, error) {
	switch MotorBackend(mc.Backend) {
	case MotorBackendCAN:
		w, err := NewSocketCANWriter(ctx, mc.CANInterface)
		if err != nil {
			return nil, err
		}
		logger.Info("motor bus opened", "backend", mc.Backend, "interface", mc.CANInterface)
		return newCANMotorBus(w), nil

	case MotorBackendSerial:
		b, err := openSerialMotorBus(mc.SerialDevice, mc.SerialBaud)
		if err != nil {
			return nil, err
		}
		logger.Info("motor bus opened", "backend", mc.Backend, "device", mc.SerialDevice, "baud", mc.SerialBaud)
		return b, nil

	default:
		logger.Info("motor bus opened", "backend", MotorBackendLog)
		return newLogMotorBus(logger), nil
	}
}

// newActuators builds the motor groups and the autonomous runner on bus.
func newActuators(cfg Config, bus MotorBus, logger *slog.Logger) *Actuators {
	mc := cfg.Motors
	drive := &Drivetrain{
		Left:  NewMotorGroup("left", bus, mc.LeftIDs, mc.LeftInverted),
		Right: NewMotorGroup("right", bus, mc.RightIDs, mc.RightInverted),
	}

	var spinner MotorGroup
	if len(mc.SpinnerIDs) > 0 {
		spinner = NewMotorGroup("spinner", bus, mc.SpinnerIDs, mc.SpinnerInverted)
	}

	var armUpper, armLower MotorGroup
	if len(mc.ArmUpperIDs) > 0 {
		armUpper = NewMotorGroup("arm_upper", bus, mc.ArmUpperIDs, mc.ArmUpperInverted)
	}
	if len(mc.ArmLowerIDs) > 0 {
		armLower = NewMotorGroup("arm_lower", bus, mc.ArmLowerIDs, mc.ArmLowerInverted)
	}

	return &Actuators{
		Drive:    drive,
		Spinner:  spinner,
		ArmUpper: armUpper,
		ArmLower: armLower,
		Auton: &Autonomous{
			Drive:   drive,
			Sleeper: timerSleeper{},
			Config:  cfg.ToAutonConfig(),
			Logger:  logger,
		},
		Routines: cfg.ToReducerConfig().Routines,
	}
}
