package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"gpio-server/internal/api"
	"gpio-server/internal/config"
	"gpio-server/internal/core"
	"gpio-server/internal/hardware"
	"gpio-server/internal/logger"
	"gpio-server/internal/messaging"
	"gpio-server/internal/sensor"
	"gpio-server/internal/types"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	logLevel := flag.String("log", "", "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG, or a name)")
	backend := flag.String("backend", "", "GPIO backend (gpiocdev, periph, sim)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [port]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	cfg, err := loadConfig(*configPath, *logLevel, *backend, flag.Args())
	if err != nil {
		stdLogger.Fatalf("FATAL: %v", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		stdLogger.Fatalf("FATAL: %v", err)
	}
	l := logger.NewLogger(stdLogger, level)

	l.Infof("Starting gpio-server on port %d (backend %s)...", cfg.Port, cfg.Backend)

	ctrl, err := newController(cfg, l)
	if err != nil {
		l.Fatalf("Failed to start: %v", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			l.Warnf("Close failed: %v", err)
		}
		l.Infof("Shutdown complete")
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		l.Errorf("Failed to listen: %v", err)
		return
	}

	server := api.NewServer(ctrl, cfg.HTTP.StrictStatus, l.WithTag("HTTP"))
	if err := server.Run(ctx, ln); err != nil {
		l.Errorf("Server error: %v", err)
	}
}

// loadConfig applies, in order: defaults, YAML file, environment, flags and
// the positional port.
func loadConfig(path, logLevel, backend string, args []string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.ApplyEnvOverrides(cfg)

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if len(args) > 1 {
		return nil, fmt.Errorf("expected at most one positional argument, got %d", len(args))
	}
	if len(args) == 1 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", args[0], err)
		}
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newController(cfg *config.Config, l *logger.Logger) (*core.Controller, error) {
	backend, err := hardware.NewBackend(cfg.BackendOptions(), l.WithTag("GPIO"))
	if err != nil {
		return nil, err
	}
	pins := hardware.NewPins(backend, l.WithTag("Pins"))
	us := sensor.New(pins, cfg.SensorSettings(), l.WithTag("Sensor"))

	var publisher core.StatePublisher
	if cfg.Redis.Addr != "" {
		rc := messaging.NewRedisClient(cfg.Redis.Addr, cfg.Redis.DB, l.WithTag("Redis"))
		if err := rc.Connect(); err != nil {
			l.Warnf("%v; state will be published once Redis is reachable", err)
		}
		publisher = rc
	}

	layout := core.PinLayout{
		Led1:    cfg.Pins.Led1,
		Led2:    cfg.Pins.Led2,
		Trigger: cfg.Pins.Trigger,
		Echo:    cfg.Pins.Echo,
	}
	ctrl, err := core.NewController(pins, us, publisher, layout, cfg.Params, l.WithTag("Controller"))
	if err != nil {
		_ = pins.Close()
		if publisher != nil {
			_ = publisher.Close()
		}
		return nil, err
	}
	if err := ctrl.Setup(); err != nil {
		_ = ctrl.Close()
		return nil, fmt.Errorf("pin setup: %w", err)
	}
	ctrl.SetServerState(types.StateStarting)
	return ctrl, nil
}
