package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"gpio-server/internal/hardware"
	"gpio-server/internal/sensor"
	"gpio-server/internal/types"
)

const DefaultPort = 8000

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Port     int          `yaml:"port"`
	LogLevel string       `yaml:"log_level"`
	Backend  string       `yaml:"backend"`
	Pins     PinsConfig   `yaml:"pins"`
	Sensor   SensorConfig `yaml:"sensor"`
	HTTP     HTTPConfig   `yaml:"http"`
	Redis    RedisConfig  `yaml:"redis"`
	Sim      SimConfig    `yaml:"sim"`
	Params   types.Params `yaml:"params"`
}

// PinsConfig uses BCM numbers, which are also the gpiochip0 line offsets on
// a Raspberry Pi.
type PinsConfig struct {
	Chip    string `yaml:"chip"`
	Led1    int    `yaml:"led1"`
	Led2    int    `yaml:"led2"`
	Trigger int    `yaml:"trigger"`
	Echo    int    `yaml:"echo"`
}

type SensorConfig struct {
	TriggerPulse time.Duration `yaml:"trigger_pulse"`
	EchoTimeout  time.Duration `yaml:"echo_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MinInterval  time.Duration `yaml:"min_interval"`
}

type HTTPConfig struct {
	// StrictStatus answers failures with real status codes instead of 200.
	StrictStatus bool `yaml:"strict_status"`
}

// RedisConfig enables state publishing when Addr is set.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// SimConfig is used by the sim backend only.
type SimConfig struct {
	Distance float64 `yaml:"distance"`
}

func Defaults() *Config {
	return &Config{
		Port:     DefaultPort,
		LogLevel: "info",
		Backend:  hardware.BackendGpiocdev,
		Pins: PinsConfig{
			Chip:    hardware.DefaultChip,
			Led1:    hardware.DefaultLed1Pin,
			Led2:    hardware.DefaultLed2Pin,
			Trigger: hardware.DefaultTriggerPin,
			Echo:    hardware.DefaultEchoPin,
		},
		Sensor: SensorConfig{
			TriggerPulse: sensor.DefaultTriggerPulse,
			EchoTimeout:  sensor.DefaultEchoTimeout,
			MinInterval:  sensor.DefaultMinInterval,
		},
		Sim: SimConfig{
			Distance: 42.0,
		},
		Params: types.DefaultParams(),
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnvOverrides maps GPIO_SERVER_* variables onto cfg. Malformed
// numbers are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GPIO_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("GPIO_SERVER_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("GPIO_SERVER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GPIO_SERVER_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("GPIO_SERVER_STRICT_STATUS"); v != "" {
		if strict, err := strconv.ParseBool(v); err == nil {
			cfg.HTTP.StrictStatus = strict
		}
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}

	switch c.Backend {
	case hardware.BackendGpiocdev, hardware.BackendPeriph, hardware.BackendSim:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	seen := make(map[int]string)
	for _, p := range []struct {
		name string
		pin  int
	}{
		{"led1", c.Pins.Led1},
		{"led2", c.Pins.Led2},
		{"trigger", c.Pins.Trigger},
		{"echo", c.Pins.Echo},
	} {
		if p.pin < 0 {
			errs = append(errs, fmt.Errorf("pins.%s: negative pin %d", p.name, p.pin))
			continue
		}
		if other, dup := seen[p.pin]; dup {
			errs = append(errs, fmt.Errorf("pins.%s: pin %d already used by %s", p.name, p.pin, other))
			continue
		}
		seen[p.pin] = p.name
	}

	if c.Sensor.TriggerPulse <= 0 || c.Sensor.TriggerPulse > time.Millisecond {
		errs = append(errs, fmt.Errorf("sensor.trigger_pulse %s must be in (0, 1ms]", c.Sensor.TriggerPulse))
	}
	if c.Sensor.EchoTimeout < time.Millisecond || c.Sensor.EchoTimeout > time.Second {
		errs = append(errs, fmt.Errorf("sensor.echo_timeout %s must be in [1ms, 1s]", c.Sensor.EchoTimeout))
	}
	if c.Sensor.PollInterval < 0 || c.Sensor.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("sensor intervals must not be negative"))
	}

	if err := c.Params.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// SensorSettings returns the settings the distance sensor runs with.
func (c *Config) SensorSettings() sensor.Config {
	return sensor.Config{
		Trigger:      c.Pins.Trigger,
		Echo:         c.Pins.Echo,
		TriggerPulse: c.Sensor.TriggerPulse,
		EchoTimeout:  c.Sensor.EchoTimeout,
		PollInterval: c.Sensor.PollInterval,
		MinInterval:  c.Sensor.MinInterval,
	}
}

func (c *Config) BackendOptions() hardware.BackendOptions {
	return hardware.BackendOptions{
		Kind:      c.Backend,
		Chip:      c.Pins.Chip,
		Trigger:   c.Pins.Trigger,
		Echo:      c.Pins.Echo,
		EchoWidth: sensor.EchoWidth(c.Sim.Distance),
	}
}
