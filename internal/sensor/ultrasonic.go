// Package sensor reads an ultrasonic rangefinder (HC-SR04 style) over a
// trigger/echo pin pair.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"gpio-server/internal/hardware"
	"gpio-server/internal/logger"
)

// SpeedOfSound in cm/s at room temperature.
const SpeedOfSound = 34300.0

const (
	DefaultTriggerPulse = 10 * time.Microsecond
	// The sensor holds echo high for ~38ms when nothing reflects.
	DefaultEchoTimeout = 40 * time.Millisecond
	// Recommended measurement cycle; shorter cycles pick up stale echoes.
	DefaultMinInterval = 60 * time.Millisecond
)

// ErrTimeout is returned when the echo never rises or never falls.
var ErrTimeout = errors.New("sensor timeout")

// Pins is the part of the pin set the sensor needs.
type Pins interface {
	Write(pin int, level hardware.Level) error
	Read(pin int) (hardware.Level, error)
}

// Clock abstracts time so edge waits can run against a fake clock.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

type Config struct {
	Trigger      int
	Echo         int
	TriggerPulse time.Duration
	EchoTimeout  time.Duration
	// PollInterval between echo samples. Zero busy-waits.
	PollInterval time.Duration
	// MinInterval between trigger pulses. Zero disables pacing.
	MinInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Trigger:      hardware.DefaultTriggerPin,
		Echo:         hardware.DefaultEchoPin,
		TriggerPulse: DefaultTriggerPulse,
		EchoTimeout:  DefaultEchoTimeout,
		MinInterval:  DefaultMinInterval,
	}
}

type Ultrasonic struct {
	pins    Pins
	cfg     Config
	clock   Clock
	limiter *rate.Limiter
	logger  *logger.Logger
}

type Option func(*Ultrasonic)

func WithClock(c Clock) Option {
	return func(u *Ultrasonic) {
		u.clock = c
	}
}

func New(pins Pins, cfg Config, l *logger.Logger, opts ...Option) *Ultrasonic {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	u := &Ultrasonic{
		pins:    pins,
		cfg:     cfg,
		clock:   realClock{},
		limiter: rate.NewLimiter(limit, 1),
		logger:  l,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Distance converts a round-trip echo width to centimeters.
func Distance(echo time.Duration) float64 {
	return echo.Seconds() * SpeedOfSound / 2
}

// EchoWidth is the inverse of Distance.
func EchoWidth(cm float64) time.Duration {
	return time.Duration(cm * 2 / SpeedOfSound * float64(time.Second))
}

// Measure fires one trigger pulse and returns the distance in cm. On failure
// it returns -1 with the error.
func (u *Ultrasonic) Measure(ctx context.Context) (float64, error) {
	if err := u.limiter.Wait(ctx); err != nil {
		return -1, fmt.Errorf("waiting for measurement slot: %w", err)
	}

	echo, err := u.echo(ctx)
	if err != nil {
		return -1, err
	}
	d := Distance(echo)
	u.logger.Debugf("Echo %s, distance %.2fcm", echo, d)
	return d, nil
}

func (u *Ultrasonic) echo(ctx context.Context) (time.Duration, error) {
	if err := u.pins.Write(u.cfg.Trigger, hardware.High); err != nil {
		return 0, fmt.Errorf("trigger high: %w", err)
	}
	u.clock.Sleep(u.cfg.TriggerPulse)
	if err := u.pins.Write(u.cfg.Trigger, hardware.Low); err != nil {
		return 0, fmt.Errorf("trigger low: %w", err)
	}

	now := u.clock.Now()
	start, err := u.waitFor(ctx, hardware.High, now, now.Add(u.cfg.EchoTimeout))
	if err != nil {
		return 0, fmt.Errorf("waiting for echo: %w", err)
	}
	stop, err := u.waitFor(ctx, hardware.Low, start, start.Add(u.cfg.EchoTimeout))
	if err != nil {
		return 0, fmt.Errorf("echo stuck high: %w", err)
	}
	return stop.Sub(start), nil
}

// waitFor polls the echo pin until it reads want. Waiting for High returns
// the time of the first high sample; waiting for Low returns the time of the
// last high sample, which is since when the very first sample is already low.
func (u *Ultrasonic) waitFor(ctx context.Context, want hardware.Level, since, deadline time.Time) (time.Time, error) {
	lastHigh := since
	for {
		level, err := u.pins.Read(u.cfg.Echo)
		if err != nil {
			return time.Time{}, err
		}
		now := u.clock.Now()
		if level == want {
			if want == hardware.High {
				return now, nil
			}
			return lastHigh, nil
		}
		lastHigh = now
		if now.After(deadline) {
			return time.Time{}, ErrTimeout
		}
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		if u.cfg.PollInterval > 0 {
			u.clock.Sleep(u.cfg.PollInterval)
		}
	}
}
