package hardware

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"gpio-server/internal/logger"
)

// PeriphBackend drives pins through periph.io, addressed by BCM number.
type PeriphBackend struct {
	logger *logger.Logger
	mu     sync.Mutex
	pins   map[int]gpio.PinIO
}

func newPeriphBackend(l *logger.Logger) (Backend, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	for _, d := range state.Loaded {
		l.Debugf("Loaded periph driver %s", d)
	}
	return &PeriphBackend{
		logger: l,
		pins:   make(map[int]gpio.PinIO),
	}, nil
}

func (b *PeriphBackend) Setup(pin int, dir Direction) error {
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", pin))
	if p == nil {
		return &ConfigurationError{Pin: pin, Op: "setup", Reason: "no such GPIO on this host"}
	}

	var err error
	if dir == Output {
		err = p.Out(gpio.Low)
	} else {
		err = p.In(gpio.PullNoChange, gpio.NoEdge)
	}
	if err != nil {
		return fmt.Errorf("configure %s as %s: %w", p.Name(), dir, err)
	}

	b.mu.Lock()
	b.pins[pin] = p
	b.mu.Unlock()
	return nil
}

func (b *PeriphBackend) pin(pin int) (gpio.PinIO, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[pin]
	if !ok {
		return nil, fmt.Errorf("GPIO%d not set up", pin)
	}
	return p, nil
}

func (b *PeriphBackend) Write(pin int, level Level) error {
	p, err := b.pin(pin)
	if err != nil {
		return err
	}
	l := gpio.Low
	if level == High {
		l = gpio.High
	}
	return p.Out(l)
}

func (b *PeriphBackend) Read(pin int) (Level, error) {
	p, err := b.pin(pin)
	if err != nil {
		return Low, err
	}
	return p.Read() == gpio.High, nil
}

func (b *PeriphBackend) Release(pin int) error {
	b.mu.Lock()
	p, ok := b.pins[pin]
	delete(b.pins, pin)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	haltErr := p.Halt()
	return errors.Join(haltErr, p.In(gpio.PullNoChange, gpio.NoEdge))
}

func (b *PeriphBackend) Close() error {
	b.mu.Lock()
	pins := make([]int, 0, len(b.pins))
	for pin := range b.pins {
		pins = append(pins, pin)
	}
	b.mu.Unlock()

	var errs []error
	for _, pin := range pins {
		errs = append(errs, b.Release(pin))
	}
	return errors.Join(errs...)
}
