package hardware

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gpio-server/internal/logger"
)

// Level is the binary value of a pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Direction is fixed when a pin is claimed.
type Direction int

const (
	Unclaimed Direction = iota
	Input
	Output
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "unclaimed"
	}
}

// ErrConfiguration matches every ConfigurationError.
var ErrConfiguration = errors.New("pin configuration error")

// ConfigurationError reports use of a pin that contradicts how it was set up.
type ConfigurationError struct {
	Pin    int
	Op     string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("pin %d: %s: %s", e.Pin, e.Op, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Backend drives physical (or simulated) lines. It trusts its caller;
// direction checks live in Pins.
type Backend interface {
	Setup(pin int, dir Direction) error
	Write(pin int, level Level) error
	Read(pin int) (Level, error)
	Release(pin int) error
	Close() error
}

// Pins is the set of lines claimed by the service. Each claimed pin has
// exactly one direction until Cleanup releases it.
type Pins struct {
	backend Backend
	logger  *logger.Logger
	mu      sync.RWMutex
	dirs    map[int]Direction
}

func NewPins(backend Backend, l *logger.Logger) *Pins {
	return &Pins{
		backend: backend,
		logger:  l,
		dirs:    make(map[int]Direction),
	}
}

// SetDirection claims pin with the given direction. Outputs start low.
func (p *Pins) SetDirection(pin int, dir Direction) error {
	if pin < 0 {
		return &ConfigurationError{Pin: pin, Op: "setup", Reason: "negative pin number"}
	}
	if dir != Input && dir != Output {
		return &ConfigurationError{Pin: pin, Op: "setup", Reason: fmt.Sprintf("invalid direction %s", dir)}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.dirs[pin]; ok {
		return &ConfigurationError{Pin: pin, Op: "setup", Reason: fmt.Sprintf("already configured as %s", cur)}
	}
	if err := p.backend.Setup(pin, dir); err != nil {
		return fmt.Errorf("failed to set up pin %d as %s: %w", pin, dir, err)
	}
	p.dirs[pin] = dir
	p.logger.Debugf("Configured pin %d as %s", pin, dir)
	return nil
}

func (p *Pins) Write(pin int, level Level) error {
	p.mu.RLock()
	dir := p.dirs[pin]
	p.mu.RUnlock()

	if dir != Output {
		return &ConfigurationError{Pin: pin, Op: "write", Reason: fmt.Sprintf("pin is %s, not output", dir)}
	}
	if err := p.backend.Write(pin, level); err != nil {
		return fmt.Errorf("failed to set pin %d %s: %w", pin, level, err)
	}
	return nil
}

func (p *Pins) Read(pin int) (Level, error) {
	p.mu.RLock()
	dir := p.dirs[pin]
	p.mu.RUnlock()

	if dir != Input {
		return Low, &ConfigurationError{Pin: pin, Op: "read", Reason: fmt.Sprintf("pin is %s, not input", dir)}
	}
	level, err := p.backend.Read(pin)
	if err != nil {
		return Low, fmt.Errorf("failed to read pin %d: %w", pin, err)
	}
	return level, nil
}

// Direction reports how pin is currently claimed.
func (p *Pins) Direction(pin int) Direction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dirs[pin]
}

// Claimed returns the claimed pin numbers in ascending order.
func (p *Pins) Claimed() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pins := make([]int, 0, len(p.dirs))
	for pin := range p.dirs {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

// Cleanup drives outputs low and releases every claimed pin. Calling it
// again with nothing claimed is a no-op. Pins may be configured again
// afterwards.
func (p *Pins) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.dirs) == 0 {
		return nil
	}

	var errs []error
	for pin, dir := range p.dirs {
		if dir == Output {
			if err := p.backend.Write(pin, Low); err != nil {
				errs = append(errs, fmt.Errorf("pin %d: drive low: %w", pin, err))
			}
		}
		if err := p.backend.Release(pin); err != nil {
			errs = append(errs, fmt.Errorf("pin %d: release: %w", pin, err))
		}
		p.logger.Debugf("Released pin %d (%s)", pin, dir)
	}
	p.logger.Infof("Released %d pins", len(p.dirs))
	p.dirs = make(map[int]Direction)
	return errors.Join(errs...)
}

// Close releases all pins and closes the backend.
func (p *Pins) Close() error {
	cleanupErr := p.Cleanup()
	return errors.Join(cleanupErr, p.backend.Close())
}
