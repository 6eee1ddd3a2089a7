//go:build linux

package hardware

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"gpio-server/internal/logger"
)

// GpiocdevBackend drives lines through the GPIO character device.
type GpiocdevBackend struct {
	logger   *logger.Logger
	chipName string
	chip     *gpiocdev.Chip
	lines    map[int]*gpiocdev.Line
	mu       sync.RWMutex
}

func newGpiocdevBackend(chipName string, l *logger.Logger) (Backend, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chipName, err)
	}
	l.Infof("Opened GPIO chip %s (%d lines)", chipName, chip.Lines())
	return &GpiocdevBackend{
		logger:   l,
		chipName: chipName,
		chip:     chip,
		lines:    make(map[int]*gpiocdev.Line),
	}, nil
}

func (b *GpiocdevBackend) Setup(pin int, dir Direction) error {
	var opt gpiocdev.LineReqOption = gpiocdev.AsInput
	if dir == Output {
		opt = gpiocdev.AsOutput(0)
	}

	line, err := b.chip.RequestLine(pin, opt, gpiocdev.WithConsumer(ConsumerName))
	if err != nil {
		if errors.Is(err, unix.EBUSY) {
			return &ConfigurationError{Pin: pin, Op: "setup", Reason: fmt.Sprintf("line busy on %s", b.chipName)}
		}
		return fmt.Errorf("failed to request GPIO line %d: %w", pin, err)
	}

	b.mu.Lock()
	b.lines[pin] = line
	b.mu.Unlock()
	b.logger.Debugf("Requested line %s:%d as %s", b.chipName, pin, dir)
	return nil
}

func (b *GpiocdevBackend) line(pin int) (*gpiocdev.Line, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	line, ok := b.lines[pin]
	if !ok {
		return nil, fmt.Errorf("line %d not requested", pin)
	}
	return line, nil
}

func (b *GpiocdevBackend) Write(pin int, level Level) error {
	line, err := b.line(pin)
	if err != nil {
		return err
	}
	return line.SetValue(valueFromLevel(level))
}

func (b *GpiocdevBackend) Read(pin int) (Level, error) {
	line, err := b.line(pin)
	if err != nil {
		return Low, err
	}
	v, err := line.Value()
	if err != nil {
		return Low, err
	}
	return levelFromValue(v), nil
}

// Release reverts the line to input before handing it back to the kernel.
func (b *GpiocdevBackend) Release(pin int) error {
	b.mu.Lock()
	line, ok := b.lines[pin]
	delete(b.lines, pin)
	b.mu.Unlock()
	if !ok {
		return nil
	}

	reconfErr := line.Reconfigure(gpiocdev.AsInput)
	return errors.Join(reconfErr, line.Close())
}

func (b *GpiocdevBackend) Close() error {
	b.mu.Lock()
	pins := make([]int, 0, len(b.lines))
	for pin := range b.lines {
		pins = append(pins, pin)
	}
	b.mu.Unlock()

	var errs []error
	for _, pin := range pins {
		errs = append(errs, b.Release(pin))
	}
	errs = append(errs, b.chip.Close())
	b.logger.Infof("Closed GPIO chip %s", b.chipName)
	return errors.Join(errs...)
}
