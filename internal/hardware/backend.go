package hardware

import (
	"fmt"
	"time"

	"gpio-server/internal/logger"
)

type BackendOptions struct {
	Kind string
	Chip string

	// Used by the sim backend only.
	Trigger   int
	Echo      int
	EchoWidth time.Duration
}

// NewBackend opens the backend named by opts.Kind.
func NewBackend(opts BackendOptions, l *logger.Logger) (Backend, error) {
	switch opts.Kind {
	case BackendGpiocdev, "":
		chip := opts.Chip
		if chip == "" {
			chip = DefaultChip
		}
		return newGpiocdevBackend(chip, l)
	case BackendPeriph:
		return newPeriphBackend(l)
	case BackendSim:
		l.Warnf("Using simulated GPIO, no hardware will be driven")
		return NewSimBackend(WithSimEcho(opts.Trigger, opts.Echo, opts.EchoWidth)), nil
	default:
		return nil, fmt.Errorf("unknown GPIO backend %q", opts.Kind)
	}
}
