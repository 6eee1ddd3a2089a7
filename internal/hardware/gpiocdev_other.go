//go:build !linux

package hardware

import (
	"fmt"

	"gpio-server/internal/logger"
)

func newGpiocdevBackend(chipName string, l *logger.Logger) (Backend, error) {
	return nil, fmt.Errorf("gpiocdev backend for %s needs linux, use -backend periph or sim", chipName)
}
