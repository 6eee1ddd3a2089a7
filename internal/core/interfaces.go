package core

import (
	"context"

	"gpio-server/internal/hardware"
	"gpio-server/internal/types"
)

// PinController defines the pin operations needed by Controller
type PinController interface {
	SetDirection(pin int, dir hardware.Direction) error
	Write(pin int, level hardware.Level) error
	Cleanup() error
	Close() error
}

// RangeFinder produces one distance reading in centimeters per call
type RangeFinder interface {
	Measure(ctx context.Context) (float64, error)
}

// StatePublisher announces state changes to other processes
type StatePublisher interface {
	PublishLedState(led string, state types.LedState) error
	PublishDistance(cm float64) error
	PublishServerState(state types.ServerState) error
	Close() error
}

type nopPublisher struct{}

func (nopPublisher) PublishLedState(string, types.LedState) error {
	return nil
}

func (nopPublisher) PublishDistance(float64) error {
	return nil
}

func (nopPublisher) PublishServerState(types.ServerState) error {
	return nil
}

func (nopPublisher) Close() error {
	return nil
}
