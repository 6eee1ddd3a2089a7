package core

import (
	"context"
	"errors"
	"fmt"

	"gpio-server/internal/hardware"
	"gpio-server/internal/logger"
	"gpio-server/internal/messaging"
	"gpio-server/internal/types"
)

const (
	led1Name = "led1"
	led2Name = "led2"
)

// PinLayout names the board pins used by the controller.
type PinLayout struct {
	Led1    int
	Led2    int
	Trigger int
	Echo    int
}

// Controller owns the pins, the distance sensor and the state publisher.
// Callers serialize access; it does no locking of its own.
type Controller struct {
	pins      PinController
	sensor    RangeFinder
	publisher StatePublisher
	layout    PinLayout
	params    []byte
	logger    *logger.Logger
}

// NewController builds a controller. A nil publisher disables publishing.
func NewController(pins PinController, sensor RangeFinder, publisher StatePublisher,
	layout PinLayout, params types.Params, l *logger.Logger) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	blob, err := params.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Controller{
		pins:      pins,
		sensor:    sensor,
		publisher: publisher,
		layout:    layout,
		params:    blob,
		logger:    l,
	}, nil
}

// Setup claims every pin with its direction. On failure the pins claimed so
// far are released again.
func (c *Controller) Setup() error {
	c.logger.Infof("Configuring pins: led1=%d led2=%d trigger=%d echo=%d",
		c.layout.Led1, c.layout.Led2, c.layout.Trigger, c.layout.Echo)

	steps := []struct {
		pin int
		dir hardware.Direction
	}{
		{c.layout.Led1, hardware.Output},
		{c.layout.Led2, hardware.Output},
		{c.layout.Trigger, hardware.Output},
		{c.layout.Echo, hardware.Input},
	}
	for _, s := range steps {
		if err := c.pins.SetDirection(s.pin, s.dir); err != nil {
			if cleanupErr := c.pins.Cleanup(); cleanupErr != nil {
				c.logger.Warnf("Failed to release pins after setup error: %v", cleanupErr)
			}
			return err
		}
	}
	return nil
}

func (c *Controller) setLed(name string, pin int, on bool) error {
	level := hardware.Low
	if on {
		level = hardware.High
	}
	if err := c.pins.Write(pin, level); err != nil {
		return err
	}
	c.logger.Debugf("Set %s (pin %d) %s", name, pin, level)
	c.publish(c.publisher.PublishLedState(name, types.LedStateFor(on)))
	return nil
}

// LedOn lights LED1 and turns LED2 off.
func (c *Controller) LedOn() error {
	if err := c.setLed(led1Name, c.layout.Led1, true); err != nil {
		return err
	}
	return c.setLed(led2Name, c.layout.Led2, false)
}

func (c *Controller) LedOff() error {
	return c.setLed(led1Name, c.layout.Led1, false)
}

func (c *Controller) Led2On() error {
	return c.setLed(led2Name, c.layout.Led2, true)
}

func (c *Controller) Led2Off() error {
	return c.setLed(led2Name, c.layout.Led2, false)
}

// Distance lights LED2 for the duration of the reading and leaves it on.
func (c *Controller) Distance(ctx context.Context) (float64, error) {
	if err := c.setLed(led2Name, c.layout.Led2, true); err != nil {
		return -1, err
	}
	d, err := c.sensor.Measure(ctx)
	if err != nil {
		c.logger.Warnf("Distance measurement failed: %v", err)
		return -1, err
	}
	c.publish(c.publisher.PublishDistance(d))
	return d, nil
}

// Params returns the encoded parameter blob. The slice must not be modified.
func (c *Controller) Params() []byte {
	return c.params
}

// Cleanup releases all pins.
func (c *Controller) Cleanup() error {
	c.logger.Infof("Releasing all pins")
	if err := c.pins.Cleanup(); err != nil {
		return fmt.Errorf("failed to release pins: %w", err)
	}
	return nil
}

func (c *Controller) SetServerState(state types.ServerState) {
	c.publish(c.publisher.PublishServerState(state))
}

// Close releases the pins, closes the pin backend and the publisher.
func (c *Controller) Close() error {
	pinsErr := c.pins.Close()
	pubErr := c.publisher.Close()
	return errors.Join(pinsErr, pubErr)
}

// publish logs a publishing error; state publishing never fails a request.
func (c *Controller) publish(err error) {
	switch {
	case err == nil:
	case errors.Is(err, messaging.ErrSkipped):
		c.logger.Debugf("State not published: %v", err)
	default:
		c.logger.Warnf("Failed to publish state: %v", err)
	}
}
