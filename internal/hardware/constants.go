package hardware

import "time"

const (
	// ConsumerName labels the lines this service claims on the gpio chip.
	ConsumerName = "gpio-server"

	DefaultChip = "gpiochip0"

	// BCM numbering.
	DefaultLed1Pin    = 17
	DefaultLed2Pin    = 22
	DefaultTriggerPin = 4
	DefaultEchoPin    = 27

	// Delay between the trigger falling edge and the simulated echo rising.
	simEchoDelay = 100 * time.Microsecond
)

// Backend kinds accepted by NewBackend.
const (
	BackendGpiocdev = "gpiocdev"
	BackendPeriph   = "periph"
	BackendSim      = "sim"
)
