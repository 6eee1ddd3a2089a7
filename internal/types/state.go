package types

type ServerState string

const (
	StateStarting     ServerState = "starting"
	StateRunning      ServerState = "running"
	StateShuttingDown ServerState = "shutting-down"
	StateStopped      ServerState = "stopped"
)

type LedState string

const (
	LedOn  LedState = "on"
	LedOff LedState = "off"
)

func LedStateFor(on bool) LedState {
	if on {
		return LedOn
	}
	return LedOff
}
