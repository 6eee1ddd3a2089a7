package hardware

import (
	"fmt"
	"sync"
	"time"
)

// SimBackend keeps pin state in memory so the service runs without a board.
// When an echo is configured, a high-then-low pulse on the trigger pin makes
// the echo pin read high for the configured width.
type SimBackend struct {
	mu     sync.Mutex
	now    func() time.Time
	dirs   map[int]Direction
	levels map[int]Level
	writes map[int]int

	echo      *simEcho
	echoStart time.Time
	echoEnd   time.Time
	closed    bool
}

type simEcho struct {
	trigger int
	echo    int
	width   time.Duration
}

type SimOption func(*SimBackend)

// WithSimClock replaces time.Now for echo timing.
func WithSimClock(now func() time.Time) SimOption {
	return func(s *SimBackend) {
		s.now = now
	}
}

// WithSimEcho answers trigger pulses on trigger with an echo of the given
// width on echo. A zero width never answers.
func WithSimEcho(trigger, echo int, width time.Duration) SimOption {
	return func(s *SimBackend) {
		s.echo = &simEcho{trigger: trigger, echo: echo, width: width}
	}
}

func NewSimBackend(opts ...SimOption) *SimBackend {
	s := &SimBackend{
		now:    time.Now,
		dirs:   make(map[int]Direction),
		levels: make(map[int]Level),
		writes: make(map[int]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SimBackend) Setup(pin int, dir Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sim backend closed")
	}
	s.dirs[pin] = dir
	if dir == Output {
		s.levels[pin] = Low
	}
	return nil
}

func (s *SimBackend) Write(pin int, level Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dirs[pin]; !ok {
		return fmt.Errorf("sim pin %d not set up", pin)
	}
	prev := s.levels[pin]
	s.levels[pin] = level
	s.writes[pin]++

	if s.echo != nil && pin == s.echo.trigger && prev == High && level == Low && s.echo.width > 0 {
		s.echoStart = s.now().Add(simEchoDelay)
		s.echoEnd = s.echoStart.Add(s.echo.width)
	}
	return nil
}

func (s *SimBackend) Read(pin int) (Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dirs[pin]; !ok {
		return Low, fmt.Errorf("sim pin %d not set up", pin)
	}
	if s.echo != nil && pin == s.echo.echo {
		if s.echoStart.IsZero() {
			return Low, nil
		}
		now := s.now()
		return Level(!now.Before(s.echoStart) && !now.After(s.echoEnd)), nil
	}
	return s.levels[pin], nil
}

func (s *SimBackend) Release(pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirs, pin)
	return nil
}

func (s *SimBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Set forces the level an input pin reads.
func (s *SimBackend) Set(pin int, level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[pin] = level
}

// Level returns the last level written to or set on pin.
func (s *SimBackend) Level(pin int) Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[pin]
}

// IsSetUp reports whether pin is currently claimed on the backend.
func (s *SimBackend) IsSetUp(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dirs[pin]
	return ok
}

// Writes counts the writes made to pin.
func (s *SimBackend) Writes(pin int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[pin]
}
