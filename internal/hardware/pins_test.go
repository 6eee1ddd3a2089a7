package hardware

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gpio-server/internal/logger"
)

func newTestPins() (*Pins, *SimBackend) {
	sim := NewSimBackend()
	return NewPins(sim, logger.NewLogger(nil, logger.LogLevelError)), sim
}

func TestSetDirectionOnce(t *testing.T) {
	pins, sim := newTestPins()

	if err := pins.SetDirection(17, Output); err != nil {
		t.Fatalf("SetDirection failed: %v", err)
	}
	if !sim.IsSetUp(17) {
		t.Error("Expected pin 17 to be set up on the backend")
	}
	if pins.Direction(17) != Output {
		t.Errorf("Expected output, got %s", pins.Direction(17))
	}

	err := pins.SetDirection(17, Input)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Expected configuration error on second setup, got %v", err)
	}
	if pins.Direction(17) != Output {
		t.Error("Direction must not change after a rejected setup")
	}
}

func TestSetDirectionRejectsBadArguments(t *testing.T) {
	pins, _ := newTestPins()

	if err := pins.SetDirection(-1, Output); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected configuration error for negative pin, got %v", err)
	}
	if err := pins.SetDirection(5, Unclaimed); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected configuration error for unclaimed direction, got %v", err)
	}
}

func TestWriteRequiresOutput(t *testing.T) {
	pins, sim := newTestPins()
	_ = pins.SetDirection(17, Output)
	_ = pins.SetDirection(27, Input)

	if err := pins.Write(17, High); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if sim.Level(17) != High {
		t.Error("Expected pin 17 high")
	}

	err := pins.Write(27, High)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigurationError writing an input, got %v", err)
	}
	if cfgErr.Pin != 27 || cfgErr.Op != "write" {
		t.Errorf("Unexpected error details: %+v", cfgErr)
	}

	if err := pins.Write(99, High); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected configuration error writing unclaimed pin, got %v", err)
	}
}

func TestReadRequiresInput(t *testing.T) {
	pins, sim := newTestPins()
	_ = pins.SetDirection(17, Output)
	_ = pins.SetDirection(27, Input)
	sim.Set(27, High)

	level, err := pins.Read(27)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if level != High {
		t.Error("Expected pin 27 high")
	}

	if _, err := pins.Read(17); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected configuration error reading an output, got %v", err)
	}
}

func TestCleanupReleasesEverything(t *testing.T) {
	pins, sim := newTestPins()
	_ = pins.SetDirection(17, Output)
	_ = pins.SetDirection(22, Output)
	_ = pins.SetDirection(27, Input)
	_ = pins.Write(17, High)
	_ = pins.Write(22, High)

	if err := pins.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	for _, pin := range []int{17, 22, 27} {
		if sim.IsSetUp(pin) {
			t.Errorf("Expected pin %d released", pin)
		}
		if pins.Direction(pin) != Unclaimed {
			t.Errorf("Expected pin %d unclaimed, got %s", pin, pins.Direction(pin))
		}
	}
	if sim.Level(17) != Low || sim.Level(22) != Low {
		t.Error("Expected outputs to be driven low before release")
	}
	if len(pins.Claimed()) != 0 {
		t.Errorf("Expected no claimed pins, got %v", pins.Claimed())
	}

	if err := pins.Write(17, High); !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected configuration error after cleanup, got %v", err)
	}

	// Idempotent
	if err := pins.Cleanup(); err != nil {
		t.Errorf("Second cleanup failed: %v", err)
	}

	// Re-claiming after cleanup is allowed
	if err := pins.SetDirection(17, Output); err != nil {
		t.Errorf("Expected re-configuration after cleanup to succeed, got %v", err)
	}
}

type failingBackend struct {
	*SimBackend
	releaseErr error
}

func (f *failingBackend) Release(pin int) error {
	_ = f.SimBackend.Release(pin)
	return f.releaseErr
}

func TestCleanupReportsReleaseErrors(t *testing.T) {
	backend := &failingBackend{SimBackend: NewSimBackend(), releaseErr: fmt.Errorf("device gone")}
	pins := NewPins(backend, logger.NewLogger(nil, logger.LogLevelNone))
	_ = pins.SetDirection(17, Output)

	if err := pins.Cleanup(); err == nil {
		t.Fatal("Expected release error to be reported")
	}
	if len(pins.Claimed()) != 0 {
		t.Error("Pins must be forgotten even when release fails")
	}
}

func TestSimEchoAnswersTrigger(t *testing.T) {
	now := time.Unix(1000, 0)
	sim := NewSimBackend(
		WithSimClock(func() time.Time { return now }),
		WithSimEcho(4, 27, time.Millisecond),
	)
	pins := NewPins(sim, logger.NewLogger(nil, logger.LogLevelNone))
	_ = pins.SetDirection(4, Output)
	_ = pins.SetDirection(27, Input)

	if level, _ := pins.Read(27); level != Low {
		t.Fatal("Echo must be low before any trigger")
	}

	_ = pins.Write(4, High)
	_ = pins.Write(4, Low)

	checks := []struct {
		after time.Duration
		want  Level
	}{
		{50 * time.Microsecond, Low},
		{simEchoDelay, High},
		{simEchoDelay + 500*time.Microsecond, High},
		{simEchoDelay + time.Millisecond, High},
		{simEchoDelay + time.Millisecond + time.Microsecond, Low},
	}
	start := now
	for _, c := range checks {
		now = start.Add(c.after)
		level, err := pins.Read(27)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if level != c.want {
			t.Errorf("At +%s expected %s, got %s", c.after, c.want, level)
		}
	}
}

func TestNewBackendKinds(t *testing.T) {
	l := logger.NewLogger(nil, logger.LogLevelNone)

	b, err := NewBackend(BackendOptions{Kind: BackendSim, Trigger: 4, Echo: 27, EchoWidth: time.Millisecond}, l)
	if err != nil {
		t.Fatalf("NewBackend(sim) failed: %v", err)
	}
	if _, ok := b.(*SimBackend); !ok {
		t.Errorf("Expected *SimBackend, got %T", b)
	}

	if _, err := NewBackend(BackendOptions{Kind: "parallel-port"}, l); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestLevelAndDirectionStrings(t *testing.T) {
	if High.String() != "high" || Low.String() != "low" {
		t.Error("Unexpected level strings")
	}
	if Input.String() != "input" || Output.String() != "output" || Unclaimed.String() != "unclaimed" {
		t.Error("Unexpected direction strings")
	}
	if levelFromValue(valueFromLevel(High)) != High || levelFromValue(valueFromLevel(Low)) != Low {
		t.Error("Line value conversion is not symmetric")
	}
}
