package driver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/safehold-systems/safehold/pkg/types"
)

// SimKeypad is a keypad fed programmatically, used in simulation mode and
// tests.
type SimKeypad struct {
	ch chan byte
}

// NewSimKeypad creates an empty simulated keypad.
func NewSimKeypad() *SimKeypad {
	return &SimKeypad{ch: make(chan byte, 32)}
}

// Press queues each character of keys as one keypress.
func (s *SimKeypad) Press(keys string) {
	for i := 0; i < len(keys); i++ {
		s.ch <- keys[i]
	}
}

// NextKey blocks until a queued key or ctx end.
func (s *SimKeypad) NextKey(ctx context.Context) (byte, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case k := <-s.ch:
		return k, nil
	}
}

// SimSensor returns a configurable sample, standing in for the
// accelerometer. It starts at rest: roughly 1g straight down.
type SimSensor struct {
	mu     sync.Mutex
	sample types.MovementSample
	err    error
}

// NewSimSensor creates a sensor reading a resting sample.
func NewSimSensor() *SimSensor {
	return &SimSensor{sample: types.MovementSample{X: 0, Y: 0, Z: 16384}}
}

// SetSample changes what subsequent reads return.
func (s *SimSensor) SetSample(x, y, z int32) {
	s.mu.Lock()
	s.sample = types.MovementSample{X: x, Y: y, Z: z}
	s.mu.Unlock()
}

// SetError makes subsequent reads fail until cleared with SetError(nil).
func (s *SimSensor) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *SimSensor) ReadSample(_ context.Context) (types.MovementSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return types.MovementSample{}, s.err
	}
	return s.sample, nil
}

// SimDisplay records rendered frames and echoes them to the log.
type SimDisplay struct {
	mu     sync.Mutex
	frames []types.DisplayFrame
	logger *slog.Logger
}

// NewSimDisplay creates a simulated panel.
func NewSimDisplay(logger *slog.Logger) *SimDisplay {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimDisplay{logger: logger}
}

func (s *SimDisplay) Render(_ context.Context, frame types.DisplayFrame) error {
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
	s.logger.Debug("display", "line1", frame.Line1, "line2", frame.Line2)
	return nil
}

// Frames returns a copy of everything rendered so far.
func (s *SimDisplay) Frames() []types.DisplayFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DisplayFrame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Last returns the most recent frame.
func (s *SimDisplay) Last() (types.DisplayFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return types.DisplayFrame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// SimLED records indicator switches.
type SimLED struct {
	mu       sync.Mutex
	on       bool
	switches int
}

// NewSimLED creates a simulated indicator, initially dark.
func NewSimLED() *SimLED {
	return &SimLED{}
}

func (s *SimLED) Set(on bool) error {
	s.mu.Lock()
	s.on = on
	s.switches++
	s.mu.Unlock()
	return nil
}

// On reports the current indicator level.
func (s *SimLED) On() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

// Switches reports how many writes the indicator has seen.
func (s *SimLED) Switches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switches
}
