package driver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/safehold-systems/safehold/internal/fabric"
	"github.com/safehold-systems/safehold/pkg/types"
)

// flashInterval paces the alarm flash.
const flashInterval = 500 * time.Millisecond

// LEDDevice switches the physical indicator.
type LEDDevice interface {
	Set(on bool) error
}

// LED mirrors the lock state on the indicator: lit while locked, dark
// while unlocked, flashing in alarm.
type LED struct {
	dev    LEDDevice
	states *fabric.Chan[types.SafeState]
	logger *slog.Logger
	flash  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLED creates the indicator task.
func NewLED(dev LEDDevice, states *fabric.Chan[types.SafeState], logger *slog.Logger) *LED {
	if logger == nil {
		logger = slog.Default()
	}
	return &LED{dev: dev, states: states, logger: logger, flash: flashInterval}
}

// Start begins mirroring lock state onto the indicator.
func (l *LED) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go l.loop(ctx)
	l.logger.Info("led task started")
}

// Stop shuts the indicator task down.
func (l *LED) Stop(_ context.Context) {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	l.logger.Info("led task stopped")
}

func (l *LED) loop(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.flash)
	defer ticker.Stop()

	var current types.SafeState
	lit := false

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-l.states.C():
			current = s
			lit = s != types.StateUnlocked
			l.set(lit)
		case <-ticker.C:
			if current == types.StateAlarm {
				lit = !lit
				l.set(lit)
			}
		}
	}
}

func (l *LED) set(on bool) {
	if err := l.dev.Set(on); err != nil {
		l.logger.Warn("led write failed", "error", err)
	}
}
