// Package bus serializes access to the peripheral bus shared by the display
// and the accelerometer. Interleaved transactions from two drivers would
// corrupt each other's addressing phase, so every transaction goes through
// the arbiter's token.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/safehold-systems/safehold/internal/metrics"
)

// DefaultWait bounds how long a driver waits for the bus before giving up.
const DefaultWait = time.Second

// ErrTimeout is returned when the bus cannot be acquired within the bound.
var ErrTimeout = errors.New("bus acquire timed out")

// Arbiter is the mutual-exclusion gate for the shared bus.
type Arbiter struct {
	token  chan struct{}
	wait   time.Duration
	logger *slog.Logger
}

// NewArbiter creates an arbiter with the given acquire bound.
func NewArbiter(wait time.Duration, logger *slog.Logger) *Arbiter {
	if wait <= 0 {
		wait = DefaultWait
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{
		token:  make(chan struct{}, 1),
		wait:   wait,
		logger: logger,
	}
}

// WithBus acquires the bus within the bound, runs fn, and releases the bus
// even when fn panics. op names the transaction in timeout logs.
func (a *Arbiter) WithBus(ctx context.Context, op string, fn func() error) error {
	t := time.NewTimer(a.wait)
	defer t.Stop()

	select {
	case a.token <- struct{}{}:
	case <-t.C:
		metrics.BusTimeouts.Add(1)
		a.logger.Warn("bus acquire timed out", "op", op, "wait", a.wait)
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	defer func() { <-a.token }()

	return fn()
}
