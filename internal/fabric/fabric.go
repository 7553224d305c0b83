// Package fabric provides the bounded, typed channels connecting the safe's
// tasks. Producers never block: a full channel drops the newest message and
// the drop is logged and counted. Each channel is read by exactly one
// consuming task, which is what keeps downstream state mutation race-free
// without additional locking.
package fabric

import (
	"log/slog"
	"time"

	"github.com/safehold-systems/safehold/internal/metrics"
)

// Wait bounds accepted by Receive.
const (
	// Forever blocks the receiver until a message arrives.
	Forever time.Duration = -1
	// Poll returns immediately when no message is queued.
	Poll time.Duration = 0
)

// Default capacities: input-event channels are sized for short bursts,
// command and output channels for a trickle.
const (
	InputCapacity  = 10
	OutputCapacity = 5
)

// Chan is a bounded, named channel. The name shows up in drop logs and the
// per-channel drop counters.
type Chan[T any] struct {
	name   string
	ch     chan T
	logger *slog.Logger
}

// New creates a channel holding up to capacity messages.
func New[T any](name string, capacity int, logger *slog.Logger) *Chan[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chan[T]{
		name:   name,
		ch:     make(chan T, capacity),
		logger: logger,
	}
}

// Send enqueues v without blocking. When the channel is full the message is
// dropped and Send reports false.
func (c *Chan[T]) Send(v T) bool {
	select {
	case c.ch <- v:
		return true
	default:
		metrics.ChannelDrops.Add(c.name, 1)
		c.logger.Warn("channel full, dropping message",
			"channel", c.name,
			"capacity", cap(c.ch))
		return false
	}
}

// Receive waits up to timeout for a message, returning ok=false on timeout.
// Forever blocks until a message arrives; Poll returns straight away when
// the channel is empty.
func (c *Chan[T]) Receive(timeout time.Duration) (T, bool) {
	var zero T
	switch {
	case timeout < 0:
		return <-c.ch, true
	case timeout == 0:
		select {
		case v := <-c.ch:
			return v, true
		default:
			return zero, false
		}
	default:
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case v := <-c.ch:
			return v, true
		case <-t.C:
			return zero, false
		}
	}
}

// C exposes the receive side for use in a select loop. Only the channel's
// single consumer may read from it.
func (c *Chan[T]) C() <-chan T { return c.ch }

// Name returns the channel's wiring name.
func (c *Chan[T]) Name() string { return c.name }

// Len returns the number of queued messages.
func (c *Chan[T]) Len() int { return len(c.ch) }

// Cap returns the channel capacity.
func (c *Chan[T]) Cap() int { return cap(c.ch) }
