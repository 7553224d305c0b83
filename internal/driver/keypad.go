// Package driver hosts the hardware-facing tasks: keypad input, the
// accelerometer poller, and the display and LED sinks. Each task bridges
// one device to one fabric channel; the simulated devices in sim.go stand
// in for real peripherals when simulation mode is on.
package driver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/safehold-systems/safehold/internal/fabric"
)

// readErrorBackoff spaces retries after a device read fails, so a wedged
// peripheral does not spin its task.
const readErrorBackoff = 100 * time.Millisecond

// KeySource yields single key characters: '0'-'9', '*' (clear), '#'
// (submit), 'A'-'D' (reserved).
type KeySource interface {
	// NextKey blocks until a key is pressed or ctx ends.
	NextKey(ctx context.Context) (byte, error)
}

// Keypad pumps keys from a source into the keys channel.
type Keypad struct {
	src    KeySource
	keys   *fabric.Chan[byte]
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKeypad creates the keypad task.
func NewKeypad(src KeySource, keys *fabric.Chan[byte], logger *slog.Logger) *Keypad {
	if logger == nil {
		logger = slog.Default()
	}
	return &Keypad{src: src, keys: keys, logger: logger}
}

// Start begins pumping keys.
func (k *Keypad) Start(ctx context.Context) {
	ctx, k.cancel = context.WithCancel(ctx)
	k.wg.Add(1)
	go k.loop(ctx)
	k.logger.Info("keypad task started")
}

// Stop shuts the keypad task down.
func (k *Keypad) Stop(_ context.Context) {
	if k.cancel != nil {
		k.cancel()
	}
	k.wg.Wait()
	k.logger.Info("keypad task stopped")
}

func (k *Keypad) loop(ctx context.Context) {
	defer k.wg.Done()
	for {
		key, err := k.src.NextKey(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			k.logger.Warn("keypad read failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(readErrorBackoff):
			}
			continue
		}
		k.keys.Send(key)
	}
}
