package driver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/safehold-systems/safehold/internal/bus"
	"github.com/safehold-systems/safehold/internal/fabric"
	"github.com/safehold-systems/safehold/pkg/types"
)

// DisplayDevice renders one frame on the physical panel.
type DisplayDevice interface {
	Render(ctx context.Context, frame types.DisplayFrame) error
}

// Display consumes render requests and drives the panel. The panel shares
// the peripheral bus with the accelerometer, so every render runs under
// the arbiter.
type Display struct {
	dev     DisplayDevice
	arbiter *bus.Arbiter
	frames  *fabric.Chan[types.DisplayFrame]
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDisplay creates the display task.
func NewDisplay(dev DisplayDevice, arb *bus.Arbiter, frames *fabric.Chan[types.DisplayFrame], logger *slog.Logger) *Display {
	if logger == nil {
		logger = slog.Default()
	}
	return &Display{dev: dev, arbiter: arb, frames: frames, logger: logger}
}

// Start begins consuming render requests.
func (d *Display) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)
	go d.loop(ctx)
	d.logger.Info("display task started")
}

// Stop shuts the display task down.
func (d *Display) Stop(_ context.Context) {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Info("display task stopped")
}

func (d *Display) loop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-d.frames.C():
			// A failed render is not retried: the next state change
			// supersedes the frame anyway.
			err := d.arbiter.WithBus(ctx, "display-render", func() error {
				return d.dev.Render(ctx, frame)
			})
			if err != nil && ctx.Err() == nil {
				d.logger.Warn("display render failed", "error", err)
			}
		}
	}
}
