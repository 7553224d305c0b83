package driver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/safehold-systems/safehold/internal/bus"
	"github.com/safehold-systems/safehold/internal/fabric"
	"github.com/safehold-systems/safehold/internal/metrics"
	"github.com/safehold-systems/safehold/internal/motion"
	"github.com/safehold-systems/safehold/pkg/types"
)

// DefaultSampleInterval is the accelerometer polling cadence.
const DefaultSampleInterval = 50 * time.Millisecond

// Sensor reads one raw tri-axis sample per call. Implementations issue the
// actual bus transaction; the poller wraps every read in the arbiter.
type Sensor interface {
	ReadSample(ctx context.Context) (types.MovementSample, error)
}

// Accelerometer polls the sensor on a fixed cadence, runs samples through
// the movement detector, and forwards debounced detections.
type Accelerometer struct {
	sensor     Sensor
	arbiter    *bus.Arbiter
	detector   *motion.Detector
	detections *fabric.Chan[types.Detection]
	interval   time.Duration
	logger     *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAccelerometer creates the sensor polling task.
func NewAccelerometer(sensor Sensor, arb *bus.Arbiter, det *motion.Detector, detections *fabric.Chan[types.Detection], interval time.Duration, logger *slog.Logger) *Accelerometer {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Accelerometer{
		sensor:     sensor,
		arbiter:    arb,
		detector:   det,
		detections: detections,
		interval:   interval,
		logger:     logger,
	}
}

// Start begins polling.
func (a *Accelerometer) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.loop(ctx)
	a.logger.Info("accelerometer task started", "interval", a.interval)
}

// Stop shuts the polling task down.
func (a *Accelerometer) Stop(_ context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.logger.Info("accelerometer task stopped")
}

func (a *Accelerometer) loop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.poll(ctx)
		}
	}
}

// poll reads one sample under the bus lock and feeds the detector. Read
// failures are transient: counted, logged, and retried on the next tick.
func (a *Accelerometer) poll(ctx context.Context) {
	var sample types.MovementSample
	err := a.arbiter.WithBus(ctx, "accel-read", func() error {
		s, err := a.sensor.ReadSample(ctx)
		if err != nil {
			return err
		}
		sample = s
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.SensorReadErrors.Add(1)
		a.logger.Warn("sensor read failed", "error", err)
		return
	}

	if det, ok := a.detector.Ingest(sample); ok {
		a.detections.Send(det)
	}
}
