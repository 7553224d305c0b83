// Package motion turns raw accelerometer samples into debounced movement
// detections. A single transient spike must not raise a false alarm, but
// sustained motion has to be caught within a few samples; the hit-count
// filter trades those two off.
package motion

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/safehold-systems/safehold/internal/metrics"
	"github.com/safehold-systems/safehold/pkg/types"
)

// Sensitivity is the magnitude threshold in raw accelerometer units; a
// sample whose squared magnitude exceeds sensitivity² counts toward a
// detection. Runtime changes are clamped into [MinSensitivity,
// MaxSensitivity], never rejected.
const (
	MinSensitivity     = 17000
	MaxSensitivity     = 45000
	DefaultSensitivity = 20000

	// HitThreshold is the saturating hit count that declares movement.
	HitThreshold = 3

	// cooldown suppresses retriggering immediately after a detection.
	cooldown = 500 * time.Millisecond
)

// ClampSensitivity forces v into the supported sensitivity range.
func ClampSensitivity(v int) int {
	if v < MinSensitivity {
		return MinSensitivity
	}
	if v > MaxSensitivity {
		return MaxSensitivity
	}
	return v
}

// Detector carries the hit counter, the only state that survives between
// samples. Ingest runs on the sensor task while SetSensitivity arrives from
// the control loop, so the whole of it sits behind one lock.
type Detector struct {
	mu          sync.Mutex
	sensitivity int
	hits        int
	lastDetect  time.Time
	logger      *slog.Logger
	now         func() time.Time
}

// NewDetector creates a detector with the given starting sensitivity,
// clamped like any other sensitivity write.
func NewDetector(sensitivity int, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if sensitivity == 0 {
		sensitivity = DefaultSensitivity
	}
	return &Detector{
		sensitivity: ClampSensitivity(sensitivity),
		logger:      logger,
		now:         time.Now,
	}
}

// Ingest feeds one raw sample through the filter and reports a detection
// when the hit counter reaches HitThreshold. On detection the counter
// resets and a cooldown window opens during which samples are ignored.
// The square root runs only on the detection path, never per sample.
func (d *Detector) Ingest(s types.MovementSample) (types.Detection, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if !d.lastDetect.IsZero() && now.Sub(d.lastDetect) < cooldown {
		return types.Detection{}, false
	}

	magSq := s.MagnitudeSquared()
	threshold := int64(d.sensitivity) * int64(d.sensitivity)

	if magSq <= threshold {
		if d.hits > 0 {
			d.hits--
		}
		return types.Detection{}, false
	}

	if d.hits < HitThreshold {
		d.hits++
	}
	if d.hits < HitThreshold {
		return types.Detection{}, false
	}

	d.hits = 0
	d.lastDetect = now
	metrics.MovementDetections.Add(1)

	amount := math.Sqrt(float64(magSq))
	d.logger.Debug("movement detected",
		"amount", amount,
		"sensitivity", d.sensitivity)
	return types.Detection{Amount: amount, At: now}, true
}

// SetSensitivity clamps and applies a new threshold, returning the value
// actually in effect.
func (d *Detector) SetSensitivity(v int) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	applied := ClampSensitivity(v)
	if applied != v {
		d.logger.Warn("sensitivity clamped", "requested", v, "applied", applied)
	}
	if applied != d.sensitivity {
		d.logger.Info("sensitivity updated", "from", d.sensitivity, "to", applied)
	}
	d.sensitivity = applied
	return applied
}

// Sensitivity returns the threshold currently in effect.
func (d *Detector) Sensitivity() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sensitivity
}
