package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/safehold-systems/safehold/internal/bus"
	"github.com/safehold-systems/safehold/internal/fabric"
	"github.com/safehold-systems/safehold/internal/motion"
	"github.com/safehold-systems/safehold/internal/testutil"
	"github.com/safehold-systems/safehold/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestKeypadPumpsKeys(t *testing.T) {
	sim := NewSimKeypad()
	keys := fabric.New[byte]("test-keys", fabric.InputCapacity, nil)

	kp := NewKeypad(sim, keys, nil)
	kp.Start(context.Background())
	t.Cleanup(func() { kp.Stop(context.Background()) })

	sim.Press("12#")

	for _, want := range []byte{'1', '2', '#'} {
		got, ok := keys.Receive(2 * time.Second)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestAccelerometerDetectsMovement(t *testing.T) {
	sim := NewSimSensor()
	arb := bus.NewArbiter(time.Second, nil)
	det := motion.NewDetector(motion.DefaultSensitivity, nil)
	detections := fabric.New[types.Detection]("test-detections", fabric.InputCapacity, nil)

	acc := NewAccelerometer(sim, arb, det, detections, 5*time.Millisecond, nil)
	acc.Start(context.Background())
	t.Cleanup(func() { acc.Stop(context.Background()) })

	// At rest nothing crosses the threshold.
	_, ok := detections.Receive(50 * time.Millisecond)
	assert.False(t, ok)

	sim.SetSample(25000, 0, 0)
	d, ok := detections.Receive(2 * time.Second)
	require.True(t, ok)
	assert.InDelta(t, 25000.0, d.Amount, 0.001)

	// Back at rest the counter stays down; no further detection.
	sim.SetSample(0, 0, 16384)
	_, ok = detections.Receive(150 * time.Millisecond)
	assert.False(t, ok)
}

func TestAccelerometerSurvivesReadErrors(t *testing.T) {
	sim := NewSimSensor()
	sim.SetError(errors.New("bus transaction nak"))
	arb := bus.NewArbiter(time.Second, nil)
	det := motion.NewDetector(motion.DefaultSensitivity, nil)
	detections := fabric.New[types.Detection]("test-detections-err", fabric.InputCapacity, nil)

	acc := NewAccelerometer(sim, arb, det, detections, 5*time.Millisecond, nil)
	acc.Start(context.Background())
	t.Cleanup(func() { acc.Stop(context.Background()) })

	// A few failing ticks pass; the task keeps running.
	time.Sleep(30 * time.Millisecond)

	sim.SetError(nil)
	sim.SetSample(30000, 0, 0)
	_, ok := detections.Receive(2 * time.Second)
	assert.True(t, ok, "detections resume once the sensor recovers")
}

func TestDisplayRendersFrames(t *testing.T) {
	sim := NewSimDisplay(nil)
	arb := bus.NewArbiter(time.Second, nil)
	frames := fabric.New[types.DisplayFrame]("test-frames", fabric.OutputCapacity, nil)

	disp := NewDisplay(sim, arb, frames, nil)
	disp.Start(context.Background())
	t.Cleanup(func() { disp.Stop(context.Background()) })

	want := types.DisplayFrame{Line1: "SAFE LOCKED", Line2: "Enter code"}
	require.True(t, frames.Send(want))

	testutil.WaitFor(t, 2*time.Second, func() bool {
		got, ok := sim.Last()
		return ok && got == want
	}, "frame rendered")
}

func TestLEDFollowsState(t *testing.T) {
	sim := NewSimLED()
	states := fabric.New[types.SafeState]("test-leds", fabric.OutputCapacity, nil)

	led := NewLED(sim, states, nil)
	led.flash = 10 * time.Millisecond
	led.Start(context.Background())
	t.Cleanup(func() { led.Stop(context.Background()) })

	require.True(t, states.Send(types.StateLocked))
	testutil.WaitFor(t, 2*time.Second, sim.On, "locked lights the indicator")

	require.True(t, states.Send(types.StateUnlocked))
	testutil.WaitFor(t, 2*time.Second, func() bool { return !sim.On() }, "unlocked darkens the indicator")
}

func TestLEDFlashesInAlarm(t *testing.T) {
	sim := NewSimLED()
	states := fabric.New[types.SafeState]("test-leds-alarm", fabric.OutputCapacity, nil)

	led := NewLED(sim, states, nil)
	led.flash = 10 * time.Millisecond
	led.Start(context.Background())
	t.Cleanup(func() { led.Stop(context.Background()) })

	require.True(t, states.Send(types.StateAlarm))
	testutil.WaitFor(t, 2*time.Second, func() bool { return sim.Switches() >= 1 }, "alarm state applied")

	base := sim.Switches()
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return sim.Switches() >= base+4
	}, "indicator keeps toggling in alarm")
}
