package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/safehold-systems/safehold/internal/fabric"
	"github.com/safehold-systems/safehold/internal/motion"
	"github.com/safehold-systems/safehold/internal/pin"
	"github.com/safehold-systems/safehold/internal/store"
	"github.com/safehold-systems/safehold/internal/testutil"
	"github.com/safehold-systems/safehold/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sinkLog[T any] struct {
	mu   sync.Mutex
	vals []T
}

func (s *sinkLog[T]) add(v T) {
	s.mu.Lock()
	s.vals = append(s.vals, v)
	s.mu.Unlock()
}

func (s *sinkLog[T]) last() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if len(s.vals) == 0 {
		return zero, false
	}
	return s.vals[len(s.vals)-1], true
}

type ctrlFixture struct {
	t      *testing.T
	ctrl   *Controller
	ch     Channels
	pins   *pin.Manager
	det    *motion.Detector
	leds   *sinkLog[types.SafeState]
	frames *sinkLog[types.DisplayFrame]
}

// startController boots a controller against real collaborators and drains
// the display and LED channels the way their drivers would.
func startController(t *testing.T) *ctrlFixture {
	t.Helper()

	pins, err := pin.NewManager(context.Background(), store.NewMemory(), "1234", nil)
	require.NoError(t, err)
	det := motion.NewDetector(motion.DefaultSensitivity, nil)
	ch := NewChannels(nil)

	f := &ctrlFixture{
		t:      t,
		ctrl:   New(pins, det, ch, nil),
		ch:     ch,
		pins:   pins,
		det:    det,
		leds:   &sinkLog[types.SafeState]{},
		frames: &sinkLog[types.DisplayFrame]{},
	}

	drainCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-drainCtx.Done():
				return
			case v := <-ch.Leds.C():
				f.leds.add(v)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-drainCtx.Done():
				return
			case v := <-ch.Display.C():
				f.frames.add(v)
			}
		}
	}()

	f.ctrl.Start(context.Background())
	t.Cleanup(func() {
		f.ctrl.Stop(context.Background())
		cancel()
		wg.Wait()
	})
	return f
}

func (f *ctrlFixture) pressKeys(keys string) {
	f.t.Helper()
	for i := 0; i < len(keys); i++ {
		require.True(f.t, f.ch.Keys.Send(keys[i]))
	}
}

func (f *ctrlFixture) collectEvents(n int) []types.Event {
	f.t.Helper()
	out := make([]types.Event, 0, n)
	for len(out) < n {
		ev, ok := f.ch.Events.Receive(2 * time.Second)
		require.True(f.t, ok, "timed out after %d of %d events", len(out), n)
		out = append(out, ev)
	}
	return out
}

func (f *ctrlFixture) assertNoEvent() {
	f.t.Helper()
	ev, ok := f.ch.Events.Receive(100 * time.Millisecond)
	assert.False(f.t, ok, "unexpected event %s (%s)", ev.Kind, ev.ID)
}

func (f *ctrlFixture) waitState(s types.SafeState) {
	f.t.Helper()
	testutil.WaitFor(f.t, 2*time.Second, func() bool {
		return f.ctrl.Snapshot().State == s
	}, "controller state "+string(s))
}

func TestCorrectEntryUnlocks(t *testing.T) {
	f := startController(t)

	f.pressKeys("1234#")

	evs := f.collectEvents(2)
	assert.Equal(t, types.EventCodeEntry, evs[0].Kind)
	assert.True(t, evs[0].CodeOK)
	assert.Equal(t, types.StateUnlocked, evs[0].State)
	assert.Equal(t, types.EventStateChange, evs[1].Kind)
	assert.Equal(t, types.StateUnlocked, evs[1].State)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, types.StateUnlocked, snap.State)
	assert.Zero(t, snap.WrongAttempts)
	assert.Zero(t, snap.EntryLength)

	testutil.WaitFor(t, 2*time.Second, func() bool {
		led, ok := f.leds.last()
		return ok && led == types.StateUnlocked
	}, "LED shows unlocked")
}

func TestWrongEntriesEscalateToAlarm(t *testing.T) {
	f := startController(t)

	f.pressKeys("1111#")
	evs := f.collectEvents(1)
	assert.Equal(t, types.EventCodeEntry, evs[0].Kind)
	assert.False(t, evs[0].CodeOK)
	assert.Equal(t, types.StateLocked, evs[0].State)
	assert.Equal(t, 1, f.ctrl.Snapshot().WrongAttempts)

	f.pressKeys("2222#")
	f.collectEvents(1)
	assert.Equal(t, 2, f.ctrl.Snapshot().WrongAttempts)

	// The third wrong code arms the alarm.
	f.pressKeys("3333#")
	evs = f.collectEvents(2)
	assert.Equal(t, types.EventCodeEntry, evs[0].Kind)
	assert.False(t, evs[0].CodeOK)
	assert.Equal(t, types.StateAlarm, evs[0].State)
	assert.Equal(t, types.EventStateChange, evs[1].Kind)
	assert.Equal(t, types.StateAlarm, evs[1].State)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, types.StateAlarm, snap.State)
	assert.Equal(t, 3, snap.WrongAttempts)
}

func TestMovementWhileLockedRaisesAlarm(t *testing.T) {
	f := startController(t)

	require.True(t, f.ch.Detections.Send(types.Detection{Amount: 21500, At: time.Now()}))

	evs := f.collectEvents(2)
	assert.Equal(t, types.EventMovement, evs[0].Kind)
	assert.Equal(t, 21500.0, evs[0].MovementAmount)
	assert.Equal(t, types.StateAlarm, evs[0].State)
	assert.Equal(t, types.EventStateChange, evs[1].Kind)
	assert.Equal(t, types.StateAlarm, evs[1].State)

	f.waitState(types.StateAlarm)
}

func TestMovementWhileUnlockedIgnored(t *testing.T) {
	f := startController(t)

	f.pressKeys("1234#")
	f.collectEvents(2)
	f.waitState(types.StateUnlocked)

	require.True(t, f.ch.Detections.Send(types.Detection{Amount: 19000, At: time.Now()}))

	// The movement is telemetered, but no state change follows.
	evs := f.collectEvents(1)
	assert.Equal(t, types.EventMovement, evs[0].Kind)
	assert.Equal(t, types.StateUnlocked, evs[0].State)
	f.assertNoEvent()

	assert.Equal(t, types.StateUnlocked, f.ctrl.Snapshot().State)
}

func TestAlarmSilencedByCorrectCode(t *testing.T) {
	f := startController(t)

	require.True(t, f.ch.Detections.Send(types.Detection{Amount: 30000, At: time.Now()}))
	f.collectEvents(2)
	f.waitState(types.StateAlarm)

	f.pressKeys("1234#")

	evs := f.collectEvents(2)
	assert.Equal(t, types.EventCodeEntry, evs[0].Kind)
	assert.True(t, evs[0].CodeOK)
	assert.Equal(t, types.StateLocked, evs[0].State)
	assert.Equal(t, types.EventStateChange, evs[1].Kind)
	assert.Equal(t, types.StateLocked, evs[1].State)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, types.StateLocked, snap.State)
	assert.Zero(t, snap.WrongAttempts)
}

func TestStarClearsEntry(t *testing.T) {
	f := startController(t)

	f.pressKeys("12")
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return f.ctrl.Snapshot().EntryLength == 2
	}, "two digits collected")

	testutil.WaitFor(t, 2*time.Second, func() bool {
		frame, ok := f.frames.last()
		return ok && frame.Line2 == "Code: **"
	}, "display masks the entry")

	f.pressKeys("*")
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return f.ctrl.Snapshot().EntryLength == 0
	}, "entry cleared")

	// A fresh, full entry still unlocks: the cleared digits are gone.
	f.pressKeys("1234#")
	evs := f.collectEvents(2)
	assert.True(t, evs[0].CodeOK)
	assert.Equal(t, types.StateUnlocked, f.ctrl.Snapshot().State)
}

func TestEntryBufferCapped(t *testing.T) {
	f := startController(t)

	f.pressKeys("123456789")
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return f.ctrl.Snapshot().EntryLength == pin.MaxLength
	}, "entry capped at the buffer size")

	// The over-long entry submits as one failed attempt.
	f.pressKeys("#")
	evs := f.collectEvents(1)
	assert.Equal(t, types.EventCodeEntry, evs[0].Kind)
	assert.False(t, evs[0].CodeOK)
	assert.Equal(t, 1, f.ctrl.Snapshot().WrongAttempts)
}

func TestReservedKeysIgnored(t *testing.T) {
	f := startController(t)

	f.pressKeys("ABCD")
	f.assertNoEvent()
	assert.Zero(t, f.ctrl.Snapshot().EntryLength)
	assert.Equal(t, types.StateLocked, f.ctrl.Snapshot().State)
}

func TestRemoteLockUnlockCommands(t *testing.T) {
	f := startController(t)

	// lock while already locked: rejected, no telemetry.
	require.True(t, f.ch.Commands.Send(types.Command{Kind: types.CommandLock}))
	f.assertNoEvent()
	assert.Equal(t, types.StateLocked, f.ctrl.Snapshot().State)

	require.True(t, f.ch.Commands.Send(types.Command{Kind: types.CommandUnlock}))
	evs := f.collectEvents(1)
	assert.Equal(t, types.EventStateChange, evs[0].Kind)
	assert.Equal(t, types.StateUnlocked, evs[0].State)
	f.waitState(types.StateUnlocked)

	require.True(t, f.ch.Commands.Send(types.Command{Kind: types.CommandLock}))
	evs = f.collectEvents(1)
	assert.Equal(t, types.StateLocked, evs[0].State)
	f.waitState(types.StateLocked)
}

func TestRemoteSetCodeRejectedKeepsOldCode(t *testing.T) {
	f := startController(t)

	require.True(t, f.ch.Commands.Send(types.Command{Kind: types.CommandSetCode, Code: "987"}))

	evs := f.collectEvents(1)
	assert.Equal(t, types.EventCodeChanged, evs[0].Kind)
	assert.False(t, evs[0].CodeOK)

	// The old code still opens the safe.
	f.pressKeys("1234#")
	evs = f.collectEvents(2)
	assert.True(t, evs[0].CodeOK)
	assert.Equal(t, types.StateUnlocked, f.ctrl.Snapshot().State)
}

func TestRemoteSetCodeChangesFutureEntries(t *testing.T) {
	f := startController(t)

	require.True(t, f.ch.Commands.Send(types.Command{Kind: types.CommandSetCode, Code: "5678"}))
	evs := f.collectEvents(1)
	assert.Equal(t, types.EventCodeChanged, evs[0].Kind)
	assert.True(t, evs[0].CodeOK)

	f.pressKeys("1234#")
	evs = f.collectEvents(1)
	assert.False(t, evs[0].CodeOK, "the replaced code must stop working")

	f.pressKeys("5678#")
	evs = f.collectEvents(2)
	assert.True(t, evs[0].CodeOK)
	assert.Equal(t, types.StateUnlocked, f.ctrl.Snapshot().State)
}

func TestRemoteSetSensitivity(t *testing.T) {
	f := startController(t)

	require.True(t, f.ch.Commands.Send(types.Command{Kind: types.CommandSetSensitivity, Sensitivity: 30000}))
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return f.det.Sensitivity() == 30000
	}, "sensitivity applied")
	f.assertNoEvent()

	require.True(t, f.ch.Commands.Send(types.Command{Kind: types.CommandSetSensitivity, Sensitivity: 1}))
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return f.det.Sensitivity() == motion.MinSensitivity
	}, "out-of-range sensitivity clamped")
}

func TestChannelCapacities(t *testing.T) {
	ch := NewChannels(nil)
	assert.Equal(t, fabric.InputCapacity, ch.Keys.Cap())
	assert.Equal(t, fabric.InputCapacity, ch.Detections.Cap())
	assert.Equal(t, fabric.OutputCapacity, ch.Commands.Cap())
	assert.Equal(t, fabric.OutputCapacity, ch.Events.Cap())
}
