// Package control implements the control loop that owns the safe's state
// machine and sequences keypad entry, movement detections and remote
// commands into transitions and telemetry.
package control

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/safehold-systems/safehold/internal/command"
	"github.com/safehold-systems/safehold/internal/fabric"
	"github.com/safehold-systems/safehold/internal/lockstate"
	"github.com/safehold-systems/safehold/internal/metrics"
	"github.com/safehold-systems/safehold/internal/motion"
	"github.com/safehold-systems/safehold/internal/pin"
	"github.com/safehold-systems/safehold/pkg/types"
)

// Channels groups the fabric endpoints around the control loop: the three
// it consumes and the three it produces into. Each channel has exactly one
// consuming task.
type Channels struct {
	Keys       *fabric.Chan[byte]
	Detections *fabric.Chan[types.Detection]
	Commands   *fabric.Chan[types.Command]
	Events     *fabric.Chan[types.Event]
	Display    *fabric.Chan[types.DisplayFrame]
	Leds       *fabric.Chan[types.SafeState]
}

// NewChannels builds the full channel set with burst-sized input channels
// and smaller output channels.
func NewChannels(logger *slog.Logger) Channels {
	return Channels{
		Keys:       fabric.New[byte]("keys", fabric.InputCapacity, logger),
		Detections: fabric.New[types.Detection]("detections", fabric.InputCapacity, logger),
		Commands:   fabric.New[types.Command]("commands", fabric.OutputCapacity, logger),
		Events:     fabric.New[types.Event]("events", fabric.OutputCapacity, logger),
		Display:    fabric.New[types.DisplayFrame]("display", fabric.OutputCapacity, logger),
		Leds:       fabric.New[types.SafeState]("leds", fabric.OutputCapacity, logger),
	}
}

// Snapshot is the control loop's share of the diagnostics status.
type Snapshot struct {
	State         types.SafeState
	WrongAttempts int
	EntryLength   int
	LastEventID   string
	StartedAt     time.Time
}

// Controller owns the authoritative state machine. All machine mutation
// happens on its loop goroutine; the rest of the process reaches it only
// through channels or the read-only Snapshot.
type Controller struct {
	machine *lockstate.Machine
	pins    *pin.Manager
	handler *command.Handler
	ch      Channels
	logger  *slog.Logger

	entry []byte

	mu   sync.RWMutex
	snap Snapshot

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the control loop. The command handler is built here so its
// telemetry flows through the same emit path as the loop's own events.
func New(pins *pin.Manager, detector *motion.Detector, ch Channels, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		machine: lockstate.New(),
		pins:    pins,
		ch:      ch,
		logger:  logger,
		entry:   make([]byte, 0, pin.MaxLength),
	}
	c.snap = Snapshot{State: c.machine.State(), StartedAt: time.Now()}
	c.handler = command.NewHandler(pins, detector, c.emit, logger)
	return c
}

// Start begins the control loop.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.loop(ctx)
	c.logger.Info("control loop started", "state", c.machine.State())
}

// Stop shuts the control loop down, bounded by ctx.
func (c *Controller) Stop(ctx context.Context) {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("control loop stopped")
	case <-ctx.Done():
		c.logger.Warn("control loop stop timed out")
	}
}

// Snapshot returns the loop's current status share.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Controller) loop(ctx context.Context) {
	defer c.wg.Done()

	// Put the boot state on the display and LED before any input.
	c.refresh()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("control loop stopping")
			return
		case k := <-c.ch.Keys.C():
			c.handleKey(k)
		case d := <-c.ch.Detections.C():
			c.handleDetection(d)
		case cmd := <-c.ch.Commands.C():
			c.handleCommand(ctx, cmd)
		}
	}
}

func (c *Controller) handleKey(k byte) {
	switch {
	case k >= '0' && k <= '9':
		if len(c.entry) >= pin.MaxLength {
			c.logger.Debug("entry buffer full, digit ignored")
			return
		}
		c.entry = append(c.entry, k)
		c.refresh()
	case k == '*':
		c.clearEntry()
		c.refresh()
	case k == '#':
		c.submitEntry()
	default:
		// 'A'-'D' are reserved on the 4x4 pad.
		c.logger.Debug("ignoring reserved key", "key", string(k))
	}
}

// submitEntry verifies the collected digits and advances the machine. The
// entry buffer clears on every submit, accepted or not.
func (c *Controller) submitEntry() {
	code := string(c.entry)
	c.clearEntry()

	ok := c.pins.Verify(code)
	metrics.CodeAttempts.Add(1)
	in := lockstate.CorrectPin
	if !ok {
		metrics.CodeFailures.Add(1)
		in = lockstate.WrongPin
	}

	tr := c.machine.Apply(in)
	c.logger.Info("code entry",
		"ok", ok,
		"state", tr.To,
		"wrong_attempts", c.machine.WrongAttempts())
	c.noteTransition(tr)

	ev := types.NewEvent(types.EventCodeEntry, tr.To)
	ev.CodeOK = ok
	c.emit(ev)
	if tr.Changed {
		c.emit(types.NewEvent(types.EventStateChange, tr.To))
	}
}

func (c *Controller) handleDetection(d types.Detection) {
	tr := c.machine.Apply(lockstate.Movement)
	c.logger.Info("movement detected", "amount", d.Amount, "state", tr.To)
	c.noteTransition(tr)

	ev := types.NewEvent(types.EventMovement, tr.To)
	ev.MovementAmount = d.Amount
	c.emit(ev)
	if tr.Changed {
		c.emit(types.NewEvent(types.EventStateChange, tr.To))
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd types.Command) {
	c.handler.Apply(ctx, cmd, c.machine)
	c.refresh()
}

// noteTransition settles panel and snapshot before the input's telemetry
// goes out, so anything observing the events sees the machine already
// advanced.
func (c *Controller) noteTransition(tr lockstate.Transition) {
	if tr.Changed && tr.To == types.StateAlarm {
		metrics.AlarmsRaised.Add(1)
		c.logger.Warn("alarm raised", "from", tr.From)
	}
	c.refresh()
}

// emit hands an event to the publisher channel. A full channel drops the
// event inside the fabric, which logs and counts it.
func (c *Controller) emit(ev types.Event) {
	c.ch.Events.Send(ev)
	c.mu.Lock()
	c.snap.LastEventID = ev.ID
	c.mu.Unlock()
}

func (c *Controller) clearEntry() {
	for i := range c.entry {
		c.entry[i] = 0
	}
	c.entry = c.entry[:0]
}

// refresh pushes the current state to the display and LED channels and
// updates the diagnostics snapshot.
func (c *Controller) refresh() {
	c.mu.Lock()
	c.snap.State = c.machine.State()
	c.snap.WrongAttempts = c.machine.WrongAttempts()
	c.snap.EntryLength = len(c.entry)
	c.mu.Unlock()

	c.ch.Display.Send(c.renderFrame())
	c.ch.Leds.Send(c.machine.State())
}

// renderFrame builds the 16x2 panel contents for the current state.
func (c *Controller) renderFrame() types.DisplayFrame {
	line2 := "Enter code"
	if n := len(c.entry); n > 0 {
		line2 = "Code: " + strings.Repeat("*", n)
	}

	switch c.machine.State() {
	case types.StateUnlocked:
		return types.DisplayFrame{Line1: "SAFE UNLOCKED", Line2: line2}
	case types.StateAlarm:
		return types.DisplayFrame{Line1: "!! ALARM !!", Line2: line2}
	default:
		return types.DisplayFrame{Line1: "SAFE LOCKED", Line2: line2}
	}
}
