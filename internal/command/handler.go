// Package command applies remote operator commands to the safe.
package command

import (
	"context"
	"log/slog"

	"github.com/safehold-systems/safehold/internal/lockstate"
	"github.com/safehold-systems/safehold/internal/metrics"
	"github.com/safehold-systems/safehold/internal/motion"
	"github.com/safehold-systems/safehold/internal/pin"
	"github.com/safehold-systems/safehold/pkg/types"
)

// Handler maps operator commands onto machine transitions and device side
// effects. It keeps no state of its own and runs on the control loop's
// goroutine, the machine's single owner.
type Handler struct {
	pins     *pin.Manager
	detector *motion.Detector
	emit     func(types.Event)
	logger   *slog.Logger
}

// NewHandler creates a handler emitting telemetry through emit.
func NewHandler(pins *pin.Manager, detector *motion.Detector, emit func(types.Event), logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pins: pins, detector: detector, emit: emit, logger: logger}
}

// Apply executes one command against the machine. lock, unlock and
// reset_alarm act only from their complementary state, so a remote command
// can never mask a ringing alarm. Each applied state change emits exactly
// one state_change event.
func (h *Handler) Apply(ctx context.Context, cmd types.Command, machine *lockstate.Machine) {
	switch cmd.Kind {
	case types.CommandLock:
		h.applyTransition(cmd.Kind, machine, types.StateUnlocked, types.StateLocked)
	case types.CommandUnlock:
		h.applyTransition(cmd.Kind, machine, types.StateLocked, types.StateUnlocked)
	case types.CommandResetAlarm:
		h.applyTransition(cmd.Kind, machine, types.StateAlarm, types.StateLocked)
	case types.CommandSetCode:
		h.setCode(ctx, cmd, machine)
	case types.CommandSetSensitivity:
		h.setSensitivity(cmd)
	default:
		metrics.CommandsRejected.Add(1)
		h.logger.Warn("unknown command ignored", "command", cmd.Kind)
	}
}

func (h *Handler) applyTransition(kind types.CommandKind, machine *lockstate.Machine, onlyFrom, to types.SafeState) {
	if machine.State() != onlyFrom {
		metrics.CommandsRejected.Add(1)
		h.logger.Warn("command rejected in current state",
			"command", kind,
			"state", machine.State())
		return
	}

	tr := machine.CommandTo(to)
	if !tr.Changed {
		metrics.CommandsRejected.Add(1)
		h.logger.Warn("command produced no transition", "command", kind, "state", tr.From)
		return
	}

	metrics.CommandsAccepted.Add(1)
	h.logger.Info("command applied", "command", kind, "from", tr.From, "to", tr.To)
	h.emit(types.NewEvent(types.EventStateChange, tr.To))
}

// setCode delegates to the PIN manager and reports the outcome either way:
// the operator who sent a bad code learns it was rejected from the
// code_changed event, not from silence.
func (h *Handler) setCode(ctx context.Context, cmd types.Command, machine *lockstate.Machine) {
	ev := types.NewEvent(types.EventCodeChanged, machine.State())

	if err := h.pins.Set(ctx, cmd.Code); err != nil {
		metrics.CommandsRejected.Add(1)
		h.logger.Warn("code change rejected", "error", err)
		ev.CodeOK = false
		h.emit(ev)
		return
	}

	metrics.CommandsAccepted.Add(1)
	h.logger.Info("code changed")
	ev.CodeOK = true
	h.emit(ev)
}

func (h *Handler) setSensitivity(cmd types.Command) {
	applied := h.detector.SetSensitivity(cmd.Sensitivity)
	metrics.CommandsAccepted.Add(1)
	h.logger.Info("sensitivity updated", "requested", cmd.Sensitivity, "applied", applied)
}
