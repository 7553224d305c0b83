// Package lockstate implements the safe's lock state machine: a pure
// transition function over {Locked, Unlocked, Alarm} plus the wrong-attempt
// counter, and a small stateful wrapper owned by the control loop.
package lockstate

import (
	"github.com/safehold-systems/safehold/pkg/types"
)

// MaxWrongAttempts is the consecutive wrong-code count that arms the alarm.
const MaxWrongAttempts = 3

// Input is one event the state machine reacts to.
type Input string

// Input values cover code entry outcomes and debounced movement.
const (
	CorrectPin Input = "correct_pin"
	WrongPin   Input = "wrong_pin"
	Movement   Input = "movement"
)

// Next is the pure transition function. It depends only on its arguments:
//
//	Locked   + CorrectPin → Unlocked (counter cleared)
//	Locked   + WrongPin   → Locked, or Alarm once the counter reaches MaxWrongAttempts
//	Locked   + Movement   → Alarm
//	Unlocked + CorrectPin → Locked (counter cleared)
//	Unlocked + WrongPin   → Unlocked (not counted)
//	Unlocked + Movement   → Unlocked (ignored)
//	Alarm    + CorrectPin → Locked (counter cleared)
//	Alarm    + WrongPin   → Alarm (ignored)
//	Alarm    + Movement   → Alarm (ignored)
func Next(state types.SafeState, wrong int, in Input) (types.SafeState, int) {
	switch in {
	case CorrectPin:
		// The correct code always clears the counter: it opens a locked
		// safe, closes an open one, and silences an alarm back to Locked.
		if state == types.StateLocked {
			return types.StateUnlocked, 0
		}
		return types.StateLocked, 0

	case WrongPin:
		// Wrong codes count only while locked; an open safe or a ringing
		// alarm gains nothing from counting them.
		if state != types.StateLocked {
			return state, wrong
		}
		wrong++
		if wrong >= MaxWrongAttempts {
			return types.StateAlarm, wrong
		}
		return types.StateLocked, wrong

	case Movement:
		if state == types.StateLocked {
			return types.StateAlarm, wrong
		}
		return state, wrong
	}

	return state, wrong
}

// validCommandTransitions lists the state changes remote commands may make.
// Alarm is reachable only through events, and only reset_alarm leaves it:
// a remote lock/unlock can never mask a ringing alarm.
var validCommandTransitions = map[types.SafeState][]types.SafeState{
	types.StateLocked:   {types.StateUnlocked},
	types.StateUnlocked: {types.StateLocked},
	types.StateAlarm:    {types.StateLocked},
}

// CanCommand reports whether a remote command is permitted to move the
// machine from one state to another.
func CanCommand(from, to types.SafeState) bool {
	for _, t := range validCommandTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition records one applied input: where the machine was, where it
// ended up, and whether that is a change.
type Transition struct {
	From    types.SafeState
	To      types.SafeState
	Changed bool
}

// Machine tracks the authoritative lock state. It is not goroutine-safe:
// exactly one task owns it and applies inputs on its own goroutine.
type Machine struct {
	state types.SafeState
	wrong int
}

// New returns a machine in the initial state: Locked with a clear counter.
func New() *Machine {
	return &Machine{state: types.StateLocked}
}

// State returns the current lock state.
func (m *Machine) State() types.SafeState { return m.state }

// WrongAttempts returns the consecutive wrong-code count.
func (m *Machine) WrongAttempts() int { return m.wrong }

// Apply advances the machine by one input.
func (m *Machine) Apply(in Input) Transition {
	from := m.state
	m.state, m.wrong = Next(m.state, m.wrong, in)
	return Transition{From: from, To: m.state, Changed: m.state != from}
}

// CommandTo applies a commanded transition. Disallowed transitions leave
// the machine untouched and report Changed=false. Entering Locked or
// Unlocked clears the wrong-attempt counter.
func (m *Machine) CommandTo(to types.SafeState) Transition {
	from := m.state
	if from == to || !CanCommand(from, to) {
		return Transition{From: from, To: from, Changed: false}
	}
	m.state = to
	m.wrong = 0
	return Transition{From: from, To: to, Changed: true}
}
