package types

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Event is one unit of outbound telemetry. Events are created by the control
// loop or the command handler, consumed exactly once by the event publisher,
// and never mutated after creation. State records the safe state at emission
// time, which is not necessarily the state when the event finally reaches the
// operator.
type Event struct {
	ID             string
	Kind           EventKind
	State          SafeState
	At             time.Time
	MovementAmount float64 // set for EventMovement only
	CodeOK         bool    // set for EventCodeEntry and EventCodeChanged
}

// NewEvent stamps a fresh event with a ULID and the current time.
func NewEvent(kind EventKind, state SafeState) Event {
	return Event{
		ID:    ulid.Make().String(),
		Kind:  kind,
		State: state,
		At:    time.Now(),
	}
}

// Command is one inbound operator command, produced by the transport's
// command subscription and consumed exactly once by the command handler.
type Command struct {
	Kind        CommandKind
	Code        string // set for CommandSetCode
	Sensitivity int    // set for CommandSetSensitivity
}

// MovementSample is one raw tri-axis accelerometer reading.
type MovementSample struct {
	X, Y, Z int32
}

// MagnitudeSquared returns |sample|² without taking a square root, keeping
// the per-sample comparison cheap.
func (s MovementSample) MagnitudeSquared() int64 {
	x, y, z := int64(s.X), int64(s.Y), int64(s.Z)
	return x*x + y*y + z*z
}

// Detection is one debounced movement detection.
type Detection struct {
	Amount float64
	At     time.Time
}

// DisplayFrame is a high-level render request for the 16x2 character display.
type DisplayFrame struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// Status is a point-in-time snapshot of the controller, served by the
// diagnostics endpoint.
type Status struct {
	State          SafeState `json:"state"`
	WrongAttempts  int       `json:"wrong_attempts"`
	Sensitivity    int       `json:"sensitivity"`
	EntryLength    int       `json:"entry_length"`
	BufferedEvents int       `json:"buffered_events"`
	Connected      bool      `json:"transport_connected"`
	LastEventID    string    `json:"last_event_id,omitempty"`
	StartedAt      time.Time `json:"started_at"`
}
