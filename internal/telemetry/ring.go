package telemetry

import (
	"time"

	"github.com/safehold-systems/safehold/pkg/types"
)

// BufferedEvent is one ring slot: the event plus its delivery bookkeeping.
// Pending means a handoff to the transport happened and no confirmation has
// arrived yet; an idle (non-pending) entry is eligible for a fresh attempt.
type BufferedEvent struct {
	Event       types.Event
	DeliveryID  uint32
	Pending     bool
	EnqueuedAt  time.Time
	AttemptedAt time.Time
}

// Ring is the fixed-capacity FIFO delivery buffer. It is not goroutine-safe:
// the publisher task is its only owner. When full, Append evicts the oldest
// entry to make room, and that eviction is the only path that ever discards
// an event.
type Ring struct {
	slots []BufferedEvent
	head  int
	count int
}

// NewRing creates a ring holding up to capacity buffered events.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{slots: make([]BufferedEvent, capacity)}
}

// Len returns the number of buffered events.
func (r *Ring) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.slots) }

func (r *Ring) physical(i int) int {
	return (r.head + i) % len(r.slots)
}

// At returns a copy of the i-th entry in FIFO order, i in [0, Len()).
func (r *Ring) At(i int) BufferedEvent {
	return r.slots[r.physical(i)]
}

// Append enqueues be at the tail. When the ring is full the oldest entry is
// evicted to make room; the victim is returned with evicted=true.
func (r *Ring) Append(be BufferedEvent) (victim BufferedEvent, evicted bool) {
	if r.count == len(r.slots) {
		victim = r.slots[r.head]
		evicted = true
		r.head = (r.head + 1) % len(r.slots)
		r.count--
	}
	r.slots[r.physical(r.count)] = be
	r.count++
	return victim, evicted
}

// MarkAttempt records a transport handoff for the i-th entry.
func (r *Ring) MarkAttempt(i int, deliveryID uint32, at time.Time) {
	s := &r.slots[r.physical(i)]
	s.Pending = true
	s.DeliveryID = deliveryID
	s.AttemptedAt = at
}

// ClearPending makes the i-th entry eligible for a fresh send attempt.
func (r *Ring) ClearPending(i int) {
	s := &r.slots[r.physical(i)]
	s.Pending = false
	s.DeliveryID = 0
}

// Remove deletes the pending entry whose handoff was assigned deliveryID,
// preserving FIFO order of the remainder. It reports false when no entry
// matches (already evicted, or a duplicate confirmation).
func (r *Ring) Remove(deliveryID uint32) (BufferedEvent, bool) {
	for i := 0; i < r.count; i++ {
		s := r.slots[r.physical(i)]
		if s.Pending && s.DeliveryID == deliveryID {
			r.removeAt(i)
			return s, true
		}
	}
	return BufferedEvent{}, false
}

// removeAt deletes the i-th entry. Removal at either end is O(1); interior
// removal shifts whichever side of the hole is shorter.
func (r *Ring) removeAt(i int) {
	switch {
	case i == 0:
		r.slots[r.head] = BufferedEvent{}
		r.head = (r.head + 1) % len(r.slots)
		r.count--
	case i == r.count-1:
		r.slots[r.physical(i)] = BufferedEvent{}
		r.count--
	case i < r.count/2:
		// Shift the head side toward the hole.
		for j := i; j > 0; j-- {
			r.slots[r.physical(j)] = r.slots[r.physical(j-1)]
		}
		r.slots[r.head] = BufferedEvent{}
		r.head = (r.head + 1) % len(r.slots)
		r.count--
	default:
		// Shift the tail side into the hole.
		for j := i; j < r.count-1; j++ {
			r.slots[r.physical(j)] = r.slots[r.physical(j+1)]
		}
		r.slots[r.physical(r.count-1)] = BufferedEvent{}
		r.count--
	}
}
