package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safehold-systems/safehold/pkg/types"
)

func entry(n int) BufferedEvent {
	at := time.Unix(int64(1700000000+n), 0)
	return BufferedEvent{
		Event: types.Event{
			ID:    fmt.Sprintf("ev-%02d", n),
			Kind:  types.EventStateChange,
			State: types.StateLocked,
			At:    at,
		},
		EnqueuedAt: at,
	}
}

func eventIDs(r *Ring) []string {
	out := make([]string, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		out = append(out, r.At(i).Event.ID)
	}
	return out
}

func TestNewRingMinimumCapacity(t *testing.T) {
	assert.Equal(t, 1, NewRing(0).Cap())
	assert.Equal(t, 1, NewRing(-3).Cap())
	assert.Equal(t, 8, NewRing(8).Cap())
}

func TestRingAppendFIFO(t *testing.T) {
	r := NewRing(4)

	for n := 1; n <= 3; n++ {
		_, evicted := r.Append(entry(n))
		assert.False(t, evicted)
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"ev-01", "ev-02", "ev-03"}, eventIDs(r))
}

func TestRingAppendEvictsOldest(t *testing.T) {
	r := NewRing(3)
	for n := 1; n <= 3; n++ {
		r.Append(entry(n))
	}

	victim, evicted := r.Append(entry(4))
	require.True(t, evicted)
	assert.Equal(t, "ev-01", victim.Event.ID)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"ev-02", "ev-03", "ev-04"}, eventIDs(r))

	victim, evicted = r.Append(entry(5))
	require.True(t, evicted)
	assert.Equal(t, "ev-02", victim.Event.ID)
	assert.Equal(t, []string{"ev-03", "ev-04", "ev-05"}, eventIDs(r))
}

func TestRingMarkAttemptAndClearPending(t *testing.T) {
	r := NewRing(2)
	r.Append(entry(1))

	at := time.Unix(1700001000, 0)
	r.MarkAttempt(0, 42, at)

	got := r.At(0)
	assert.True(t, got.Pending)
	assert.Equal(t, uint32(42), got.DeliveryID)
	assert.Equal(t, at, got.AttemptedAt)

	r.ClearPending(0)

	got = r.At(0)
	assert.False(t, got.Pending)
	assert.Equal(t, uint32(0), got.DeliveryID)
	assert.Equal(t, entry(1).EnqueuedAt, got.EnqueuedAt, "clearing must not touch enqueue time")
}

func TestRingRemoveMatchesOnlyPending(t *testing.T) {
	r := NewRing(4)
	r.Append(entry(1))
	r.Append(entry(2))
	r.MarkAttempt(0, 7, time.Now())

	_, ok := r.Remove(9)
	assert.False(t, ok, "unknown delivery id must not match")

	_, ok = r.Remove(0)
	assert.False(t, ok, "idle entries must never match, even on the zero id")

	got, ok := r.Remove(7)
	require.True(t, ok)
	assert.Equal(t, "ev-01", got.Event.ID)
	assert.Equal(t, []string{"ev-02"}, eventIDs(r))
}

func TestRingRemovePreservesOrder(t *testing.T) {
	tests := []struct {
		name      string
		removeIdx int
		want      []string
	}{
		{"head", 0, []string{"ev-02", "ev-03", "ev-04", "ev-05"}},
		{"tail", 4, []string{"ev-01", "ev-02", "ev-03", "ev-04"}},
		{"interior near head", 1, []string{"ev-01", "ev-03", "ev-04", "ev-05"}},
		{"interior near tail", 3, []string{"ev-01", "ev-02", "ev-03", "ev-05"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRing(5)
			for n := 1; n <= 5; n++ {
				r.Append(entry(n))
			}
			r.MarkAttempt(tt.removeIdx, 99, time.Now())

			_, ok := r.Remove(99)
			require.True(t, ok)
			assert.Equal(t, 4, r.Len())
			assert.Equal(t, tt.want, eventIDs(r))
		})
	}
}

func TestRingInteriorRemovalKeepsBookkeeping(t *testing.T) {
	r := NewRing(5)
	for n := 1; n <= 5; n++ {
		r.Append(entry(n))
	}
	now := time.Now()
	r.MarkAttempt(0, 10, now)
	r.MarkAttempt(2, 20, now)
	r.MarkAttempt(4, 40, now)

	got, ok := r.Remove(20)
	require.True(t, ok)
	assert.Equal(t, "ev-03", got.Event.ID)
	assert.Equal(t, []string{"ev-01", "ev-02", "ev-04", "ev-05"}, eventIDs(r))

	// The shifted entries keep their delivery ids.
	got, ok = r.Remove(40)
	require.True(t, ok)
	assert.Equal(t, "ev-05", got.Event.ID)

	got, ok = r.Remove(10)
	require.True(t, ok)
	assert.Equal(t, "ev-01", got.Event.ID)

	assert.Equal(t, []string{"ev-02", "ev-04"}, eventIDs(r))
}

func TestRingRemoveAfterWrap(t *testing.T) {
	r := NewRing(4)
	for n := 1; n <= 6; n++ {
		r.Append(entry(n)) // 5 and 6 evict 1 and 2, wrapping the head
	}
	require.Equal(t, []string{"ev-03", "ev-04", "ev-05", "ev-06"}, eventIDs(r))

	r.MarkAttempt(1, 44, time.Now())
	got, ok := r.Remove(44)
	require.True(t, ok)
	assert.Equal(t, "ev-04", got.Event.ID)
	assert.Equal(t, []string{"ev-03", "ev-05", "ev-06"}, eventIDs(r))

	r.Append(entry(7))
	assert.Equal(t, []string{"ev-03", "ev-05", "ev-06", "ev-07"}, eventIDs(r))
}
