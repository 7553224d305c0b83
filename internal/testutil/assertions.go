package testutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/safehold-systems/safehold/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// WaitForPublishCount polls until the transport has recorded at least n
// publish handoffs.
func WaitForPublishCount(t *testing.T, tr *MockTransport, n int, timeout time.Duration) {
	t.Helper()
	WaitFor(t, timeout, func() bool {
		return tr.PublishCount() >= n
	}, "publish count >= target")
}

// CollectKinds extracts the event kind from each recorded telemetry payload
// using the wire field, preserving publish order.
func CollectKinds(t *testing.T, published []PublishedPayload) []types.EventKind {
	t.Helper()
	kinds := make([]types.EventKind, 0, len(published))
	for _, p := range published {
		kinds = append(kinds, types.EventKind(wireField(t, p.Payload, "event")))
	}
	return kinds
}

// wireField decodes payload as a JSON object and returns the named field as
// a string.
func wireField(t *testing.T, payload []byte, field string) string {
	t.Helper()
	var obj map[string]any
	require.NoError(t, json.Unmarshal(payload, &obj))
	v, ok := obj[field].(string)
	require.True(t, ok, "field %q missing or not a string in %s", field, payload)
	return v
}
