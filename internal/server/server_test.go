package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safehold-systems/safehold/internal/metrics"
	"github.com/safehold-systems/safehold/pkg/types"
)

func setupTestServer(t *testing.T, statusFn StatusFn) *httptest.Server {
	t.Helper()
	if statusFn == nil {
		statusFn = func() types.Status { return types.Status{State: types.StateLocked} }
	}
	srv := New(":0", statusFn, nil)
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	started := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	ts := setupTestServer(t, func() types.Status {
		return types.Status{
			State:          types.StateAlarm,
			WrongAttempts:  3,
			Sensitivity:    20000,
			BufferedEvents: 2,
			Connected:      true,
			StartedAt:      started,
		}
	})

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got types.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, types.StateAlarm, got.State)
	assert.Equal(t, 3, got.WrongAttempts)
	assert.Equal(t, 20000, got.Sensitivity)
	assert.Equal(t, 2, got.BufferedEvents)
	assert.True(t, got.Connected)
	assert.True(t, started.Equal(got.StartedAt))
}

func TestExpvarEndpoint(t *testing.T) {
	metrics.EventsPublished.Add(1)
	ts := setupTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/debug/vars")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "events_published_total")
}

func TestRequestIDEchoed(t *testing.T) {
	ts := setupTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "abc123", resp.Header.Get("X-Request-ID"))
}

func TestRequestIDGenerated(t *testing.T) {
	ts := setupTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	id := resp.Header.Get("X-Request-ID")
	assert.NotEmpty(t, id)
	assert.False(t, strings.ContainsAny(id, " \t"))
}
