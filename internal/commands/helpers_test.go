package commands

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safehold-systems/safehold/internal/config"
	"github.com/safehold-systems/safehold/pkg/types"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestStatusURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8093/status", statusURL(":8093"))
	assert.Equal(t, "http://safe.local:9000/status", statusURL("safe.local:9000"))
}

func TestParseSendArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    types.Command
		wantErr bool
	}{
		{"lock", []string{"lock"}, types.Command{Kind: types.CommandLock}, false},
		{"unlock", []string{"unlock"}, types.Command{Kind: types.CommandUnlock}, false},
		{"reset alarm", []string{"reset-alarm"}, types.Command{Kind: types.CommandResetAlarm}, false},
		{"set code", []string{"set-code", "4321"}, types.Command{Kind: types.CommandSetCode, Code: "4321"}, false},
		{"set sensitivity", []string{"set-sensitivity", "25000"}, types.Command{Kind: types.CommandSetSensitivity, Sensitivity: 25000}, false},
		{"lock with value", []string{"lock", "now"}, types.Command{}, true},
		{"set code without value", []string{"set-code"}, types.Command{}, true},
		{"set sensitivity non-numeric", []string{"set-sensitivity", "high"}, types.Command{}, true},
		{"unknown", []string{"open-sesame"}, types.Command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSendArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitScaffoldsLoadableConfig(t *testing.T) {
	project := filepath.Join(t.TempDir(), "vaultproj")

	require.NoError(t, runInit(project, "localhost:1883", true))

	cfg, err := config.Load(project)
	require.NoError(t, err)
	assert.Equal(t, "localhost:1883", cfg.MQTT.Broker)
	assert.True(t, cfg.Device.Simulation)
	assert.Equal(t, types.StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "1234", cfg.Pin.Default)
}
