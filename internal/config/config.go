// Package config loads and validates the safehold.yaml project file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/safehold-systems/safehold/internal/motion"
	"github.com/safehold-systems/safehold/internal/pin"
	"github.com/safehold-systems/safehold/internal/telemetry"
	"github.com/safehold-systems/safehold/pkg/types"
)

// FileName is the configuration file looked up in the project directory.
const FileName = "safehold.yaml"

// Load reads safehold.yaml from dir, fills in defaults and validates the
// result. Fields left empty in the file keep their defaults, so a minimal
// config only needs the broker address.
func Load(dir string) (*types.Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *types.Config) {
	if cfg.Device.Namespace == "" {
		cfg.Device.Namespace = "smartsafe"
	}
	if cfg.Device.ID == "" {
		cfg.Device.ID = "smartsafe01"
	}
	if cfg.Pin.Default == "" {
		cfg.Pin.Default = "1234"
	}
	if cfg.Motion.Sensitivity == 0 {
		cfg.Motion.Sensitivity = motion.DefaultSensitivity
	}
	if cfg.Motion.SampleInterval == "" {
		cfg.Motion.SampleInterval = "50ms"
	}
	if cfg.Delivery.RingCapacity == 0 {
		cfg.Delivery.RingCapacity = telemetry.DefaultRingCapacity
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = types.StorageSQLite
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8093"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

func validate(cfg *types.Config) error {
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if !pin.Validate(cfg.Pin.Default) {
		return fmt.Errorf("pin.default must be exactly %d digits", pin.Length)
	}
	switch cfg.Storage.Driver {
	case types.StorageSQLite, types.StorageMemory:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q",
			types.StorageSQLite, types.StorageMemory, cfg.Storage.Driver)
	}
	if d, err := time.ParseDuration(cfg.Motion.SampleInterval); err != nil || d <= 0 {
		return fmt.Errorf("motion.sampleInterval %q is not a positive duration", cfg.Motion.SampleInterval)
	}
	if cfg.Delivery.RingCapacity < 0 {
		return fmt.Errorf("delivery.ringCapacity must not be negative")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	return nil
}
