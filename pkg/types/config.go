package types

// Config is the parsed safehold.yaml project configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Pin      PinConfig      `yaml:"pin"`
	Motion   MotionConfig   `yaml:"motion"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig identifies this device and selects the driver set.
type DeviceConfig struct {
	Namespace  string `yaml:"namespace"`  // topic namespace, e.g. "smartsafe"
	ID         string `yaml:"id"`         // device id, e.g. "smartsafe01"
	Simulation bool   `yaml:"simulation"` // simulated keypad/sensor/display drivers
}

// MQTTConfig configures the telemetry transport.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // host:port
	ClientID string `yaml:"clientId,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// PinConfig configures code provisioning.
type PinConfig struct {
	Default string `yaml:"default"` // adopted and persisted on first boot
}

// MotionConfig tunes the movement detector.
type MotionConfig struct {
	Sensitivity    int    `yaml:"sensitivity"`
	SampleInterval string `yaml:"sampleInterval,omitempty"` // e.g. "50ms"
}

// DeliveryConfig sizes the telemetry delivery buffer.
type DeliveryConfig struct {
	RingCapacity int `yaml:"ringCapacity"`
}

// StorageConfig selects and locates the persistence backend.
type StorageConfig struct {
	Driver StorageDriver `yaml:"driver"` // sqlite | memory
	Path   string        `yaml:"path,omitempty"`
}

// ServerConfig configures the diagnostics HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the slog handler built at startup.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}
