// Package types defines the public domain types for the safehold safe controller.
package types

// SafeState represents the lock state of the safe.
type SafeState string

// SafeState values enumerate the three lock states. The wire protocol carries
// them verbatim in the telemetry "state" field.
const (
	StateLocked   SafeState = "locked"
	StateUnlocked SafeState = "unlocked"
	StateAlarm    SafeState = "alarm"
)

// EventKind classifies outbound telemetry events.
type EventKind string

// EventKind values enumerate the telemetry event categories.
const (
	EventStateChange EventKind = "state_change"
	EventMovement    EventKind = "movement"
	EventCodeEntry   EventKind = "code_entry"
	EventCodeChanged EventKind = "code_changed"
)

// CommandKind classifies inbound operator commands.
type CommandKind string

// CommandKind values enumerate the remote commands the safe accepts.
const (
	CommandLock           CommandKind = "lock"
	CommandUnlock         CommandKind = "unlock"
	CommandResetAlarm     CommandKind = "reset_alarm"
	CommandSetCode        CommandKind = "set_code"
	CommandSetSensitivity CommandKind = "set_sensitivity"
)

// StorageDriver selects the persistence backend.
type StorageDriver string

const (
	StorageSQLite StorageDriver = "sqlite"
	StorageMemory StorageDriver = "memory"
)
