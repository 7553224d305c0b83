// Package protocol implements the JSON wire protocol spoken over the
// telemetry and command topics: one object per message, lowercase tags,
// wall-clock unix seconds in ts.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/safehold-systems/safehold/pkg/types"
)

// TelemetryTopic returns the outbound topic for a device.
func TelemetryTopic(namespace, deviceID string) string {
	return fmt.Sprintf("%s/%s/telemetry", namespace, deviceID)
}

// CommandTopic returns the inbound topic for a device.
func CommandTopic(namespace, deviceID string) string {
	return fmt.Sprintf("%s/%s/command", namespace, deviceID)
}

// telemetry is the wire shape of one outbound message. movement_amount and
// code_ok are pointers so that the kinds that do not carry them omit the
// field entirely while code_ok:false still serializes.
type telemetry struct {
	TS             int64           `json:"ts"`
	State          types.SafeState `json:"state"`
	Event          types.EventKind `json:"event"`
	MovementAmount *float64        `json:"movement_amount,omitempty"`
	CodeOK         *bool           `json:"code_ok,omitempty"`
}

// EncodeEvent renders ev as one wire object.
func EncodeEvent(ev types.Event) ([]byte, error) {
	msg := telemetry{
		TS:    ev.At.Unix(),
		State: ev.State,
		Event: ev.Kind,
	}

	switch ev.Kind {
	case types.EventStateChange:
		// No extra fields.
	case types.EventMovement:
		amount := ev.MovementAmount
		msg.MovementAmount = &amount
	case types.EventCodeEntry, types.EventCodeChanged:
		ok := ev.CodeOK
		msg.CodeOK = &ok
	default:
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	return json.Marshal(msg)
}

// commandEnvelope is the wire shape of one inbound command.
type commandEnvelope struct {
	Command     string  `json:"command"`
	Code        *string `json:"code,omitempty"`
	Sensitivity *int    `json:"sensitivity,omitempty"`
}

// EncodeCommand renders cmd as one wire object, the inverse of
// ParseCommand. The operator CLI uses it to publish commands.
func EncodeCommand(cmd types.Command) ([]byte, error) {
	env := commandEnvelope{Command: string(cmd.Kind)}
	switch cmd.Kind {
	case types.CommandLock, types.CommandUnlock, types.CommandResetAlarm:
	case types.CommandSetCode:
		code := cmd.Code
		env.Code = &code
	case types.CommandSetSensitivity:
		sens := cmd.Sensitivity
		env.Sensitivity = &sens
	default:
		return nil, fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
	return json.Marshal(env)
}

// ParseCommand decodes and validates one inbound command object. A parse
// failure is a local validation error: the caller logs it and drops the
// message; it never reaches the control loop.
//
// set_code carries its code through unexamined: code format is the PIN
// manager's call, and a bad code has to surface as a negative code_changed
// event rather than vanish here.
func ParseCommand(data []byte) (types.Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return types.Command{}, fmt.Errorf("malformed command json: %w", err)
	}

	switch types.CommandKind(env.Command) {
	case types.CommandLock:
		return types.Command{Kind: types.CommandLock}, nil
	case types.CommandUnlock:
		return types.Command{Kind: types.CommandUnlock}, nil
	case types.CommandResetAlarm:
		return types.Command{Kind: types.CommandResetAlarm}, nil
	case types.CommandSetCode:
		if env.Code == nil {
			return types.Command{}, fmt.Errorf("set_code: missing code field")
		}
		return types.Command{Kind: types.CommandSetCode, Code: *env.Code}, nil
	case types.CommandSetSensitivity:
		if env.Sensitivity == nil {
			return types.Command{}, fmt.Errorf("set_sensitivity: missing sensitivity field")
		}
		return types.Command{Kind: types.CommandSetSensitivity, Sensitivity: *env.Sensitivity}, nil
	case "":
		return types.Command{}, fmt.Errorf("missing command field")
	default:
		return types.Command{}, fmt.Errorf("unknown command %q", env.Command)
	}
}
