package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/safehold-systems/safehold/internal/config"
	"github.com/safehold-systems/safehold/internal/protocol"
	"github.com/safehold-systems/safehold/pkg/types"
)

const sendTimeout = 5 * time.Second

// NewSendCmd creates the send command.
func NewSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send [command] [value]",
		Short: "Publish a command to the safe",
		Long: `Publishes a command to the safe's command topic. Commands:

  lock                      lock an unlocked safe
  unlock                    unlock a locked safe
  reset-alarm               silence a raised alarm
  set-code [digits]         change the code
  set-sensitivity [value]   tune movement detection`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(args)
		},
	}
}

func runSend(args []string) error {
	command, err := parseSendArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	payload, err := protocol.EncodeCommand(command)
	if err != nil {
		return err
	}

	topic := protocol.CommandTopic(cfg.Device.Namespace, cfg.Device.ID)

	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + cfg.MQTT.Broker).
		SetClientID(fmt.Sprintf("%s-cli-%d", cfg.Device.ID, os.Getpid())).
		SetConnectTimeout(sendTimeout)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(sendTimeout) {
		return fmt.Errorf("connecting to broker %s: timed out", cfg.MQTT.Broker)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("connecting to broker %s: %w", cfg.MQTT.Broker, err)
	}
	defer client.Disconnect(250)

	pub := client.Publish(topic, 1, false, payload)
	if !pub.WaitTimeout(sendTimeout) {
		return fmt.Errorf("publishing to %s: timed out", topic)
	}
	if err := pub.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}

	color.Green("✓ %s sent to %s", command.Kind, topic)
	return nil
}

func parseSendArgs(args []string) (types.Command, error) {
	kind := types.CommandKind(strings.ReplaceAll(args[0], "-", "_"))
	switch kind {
	case types.CommandLock, types.CommandUnlock, types.CommandResetAlarm:
		if len(args) > 1 {
			return types.Command{}, fmt.Errorf("%s takes no value", args[0])
		}
		return types.Command{Kind: kind}, nil
	case types.CommandSetCode:
		if len(args) != 2 {
			return types.Command{}, fmt.Errorf("set-code requires a code argument")
		}
		return types.Command{Kind: kind, Code: args[1]}, nil
	case types.CommandSetSensitivity:
		if len(args) != 2 {
			return types.Command{}, fmt.Errorf("set-sensitivity requires a value argument")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return types.Command{}, fmt.Errorf("sensitivity must be an integer: %w", err)
		}
		return types.Command{Kind: kind, Sensitivity: v}, nil
	default:
		return types.Command{}, fmt.Errorf("unknown command %q", args[0])
	}
}
