package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/safehold-systems/safehold/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "safehold",
		Short: "Smart safe controller with MQTT telemetry",
		Long: `Safehold runs the control core of a connected safe: a keypad-driven
lock state machine with movement detection, a persisted code and
at-least-once MQTT telemetry. Commands arrive over the same broker,
so a safe can be locked, unlocked and re-tuned remotely.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewServeCmd(),
		commands.NewStatusCmd(),
		commands.NewSendCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
