package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/safehold-systems/safehold/internal/config"
	"github.com/safehold-systems/safehold/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running safe's state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Diagnostics address (defaults to server.addr from safehold.yaml)")
	return cmd
}

func runStatus(addr string) error {
	if addr == "" {
		cfg, err := config.Load(".")
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		addr = cfg.Server.Addr
	}

	url := statusURL(addr)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("reaching %s (is `safehold serve` running?): %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response %s from %s", resp.Status, url)
	}

	var st types.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decoding status: %w", err)
	}

	printStatus(st)
	return nil
}

func printStatus(st types.Status) {
	bold := color.New(color.Bold)
	_, _ = bold.Println("Safe Status:")
	fmt.Println()

	var stateStr string
	switch st.State {
	case types.StateLocked:
		stateStr = color.GreenString("LOCKED")
	case types.StateUnlocked:
		stateStr = color.YellowString("UNLOCKED")
	case types.StateAlarm:
		stateStr = color.RedString("ALARM")
	default:
		stateStr = string(st.State)
	}

	fmt.Printf("  State:           %s\n", stateStr)
	fmt.Printf("  Wrong attempts:  %d\n", st.WrongAttempts)
	fmt.Printf("  Entry length:    %d\n", st.EntryLength)
	fmt.Printf("  Sensitivity:     %d\n", st.Sensitivity)
	fmt.Printf("  Buffered events: %d\n", st.BufferedEvents)
	if st.Connected {
		fmt.Printf("  Broker:          %s\n", color.GreenString("connected ✓"))
	} else {
		fmt.Printf("  Broker:          %s\n", color.RedString("disconnected ✗"))
	}
	if st.LastEventID != "" {
		fmt.Printf("  Last event:      %s\n", st.LastEventID)
	}
	fmt.Printf("  Up since:        %s\n", st.StartedAt.Format(time.RFC3339))
	fmt.Println()
}
