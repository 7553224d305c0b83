package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/safehold-systems/safehold/internal/config"
)

const initBrokerTimeout = 60 * time.Second

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var skipBroker bool
	var broker string

	cmd := &cobra.Command{
		Use:   "init [project-name]",
		Short: "Initialize a new Safehold project",
		Long:  "Creates project scaffolding and optionally starts a local Mosquitto broker container.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0], broker, skipBroker)
		},
	}

	cmd.Flags().BoolVar(&skipBroker, "skip-broker", false, "Skip starting the Mosquitto container")
	cmd.Flags().StringVar(&broker, "broker", "localhost:1883", "MQTT broker address written to the config")
	return cmd
}

func runInit(projectName, broker string, skipBroker bool) error {
	bold := color.New(color.Bold)

	_, _ = bold.Printf("Initializing Safehold project: %s\n", projectName)

	dataDir := filepath.Join(projectName, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dataDir, err)
	}

	configPath := filepath.Join(projectName, config.FileName)
	configContent := fmt.Sprintf(`device:
  namespace: smartsafe
  id: smartsafe01
  simulation: true
mqtt:
  broker: %s
pin:
  default: "1234"
motion:
  sensitivity: 20000
  sampleInterval: 50ms
delivery:
  ringCapacity: 64
storage:
  driver: sqlite
  path: ./data/safehold.db
server:
  addr: ":8093"
logging:
  level: info
  format: text
`, broker)
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	color.Green("  ✓ Project scaffolded")

	if !skipBroker {
		if err := startMosquitto(); err != nil {
			color.Yellow("  ⚠ Broker setup skipped: %v", err)
			color.Yellow("    Run manually: docker run -d --name safehold-mosquitto -p 1883:1883 eclipse-mosquitto:2 mosquitto -c /mosquitto-no-auth.conf")
		} else {
			color.Green("  ✓ Mosquitto container started")
		}
	} else {
		color.Yellow("  → Broker setup skipped (--skip-broker)")
	}

	fmt.Println()
	_, _ = bold.Println("Next steps:")
	fmt.Printf("  cd %s\n", projectName)
	fmt.Println("  safehold serve")
	fmt.Println("  safehold status")
	fmt.Println("  safehold send unlock")
	return nil
}

func startMosquitto() error {
	// Check Docker availability
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker not found in PATH")
	}

	// Check if container already exists
	checkCmd := exec.Command("docker", "inspect", "safehold-mosquitto")
	if checkCmd.Run() == nil {
		// Container exists, try starting it
		startCmd := exec.Command("docker", "start", "safehold-mosquitto")
		if err := startCmd.Run(); err != nil {
			return fmt.Errorf("starting existing container: %w", err)
		}
		return nil
	}

	// Create and start new container. The no-auth config ships with the
	// image and opens the listener on all interfaces for local use.
	ctx, cancel := context.WithTimeout(context.Background(), initBrokerTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", "run", "-d",
		"--name", "safehold-mosquitto",
		"-p", "1883:1883",
		"eclipse-mosquitto:2",
		"mosquitto", "-c", "/mosquitto-no-auth.conf",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}
