package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"log/slog"

	"github.com/safehold-systems/safehold/internal/bus"
	"github.com/safehold-systems/safehold/internal/config"
	"github.com/safehold-systems/safehold/internal/control"
	"github.com/safehold-systems/safehold/internal/driver"
	"github.com/safehold-systems/safehold/internal/metrics"
	"github.com/safehold-systems/safehold/internal/motion"
	"github.com/safehold-systems/safehold/internal/pin"
	"github.com/safehold-systems/safehold/internal/protocol"
	"github.com/safehold-systems/safehold/internal/server"
	"github.com/safehold-systems/safehold/internal/store"
	"github.com/safehold-systems/safehold/internal/telemetry"
	"github.com/safehold-systems/safehold/pkg/types"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the safe controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, level := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	if !cfg.Device.Simulation {
		return fmt.Errorf("hardware drivers are not part of this build: set device.simulation: true")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence and code management
	st, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = st.Close() }()

	pins, err := pin.NewManager(ctx, st, cfg.Pin.Default, logger)
	if err != nil {
		return fmt.Errorf("loading pin code: %w", err)
	}

	// Control core
	detector := motion.NewDetector(cfg.Motion.Sensitivity, logger)
	ch := control.NewChannels(logger)
	ctrl := control.New(pins, detector, ch, logger)

	// Telemetry
	transport := telemetry.NewMQTT(cfg.MQTT, cfg.Device, logger)
	transport.SetCommandHandler(func(payload []byte) {
		cmd, err := protocol.ParseCommand(payload)
		if err != nil {
			metrics.CommandsRejected.Add(1)
			logger.Warn("dropping malformed command", "error", err)
			return
		}
		ch.Commands.Send(cmd)
	})

	pub := telemetry.NewPublisher(transport, ch.Events,
		telemetry.Options{RingCapacity: cfg.Delivery.RingCapacity}, logger)

	// Simulated peripherals
	arb := bus.NewArbiter(bus.DefaultWait, logger)
	interval, _ := time.ParseDuration(cfg.Motion.SampleInterval)

	keypad := driver.NewKeypad(driver.NewSimKeypad(), ch.Keys, logger)
	accel := driver.NewAccelerometer(driver.NewSimSensor(), arb, detector, ch.Detections, interval, logger)
	display := driver.NewDisplay(driver.NewSimDisplay(logger), arb, ch.Display, logger)
	led := driver.NewLED(driver.NewSimLED(), ch.Leds, logger)

	// Diagnostics server
	started := time.Now()
	srv := server.New(cfg.Server.Addr, func() types.Status {
		snap := ctrl.Snapshot()
		return types.Status{
			State:          snap.State,
			WrongAttempts:  snap.WrongAttempts,
			Sensitivity:    detector.Sensitivity(),
			EntryLength:    snap.EntryLength,
			BufferedEvents: pub.Buffered(),
			Connected:      transport.Connected(),
			LastEventID:    snap.LastEventID,
			StartedAt:      started,
		}
	}, logger)

	// Hot reload for the live-tunable settings
	watcher := config.NewWatcher(".", func(next *types.Config) {
		detector.SetSensitivity(next.Motion.Sensitivity)
		level.Set(parseLevel(next.Logging.Level))
	}, logger)

	ctrl.Start(ctx)
	pub.Start(ctx)
	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("starting mqtt transport: %w", err)
	}
	keypad.Start(ctx)
	accel.Start(ctx)
	display.Start(ctx)
	led.Start(ctx)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config hot reload disabled", "error", err)
		watcher = nil
	}

	logger.Info("safe controller running",
		"device", cfg.Device.ID,
		"state", ctrl.Snapshot().State,
		"broker", cfg.MQTT.Broker)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("diagnostics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		color.Yellow("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if watcher != nil {
			watcher.Stop(shutdownCtx)
		}

		// Input sources first, then the control loop, then the output
		// side so buffered telemetry gets a final flush attempt.
		keypad.Stop(shutdownCtx)
		accel.Stop(shutdownCtx)
		ctrl.Stop(shutdownCtx)
		display.Stop(shutdownCtx)
		led.Stop(shutdownCtx)
		pub.Stop(shutdownCtx)
		transport.Stop(shutdownCtx)

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	color.Green("Safe controller stopped gracefully")
	return nil
}
