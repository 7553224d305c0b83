// Package commands implements the CLI subcommands for the safehold binary.
package commands

import (
	"log/slog"
	"os"
	"strings"

	"github.com/safehold-systems/safehold/pkg/types"
)

// buildLogger constructs the process logger from config. The returned
// LevelVar stays live so the config watcher can retune verbosity without
// a restart.
func buildLogger(cfg types.LoggingConfig) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h), level
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// statusURL turns a listen address like ":8093" into a client URL.
func statusURL(addr string) string {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + "/status"
}
