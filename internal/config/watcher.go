package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/safehold-systems/safehold/internal/metrics"
	"github.com/safehold-systems/safehold/pkg/types"
)

// debounce coalesces the burst of fs events an editor emits per save.
const debounce = 200 * time.Millisecond

// Watcher reloads safehold.yaml whenever it changes on disk and hands each
// successfully parsed configuration to the onLoad callback. The callback
// applies the live-tunable fields (movement sensitivity, log level) and
// ignores the rest; everything else is picked up on the next start.
type Watcher struct {
	dir    string
	onLoad func(*types.Config)
	logger *slog.Logger

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for the config file in dir.
func NewWatcher(dir string, onLoad func(*types.Config), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, onLoad: onLoad, logger: logger}
}

// Start begins watching. It watches the directory rather than the file so
// that editors which replace the file on save keep being observed.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("watching config", "path", filepath.Join(w.dir, FileName))
	return nil
}

// Stop halts the watcher, waiting for the loop to exit or ctx to expire.
func (w *Watcher) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	if w.fsw != nil {
		w.fsw.Close()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("config watcher stop timed out")
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != FileName {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			pending = time.After(debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.dir)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous settings", "error", err)
		return
	}
	metrics.ConfigReloads.Add(1)
	w.logger.Info("config reloaded")
	w.onLoad(cfg)
}
