// Package pin owns the authoritative safe code: format validation,
// constant-time verification, and persisted mutation.
package pin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/safehold-systems/safehold/internal/store"
)

const (
	// Length is the required code length in digits.
	Length = 4
	// MaxLength bounds keypad entry assembly, leaving room for longer codes.
	MaxLength = 8

	storeKey = "safe.pin"
)

// ErrInvalidCode is returned by Set for a code that fails Validate.
var ErrInvalidCode = errors.New("code must be exactly 4 ASCII digits")

// Validate reports whether code is exactly Length ASCII digits.
func Validate(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// Manager holds the active code behind a lock shared by verification and
// mutation, so a concurrent Verify sees either the old or the new code,
// never a partial write.
type Manager struct {
	mu     sync.Mutex
	code   []byte
	store  store.Store
	logger *slog.Logger
}

// NewManager loads the persisted code, adopting and persisting defaultCode
// when no record exists yet. An unusable store is a boot-time failure: the
// caller must not run without a working persistence collaborator.
func NewManager(ctx context.Context, st store.Store, defaultCode string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !Validate(defaultCode) {
		return nil, fmt.Errorf("default %w", ErrInvalidCode)
	}

	m := &Manager{store: st, logger: logger}

	stored, found, err := st.Load(ctx, storeKey)
	if err != nil {
		return nil, fmt.Errorf("loading code record: %w", err)
	}
	if found && Validate(string(stored)) {
		m.code = stored
		return m, nil
	}
	if found {
		logger.Warn("stored code record is malformed, reprovisioning")
	}

	// First boot (or corrupt record): persist the default before trusting it.
	if err := st.Put(ctx, storeKey, []byte(defaultCode)); err != nil {
		return nil, fmt.Errorf("provisioning code record: %w", err)
	}
	m.code = []byte(defaultCode)
	m.logger.Info("code record provisioned")
	return m, nil
}

// Verify reports whether candidate matches the active code. The comparison
// is constant-time over the code bytes: it examines every byte regardless of
// where the first mismatch sits, so response latency does not reveal which
// digit is wrong. Format failures are rejected up front; the format is not
// a secret.
func (m *Manager) Verify(candidate string) bool {
	if !Validate(candidate) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return subtle.ConstantTimeCompare(m.code, []byte(candidate)) == 1
}

// Set validates newCode, persists it, and only on persistence success
// commits it to memory, all under one lock, so the change is atomic from
// the perspective of any concurrent Verify. A failed Put leaves the old
// code active.
func (m *Manager) Set(ctx context.Context, newCode string) error {
	if !Validate(newCode) {
		return ErrInvalidCode
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Put(ctx, storeKey, []byte(newCode)); err != nil {
		return fmt.Errorf("persisting code: %w", err)
	}
	m.code = []byte(newCode)
	m.logger.Info("safe code updated")
	return nil
}
