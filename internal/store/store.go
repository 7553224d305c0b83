// Package store defines the durable key-value settings store backing the PIN
// record. Backends are deliberately tiny: the safe persists a handful of
// small values and reads them back at boot.
package store

import (
	"context"
	"fmt"

	"github.com/safehold-systems/safehold/pkg/types"
)

// Store is the persistence interface consumed by the core.
type Store interface {
	// Load returns the stored value for key, with found=false when the key
	// has never been written.
	Load(ctx context.Context, key string) (value []byte, found bool, err error)

	// Put durably writes value under key. A Put that returns nil must
	// survive a process restart.
	Put(ctx context.Context, key string, value []byte) error

	Close() error
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg types.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case types.StorageMemory:
		return NewMemory(), nil
	case types.StorageSQLite:
		return OpenSQLite(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
