package storage

import (
	"context"
	"fmt"

	"mercator-hq/epigate/pkg/audit"
	"mercator-hq/epigate/pkg/policy"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Backend is a combined policy store and audit ledger.
type Backend interface {
	policy.Store
	audit.Ledger

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the backend.
	Close() error
}

// Open creates the backend named by kind. sqliteCfg is only used for
// BackendSQLite.
func Open(kind string, sqliteCfg *SQLiteConfig) (Backend, error) {
	switch kind {
	case BackendSQLite, "":
		return NewSQLiteStorage(sqliteCfg)
	case BackendMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, newError(kind, "open", fmt.Errorf("unsupported backend %q", kind))
	}
}
