// Package storage provides the persistence backends of the gate.
//
// Every backend implements both policy.Store and audit.Ledger, because
// recording a verdict must update the audit log and the counters together.
//
//   - SQLite: one database file with three tables (policies, counters,
//     audit_log). Record runs the audit insert and the counter increments in
//     a single transaction.
//   - Memory: the same contract under one mutex, for tests and throwaway
//     deployments.
//
// # SQLite Drivers
//
// Two drivers are registered and selected by SQLiteConfig.Driver:
//
//   - "sqlite" (modernc.org/sqlite): pure Go, the default
//   - "sqlite3" (github.com/mattn/go-sqlite3): requires cgo
//
// Both see the same schema. Timestamps are stored as RFC 3339 text so the
// drivers' differing time conversions never come into play.
//
// # Basic Usage
//
//	backend, err := storage.Open("sqlite", &storage.SQLiteConfig{
//	    Path:        "data/epigate.db",
//	    WALMode:     true,
//	    BusyTimeout: 5 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// # Thread Safety
//
// Backends are safe for concurrent use. Writers are serialized inside the
// process; with WAL mode readers never wait for them.
package storage
