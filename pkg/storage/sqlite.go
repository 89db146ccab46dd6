package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"
	_ "modernc.org/sqlite"          // registers "sqlite"

	"mercator-hq/epigate/pkg/audit"
	"mercator-hq/epigate/pkg/policy"
)

// SQLite driver names.
const (
	// DriverCGO is github.com/mattn/go-sqlite3. It needs cgo.
	DriverCGO = "sqlite3"

	// DriverPureGo is modernc.org/sqlite.
	DriverPureGo = "sqlite"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path, or ":memory:".
	Path string

	// Driver selects the database/sql driver: DriverPureGo or DriverCGO.
	// Default: DriverPureGo
	Driver string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10 (forced to 1 for ":memory:")
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables write-ahead logging so dashboard reads do not wait on
	// evaluations.
	WALMode bool

	// BusyTimeout is how long a connection waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/epigate.db",
		Driver:       DriverPureGo,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage stores policies, counters and the audit log in one SQLite
// database. It implements both policy.Store and audit.Ledger.
type SQLiteStorage struct {
	db     *sql.DB
	config SQLiteConfig
	logger *slog.Logger
	now    func() time.Time

	// writeMu serializes writers inside the process so they queue here
	// instead of contending for the SQLite write lock.
	writeMu sync.Mutex
}

var (
	_ policy.Store = (*SQLiteStorage)(nil)
	_ audit.Ledger = (*SQLiteStorage)(nil)
)

// NewSQLiteStorage opens the database, applies pragmas and creates the
// schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	cfg := *DefaultSQLiteConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Path == "" {
		return nil, newError("sqlite", "open", errors.New("database path is required"))
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverPureGo
	}
	if cfg.Driver != DriverPureGo && cfg.Driver != DriverCGO {
		return nil, newError("sqlite", "open", fmt.Errorf("unknown driver %q", cfg.Driver))
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if isMemoryPath(cfg.Path) {
		// Every connection to ":memory:" is a separate database.
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.WALMode = false
	}

	logger := slog.Default().With("component", "storage.sqlite")

	if !isMemoryPath(cfg.Path) {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, newError("sqlite", "open", err)
			}
		}
	}

	db, err := sql.Open(cfg.Driver, dsn(cfg))
	if err != nil {
		return nil, newError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}

	if err := s.initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"wal_mode", cfg.WALMode,
		"max_open_conns", cfg.MaxOpenConns,
	)
	return s, nil
}

// dsn builds a connection string that applies busy_timeout and journal mode
// on every pooled connection. The two drivers spell pragmas differently.
func dsn(cfg SQLiteConfig) string {
	busy := cfg.BusyTimeout.Milliseconds()
	if isMemoryPath(cfg.Path) {
		return cfg.Path
	}

	switch cfg.Driver {
	case DriverCGO:
		q := fmt.Sprintf("_busy_timeout=%d", busy)
		if cfg.WALMode {
			q += "&_journal_mode=WAL"
		}
		return "file:" + cfg.Path + "?" + q
	default:
		q := fmt.Sprintf("_pragma=busy_timeout(%d)", busy)
		if cfg.WALMode {
			q += "&_pragma=journal_mode(WAL)"
		}
		return "file:" + cfg.Path + "?" + q
	}
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

func (s *SQLiteStorage) initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return newError("sqlite", "create_schema", err)
	}
	if _, err := s.db.ExecContext(ctx, insertSchemaVersion, SchemaVersion); err != nil {
		return newError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, getSchemaVersion).Scan(&version); err != nil {
		return newError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return newError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Upsert implements policy.Store. The insert-or-replace is one statement,
// so readers see either the old or the new policy.
func (s *SQLiteStorage) Upsert(ctx context.Context, p policy.Policy) error {
	p, err := policy.Normalize(p)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx, upsertPolicy,
		p.Sector, p.Threshold, p.Keyword, p.Unit, formatTime(s.now()))
	if err != nil {
		return newError("sqlite", "upsert", err)
	}
	return nil
}

// Lookup implements policy.Store.
func (s *SQLiteStorage) Lookup(ctx context.Context, sector string) (policy.Policy, bool, error) {
	row := s.db.QueryRowContext(ctx, selectPolicy, policy.NormalizeSector(sector))
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.Policy{}, false, nil
	}
	if err != nil {
		return policy.Policy{}, false, newError("sqlite", "lookup", err)
	}
	return p, true, nil
}

// List implements policy.Store.
func (s *SQLiteStorage) List(ctx context.Context) ([]policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, selectPolicies)
	if err != nil {
		return nil, newError("sqlite", "list", err)
	}
	defer rows.Close()

	policies := []policy.Policy{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, newError("sqlite", "list", err)
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, newError("sqlite", "list", err)
	}
	return policies, nil
}

// Record implements audit.Ledger. The audit insert and both counter
// increments commit in one transaction.
func (s *SQLiteStorage) Record(ctx context.Context, e audit.Entry) (audit.Record, error) {
	if !e.Decision.Valid() {
		return audit.Record{}, newError("sqlite", "record", fmt.Errorf("invalid decision %q", e.Decision))
	}

	rec := audit.Record{
		RequestID: e.RequestID,
		Timestamp: s.now().UTC(),
		Sector:    e.Sector,
		Message:   e.Message,
		Decision:  e.Decision,
		Outcome:   e.Outcome,
		Feedback:  e.Feedback,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return audit.Record{}, newError("sqlite", "record", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertAudit,
		rec.RequestID, formatTime(rec.Timestamp), rec.Sector, rec.Message,
		string(rec.Decision), rec.Outcome, rec.Feedback)
	if err != nil {
		return audit.Record{}, newError("sqlite", "record", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return audit.Record{}, newError("sqlite", "record", err)
	}

	res, err = tx.ExecContext(ctx, bumpCounters, audit.CounterTotal, decisionCounter(rec.Decision))
	if err != nil {
		return audit.Record{}, newError("sqlite", "record", err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 2 {
		if err == nil {
			err = fmt.Errorf("expected 2 counter rows updated, got %d", n)
		}
		return audit.Record{}, newError("sqlite", "record", err)
	}

	if err := tx.Commit(); err != nil {
		return audit.Record{}, newError("sqlite", "record", err)
	}
	return rec, nil
}

// Recent implements audit.Ledger.
func (s *SQLiteStorage) Recent(ctx context.Context, n int) ([]audit.Record, error) {
	records := []audit.Record{}
	if n <= 0 {
		return records, nil
	}

	rows, err := s.db.QueryContext(ctx, selectRecent, n)
	if err != nil {
		return nil, newError("sqlite", "recent", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec audit.Record
		var ts, decision string
		if err := rows.Scan(&rec.ID, &rec.RequestID, &ts, &rec.Sector, &rec.Message,
			&decision, &rec.Outcome, &rec.Feedback); err != nil {
			return nil, newError("sqlite", "recent", err)
		}
		if rec.Timestamp, err = parseTime(ts); err != nil {
			return nil, newError("sqlite", "recent", err)
		}
		rec.Decision = audit.Decision(decision)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, newError("sqlite", "recent", err)
	}
	return records, nil
}

// Counters implements audit.Ledger.
func (s *SQLiteStorage) Counters(ctx context.Context) (audit.Counters, error) {
	c, err := readCounters(ctx, s.db)
	if err != nil {
		return audit.Counters{}, newError("sqlite", "counters", err)
	}
	return c, nil
}

// Verify implements audit.Ledger. Counters and the record count are read
// in one transaction so they describe the same snapshot.
func (s *SQLiteStorage) Verify(ctx context.Context) (audit.IntegrityReport, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return audit.IntegrityReport{}, newError("sqlite", "verify", err)
	}
	defer tx.Rollback()

	c, err := readCounters(ctx, tx)
	if err != nil {
		return audit.IntegrityReport{}, newError("sqlite", "verify", err)
	}
	var records int64
	if err := tx.QueryRowContext(ctx, countAudit).Scan(&records); err != nil {
		return audit.IntegrityReport{}, newError("sqlite", "verify", err)
	}

	return audit.IntegrityReport{
		Counters:  c,
		Records:   records,
		CheckedAt: s.now().UTC(),
	}, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return newError("sqlite", "ping", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return newError("sqlite", "close", err)
	}
	s.logger.Info("SQLite storage closed")
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func readCounters(ctx context.Context, q queryer) (audit.Counters, error) {
	rows, err := q.QueryContext(ctx, selectCounter)
	if err != nil {
		return audit.Counters{}, err
	}
	defer rows.Close()

	var c audit.Counters
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return audit.Counters{}, err
		}
		switch name {
		case audit.CounterTotal:
			c.Total = value
		case audit.CounterPass:
			c.Pass = value
		case audit.CounterBlock:
			c.Block = value
		}
	}
	return c, rows.Err()
}

func scanPolicy(row scanner) (policy.Policy, error) {
	var p policy.Policy
	var updated string
	if err := row.Scan(&p.Sector, &p.Threshold, &p.Keyword, &p.Unit, &updated); err != nil {
		return policy.Policy{}, err
	}
	t, err := parseTime(updated)
	if err != nil {
		return policy.Policy{}, err
	}
	p.UpdatedAt = t
	return p, nil
}

func decisionCounter(d audit.Decision) string {
	if d == audit.DecisionSuccess {
		return audit.CounterPass
	}
	return audit.CounterBlock
}

// Timestamps are stored as RFC 3339 text so both drivers read them back the
// same way.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
