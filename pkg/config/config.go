package config

import "time"

// Config is the root configuration structure.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Gate contains the denylist, seed rules and rules file settings.
	Gate GateConfig `yaml:"gate"`

	// Storage selects and configures the persistence backend.
	Storage StorageConfig `yaml:"storage"`

	// Audit contains audit ledger settings.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:5000"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	// Default: 15s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits request body size for form and JSON endpoints.
	// Default: 65536 (64KB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are sent.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists allowed origins. ["*"] allows all.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists allowed methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists allowed request headers.
	// Default: ["Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// ExposedHeaders lists headers readable by the client.
	// Default: ["X-Request-ID"]
	ExposedHeaders []string `yaml:"exposed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// GateConfig configures the verification gate.
type GateConfig struct {
	// Denylist lists globally forbidden terms, matched case-insensitively.
	Denylist []string `yaml:"denylist"`

	// SeedRules are stored at startup for sectors that have no rule yet.
	SeedRules []RuleConfig `yaml:"seed_rules"`

	// RulesFile is an optional YAML file of rules upserted at startup.
	RulesFile string `yaml:"rules_file"`

	// WatchRules reloads RulesFile when it changes.
	// Default: false
	WatchRules bool `yaml:"watch_rules"`

	// WatchDebounce coalesces bursts of file events.
	// Default: 250ms
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// RecentLimit is the number of audit records shown on the dashboard.
	// Default: 20
	RecentLimit int `yaml:"recent_limit"`

	// RulesGit sources the rules file from a Git repository. It is
	// mutually exclusive with RulesFile.
	RulesGit GitRulesConfig `yaml:"rules_git"`
}

// GitRulesConfig configures a Git repository holding a rules file.
type GitRulesConfig struct {
	// Repository is the clone URL. Empty disables Git rules.
	Repository string `yaml:"repository"`

	// Branch is the branch to track.
	// Default: "main"
	Branch string `yaml:"branch"`

	// File is the rules file path inside the repository.
	// Default: "rules.yaml"
	File string `yaml:"file"`

	// LocalPath is where the repository is cloned.
	// Default: "data/rules-repo"
	LocalPath string `yaml:"local_path"`

	// PollInterval is how often the branch is pulled. Zero disables polling
	// after the initial clone.
	// Default: 1m
	PollInterval time.Duration `yaml:"poll_interval"`

	// Timeout bounds each clone or pull.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// Auth selects repository credentials.
	Auth GitAuthConfig `yaml:"auth"`
}

// GitAuthConfig contains Git credentials.
type GitAuthConfig struct {
	// Type is "none", "token" or "ssh".
	// Default: "none"
	Type string `yaml:"type"`

	// Token is an HTTPS access token for Type "token".
	Token string `yaml:"token"`

	// SSHKeyPath is a private key file for Type "ssh".
	SSHKeyPath string `yaml:"ssh_key_path"`

	// SSHKeyPassphrase decrypts SSHKeyPath when it is encrypted.
	SSHKeyPassphrase string `yaml:"ssh_key_passphrase"`
}

// RuleConfig is one rule in configuration.
type RuleConfig struct {
	Sector    string  `yaml:"sector"`
	Threshold float64 `yaml:"threshold"`
	Keyword   string  `yaml:"keyword"`
	Unit      string  `yaml:"unit"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite configures the SQLite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite settings.
type SQLiteConfig struct {
	// Path is the database file, or ":memory:".
	// Default: "data/epigate.db"
	Path string `yaml:"path"`

	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// MaxOpenConns bounds open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns bounds idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long a connection waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// AuditConfig contains audit ledger settings.
type AuditConfig struct {
	// IntegritySchedule is a cron expression for the ledger integrity
	// check. Empty disables it.
	// Default: "*/15 * * * *"
	IntegritySchedule string `yaml:"integrity_schedule"`
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactMessages hides submitted message text in debug logs.
	// Default: false
	RedactMessages bool `yaml:"redact_messages"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path of the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "epigate"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "gate"
	Subsystem string `yaml:"subsystem"`

	// DurationBuckets are histogram buckets for evaluation time (seconds).
	// Default: [0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25]
	DurationBuckets []float64 `yaml:"duration_buckets"`

	// MaxSectors caps distinct sector label values; further sectors are
	// reported as "other".
	// Default: 1000
	MaxSectors int `yaml:"max_sectors"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Exporter is the span exporter. Only "otlp" (gRPC) is supported.
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Sampler is "always", "never" or "ratio".
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction sampled by the "ratio" sampler.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as service.name.
	// Default: "epigate"
	ServiceName string `yaml:"service_name"`
}
