package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every environment override.
const envPrefix = "EPIGATE_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. An empty path yields the defaults. The environment is not
// consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	return load(path, false)
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies EPIGATE_SECTION_FIELD environment overrides on top.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, withEnv bool) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(cfg)

	if withEnv {
		if err := applyEnvOverrides(cfg); err != nil {
			return nil, fmt.Errorf("invalid environment override: %w", err)
		}
		// Overrides may enable sections whose defaults were skipped.
		ApplyDefaults(cfg)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. A malformed
// value is reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	e := &envReader{}

	// Server overrides
	e.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	e.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	e.duration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	e.duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	e.integer("SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)
	e.int64("SERVER_MAX_BODY_BYTES", &cfg.Server.MaxBodyBytes)
	e.boolean("SERVER_CORS_ENABLED", &cfg.Server.CORS.Enabled)
	e.list("SERVER_CORS_ALLOWED_ORIGINS", &cfg.Server.CORS.AllowedOrigins)

	// Gate overrides
	e.list("GATE_DENYLIST", &cfg.Gate.Denylist)
	e.str("GATE_RULES_FILE", &cfg.Gate.RulesFile)
	e.boolean("GATE_WATCH_RULES", &cfg.Gate.WatchRules)
	e.duration("GATE_WATCH_DEBOUNCE", &cfg.Gate.WatchDebounce)
	e.integer("GATE_RECENT_LIMIT", &cfg.Gate.RecentLimit)
	e.str("GATE_RULES_GIT_REPOSITORY", &cfg.Gate.RulesGit.Repository)
	e.str("GATE_RULES_GIT_BRANCH", &cfg.Gate.RulesGit.Branch)
	e.str("GATE_RULES_GIT_AUTH_TOKEN", &cfg.Gate.RulesGit.Auth.Token)

	// Storage overrides
	e.str("STORAGE_BACKEND", &cfg.Storage.Backend)
	e.str("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	e.str("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)
	e.integer("STORAGE_SQLITE_MAX_OPEN_CONNS", &cfg.Storage.SQLite.MaxOpenConns)
	e.integer("STORAGE_SQLITE_MAX_IDLE_CONNS", &cfg.Storage.SQLite.MaxIdleConns)
	e.boolean("STORAGE_SQLITE_WAL_MODE", &cfg.Storage.SQLite.WALMode)
	e.duration("STORAGE_SQLITE_BUSY_TIMEOUT", &cfg.Storage.SQLite.BusyTimeout)

	// Audit overrides. Set but empty disables the check.
	if val, ok := os.LookupEnv(envPrefix + "AUDIT_INTEGRITY_SCHEDULE"); ok {
		cfg.Audit.IntegritySchedule = strings.TrimSpace(val)
	}

	// Telemetry overrides
	e.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	e.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	e.boolean("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	e.boolean("TELEMETRY_LOGGING_REDACT_MESSAGES", &cfg.Telemetry.Logging.RedactMessages)
	e.boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	e.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	e.boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	e.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	e.boolean("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
	e.str("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	e.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)

	if len(e.errs) > 0 {
		return ValidationError{Errors: e.errs}
	}
	return nil
}

// envReader reads typed EPIGATE_* variables and collects parse failures.
type envReader struct {
	errs []FieldError
}

func (e *envReader) lookup(name string) (string, bool) {
	val := os.Getenv(envPrefix + name)
	return val, val != ""
}

func (e *envReader) fail(name, format string, args ...any) {
	e.errs = append(e.errs, FieldError{Field: envPrefix + name, Message: fmt.Sprintf(format, args...)})
}

func (e *envReader) str(name string, dst *string) {
	if val, ok := e.lookup(name); ok {
		*dst = val
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if val, ok := e.lookup(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			e.fail(name, "invalid duration %q", val)
			return
		}
		*dst = d
	}
}

func (e *envReader) integer(name string, dst *int) {
	if val, ok := e.lookup(name); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			e.fail(name, "invalid integer %q", val)
			return
		}
		*dst = i
	}
}

func (e *envReader) int64(name string, dst *int64) {
	if val, ok := e.lookup(name); ok {
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			e.fail(name, "invalid integer %q", val)
			return
		}
		*dst = i
	}
}

func (e *envReader) float(name string, dst *float64) {
	if val, ok := e.lookup(name); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			e.fail(name, "invalid number %q", val)
			return
		}
		*dst = f
	}
}

func (e *envReader) boolean(name string, dst *bool) {
	if val, ok := e.lookup(name); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			e.fail(name, "invalid boolean %q", val)
			return
		}
		*dst = b
	}
}

func (e *envReader) list(name string, dst *[]string) {
	if val, ok := e.lookup(name); ok {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
	}
}
