package config

import (
	"fmt"
	"math"
	"net"
	"path/filepath"
	"strings"

	"mercator-hq/epigate/pkg/audit/scheduler"
	"mercator-hq/epigate/pkg/telemetry/logging"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration. All validation errors are
// collected and returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateGate(&cfg.Gate)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: fmt.Sprintf("must be host:port: %v", err)})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "max header bytes must be non-negative"})
	}
	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be positive"})
	}
	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "server.cors.max_age", Message: "max age must be non-negative"})
	}

	return errs
}

func validateGate(cfg *GateConfig) []FieldError {
	var errs []FieldError

	for i, term := range cfg.Denylist {
		if strings.TrimSpace(term) == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("gate.denylist[%d]", i), Message: "term must not be empty"})
		}
	}

	for i, r := range cfg.SeedRules {
		field := fmt.Sprintf("gate.seed_rules[%d]", i)
		if strings.TrimSpace(r.Sector) == "" {
			errs = append(errs, FieldError{Field: field + ".sector", Message: "sector is required"})
		}
		if strings.TrimSpace(r.Keyword) == "" {
			errs = append(errs, FieldError{Field: field + ".keyword", Message: "keyword is required"})
		}
		if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
			errs = append(errs, FieldError{Field: field + ".threshold", Message: "threshold must be a finite number"})
		}
	}

	if cfg.WatchRules && cfg.RulesFile == "" {
		errs = append(errs, FieldError{Field: "gate.watch_rules", Message: "watching requires gate.rules_file"})
	}
	if cfg.WatchDebounce < 0 {
		errs = append(errs, FieldError{Field: "gate.watch_debounce", Message: "debounce must be non-negative"})
	}
	if cfg.RecentLimit <= 0 {
		errs = append(errs, FieldError{Field: "gate.recent_limit", Message: "recent limit must be positive"})
	}

	if cfg.RulesGit.Repository != "" {
		errs = append(errs, validateRulesGit(cfg)...)
	}

	return errs
}

func validateRulesGit(cfg *GateConfig) []FieldError {
	var errs []FieldError
	git := &cfg.RulesGit

	if cfg.RulesFile != "" {
		errs = append(errs, FieldError{Field: "gate.rules_git.repository", Message: "cannot be combined with gate.rules_file"})
	}
	if git.Branch == "" {
		errs = append(errs, FieldError{Field: "gate.rules_git.branch", Message: "branch is required"})
	}
	if git.File == "" || filepath.IsAbs(git.File) || strings.HasPrefix(filepath.Clean(git.File), "..") {
		errs = append(errs, FieldError{Field: "gate.rules_git.file", Message: "must be a relative path inside the repository"})
	}
	if git.LocalPath == "" {
		errs = append(errs, FieldError{Field: "gate.rules_git.local_path", Message: "local path is required"})
	}
	if git.PollInterval < 0 {
		errs = append(errs, FieldError{Field: "gate.rules_git.poll_interval", Message: "must be non-negative"})
	}
	if git.Timeout < 0 {
		errs = append(errs, FieldError{Field: "gate.rules_git.timeout", Message: "must be non-negative"})
	}

	switch git.Auth.Type {
	case "none", "":
	case "token":
		if git.Auth.Token == "" {
			errs = append(errs, FieldError{Field: "gate.rules_git.auth.token", Message: "token auth requires a token"})
		}
	case "ssh":
		if git.Auth.SSHKeyPath == "" {
			errs = append(errs, FieldError{Field: "gate.rules_git.auth.ssh_key_path", Message: "ssh auth requires a key path"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "gate.rules_git.auth.type",
			Message: fmt.Sprintf("unknown auth type %q (want none, token or ssh)", git.Auth.Type),
		})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "path is required"})
		}
		switch cfg.SQLite.Driver {
		case "sqlite", "sqlite3":
		default:
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("unsupported driver %q (want sqlite or sqlite3)", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "must be non-negative"})
		}
		if cfg.SQLite.MaxIdleConns < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_idle_conns", Message: "must be non-negative"})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.busy_timeout", Message: "must be non-negative"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unsupported backend %q (want sqlite or memory)", cfg.Backend),
		})
	}

	return errs
}

func validateAudit(cfg *AuditConfig) []FieldError {
	if err := scheduler.ValidateSchedule(cfg.IntegritySchedule); err != nil {
		return []FieldError{{Field: "audit.integrity_schedule", Message: err.Error()}}
	}
	return nil
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: err.Error()})
	}
	if _, err := logging.ParseFormat(cfg.Logging.Format); err != nil {
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: err.Error()})
	}

	if cfg.Metrics.Enabled {
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
		}
		for i := 1; i < len(cfg.Metrics.DurationBuckets); i++ {
			if cfg.Metrics.DurationBuckets[i] <= cfg.Metrics.DurationBuckets[i-1] {
				errs = append(errs, FieldError{Field: "telemetry.metrics.duration_buckets", Message: "buckets must be strictly increasing"})
				break
			}
		}
		if cfg.Metrics.MaxSectors < 0 {
			errs = append(errs, FieldError{Field: "telemetry.metrics.max_sectors", Message: "must be non-negative"})
		}
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Exporter != "otlp" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.exporter",
				Message: fmt.Sprintf("unsupported exporter %q (want otlp)", cfg.Tracing.Exporter),
			})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "endpoint is required"})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never":
		case "ratio":
			if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
				errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0 and 1"})
			}
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("unknown sampler %q (want always, never or ratio)", cfg.Tracing.Sampler),
			})
		}
	}

	return errs
}
