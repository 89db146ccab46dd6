// Package config provides configuration management for the gate.
//
// Configuration is read from a YAML file, completed with defaults, overridden
// from the environment and validated before use.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// An empty path skips the file and starts from the defaults.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention EPIGATE_SECTION_FIELD:
//
//   - EPIGATE_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - EPIGATE_STORAGE_SQLITE_PATH overrides storage.sqlite.path
//   - EPIGATE_GATE_DENYLIST overrides gate.denylist (comma separated)
//   - EPIGATE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// Defaults are laid down before the file is decoded, so a boolean set to
// false in YAML stays false.
//
// There is no package-level configuration. Commands load a *Config once
// and pass the sections each component needs.
package config
