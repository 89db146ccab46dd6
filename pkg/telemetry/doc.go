// Package telemetry groups the observability packages of the gate.
//
//   - logging: slog construction and request-scoped fields
//   - metrics: Prometheus collector for evaluations, rules and HTTP traffic
//   - tracing: OpenTelemetry tracer provider and HTTP span middleware
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
//	provider, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer provider.Shutdown(ctx)
//
// The message text of an evaluation is never attached to metrics or spans.
// It reaches the logs only at debug level, and not at all when
// logging.redact_messages is set.
package telemetry
