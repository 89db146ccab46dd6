// Package metrics exposes gate activity as Prometheus metrics.
//
// Metrics (namespace and subsystem from configuration, "epigate_gate_" by
// default):
//
//   - evaluations_total{sector,decision,outcome}
//   - evaluation_duration_seconds{decision}
//   - rule_definitions_total{sector}
//   - audit_counter{counter}: last observed TOTAL, PASS and BLOCK
//   - storage_errors_total{operation}
//   - integrity_checks_total{result}: ok, violation or error
//   - integrity_last_check_timestamp_seconds
//   - http_requests_total{route,method,code}
//   - http_request_duration_seconds{route}
//
// Sector labels are capped by MaxSectors; sectors without a policy are
// reported as "unknown" and sectors past the cap as "other".
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	g := gate.New(backend, backend, denylist, gate.WithObserver(collector))
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
package metrics
