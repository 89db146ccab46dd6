// Package tracing sets up OpenTelemetry tracing.
//
// When telemetry.tracing.enabled is false the global tracer provider stays
// a no-op and spans cost next to nothing. When enabled, spans are batched
// to an OTLP gRPC collector and W3C trace context is read from incoming
// requests.
//
// Spans produced by the gate:
//
//   - "HTTP <route>" for every served request (HTTPMiddleware)
//   - "gate.Evaluate" and "gate.DefineRule" with sector, decision and
//     outcome attributes
//
// # Usage
//
//	provider, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer provider.Shutdown(context.Background())
package tracing
