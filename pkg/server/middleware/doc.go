// Package middleware provides the HTTP middleware chain used by the gate
// server.
//
// The chain, from outermost to innermost, is:
//
//	RecoveryMiddleware -> LoggingMiddleware -> RequestIDMiddleware ->
//	CORSMiddleware -> BodyLimitMiddleware -> mux
//
// Per-route instrumentation (MetricsMiddleware and tracing) is applied by
// the server when routes are registered, so that route labels stay bounded.
//
// Request IDs are stored with logging.WithRequestID so the gate, the audit
// ledger and the logs all see the same value.
package middleware
