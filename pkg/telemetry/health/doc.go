// Package health serves liveness, readiness and version endpoints.
//
// Liveness (/health) only says the process is up. Readiness (/ready) runs
// every registered check concurrently, each under its own timeout, and
// answers 503 when any fails. The gate registers a "storage" check that
// pings the backend.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("storage", backend.Ping)
//	mux.HandleFunc("GET /health", checker.LivenessHandler())
//	mux.HandleFunc("GET /ready", checker.ReadinessHandler())
package health
