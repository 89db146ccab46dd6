package server

import (
	"net/http"

	"mercator-hq/epigate/pkg/server/middleware"
	"mercator-hq/epigate/pkg/telemetry/health"
	"mercator-hq/epigate/pkg/telemetry/tracing"
)

// Route patterns. They double as metric and span labels.
const (
	RouteDashboard     = "GET /{$}"
	RouteAddRule       = "POST /add_rule"
	RouteTestVerify    = "POST /test_verify"
	RouteVerify        = "POST /verify"
	RouteAPIRules      = "POST /api/v1/rules"
	RouteAPIRulesList  = "GET /api/v1/rules"
	RouteAPIDashboard  = "GET /api/v1/dashboard"
	RouteHealth        = "GET /health"
	RouteReady         = "GET /ready"
	RouteVersion       = "GET /version"
	defaultMetricsPath = "/metrics"
)

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	s.handle(mux, RouteDashboard, http.HandlerFunc(s.handleDashboard))
	s.handle(mux, RouteAddRule, http.HandlerFunc(s.handleAddRule))
	s.handle(mux, RouteTestVerify, http.HandlerFunc(s.handleTestVerify))
	s.handle(mux, RouteVerify, http.HandlerFunc(s.handleVerify))
	s.handle(mux, RouteAPIRules, http.HandlerFunc(s.handleDefineRule))
	s.handle(mux, RouteAPIRulesList, http.HandlerFunc(s.handleListRules))
	s.handle(mux, RouteAPIDashboard, http.HandlerFunc(s.handleDashboardJSON))

	s.handle(mux, RouteHealth, s.opts.Health.LivenessHandler())
	s.handle(mux, RouteReady, s.opts.Health.ReadinessHandler())
	b := s.opts.Build
	s.handle(mux, RouteVersion, health.VersionHandler(b.Version, b.Commit, b.BuildTime))

	if s.opts.Metrics != nil {
		path := s.opts.MetricsPath
		if path == "" {
			path = defaultMetricsPath
		}
		mux.Handle("GET "+path, s.opts.Metrics.Handler())
	}

	return mux
}

// handle registers h under pattern with tracing and request metrics.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	if s.opts.Metrics != nil {
		h = middleware.MetricsMiddleware(pattern, s.opts.Metrics)(h)
	}
	mux.Handle(pattern, tracing.HTTPMiddleware(pattern, h))
}
