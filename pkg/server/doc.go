// Package server exposes the gate over HTTP.
//
// Routes:
//
//	GET  /                   HTML dashboard (counters, rules, recent decisions)
//	POST /add_rule           dashboard form; defines a rule, redirects with a notice
//	POST /test_verify        dashboard form; evaluates in process, redirects with the verdict
//	POST /verify             JSON {"sector","message"} -> {"decision","feedback","outcome",...}
//	POST /api/v1/rules       JSON rule definition
//	GET  /api/v1/rules       JSON list of rules
//	GET  /api/v1/dashboard   JSON dashboard snapshot
//	GET  /health, /ready     liveness and readiness
//	GET  /version            build information
//	GET  /metrics            Prometheus metrics, when enabled
//
// Error responses are JSON bodies of the form {"error": "...", "field": "..."}.
// Invalid rules answer 400, oversized bodies 413 and storage failures 503.
// Domain outcomes such as an unknown sector are never errors; /verify answers
// 200 with decision BLOCKED.
//
// The dashboard is rendered with html/template from gate.Dashboard, so all
// user-supplied text (messages, sectors, keywords) is escaped.
package server
