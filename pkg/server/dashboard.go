package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"mercator-hq/epigate/pkg/gate"
	"mercator-hq/epigate/pkg/policy"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	noticeSuccess = "success"
	noticeError   = "error"
)

type dashboardView struct {
	gate.Dashboard
	Notice      string
	NoticeLevel string
	Version     string
}

func parseDashboard() (*template.Template, error) {
	return template.New("dashboard.html").Funcs(template.FuncMap{
		"number": policy.FormatNumber,
		"timestamp": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04:05")
		},
	}).ParseFS(templateFS, "templates/dashboard.html")
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.opts.Gate.DashboardData(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	view := dashboardView{
		Dashboard: d,
		Notice:    r.URL.Query().Get("notice"),
		Version:   s.opts.Build.Version,
	}
	if view.Notice != "" {
		view.NoticeLevel = noticeSuccess
		if r.URL.Query().Get("level") == noticeError {
			view.NoticeLevel = noticeError
		}
	}

	var buf bytes.Buffer
	if err := s.dashboard.Execute(&buf, view); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
