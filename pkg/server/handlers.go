package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mercator-hq/epigate/pkg/audit"
	"mercator-hq/epigate/pkg/gate"
	"mercator-hq/epigate/pkg/policy"
	"mercator-hq/epigate/pkg/server/middleware"
	"mercator-hq/epigate/pkg/telemetry/logging"
)

// VerifyRequest is the body of POST /verify. The sektor and mesaj keys are
// accepted as aliases for older clients.
type VerifyRequest struct {
	Sector  string `json:"sector"`
	Message string `json:"message"`
	Sektor  string `json:"sektor,omitempty"`
	Mesaj   string `json:"mesaj,omitempty"`
}

// VerifyResponse is the body returned by POST /verify. Status repeats
// Decision for older clients.
type VerifyResponse struct {
	Decision string `json:"decision"`
	Status   string `json:"status"`
	Feedback string `json:"feedback"`
	Outcome  string `json:"outcome"`
	Sector   string `json:"sector"`
	RecordID int64  `json:"record_id"`
}

// RuleRequest is the body of POST /api/v1/rules. Threshold may be a JSON
// number or a numeric string.
type RuleRequest struct {
	Sector    string          `json:"sector"`
	Threshold json.RawMessage `json:"threshold"`
	Keyword   string          `json:"keyword"`
	Unit      string          `json:"unit,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.opts.Gate.Evaluate(r.Context(), firstNonEmpty(req.Sector, req.Sektor), firstNonEmpty(req.Message, req.Mesaj))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, VerifyResponse{
		Decision: string(res.Decision),
		Status:   string(res.Decision),
		Feedback: res.Feedback,
		Outcome:  string(res.Outcome),
		Sector:   res.Sector,
		RecordID: res.RecordID,
	})
}

func (s *Server) handleDefineRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	threshold, err := parseRawThreshold(req.Threshold)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.opts.Gate.DefineRule(r.Context(), gate.Rule{
		Sector:    req.Sector,
		Threshold: threshold,
		Keyword:   req.Keyword,
		Unit:      req.Unit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	d, err := s.opts.Gate.DashboardData(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Policies)
}

func (s *Server) handleDashboardJSON(w http.ResponseWriter, r *http.Request) {
	d, err := s.opts.Gate.DashboardData(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleAddRule serves the dashboard's add-rule form and redirects back
// with a notice.
func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, err)
		return
	}

	threshold, err := policy.ParseThreshold(formValue(r, "threshold", "limit"))
	if err == nil {
		var p policy.Policy
		p, err = s.opts.Gate.DefineRule(r.Context(), gate.Rule{
			Sector:    formValue(r, "sector", "sektor"),
			Threshold: threshold,
			Keyword:   formValue(r, "keyword", "anahtar"),
			Unit:      formValue(r, "unit", "birim"),
		})
		if err == nil {
			redirectWithNotice(w, r, noticeSuccess, fmt.Sprintf("Rule saved for %s.", p.Sector))
			return
		}
	}

	var invalid *gate.InvalidInputError
	if errors.As(err, &invalid) {
		redirectWithNotice(w, r, noticeError, "Rule rejected: "+invalid.Error())
		return
	}
	s.writeError(w, r, err)
}

// handleTestVerify runs the quick-test form through the gate in process
// and redirects back with the verdict.
func (s *Server) handleTestVerify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.opts.Gate.Evaluate(r.Context(), formValue(r, "sector", "sektor"), formValue(r, "message", "mesaj"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	level := noticeError
	if res.Decision == audit.DecisionSuccess {
		level = noticeSuccess
	}
	redirectWithNotice(w, r, level, fmt.Sprintf("%s: %s", res.Decision, res.Feedback))
}

// writeError maps err to a status code and a JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := middleware.ErrorResponse{
		Error:     err.Error(),
		RequestID: logging.GetRequestID(r.Context()),
	}

	var (
		invalid  *gate.InvalidInputError
		tooLarge *http.MaxBytesError
		syntax   *json.SyntaxError
		typeErr  *json.UnmarshalTypeError
		code     int
	)
	switch {
	case errors.As(err, &invalid):
		code = http.StatusBadRequest
		resp.Field = invalid.Field
	case errors.As(err, &tooLarge):
		code = http.StatusRequestEntityTooLarge
		resp.Error = "request body too large"
	case errors.As(err, &syntax), errors.As(err, &typeErr), errors.Is(err, errMalformedBody):
		code = http.StatusBadRequest
	case errors.Is(err, gate.ErrStorageUnavailable):
		code = http.StatusServiceUnavailable
		resp.Error = "storage unavailable"
	default:
		code = http.StatusInternalServerError
		resp.Error = "internal error"
		s.logger.ErrorContext(r.Context(), "request failed",
			"request_id", resp.RequestID,
			"path", r.URL.Path,
			"error", err,
		)
	}

	writeJSON(w, code, resp)
}

var errMalformedBody = errors.New("malformed request body")

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errMalformedBody)
	}
	return nil
}

// parseRawThreshold accepts 0.5, "0.5" and rejects null or a missing value.
func parseRawThreshold(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return policy.ParseThreshold("")
	}
	s := string(raw)
	if raw[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return policy.ParseThreshold(s)
		}
		s = unquoted
	}
	return policy.ParseThreshold(s)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func formValue(r *http.Request, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(r.PostFormValue(n)); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func redirectWithNotice(w http.ResponseWriter, r *http.Request, level, text string) {
	q := url.Values{}
	q.Set("notice", text)
	q.Set("level", level)
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}
