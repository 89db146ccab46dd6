package gate

import (
	"context"
	"fmt"
	"math"
	"strings"

	"mercator-hq/epigate/pkg/audit"
	"mercator-hq/epigate/pkg/policy"
)

// Outcome is the terminal state a verification ends in.
type Outcome string

const (
	OutcomeAdmit          Outcome = "ADMIT"
	OutcomeDenylisted     Outcome = "BLOCKED_BY_DENYLIST"
	OutcomeNoPolicy       Outcome = "NO_POLICY"
	OutcomeMissingKeyword Outcome = "MISSING_KEYWORD"
	OutcomeNoNumber       Outcome = "NO_NUMBER"
	OutcomeExceed         Outcome = "EXCEED"
)

// Decision maps the outcome to SUCCESS or BLOCKED.
func (o Outcome) Decision() audit.Decision {
	if o == OutcomeAdmit {
		return audit.DecisionSuccess
	}
	return audit.DecisionBlocked
}

// Feedback texts for outcomes that carry no parameters.
const (
	FeedbackAdmit    = "safe passage approved"
	FeedbackNoPolicy = "no policy defined for this sector"
	FeedbackNoNumber = "no numeric value found"
)

// Verdict is the structured result of Engine.Verify.
type Verdict struct {
	Decision audit.Decision `json:"decision"`
	Outcome  Outcome        `json:"outcome"`
	Feedback string         `json:"feedback"`

	// Sector is the normalized sector name.
	Sector string `json:"sector"`

	// Term is the matched denylist term for OutcomeDenylisted.
	Term string `json:"term,omitempty"`

	// Policy is the policy that was applied, if one was found.
	Policy *policy.Policy `json:"policy,omitempty"`

	// Value is the extracted number, once one was found.
	Value *float64 `json:"value,omitempty"`

	// Excess is Value - Threshold rounded to two decimals, for OutcomeExceed.
	Excess *float64 `json:"excess,omitempty"`
}

// Engine decides whether a message is admitted for a sector. It holds no
// mutable state of its own; recording the verdict is the caller's job.
type Engine struct {
	policies policy.Store
	denylist *Denylist
}

// NewEngine creates an Engine. A nil denylist blocks nothing.
func NewEngine(policies policy.Store, denylist *Denylist) *Engine {
	if denylist == nil {
		denylist = NewDenylist(nil)
	}
	return &Engine{policies: policies, denylist: denylist}
}

// Denylist returns the engine's denylist.
func (e *Engine) Denylist() *Denylist {
	return e.denylist
}

// Verify runs the checks in order: denylist, policy lookup, keyword,
// number extraction, threshold. The first failing check decides. The only
// error returned is a policy store failure.
func (e *Engine) Verify(ctx context.Context, sector, message string) (Verdict, error) {
	folded := policy.FoldText(message)
	v := Verdict{Sector: policy.NormalizeSector(sector)}

	if term, hit := e.denylist.matchFolded(folded); hit {
		v.Term = term
		return v.finish(OutcomeDenylisted, fmt.Sprintf("message contains forbidden term %q", term)), nil
	}

	p, ok, err := e.policies.Lookup(ctx, v.Sector)
	if err != nil {
		return Verdict{}, err
	}
	if !ok {
		return v.finish(OutcomeNoPolicy, FeedbackNoPolicy), nil
	}
	v.Policy = &p

	if !strings.Contains(folded, p.Keyword) {
		return v.finish(OutcomeMissingKeyword, fmt.Sprintf("keyword %q does not appear in the message", p.Keyword)), nil
	}

	value, found := FirstNumber(folded)
	if !found {
		return v.finish(OutcomeNoNumber, FeedbackNoNumber), nil
	}
	v.Value = &value

	if value <= p.Threshold {
		return v.finish(OutcomeAdmit, FeedbackAdmit), nil
	}

	excess := roundTo2(value - p.Threshold)
	v.Excess = &excess
	return v.finish(OutcomeExceed, fmt.Sprintf("limit exceeded by %s; maximum: %s",
		withUnit(excess, p.Unit), withUnit(p.Threshold, p.Unit))), nil
}

func (v Verdict) finish(o Outcome, feedback string) Verdict {
	v.Outcome = o
	v.Decision = o.Decision()
	v.Feedback = feedback
	return v
}

// roundTo2 rounds to two decimals, halves to even.
func roundTo2(x float64) float64 {
	if math.IsInf(x, 0) {
		return x
	}
	return math.RoundToEven(x*100) / 100
}

func withUnit(v float64, unit string) string {
	if unit == "" {
		return policy.FormatNumber(v)
	}
	return policy.FormatNumber(v) + " " + unit
}
