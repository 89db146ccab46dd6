package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/epigate/pkg/audit"
	"mercator-hq/epigate/pkg/policy"
)

// failingStore is a policy.Store whose every call fails.
type failingStore struct{ err error }

func (f failingStore) Upsert(context.Context, policy.Policy) error { return f.err }
func (f failingStore) Lookup(context.Context, string) (policy.Policy, bool, error) {
	return policy.Policy{}, false, f.err
}
func (f failingStore) List(context.Context) ([]policy.Policy, error) { return nil, f.err }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := policy.NewMemoryStore()
	ctx := context.Background()
	for _, p := range []policy.Policy{
		{Sector: "HAVACILIK", Threshold: 0.5, Keyword: "basınç", Unit: "psi"},
		{Sector: "enerji", Threshold: 220, Keyword: "voltaj"},
		{Sector: "depth", Threshold: -10, Keyword: "depth", Unit: "m"},
	} {
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert(%s) error = %v", p.Sector, err)
		}
	}
	return NewEngine(store, NewDenylist([]string{"hack", "bypass"}))
}

func TestEngine_Verify(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name         string
		sector       string
		message      string
		wantOutcome  Outcome
		wantFeedback string
	}{
		{
			name:         "exceeds threshold",
			sector:       "HAVACILIK",
			message:      "Basınç 0.8 psi",
			wantOutcome:  OutcomeExceed,
			wantFeedback: "limit exceeded by 0.3 psi; maximum: 0.5 psi",
		},
		{
			name:         "within threshold",
			sector:       "HAVACILIK",
			message:      "Basınç 0.3 psi",
			wantOutcome:  OutcomeAdmit,
			wantFeedback: FeedbackAdmit,
		},
		{
			name:         "equal to threshold admits",
			sector:       "havacılık",
			message:      "basınç 0.5",
			wantOutcome:  OutcomeAdmit,
			wantFeedback: FeedbackAdmit,
		},
		{
			name:         "denylist first",
			sector:       "HAVACILIK",
			message:      "hack the system, basınç 0.1 psi",
			wantOutcome:  OutcomeDenylisted,
			wantFeedback: `message contains forbidden term "hack"`,
		},
		{
			name:         "denylist beats unknown sector",
			sector:       "NOPE",
			message:      "BYPASS",
			wantOutcome:  OutcomeDenylisted,
			wantFeedback: `message contains forbidden term "bypass"`,
		},
		{
			name:         "no number",
			sector:       "HAVACILIK",
			message:      "basınç var",
			wantOutcome:  OutcomeNoNumber,
			wantFeedback: FeedbackNoNumber,
		},
		{
			name:         "unknown sector",
			sector:       "DENIZCILIK",
			message:      "basınç 0.1",
			wantOutcome:  OutcomeNoPolicy,
			wantFeedback: FeedbackNoPolicy,
		},
		{
			name:         "missing keyword",
			sector:       "HAVACILIK",
			message:      "sıcaklık 0.1",
			wantOutcome:  OutcomeMissingKeyword,
			wantFeedback: `keyword "basınç" does not appear in the message`,
		},
		{
			name:         "half excess rounds to even",
			sector:       "HAVACILIK",
			message:      "basınç 0.625 psi",
			wantOutcome:  OutcomeExceed,
			wantFeedback: "limit exceeded by 0.12 psi; maximum: 0.5 psi",
		},
		{
			name:         "first number governs",
			sector:       "ENERJI",
			message:      "voltaj 230 then 100",
			wantOutcome:  OutcomeExceed,
			wantFeedback: "limit exceeded by 10; maximum: 220",
		},
		{
			name:         "negative threshold",
			sector:       "DEPTH",
			message:      "depth -12 m",
			wantOutcome:  OutcomeAdmit,
			wantFeedback: FeedbackAdmit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := e.Verify(context.Background(), tt.sector, tt.message)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if v.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %s, want %s", v.Outcome, tt.wantOutcome)
			}
			if v.Feedback != tt.wantFeedback {
				t.Errorf("Feedback = %q, want %q", v.Feedback, tt.wantFeedback)
			}
			if v.Decision != tt.wantOutcome.Decision() {
				t.Errorf("Decision = %s, want %s", v.Decision, tt.wantOutcome.Decision())
			}
		})
	}
}

func TestEngine_VerifyDetails(t *testing.T) {
	e := newTestEngine(t)

	v, err := e.Verify(context.Background(), " havacılık ", "Basınç 0.8 psi")
	if err != nil {
		t.Fatal(err)
	}
	if v.Sector != "HAVACILIK" {
		t.Errorf("Sector = %q", v.Sector)
	}
	if v.Value == nil || *v.Value != 0.8 {
		t.Errorf("Value = %v, want 0.8", v.Value)
	}
	if v.Excess == nil || *v.Excess != 0.3 {
		t.Errorf("Excess = %v, want 0.3", v.Excess)
	}
	if diff := cmp.Diff("psi", v.Policy.Unit); diff != "" {
		t.Errorf("Policy.Unit mismatch: %s", diff)
	}

	v, _ = e.Verify(context.Background(), "HAVACILIK", "hack")
	if v.Term != "hack" || v.Policy != nil {
		t.Errorf("denylisted verdict = %+v", v)
	}
}

func TestEngine_StoreFailure(t *testing.T) {
	boom := errors.New("disk gone")
	e := NewEngine(failingStore{err: boom}, nil)

	_, err := e.Verify(context.Background(), "X", "x 1")
	if !errors.Is(err, boom) {
		t.Errorf("Verify() error = %v, want %v", err, boom)
	}
}

func TestOutcome_Decision(t *testing.T) {
	for _, o := range []Outcome{OutcomeDenylisted, OutcomeNoPolicy, OutcomeMissingKeyword, OutcomeNoNumber, OutcomeExceed} {
		if o.Decision() != audit.DecisionBlocked {
			t.Errorf("%s.Decision() = %s", o, o.Decision())
		}
	}
	if OutcomeAdmit.Decision() != audit.DecisionSuccess {
		t.Error("ADMIT does not map to SUCCESS")
	}
}
