package gate

import (
	"strings"

	"mercator-hq/epigate/pkg/policy"
)

// Denylist is a fixed, ordered set of globally forbidden substrings. It is
// consulted before any sector policy and is immutable once built.
type Denylist struct {
	terms []string
}

// NewDenylist builds a Denylist from terms. Terms are folded to their
// canonical lower-case form; blanks and duplicates are dropped and the
// first-seen order is kept, so the reported term for a given message is
// always the same.
func NewDenylist(terms []string) *Denylist {
	seen := make(map[string]bool, len(terms))
	folded := make([]string, 0, len(terms))
	for _, t := range terms {
		f := policy.FoldText(strings.TrimSpace(t))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		folded = append(folded, f)
	}
	return &Denylist{terms: folded}
}

// Match returns the first denylist term contained in message, ignoring
// case.
func (d *Denylist) Match(message string) (string, bool) {
	return d.matchFolded(policy.FoldText(message))
}

func (d *Denylist) matchFolded(folded string) (string, bool) {
	if d == nil {
		return "", false
	}
	for _, term := range d.terms {
		if strings.Contains(folded, term) {
			return term, true
		}
	}
	return "", false
}

// Terms returns a copy of the canonical terms in scan order.
func (d *Denylist) Terms() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.terms))
	copy(out, d.terms)
	return out
}

// Len returns the number of terms.
func (d *Denylist) Len() int {
	if d == nil {
		return 0
	}
	return len(d.terms)
}
