package policy

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Policy is the rule governing one sector.
type Policy struct {
	// Sector is the upper-case sector name. It is the primary key.
	Sector string `json:"sector" yaml:"sector"`

	// Threshold is the maximum admissible value extracted from a message.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// Keyword is the lower-case term that must appear in a message.
	Keyword string `json:"keyword" yaml:"keyword"`

	// Unit is a display label such as "psi". It plays no part in comparison.
	Unit string `json:"unit,omitempty" yaml:"unit,omitempty"`

	// UpdatedAt is set by the store on every upsert.
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Store is the source of truth for sector policies.
type Store interface {
	// Upsert normalizes p and stores it, replacing any policy for the same
	// sector. It returns an InvalidInputError for a malformed policy.
	Upsert(ctx context.Context, p Policy) error

	// Lookup returns the policy for sector. The sector is normalized before
	// the lookup, so the match is case-insensitive. A missing policy is
	// reported with ok == false and a nil error.
	Lookup(ctx context.Context, sector string) (p Policy, ok bool, err error)

	// List returns every policy ordered by sector name.
	List(ctx context.Context) ([]Policy, error)
}

// NormalizeSector returns the canonical sector key.
func NormalizeSector(sector string) string {
	return cases.Upper(language.Und).String(norm.NFC.String(strings.TrimSpace(sector)))
}

// NormalizeKeyword returns the canonical keyword form.
func NormalizeKeyword(keyword string) string {
	return FoldText(strings.TrimSpace(keyword))
}

// FoldText lower-cases s for substring matching. Messages, keywords and
// denylist terms all go through it so that composed and decomposed input
// compare equal.
func FoldText(s string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}

// Normalize returns p in canonical form, or an InvalidInputError when the
// sector or keyword is empty or the threshold is not a finite number.
func Normalize(p Policy) (Policy, error) {
	p.Sector = NormalizeSector(p.Sector)
	p.Keyword = NormalizeKeyword(p.Keyword)
	p.Unit = strings.TrimSpace(p.Unit)

	if p.Sector == "" {
		return Policy{}, invalid("sector", "sector is required")
	}
	if p.Keyword == "" {
		return Policy{}, invalid("keyword", "keyword is required")
	}
	if math.IsNaN(p.Threshold) || math.IsInf(p.Threshold, 0) {
		return Policy{}, invalid("threshold", "threshold must be a finite number")
	}
	return p, nil
}

// ParseThreshold parses operator input such as a form field into a
// threshold value.
func ParseThreshold(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, invalid("threshold", "threshold is required")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, invalid("threshold", "%q is not a number", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid("threshold", "threshold must be a finite number")
	}
	return v, nil
}

// FormatNumber renders v without trailing zeros, e.g. 0.5 or 12.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
