package audit

import (
	"context"
	"time"
)

// Decision is the binary outcome of a verification.
type Decision string

const (
	// DecisionSuccess means the message was admitted.
	DecisionSuccess Decision = "SUCCESS"
	// DecisionBlocked means the message was blocked.
	DecisionBlocked Decision = "BLOCKED"
)

// Valid reports whether d is one of the two known decisions.
func (d Decision) Valid() bool {
	return d == DecisionSuccess || d == DecisionBlocked
}

// Counter names as persisted in the counters table.
const (
	CounterTotal = "TOTAL"
	CounterPass  = "PASS"
	CounterBlock = "BLOCK"
)

// Entry is what a caller hands to Ledger.Record.
type Entry struct {
	// RequestID correlates the entry with the request that produced it.
	RequestID string

	// Sector is the sector name as submitted, normalized.
	Sector string

	// Message is the original message text, casing preserved.
	Message string

	Decision Decision

	// Outcome is the terminal verification state, e.g. "EXCEED".
	Outcome string

	Feedback string
}

// Record is an immutable, persisted audit entry.
type Record struct {
	// ID increases monotonically with insertion order.
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Sector    string    `json:"sector"`
	Message   string    `json:"message"`
	Decision  Decision  `json:"decision"`
	Outcome   string    `json:"outcome,omitempty"`
	Feedback  string    `json:"feedback"`
}

// Counters is a snapshot of the running totals.
type Counters struct {
	Total int64 `json:"TOTAL"`
	Pass  int64 `json:"PASS"`
	Block int64 `json:"BLOCK"`
}

// Consistent reports whether Total == Pass + Block.
func (c Counters) Consistent() bool {
	return c.Total == c.Pass+c.Block
}

// IntegrityReport is the result of Ledger.Verify.
type IntegrityReport struct {
	Counters  Counters  `json:"counters"`
	Records   int64     `json:"records"`
	CheckedAt time.Time `json:"checked_at"`
}

// OK reports whether the counters agree with each other and with the number
// of stored records.
func (r IntegrityReport) OK() bool {
	return r.Counters.Consistent() && r.Counters.Total == r.Records
}

// Ledger is the append-only audit trail plus its counters.
type Ledger interface {
	// Record appends an entry and bumps TOTAL and exactly one of PASS or
	// BLOCK as a single atomic unit. On error nothing is recorded.
	Record(ctx context.Context, e Entry) (Record, error)

	// Recent returns up to n records, most recent first.
	Recent(ctx context.Context, n int) ([]Record, error)

	// Counters returns the current counter snapshot.
	Counters(ctx context.Context) (Counters, error)

	// Verify checks the counter invariant against the stored records.
	Verify(ctx context.Context) (IntegrityReport, error)
}
