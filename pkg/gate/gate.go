package gate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/epigate/pkg/audit"
	"mercator-hq/epigate/pkg/policy"
	"mercator-hq/epigate/pkg/telemetry/logging"
	"mercator-hq/epigate/pkg/telemetry/tracing"
)

// DefaultRecentLimit is the number of audit records in DashboardData.
const DefaultRecentLimit = 20

// Observer receives gate events. The Prometheus collector in
// pkg/telemetry/metrics implements it.
type Observer interface {
	ObserveEvaluation(sector string, v Verdict, elapsed time.Duration)
	ObserveRuleDefined(sector string)
	ObserveCounters(c audit.Counters)
	ObserveStorageError(operation string)
}

// Rule is the input of DefineRule.
type Rule struct {
	Sector    string  `json:"sector"`
	Threshold float64 `json:"threshold"`
	Keyword   string  `json:"keyword"`
	Unit      string  `json:"unit,omitempty"`
}

// Result is what Evaluate returns to the presentation layer.
type Result struct {
	Decision audit.Decision `json:"decision"`
	Feedback string         `json:"feedback"`
	Outcome  Outcome        `json:"outcome"`
	Sector   string         `json:"sector"`
	RecordID int64          `json:"record_id"`
}

// Dashboard is a read-only snapshot for display.
type Dashboard struct {
	Counters audit.Counters  `json:"counters"`
	Policies []policy.Policy `json:"policies"`
	Recent   []audit.Record  `json:"recent"`
	Denylist []string        `json:"denylist"`
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(g *Gate) { g.observer = o }
}

// WithRecentLimit sets how many audit records DashboardData returns.
func WithRecentLimit(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.recentLimit = n
		}
	}
}

// Gate is the boundary the HTTP layer and the CLI call into. It runs the
// Engine and records every verdict in the Ledger.
type Gate struct {
	engine      *Engine
	policies    policy.Store
	ledger      audit.Ledger
	observer    Observer
	logger      *slog.Logger
	tracer      trace.Tracer
	recentLimit int
	now         func() time.Time
}

// New creates a Gate over the given stores.
func New(policies policy.Store, ledger audit.Ledger, denylist *Denylist, opts ...Option) *Gate {
	g := &Gate{
		engine:      NewEngine(policies, denylist),
		policies:    policies,
		ledger:      ledger,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracing.InstrumentationName),
		recentLimit: DefaultRecentLimit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "gate")
	return g
}

// Engine returns the underlying verification engine.
func (g *Gate) Engine() *Engine {
	return g.engine
}

// DefineRule validates and stores a rule, replacing any existing rule for
// the sector. It returns an InvalidInputError for an empty sector or
// keyword or a non-finite threshold, and a StorageUnavailableError when the
// store fails.
func (g *Gate) DefineRule(ctx context.Context, r Rule) (_ policy.Policy, err error) {
	ctx, span := g.tracer.Start(ctx, "gate.DefineRule")
	defer func() { tracing.End(span, err) }()

	p, err := policy.Normalize(policy.Policy{
		Sector:    r.Sector,
		Threshold: r.Threshold,
		Keyword:   r.Keyword,
		Unit:      r.Unit,
	})
	if err != nil {
		return policy.Policy{}, err
	}

	if err := g.policies.Upsert(ctx, p); err != nil {
		if errors.Is(err, policy.ErrInvalidInput) {
			return policy.Policy{}, err
		}
		g.storageFailed(ctx, "upsert", err)
		return policy.Policy{}, storageUnavailable("upsert", err)
	}

	span.SetAttributes(attribute.String("gate.sector", p.Sector))
	if g.observer != nil {
		g.observer.ObserveRuleDefined(p.Sector)
	}
	g.logger.InfoContext(ctx, "rule defined",
		"request_id", logging.GetRequestID(ctx),
		"sector", p.Sector,
		"threshold", p.Threshold,
		"keyword", p.Keyword,
		"unit", p.Unit,
	)
	return p, nil
}

// Evaluate verifies message against sector and records the verdict. Domain
// outcomes, including an unknown sector, come back as a BLOCKED Result.
// Only storage failures are returned as errors, and then nothing is
// recorded.
func (g *Gate) Evaluate(ctx context.Context, sector, message string) (_ Result, err error) {
	ctx, span := g.tracer.Start(ctx, "gate.Evaluate")
	defer func() { tracing.End(span, err) }()

	start := g.now()
	requestID := logging.GetRequestID(ctx)

	v, err := g.engine.Verify(ctx, sector, message)
	if err != nil {
		g.storageFailed(ctx, "lookup", err)
		return Result{}, storageUnavailable("lookup", err)
	}

	rec, err := g.ledger.Record(ctx, audit.Entry{
		RequestID: requestID,
		Sector:    v.Sector,
		Message:   message,
		Decision:  v.Decision,
		Outcome:   string(v.Outcome),
		Feedback:  v.Feedback,
	})
	if err != nil {
		g.storageFailed(ctx, "record", err)
		return Result{}, storageUnavailable("record", err)
	}

	span.SetAttributes(
		attribute.String("gate.sector", v.Sector),
		attribute.String("gate.decision", string(v.Decision)),
		attribute.String("gate.outcome", string(v.Outcome)),
		attribute.Int64("gate.record_id", rec.ID),
	)

	elapsed := g.now().Sub(start)
	if g.observer != nil {
		g.observer.ObserveEvaluation(v.Sector, v, elapsed)
	}

	g.logger.InfoContext(ctx, "message evaluated",
		"request_id", requestID,
		"trace_id", tracing.TraceID(ctx),
		"record_id", rec.ID,
		"sector", v.Sector,
		"decision", string(v.Decision),
		"outcome", string(v.Outcome),
		"duration_us", elapsed.Microseconds(),
	)
	g.logger.DebugContext(ctx, "evaluation detail",
		"request_id", requestID,
		"message", message,
		"feedback", v.Feedback,
	)

	return Result{
		Decision: v.Decision,
		Feedback: v.Feedback,
		Outcome:  v.Outcome,
		Sector:   v.Sector,
		RecordID: rec.ID,
	}, nil
}

// DashboardData returns counters, policies and the most recent audit
// records. Each part is read on its own, so under concurrent evaluations
// the counters may lag or lead the recent records.
func (g *Gate) DashboardData(ctx context.Context) (Dashboard, error) {
	counters, err := g.ledger.Counters(ctx)
	if err != nil {
		g.storageFailed(ctx, "counters", err)
		return Dashboard{}, storageUnavailable("counters", err)
	}
	policies, err := g.policies.List(ctx)
	if err != nil {
		g.storageFailed(ctx, "list", err)
		return Dashboard{}, storageUnavailable("list", err)
	}
	recent, err := g.ledger.Recent(ctx, g.recentLimit)
	if err != nil {
		g.storageFailed(ctx, "recent", err)
		return Dashboard{}, storageUnavailable("recent", err)
	}

	if g.observer != nil {
		g.observer.ObserveCounters(counters)
	}

	return Dashboard{
		Counters: counters,
		Policies: policies,
		Recent:   recent,
		Denylist: g.engine.Denylist().Terms(),
	}, nil
}

func (g *Gate) storageFailed(ctx context.Context, op string, err error) {
	if g.observer != nil {
		g.observer.ObserveStorageError(op)
	}
	g.logger.ErrorContext(ctx, "storage operation failed",
		"request_id", logging.GetRequestID(ctx),
		"operation", op,
		"error", err,
	)
}
