package gate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/epigate/pkg/audit"
	"mercator-hq/epigate/pkg/gate"
	"mercator-hq/epigate/pkg/policy"
	"mercator-hq/epigate/pkg/storage"
	"mercator-hq/epigate/pkg/telemetry/logging"
)

// brokenLedger fails every write and read.
type brokenLedger struct{ err error }

func (b brokenLedger) Record(context.Context, audit.Entry) (audit.Record, error) {
	return audit.Record{}, b.err
}
func (b brokenLedger) Recent(context.Context, int) ([]audit.Record, error) { return nil, b.err }
func (b brokenLedger) Counters(context.Context) (audit.Counters, error) {
	return audit.Counters{}, b.err
}
func (b brokenLedger) Verify(context.Context) (audit.IntegrityReport, error) {
	return audit.IntegrityReport{}, b.err
}

// brokenStore fails every policy write and read.
type brokenStore struct{ err error }

func (b brokenStore) Upsert(context.Context, policy.Policy) error { return b.err }
func (b brokenStore) Lookup(context.Context, string) (policy.Policy, bool, error) {
	return policy.Policy{}, false, b.err
}
func (b brokenStore) List(context.Context) ([]policy.Policy, error) { return nil, b.err }

// recordingObserver counts observer calls.
type recordingObserver struct {
	mu            sync.Mutex
	evaluations   []gate.Outcome
	rules         []string
	storageErrors []string
	counters      []audit.Counters
}

func (o *recordingObserver) ObserveEvaluation(_ string, v gate.Verdict, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evaluations = append(o.evaluations, v.Outcome)
}

func (o *recordingObserver) ObserveRuleDefined(sector string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rules = append(o.rules, sector)
}

func (o *recordingObserver) ObserveCounters(c audit.Counters) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters = append(o.counters, c)
}

func (o *recordingObserver) ObserveStorageError(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.storageErrors = append(o.storageErrors, op)
}

func newGate(t *testing.T, opts ...gate.Option) (*gate.Gate, *storage.MemoryStorage) {
	t.Helper()
	backend := storage.NewMemoryStorage()
	opts = append([]gate.Option{gate.WithLogger(logging.Discard())}, opts...)
	g := gate.New(backend, backend, gate.NewDenylist([]string{"hack", "bypass"}), opts...)
	_, err := g.DefineRule(context.Background(), gate.Rule{Sector: "HAVACILIK", Threshold: 0.5, Keyword: "basınç", Unit: "psi"})
	require.NoError(t, err)
	return g, backend
}

func TestGate_EvaluateScenarios(t *testing.T) {
	g, _ := newGate(t)
	ctx := context.Background()

	res, err := g.Evaluate(ctx, "HAVACILIK", "Basınç 0.8 psi")
	require.NoError(t, err)
	assert.Equal(t, audit.DecisionBlocked, res.Decision)
	assert.Equal(t, gate.OutcomeExceed, res.Outcome)
	assert.Contains(t, res.Feedback, "0.3")

	res, err = g.Evaluate(ctx, "HAVACILIK", "Basınç 0.3 psi")
	require.NoError(t, err)
	assert.Equal(t, audit.DecisionSuccess, res.Decision)

	res, err = g.Evaluate(ctx, "HAVACILIK", "hack the system, basınç 0.1 psi")
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomeDenylisted, res.Outcome)

	res, err = g.Evaluate(ctx, "HAVACILIK", "basınç var")
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomeNoNumber, res.Outcome)

	res, err = g.Evaluate(ctx, "UNKNOWN", "basınç 0.1")
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomeNoPolicy, res.Outcome)
	assert.Equal(t, audit.DecisionBlocked, res.Decision)

	dash, err := g.DashboardData(ctx)
	require.NoError(t, err)
	assert.Equal(t, audit.Counters{Total: 5, Pass: 1, Block: 4}, dash.Counters)
	require.Len(t, dash.Recent, 5)
	assert.Equal(t, "basınç 0.1", dash.Recent[0].Message)
	assert.Equal(t, "UNKNOWN", dash.Recent[0].Sector)
	assert.Equal(t, []string{"hack", "bypass"}, dash.Denylist)
	require.Len(t, dash.Policies, 1)
	assert.Equal(t, "HAVACILIK", dash.Policies[0].Sector)
}

func TestGate_RecordIDsAndRequestID(t *testing.T) {
	g, backend := newGate(t)
	ctx := logging.WithRequestID(context.Background(), "req-42")

	first, err := g.Evaluate(ctx, "HAVACILIK", "basınç 1")
	require.NoError(t, err)
	second, err := g.Evaluate(ctx, "HAVACILIK", "basınç 0")
	require.NoError(t, err)
	assert.Greater(t, second.RecordID, first.RecordID)

	recent, err := backend.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "req-42", recent[0].RequestID)
	assert.Equal(t, string(gate.OutcomeAdmit), recent[0].Outcome)
}

func TestGate_DefineRuleReplaces(t *testing.T) {
	g, _ := newGate(t)
	ctx := context.Background()

	_, err := g.DefineRule(ctx, gate.Rule{Sector: "havacılık", Threshold: 2, Keyword: "irtifa"})
	require.NoError(t, err)

	res, err := g.Evaluate(ctx, "HAVACILIK", "basınç 0.1")
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomeMissingKeyword, res.Outcome)

	res, err = g.Evaluate(ctx, "HAVACILIK", "irtifa 1.5")
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomeAdmit, res.Outcome)
}

func TestGate_DefineRuleInvalid(t *testing.T) {
	g, _ := newGate(t)
	ctx := context.Background()

	cases := []gate.Rule{
		{Sector: "", Threshold: 1, Keyword: "k"},
		{Sector: "S", Threshold: 1, Keyword: "  "},
	}
	for _, r := range cases {
		_, err := g.DefineRule(ctx, r)
		require.Error(t, err)
		assert.True(t, errors.Is(err, gate.ErrInvalidInput), "DefineRule(%+v) error = %v", r, err)
	}

	dash, err := g.DashboardData(ctx)
	require.NoError(t, err)
	assert.Len(t, dash.Policies, 1)
}

func TestGate_LedgerFailureRecordsNothing(t *testing.T) {
	boom := errors.New("disk full")
	backend := storage.NewMemoryStorage()
	obs := &recordingObserver{}
	g := gate.New(backend, brokenLedger{err: boom}, nil,
		gate.WithLogger(logging.Discard()),
		gate.WithObserver(obs),
	)
	ctx := context.Background()
	_, err := g.DefineRule(ctx, gate.Rule{Sector: "S", Threshold: 1, Keyword: "k"})
	require.NoError(t, err)

	_, err = g.Evaluate(ctx, "S", "k 0")
	require.Error(t, err)
	assert.ErrorIs(t, err, gate.ErrStorageUnavailable)
	assert.ErrorIs(t, err, boom)

	var sue *gate.StorageUnavailableError
	require.ErrorAs(t, err, &sue)
	assert.Equal(t, "record", sue.Operation)

	assert.Empty(t, obs.evaluations)
	assert.Equal(t, []string{"record"}, obs.storageErrors)
	assert.Equal(t, []string{"S"}, obs.rules)

	c, _ := backend.Counters(ctx)
	assert.Zero(t, c.Total)
}

func TestGate_DefineRuleStoreFailure(t *testing.T) {
	boom := errors.New("database is locked")
	backend := storage.NewMemoryStorage()
	obs := &recordingObserver{}
	g := gate.New(brokenStore{err: boom}, backend, nil,
		gate.WithLogger(logging.Discard()),
		gate.WithObserver(obs),
	)

	_, err := g.DefineRule(context.Background(), gate.Rule{Sector: "S", Threshold: 1, Keyword: "k"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gate.ErrStorageUnavailable))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, policy.ErrInvalidInput)

	var sue *gate.StorageUnavailableError
	require.ErrorAs(t, err, &sue)
	assert.Equal(t, "upsert", sue.Operation)

	assert.Equal(t, []string{"upsert"}, obs.storageErrors)
	assert.Empty(t, obs.rules)
}

func TestGate_ConcurrentEvaluateKeepsCounters(t *testing.T) {
	g, backend := newGate(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := "basınç 0.1"
			if i%2 == 1 {
				msg = "basınç 9"
			}
			for j := 0; j < 10; j++ {
				_, err := g.Evaluate(ctx, "HAVACILIK", msg)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	report, err := backend.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, audit.Counters{Total: 200, Pass: 100, Block: 100}, report.Counters)
}

func TestGate_ObserverSeesCounters(t *testing.T) {
	obs := &recordingObserver{}
	g, _ := newGate(t, gate.WithObserver(obs), gate.WithRecentLimit(1))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.Evaluate(ctx, "HAVACILIK", "basınç 0")
		require.NoError(t, err)
	}
	dash, err := g.DashboardData(ctx)
	require.NoError(t, err)
	assert.Len(t, dash.Recent, 1)
	assert.Len(t, obs.evaluations, 3)
	require.Len(t, obs.counters, 1)
	assert.Equal(t, int64(3), obs.counters[0].Total)
}
