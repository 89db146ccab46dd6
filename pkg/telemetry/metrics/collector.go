package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/epigate/pkg/audit"
	"mercator-hq/epigate/pkg/audit/scheduler"
	"mercator-hq/epigate/pkg/config"
	"mercator-hq/epigate/pkg/gate"
)

// Sector label values used when the real sector is not reported.
const (
	SectorUnknown = "unknown"
	SectorOther   = "other"
)

// Collector records gate, audit and HTTP metrics into its own registry. It
// implements gate.Observer and scheduler.Reporter.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry
	sectors  *CardinalityLimiter

	evaluations     *prometheus.CounterVec
	evalDuration    *prometheus.HistogramVec
	ruleDefinitions *prometheus.CounterVec
	auditCounter    *prometheus.GaugeVec
	storageErrors   *prometheus.CounterVec
	integrityChecks *prometheus.CounterVec
	integrityLast   prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

var (
	_ gate.Observer      = (*Collector)(nil)
	_ scheduler.Reporter = (*Collector)(nil)
)

// NewCollector creates a collector and registers its metrics. If registry
// is nil a fresh one is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = append([]float64(nil), config.DefaultDurationBuckets...)
	}
	if cfg.MaxSectors == 0 {
		cfg.MaxSectors = config.DefaultMaxSectors
	}

	ns, sub := cfg.Namespace, cfg.Subsystem
	c := &Collector{
		config:   cfg,
		registry: registry,
		sectors:  NewCardinalityLimiter(cfg.MaxSectors),

		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "evaluations_total",
			Help: "Messages evaluated, by sector, decision and outcome",
		}, []string{"sector", "decision", "outcome"}),

		evalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "evaluation_duration_seconds",
			Help:    "Time to verify and record one message",
			Buckets: cfg.DurationBuckets,
		}, []string{"decision"}),

		ruleDefinitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "rule_definitions_total",
			Help: "Rules defined or replaced, by sector",
		}, []string{"sector"}),

		auditCounter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "audit_counter",
			Help: "Last observed value of the persisted TOTAL, PASS and BLOCK counters",
		}, []string{"counter"}),

		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "storage_errors_total",
			Help: "Storage failures surfaced to callers, by operation",
		}, []string{"operation"}),

		integrityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "integrity_checks_total",
			Help: "Audit ledger integrity checks, by result",
		}, []string{"result"}),

		integrityLast: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub,
			Name: "integrity_last_check_timestamp_seconds",
			Help: "Unix time of the last integrity check",
		}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub,
			Name: "http_requests_total",
			Help: "HTTP requests served, by route, method and status code",
		}, []string{"route", "method", "code"}),

		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub,
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency, by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	registry.MustRegister(
		c.evaluations,
		c.evalDuration,
		c.ruleDefinitions,
		c.auditCounter,
		c.storageErrors,
		c.integrityChecks,
		c.integrityLast,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// ObserveEvaluation implements gate.Observer.
func (c *Collector) ObserveEvaluation(sector string, v gate.Verdict, elapsed time.Duration) {
	if !c.config.Enabled {
		return
	}
	label := SectorUnknown
	if v.Policy != nil {
		label = c.sectorLabel(sector)
	}
	c.evaluations.WithLabelValues(label, string(v.Decision), string(v.Outcome)).Inc()
	c.evalDuration.WithLabelValues(string(v.Decision)).Observe(elapsed.Seconds())
}

// ObserveRuleDefined implements gate.Observer.
func (c *Collector) ObserveRuleDefined(sector string) {
	if !c.config.Enabled {
		return
	}
	c.ruleDefinitions.WithLabelValues(c.sectorLabel(sector)).Inc()
}

// ObserveCounters implements gate.Observer.
func (c *Collector) ObserveCounters(counters audit.Counters) {
	if !c.config.Enabled {
		return
	}
	c.setCounters(counters)
}

// ObserveStorageError implements gate.Observer.
func (c *Collector) ObserveStorageError(operation string) {
	if !c.config.Enabled {
		return
	}
	c.storageErrors.WithLabelValues(operation).Inc()
}

// ObserveIntegrityCheck implements scheduler.Reporter.
func (c *Collector) ObserveIntegrityCheck(report audit.IntegrityReport, err error) {
	if !c.config.Enabled {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, scheduler.ErrIntegrity):
		result = "violation"
	case err != nil:
		result = "error"
	}
	c.integrityChecks.WithLabelValues(result).Inc()
	c.integrityLast.SetToCurrentTime()
	if err == nil || result == "violation" {
		c.setCounters(report.Counters)
	}
}

// ObserveHTTPRequest records one served request. route must be the
// registered pattern, never the raw URL.
func (c *Collector) ObserveHTTPRequest(route, method string, code int, elapsed time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (c *Collector) setCounters(counters audit.Counters) {
	c.auditCounter.WithLabelValues(audit.CounterTotal).Set(float64(counters.Total))
	c.auditCounter.WithLabelValues(audit.CounterPass).Set(float64(counters.Pass))
	c.auditCounter.WithLabelValues(audit.CounterBlock).Set(float64(counters.Block))
}

func (c *Collector) sectorLabel(sector string) string {
	if sector == "" {
		return SectorUnknown
	}
	if !c.sectors.Allow(sector) {
		return SectorOther
	}
	return sector
}

// CardinalityLimiter caps the number of distinct label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting at most max values.
func NewCardinalityLimiter(max int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: max,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value may be used as a label, remembering it when
// there is room.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}
