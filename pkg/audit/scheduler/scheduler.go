// Package scheduler runs periodic integrity checks of the audit ledger.
//
// The ledger is append-only, so there is nothing to prune. Instead the
// scheduler re-reads the counters and the record count on a cron schedule
// and reports any drift between them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/epigate/pkg/audit"
)

// ErrIntegrity is matched by IntegrityError.
var ErrIntegrity = errors.New("audit integrity violated")

// IntegrityError reports a ledger whose counters disagree with its records.
type IntegrityError struct {
	Report audit.IntegrityReport
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	c := e.Report.Counters
	return fmt.Sprintf("audit integrity violated: TOTAL=%d PASS=%d BLOCK=%d records=%d",
		c.Total, c.Pass, c.Block, e.Report.Records)
}

// Is reports whether target is ErrIntegrity.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// Reporter receives the result of every check. The metrics collector
// implements it.
type Reporter interface {
	ObserveIntegrityCheck(report audit.IntegrityReport, err error)
}

// Scheduler checks ledger integrity on a cron schedule.
type Scheduler struct {
	ledger   audit.Ledger
	schedule string
	reporter Reporter
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// New creates a scheduler. An empty schedule disables it.
func New(ledger audit.Ledger, schedule string, reporter Reporter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		ledger:   ledger,
		schedule: schedule,
		reporter: reporter,
		cron:     cron.New(),
		logger:   logger.With("component", "audit.scheduler"),
	}
}

// ValidateSchedule reports whether expr is a standard five-field cron
// expression. An empty expression is valid and means "disabled".
func ValidateSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return nil
}

// Start schedules the integrity check. Common expressions:
//   - "*/15 * * * *" - every 15 minutes
//   - "0 * * * *"    - hourly
//
// If the schedule is empty, Start does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info("integrity schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return errors.New("scheduler already running")
	}
	if err := ValidateSchedule(s.schedule); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule integrity check: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("integrity scheduler started", "schedule", s.schedule)
	return nil
}

// Run starts the scheduler, blocks until ctx is done and then stops it.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// RunOnce performs one integrity check. A drifted ledger returns an
// IntegrityError together with the report.
func (s *Scheduler) RunOnce(ctx context.Context) (audit.IntegrityReport, error) {
	report, err := s.ledger.Verify(ctx)
	if err == nil && !report.OK() {
		err = &IntegrityError{Report: report}
	}

	if s.reporter != nil {
		s.reporter.ObserveIntegrityCheck(report, err)
	}

	switch {
	case errors.Is(err, ErrIntegrity):
		s.logger.Error("audit integrity check failed",
			"total", report.Counters.Total,
			"pass", report.Counters.Pass,
			"block", report.Counters.Block,
			"records", report.Records,
		)
	case err != nil:
		s.logger.Error("audit integrity check errored", "error", err)
	default:
		s.logger.Debug("audit integrity check passed",
			"total", report.Counters.Total,
			"records", report.Records,
		)
	}
	return report, err
}

// Stop stops the scheduler and waits for a running check to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		done := s.cron.Stop()
		<-done.Done()
		s.running = false
		s.logger.Info("integrity scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled check time, or nil when none is
// scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
