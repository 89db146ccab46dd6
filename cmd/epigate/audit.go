package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/epigate/pkg/audit"
	"mercator-hq/epigate/pkg/audit/scheduler"
	"mercator-hq/epigate/pkg/cli"
)

// recordTable renders audit records as rows, most recent first.
type recordTable []audit.Record

func (t recordTable) Header() []string {
	return []string{"ID", "TIME", "SECTOR", "DECISION", "OUTCOME", "MESSAGE", "FEEDBACK"}
}

func (t recordTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			r.Sector,
			string(r.Decision),
			r.Outcome,
			r.Message,
			r.Feedback,
		})
	}
	return rows
}

// counterStats renders the counter triple.
type counterStats struct {
	audit.Counters
}

func (c counterStats) String() string {
	return fmt.Sprintf("TOTAL=%d PASS=%d BLOCK=%d", c.Total, c.Pass, c.Block)
}

// integrity renders an IntegrityReport.
type integrity struct {
	audit.IntegrityReport
	Consistent bool `json:"ok"`
}

func (i integrity) String() string {
	state := "consistent"
	if !i.Consistent {
		state = "INCONSISTENT"
	}
	c := i.Counters
	return fmt.Sprintf("ledger %s: TOTAL=%d PASS=%d BLOCK=%d records=%d", state, c.Total, c.Pass, c.Block, i.Records)
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit ledger",
	}
	cmd.AddCommand(newAuditRecentCmd(opts), newAuditStatsCmd(opts), newAuditVerifyCmd(opts))
	return cmd
}

func newAuditRecentCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := opts.formatter()
			if err != nil {
				return err
			}
			a, err := bootstrap(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			n := limit
			if n <= 0 {
				n = a.cfg.Gate.RecentLimit
			}
			records, err := a.backend.Recent(cmd.Context(), n)
			if err != nil {
				return cli.NewCommandError("audit recent", err)
			}
			return formatter.FormatTo(cmd.OutOrStdout(), recordTable(records))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of records (default gate.recent_limit)")
	return cmd
}

func newAuditStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the TOTAL, PASS and BLOCK counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := opts.formatter()
			if err != nil {
				return err
			}
			a, err := bootstrap(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.backend.Counters(cmd.Context())
			if err != nil {
				return cli.NewCommandError("audit stats", err)
			}
			return formatter.FormatTo(cmd.OutOrStdout(), counterStats{c})
		},
	}
}

func newAuditVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the counters agree with the stored records",
		Long: `Check TOTAL == PASS + BLOCK == number of audit records.

Exits non-zero when the ledger is inconsistent. The same check runs on the
audit.integrity_schedule while the server is running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := opts.formatter()
			if err != nil {
				return err
			}
			a, err := bootstrap(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			report, checkErr := scheduler.New(a.backend, "", nil, a.logger).RunOnce(cmd.Context())
			if checkErr != nil && report.CheckedAt.IsZero() {
				return cli.NewCommandError("audit verify", checkErr)
			}
			if err := formatter.FormatTo(cmd.OutOrStdout(), integrity{report, report.OK()}); err != nil {
				return err
			}
			if checkErr != nil {
				return cli.NewCommandError("audit verify", checkErr)
			}
			return nil
		},
	}
}
