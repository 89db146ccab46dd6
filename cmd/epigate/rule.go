package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/epigate/pkg/cli"
	"mercator-hq/epigate/pkg/gate"
	"mercator-hq/epigate/pkg/policy"
)

// ruleTable renders policies as rows.
type ruleTable []policy.Policy

func (t ruleTable) Header() []string {
	return []string{"SECTOR", "THRESHOLD", "UNIT", "KEYWORD", "UPDATED"}
}

func (t ruleTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, p := range t {
		updated := ""
		if !p.UpdatedAt.IsZero() {
			updated = p.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		rows = append(rows, []string{p.Sector, policy.FormatNumber(p.Threshold), p.Unit, p.Keyword, updated})
	}
	return rows
}

func newRuleCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Define and list sector rules",
	}
	cmd.AddCommand(newRuleDefineCmd(opts), newRuleListCmd(opts))
	return cmd
}

func newRuleDefineCmd(opts *rootOptions) *cobra.Command {
	var r struct {
		sector, threshold, keyword, unit string
	}

	cmd := &cobra.Command{
		Use:   "define",
		Short: "Define or replace the rule for a sector",
		Long: `Define the rule for a sector. An existing rule for the same sector is
replaced entirely. Sector names are case-insensitive and stored upper case;
keywords are stored lower case.

Example:
  epigate rule define --sector HAVACILIK --threshold 0.5 --keyword basınç --unit psi`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := opts.formatter()
			if err != nil {
				return err
			}
			threshold, err := policy.ParseThreshold(r.threshold)
			if err != nil {
				return err
			}

			a, err := bootstrap(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.gate.DefineRule(cmd.Context(), gate.Rule{
				Sector:    r.sector,
				Threshold: threshold,
				Keyword:   r.keyword,
				Unit:      r.unit,
			})
			if err != nil {
				return cli.NewCommandError("rule define", err)
			}
			return formatter.FormatTo(cmd.OutOrStdout(), ruleTable{p})
		},
	}

	cmd.Flags().StringVar(&r.sector, "sector", "", "sector name (required)")
	cmd.Flags().StringVar(&r.threshold, "threshold", "", "maximum admissible value (required)")
	cmd.Flags().StringVar(&r.keyword, "keyword", "", "keyword the message must contain (required)")
	cmd.Flags().StringVar(&r.unit, "unit", "", "display unit, e.g. psi")
	for _, name := range []string{"sector", "threshold", "keyword"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newRuleListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all sector rules",
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

			policies, err := a.backend.List(cmd.Context())
			if err != nil {
				return cli.NewCommandError("rule list", err)
			}
			if err := formatter.FormatTo(cmd.OutOrStdout(), ruleTable(policies)); err != nil {
				return fmt.Errorf("failed to write rules: %w", err)
			}
			return nil
		},
	}
}
