package main

import (
	"github.com/spf13/cobra"

	"mercator-hq/epigate/pkg/cli"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	verbose    bool
	output     string
}

func (o *rootOptions) formatter() (cli.Formatter, error) {
	format, err := cli.ParseOutputFormat(o.output)
	if err != nil {
		return nil, err
	}
	return cli.NewFormatter(format), nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "epigate",
		Short: "Epistemic Gate - keyword and threshold content gate with an audit trail",
		Long: `Epigate evaluates short messages against per-sector rules.

A rule names a sector, a keyword the message must mention and the highest
admissible value. The first number in the message is compared against the
threshold. A global denylist blocks messages before any rule is consulted.
Every evaluation is recorded in an append-only audit ledger with running
TOTAL, PASS and BLOCK counters.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "config.yaml", "config file path (defaults are used when the default file is absent)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose (debug) logging")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text, json, csv")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newVersionCmd(),
		newValidateCmd(opts),
		newEvaluateCmd(opts),
		newRuleCmd(opts),
		newAuditCmd(opts),
		newCompletionCmd(),
	)
	return rootCmd
}
