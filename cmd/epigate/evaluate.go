package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/epigate/pkg/audit"
	"mercator-hq/epigate/pkg/cli"
	"mercator-hq/epigate/pkg/gate"
)

type evaluateFlags struct {
	sector      string
	message     string
	failOnBlock bool
}

// evaluation renders a gate.Result for the text formatter.
type evaluation struct {
	gate.Result
}

func (e evaluation) String() string {
	return fmt.Sprintf("%s (%s) record #%d\n%s", e.Decision, e.Outcome, e.RecordID, e.Feedback)
}

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	flags := &evaluateFlags{}

	cmd := &cobra.Command{
		Use:   "evaluate [message]",
		Short: "Evaluate a message against a sector rule",
		Long: `Evaluate a message against the rule for a sector and record the decision.

The message may be given with --message or as the remaining arguments. The
decision is recorded in the audit ledger exactly as a /verify request would
be.

Examples:
  epigate evaluate --sector HAVACILIK --message "Basınç 0.8 psi"
  epigate evaluate -s havacilik Basınç 0.3 psi
  epigate evaluate -s HAVACILIK --fail-on-block -o json "basınç var"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, opts, flags, args)
		},
	}

	cmd.Flags().StringVarP(&flags.sector, "sector", "s", "", "sector name (required)")
	cmd.Flags().StringVarP(&flags.message, "message", "m", "", "message text")
	cmd.Flags().BoolVar(&flags.failOnBlock, "fail-on-block", false, "exit with status 2 when the message is blocked")
	_ = cmd.MarkFlagRequired("sector")
	return cmd
}

func runEvaluate(cmd *cobra.Command, opts *rootOptions, flags *evaluateFlags, args []string) error {
	message := flags.message
	if message == "" {
		message = strings.Join(args, " ")
	}
	if message == "" {
		return errors.New("a message is required (--message or arguments)")
	}

	formatter, err := opts.formatter()
	if err != nil {
		return err
	}

	a, err := bootstrap(cmd, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.gate.Evaluate(cmd.Context(), flags.sector, message)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	if err := formatter.FormatTo(cmd.OutOrStdout(), evaluation{res}); err != nil {
		return err
	}
	if flags.failOnBlock && res.Decision == audit.DecisionBlocked {
		return cli.ErrBlocked
	}
	return nil
}
