// Epigate is a content gate that admits or blocks short messages against
// per-sector rules and keeps an audit trail of every decision.
//
// Each sector rule names a required keyword and a numeric threshold. A
// message is admitted when it avoids the global denylist, mentions the
// keyword, and its first number does not exceed the threshold.
//
// Usage:
//
//	# Start the dashboard and HTTP API
//	epigate run --config config.yaml
//
//	# Evaluate one message from the shell
//	epigate evaluate --sector HAVACILIK --message "Basınç 0.8 psi"
//
//	# Define or replace a rule
//	epigate rule define --sector HAVACILIK --threshold 0.5 --keyword basınç --unit psi
//
//	# Inspect and check the audit ledger
//	epigate audit recent --limit 10
//	epigate audit verify
package main

import (
	"fmt"
	"os"

	"mercator-hq/epigate/pkg/cli"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}
