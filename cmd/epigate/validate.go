package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/epigate/pkg/cli"
	"mercator-hq/epigate/pkg/policy"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var rulesFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and rules file",
		Long: `Load the configuration with environment overrides, validate every
section and parse the rules file. Nothing is written to storage.

Examples:
  epigate validate --config config.yaml
  epigate validate --rules rules.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✓ Configuration valid")

			for _, r := range cfg.Gate.SeedRules {
				if _, err := policy.Normalize(policy.Policy{Sector: r.Sector, Threshold: r.Threshold, Keyword: r.Keyword, Unit: r.Unit}); err != nil {
					return cli.NewConfigError("gate.seed_rules", err.Error())
				}
			}
			fmt.Fprintf(out, "✓ Seed rules: %d\n", len(cfg.Gate.SeedRules))

			path := rulesFile
			if path == "" {
				path = cfg.Gate.RulesFile
			}
			if path != "" {
				rules, err := policy.LoadRulesFile(path)
				if err != nil {
					return cli.NewConfigError("gate.rules_file", err.Error())
				}
				fmt.Fprintf(out, "✓ Rules file %s: %d rules\n", path, len(rules))
			}
			if git := cfg.Gate.RulesGit; git.Repository != "" {
				// Not fetched here; run and the one-shot commands sync on start.
				fmt.Fprintf(out, "✓ Rules repository: %s (%s:%s)\n", git.Repository, git.Branch, git.File)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "rules file to check (default gate.rules_file)")
	return cmd
}
