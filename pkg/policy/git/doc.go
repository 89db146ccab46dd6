// Package git keeps a local clone of a Git repository that holds a rules
// file, and reports when a pull changes that file.
//
// The run command uses it in place of gate.rules_file when
// gate.rules_git.repository is set:
//
//	repo, err := git.NewRepository(&cfg.Gate.RulesGit, logger)
//	res, err := repo.Sync(ctx)              // clone or pull
//	rules, err := policy.LoadRulesFile(repo.RulesPath())
//	err = repo.Poll(ctx, func(ctx context.Context) error { ... })
//
// Pulls never force. A branch that was rewritten upstream makes Sync fail
// and the rules applied last stay in effect.
package git
