package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"mercator-hq/epigate/pkg/config"
)

// SyncResult describes one Sync.
type SyncResult struct {
	FromSHA string
	ToSHA   string

	// RulesChanged is true after the first successful Sync of a process and
	// whenever a pull touched the rules file.
	RulesChanged bool
}

// Repository is a local clone tracking one branch.
type Repository struct {
	cfg      config.GitRulesConfig
	auth     transport.AuthMethod
	rulesRel string
	logger   *slog.Logger

	mu     sync.Mutex
	repo   *gogit.Repository
	synced bool
}

// NewRepository validates cfg and resolves credentials. It does not touch
// the network; the first Sync clones.
func NewRepository(cfg *config.GitRulesConfig, logger *slog.Logger) (*Repository, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, errors.New("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, errors.New("branch cannot be empty")
	}
	if cfg.File == "" {
		return nil, errors.New("rules file cannot be empty")
	}
	if cfg.LocalPath == "" {
		return nil, errors.New("local path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	auth, err := authMethod(&cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth: %w", err)
	}

	return &Repository{
		cfg:      *cfg,
		auth:     auth,
		rulesRel: path.Clean(filepath.ToSlash(cfg.File)),
		logger:   logger.With("component", "policy.git", "repository", cfg.Repository),
	}, nil
}

// RulesPath is the rules file inside the local clone.
func (r *Repository) RulesPath() string {
	return filepath.Join(r.cfg.LocalPath, filepath.FromSlash(r.rulesRel))
}

// Sync clones the repository on first use, or opens an existing clone at
// LocalPath, and otherwise pulls the tracked branch.
func (r *Repository) Sync(ctx context.Context) (SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := false
	if r.repo == nil {
		var err error
		if fresh, err = r.open(ctx); err != nil {
			return SyncResult{}, err
		}
	}

	from, err := r.head()
	if err != nil {
		return SyncResult{}, err
	}

	if !fresh {
		if err := r.pull(ctx); err != nil {
			return SyncResult{}, err
		}
	}

	to, err := r.head()
	if err != nil {
		return SyncResult{}, err
	}

	res := SyncResult{FromSHA: from, ToSHA: to}
	switch {
	case !r.synced:
		res.RulesChanged = true
	case from != to:
		res.RulesChanged, err = r.touched(from, to)
		if err != nil {
			return SyncResult{}, err
		}
	}
	r.synced = true

	r.logger.Debug("rules repository synced",
		"from", short(from),
		"to", short(to),
		"rules_changed", res.RulesChanged,
	)
	return res, nil
}

// Head returns the SHA of the checked-out commit.
func (r *Repository) Head() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.repo == nil {
		return "", errors.New("repository not initialized, call Sync() first")
	}
	return r.head()
}

// Poll calls Sync every PollInterval and runs onChange when the rules file
// changed. Failures are logged and polling continues. It returns nil when
// ctx is cancelled, and immediately when PollInterval is zero.
func (r *Repository) Poll(ctx context.Context, onChange func(context.Context) error) error {
	if r.cfg.PollInterval <= 0 {
		r.logger.Info("rules repository polling disabled")
		return nil
	}

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("rules repository polling started",
		"branch", r.cfg.Branch,
		"interval", r.cfg.PollInterval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("rules repository polling stopped")
			return nil
		case <-ticker.C:
			res, err := r.Sync(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("rules repository sync failed", "error", err)
				continue
			}
			if !res.RulesChanged {
				continue
			}
			if err := onChange(ctx); err != nil {
				r.logger.Error("rules reload failed", "commit", short(res.ToSHA), "error", err)
				continue
			}
			r.logger.Info("rules reloaded from repository", "commit", short(res.ToSHA))
		}
	}
}

// open reuses an existing clone at LocalPath or clones a new one, and
// reports whether it cloned. It must be called with r.mu held.
func (r *Repository) open(ctx context.Context) (bool, error) {
	if _, err := os.Stat(filepath.Join(r.cfg.LocalPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(r.cfg.LocalPath)
		if err != nil {
			return false, fmt.Errorf("failed to open existing repo: %w", err)
		}
		r.repo = repo
		return false, nil
	}

	if err := os.MkdirAll(r.cfg.LocalPath, 0o755); err != nil {
		return false, fmt.Errorf("failed to create repository directory: %w", err)
	}

	cloneCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	repo, err := gogit.PlainCloneContext(cloneCtx, r.cfg.LocalPath, false, &gogit.CloneOptions{
		URL:           r.cfg.Repository,
		Auth:          r.auth,
		ReferenceName: plumbing.NewBranchReferenceName(r.cfg.Branch),
		SingleBranch:  true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to clone repository: %w", err)
	}
	r.repo = repo
	r.logger.Info("rules repository cloned",
		"branch", r.cfg.Branch,
		"path", r.cfg.LocalPath,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true, nil
}

func (r *Repository) pull(ctx context.Context) error {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	pullCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	err = worktree.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(r.cfg.Branch),
		SingleBranch:  true,
		Auth:          r.auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull: %w", err)
	}
	return nil
}

func (r *Repository) head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// touched reports whether the diff between two commits includes the rules
// file.
func (r *Repository) touched(fromSHA, toSHA string) (bool, error) {
	fromCommit, err := r.repo.CommitObject(plumbing.NewHash(fromSHA))
	if err != nil {
		return false, fmt.Errorf("failed to get from commit: %w", err)
	}
	toCommit, err := r.repo.CommitObject(plumbing.NewHash(toSHA))
	if err != nil {
		return false, fmt.Errorf("failed to get to commit: %w", err)
	}
	fromTree, err := fromCommit.Tree()
	if err != nil {
		return false, fmt.Errorf("failed to get from tree: %w", err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return false, fmt.Errorf("failed to get to tree: %w", err)
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return false, fmt.Errorf("failed to diff trees: %w", err)
	}
	for _, change := range changes {
		if change.To.Name == r.rulesRel || change.From.Name == r.rulesRel {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.Timeout)
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
