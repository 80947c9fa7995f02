// Package gitsource keeps a local clone of a Git repository holding the
// Conductor configuration file and reloads it when new commits touch it.
//
// A commit whose configuration fails to load is rolled back locally, so the
// working copy always holds the last configuration that was accepted.
//
//	src, err := gitsource.New(cfg.Reload.Git)
//	path, err := src.Sync(ctx)
//	go src.Run(ctx, func(path string) error { return config.ReloadConfig(path) })
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"talentgrid-hq/conductor/pkg/config"
)

// ErrNotSynced is returned by operations that need a local clone before Sync
// has succeeded.
var ErrNotSynced = errors.New("repository not synced, call Sync first")

// ReloadFunc loads the configuration file at path. A non-nil error rejects
// the commit that produced it.
type ReloadFunc func(path string) error

// Commit describes the commit the working copy is at.
type Commit struct {
	SHA       string    `json:"sha"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Source tracks one branch of a configuration repository.
type Source struct {
	cfg    config.GitConfig
	auth   transport.AuthMethod
	logger *slog.Logger

	mu      sync.Mutex
	repo    *gogit.Repository
	lastSHA string
}

// New validates cfg and prepares a source. Nothing is cloned until Sync.
func New(cfg config.GitConfig) (*Source, error) {
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}
	if cfg.LocalPath == "" {
		return nil, fmt.Errorf("local path cannot be empty")
	}
	auth, err := NewAuth(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth: %w", err)
	}
	return &Source{
		cfg:    cfg,
		auth:   auth,
		logger: slog.Default().With("component", "config.gitsource", "repository", cfg.Repository),
	}, nil
}

// FilePath is the configuration file inside the local clone.
func (s *Source) FilePath() string {
	return filepath.Join(s.cfg.LocalPath, s.cfg.Path)
}

// Sync clones the repository, or opens an existing clone and pulls, and
// returns the configuration file path.
func (s *Source) Sync(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		if err := s.openOrClone(ctx); err != nil {
			return "", err
		}
	} else if _, _, err := s.pull(ctx); err != nil {
		return "", err
	}

	head, err := s.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	s.lastSHA = head.Hash().String()

	path := s.FilePath()
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("configuration file missing from repository: %w", err)
	}
	return path, nil
}

func (s *Source) openOrClone(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.cfg.LocalPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(s.cfg.LocalPath)
		if err != nil {
			return fmt.Errorf("failed to open existing clone: %w", err)
		}
		s.repo = repo
		_, _, err = s.pull(ctx)
		return err
	}

	if err := os.MkdirAll(s.cfg.LocalPath, 0755); err != nil {
		return fmt.Errorf("failed to create clone directory: %w", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, s.cfg.LocalPath, false, &gogit.CloneOptions{
		URL:           s.cfg.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          s.auth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}
	s.repo = repo
	s.logger.Info("configuration repository cloned", "branch", s.cfg.Branch, "path", s.cfg.LocalPath)
	return nil
}

// pull fast-forwards the working copy and reports the commits before and
// after. Callers hold s.mu.
func (s *Source) pull(ctx context.Context) (from, to string, err error) {
	head, err := s.repo.Head()
	if err != nil {
		return "", "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	from = head.Hash().String()

	wt, err := s.repo.Worktree()
	if err != nil {
		return "", "", fmt.Errorf("failed to get worktree: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	err = wt.PullContext(pullCtx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          s.auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return "", "", fmt.Errorf("failed to pull: %w", err)
	}

	head, err = s.repo.Head()
	if err != nil {
		return "", "", fmt.Errorf("failed to get new HEAD: %w", err)
	}
	return from, head.Hash().String(), nil
}

// Check pulls once and calls reload when the configuration file changed. A
// rejected commit is rolled back to the last accepted one.
func (s *Source) Check(ctx context.Context, reload ReloadFunc) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return false, ErrNotSynced
	}

	from, to, err := s.pull(ctx)
	if err != nil {
		return false, err
	}
	if from == to {
		return false, nil
	}

	changed, err := s.fileChanged(from, to)
	if err != nil {
		return false, err
	}
	if !changed {
		s.logger.Debug("commit does not touch configuration, skipping reload",
			"to_sha", short(to),
		)
		s.lastSHA = to
		return false, nil
	}

	s.logger.Info("configuration changed upstream", "from_sha", short(from), "to_sha", short(to))

	if err := reload(s.FilePath()); err != nil {
		s.logger.Error("configuration rejected, rolling back",
			"sha", short(to),
			"rollback_to", short(s.lastSHA),
			"error", err,
		)
		if rbErr := s.reset(s.lastSHA); rbErr != nil {
			return false, fmt.Errorf("reload failed: %w (rollback: %v)", err, rbErr)
		}
		return false, fmt.Errorf("reload failed: %w", err)
	}

	s.lastSHA = to
	return true, nil
}

// Run polls until ctx is cancelled. Errors are logged and polling continues.
func (s *Source) Run(ctx context.Context, reload ReloadFunc) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.logger.Info("git config source started", "poll_interval", s.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("git config source stopped")
			return
		case <-ticker.C:
			if _, err := s.Check(ctx, reload); err != nil {
				s.logger.Error("config poll failed", "error", err)
			}
		}
	}
}

// Current returns the last accepted commit.
func (s *Source) Current() (*Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return nil, ErrNotSynced
	}
	c, err := s.repo.CommitObject(plumbing.NewHash(s.lastSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}
	return &Commit{
		SHA:       c.Hash.String(),
		Author:    c.Author.Name,
		Timestamp: c.Author.When,
		Message:   c.Message,
	}, nil
}

// fileChanged reports whether the configuration file differs between two
// commits.
func (s *Source) fileChanged(from, to string) (bool, error) {
	fromCommit, err := s.repo.CommitObject(plumbing.NewHash(from))
	if err != nil {
		return false, fmt.Errorf("failed to get from commit: %w", err)
	}
	toCommit, err := s.repo.CommitObject(plumbing.NewHash(to))
	if err != nil {
		return false, fmt.Errorf("failed to get to commit: %w", err)
	}

	fromFile, fromErr := fromCommit.File(s.cfg.Path)
	toFile, toErr := toCommit.File(s.cfg.Path)
	switch {
	case fromErr != nil && toErr != nil:
		return false, nil
	case fromErr != nil || toErr != nil:
		return true, nil
	}
	return fromFile.Hash != toFile.Hash, nil
}

func (s *Source) reset(sha string) error {
	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	return wt.Reset(&gogit.ResetOptions{
		Commit: plumbing.NewHash(sha),
		Mode:   gogit.HardReset,
	})
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
