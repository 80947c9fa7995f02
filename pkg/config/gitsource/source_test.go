package gitsource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"talentgrid-hq/conductor/pkg/config"
)

// upstream is a local repository standing in for the remote.
type upstream struct {
	t    *testing.T
	dir  string
	repo *gogit.Repository
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	return &upstream{t: t, dir: dir, repo: repo}
}

func (u *upstream) commit(file, content, msg string) {
	u.t.Helper()
	if err := os.WriteFile(filepath.Join(u.dir, file), []byte(content), 0644); err != nil {
		u.t.Fatalf("failed to write %s: %v", file, err)
	}
	wt, err := u.repo.Worktree()
	if err != nil {
		u.t.Fatalf("failed to get worktree: %v", err)
	}
	if _, err := wt.Add(file); err != nil {
		u.t.Fatalf("failed to add %s: %v", file, err)
	}
	_, err = wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		u.t.Fatalf("failed to commit: %v", err)
	}
}

func testConfig(u *upstream, t *testing.T) config.GitConfig {
	return config.GitConfig{
		Enabled:      true,
		Repository:   u.dir,
		Branch:       "master",
		Path:         "conductor.yaml",
		LocalPath:    filepath.Join(t.TempDir(), "clone"),
		PollInterval: time.Second,
		Timeout:      10 * time.Second,
		Auth:         config.GitAuthConfig{Type: "none"},
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.GitConfig
		wantErr bool
	}{
		{"empty repository", config.GitConfig{Branch: "main", LocalPath: "/tmp/x"}, true},
		{"empty branch", config.GitConfig{Repository: "https://example.com/c.git", LocalPath: "/tmp/x"}, true},
		{"bad auth", config.GitConfig{Repository: "https://example.com/c.git", Branch: "main", LocalPath: "/tmp/x", Auth: config.GitAuthConfig{Type: "kerberos"}}, true},
		{"valid", config.GitConfig{Repository: "https://example.com/c.git", Branch: "main", LocalPath: "/tmp/x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewAuth(t *testing.T) {
	auth, err := NewAuth(config.GitAuthConfig{Type: "token", Token: "secret"})
	if err != nil {
		t.Fatalf("NewAuth(token) error = %v", err)
	}
	if auth == nil || auth.Name() != "http-basic-auth" {
		t.Errorf("NewAuth(token) = %v, want basic auth", auth)
	}

	if _, err := NewAuth(config.GitAuthConfig{Type: "token"}); err == nil {
		t.Error("NewAuth(token) without token should fail")
	}

	key := filepath.Join(t.TempDir(), "id_rsa")
	if err := os.WriteFile(key, []byte("not a key"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewAuth(config.GitAuthConfig{Type: "ssh", SSHKeyPath: key}); err == nil || !strings.Contains(err.Error(), "too open") {
		t.Errorf("NewAuth(ssh) with 0644 key error = %v, want permissions error", err)
	}

	if auth, err := NewAuth(config.GitAuthConfig{Type: "none"}); err != nil || auth != nil {
		t.Errorf("NewAuth(none) = %v, %v; want nil, nil", auth, err)
	}
}

func TestSource_SyncAndCheck(t *testing.T) {
	u := newUpstream(t)
	u.commit("conductor.yaml", "rollout:\n  percentage: 10\n", "initial")

	src, err := New(testConfig(u, t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if _, err := src.Check(ctx, func(string) error { return nil }); !errors.Is(err, ErrNotSynced) {
		t.Errorf("Check() before Sync error = %v, want ErrNotSynced", err)
	}

	path, err := src.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "percentage: 10") {
		t.Errorf("cloned file = %q", data)
	}

	reloads := 0
	reload := func(string) error { reloads++; return nil }

	// Nothing new upstream.
	if changed, err := src.Check(ctx, reload); err != nil || changed {
		t.Fatalf("Check() = %v, %v; want false, nil", changed, err)
	}

	// A commit that does not touch the config file is skipped.
	u.commit("README.md", "docs", "docs only")
	if changed, err := src.Check(ctx, reload); err != nil || changed {
		t.Fatalf("Check() after unrelated commit = %v, %v; want false, nil", changed, err)
	}
	if reloads != 0 {
		t.Errorf("reloads = %d, want 0", reloads)
	}

	u.commit("conductor.yaml", "rollout:\n  percentage: 50\n", "raise rollout")
	changed, err := src.Check(ctx, reload)
	if err != nil || !changed {
		t.Fatalf("Check() after config commit = %v, %v; want true, nil", changed, err)
	}
	if reloads != 1 {
		t.Errorf("reloads = %d, want 1", reloads)
	}

	cur, err := src.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if !strings.HasPrefix(cur.Message, "raise rollout") {
		t.Errorf("Current().Message = %q", cur.Message)
	}
}

func TestSource_RejectedCommitRollsBack(t *testing.T) {
	u := newUpstream(t)
	u.commit("conductor.yaml", "rollout:\n  percentage: 10\n", "initial")

	src, err := New(testConfig(u, t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	path, err := src.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	u.commit("conductor.yaml", "rollout:\n  percentage: 400\n", "bad rollout")
	_, err = src.Check(ctx, func(string) error { return errors.New("rollout.percentage: must be between 0 and 100") })
	if err == nil {
		t.Fatal("Check() error = nil, want reload failure")
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "percentage: 10") {
		t.Errorf("working copy not rolled back, file = %q", data)
	}
	cur, err := src.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if !strings.HasPrefix(cur.Message, "initial") {
		t.Errorf("Current().Message = %q, want initial", cur.Message)
	}
}

func TestSource_SyncMissingFile(t *testing.T) {
	u := newUpstream(t)
	u.commit("other.yaml", "x: 1\n", "initial")

	src, err := New(testConfig(u, t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := src.Sync(context.Background()); err == nil {
		t.Error("Sync() error = nil, want missing file error")
	}
}
