package snapshot

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(t.TempDir(), DefaultRetryPolicy(), zerolog.Nop())
}

// seedWorktree fabricates a completed checkout at the manager's expected
// path, including the .git link git writes into every worktree.
func seedWorktree(t *testing.T, m *Manager, repo, commit string) string {
	t.Helper()
	wt := m.worktreeDir(repo, commit)
	if err := os.MkdirAll(wt, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(wt, ".git"), []byte("gitdir: elsewhere\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return wt
}

func TestRepoKeyStable(t *testing.T) {
	a := repoKey("octo/webapp")
	b := repoKey("octo/webapp")
	if a != b {
		t.Errorf("repoKey not stable: %q vs %q", a, b)
	}
	if a == repoKey("octo/api") {
		t.Error("distinct repos share a key")
	}
	if strings.ContainsAny(a, "/:@") {
		t.Errorf("key %q contains path-hostile characters", a)
	}
}

func TestCloneURL(t *testing.T) {
	local := t.TempDir()
	tests := []struct {
		repo string
		want string
	}{
		{"octo/webapp", "https://github.com/octo/webapp.git"},
		{"https://gitlab.com/octo/webapp.git", "https://gitlab.com/octo/webapp.git"},
		{"git@github.com:octo/webapp.git", "git@github.com:octo/webapp.git"},
		{local, local},
	}
	for _, tt := range tests {
		if got := cloneURL(tt.repo); got != tt.want {
			t.Errorf("cloneURL(%q) = %q, want %q", tt.repo, got, tt.want)
		}
	}
}

func TestWorktreeFastPathReusesExisting(t *testing.T) {
	m := newTestManager(t)
	wt := seedWorktree(t, m, "octo/webapp", "abc123def456789")

	got, err := m.Worktree(context.Background(), "octo/webapp", "abc123def456789")
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if got != wt {
		t.Errorf("expected %q, got %q", wt, got)
	}

	again, err := m.Worktree(context.Background(), "octo/webapp", "abc123def456789")
	if err != nil {
		t.Fatalf("Worktree (second): %v", err)
	}
	if again != got {
		t.Errorf("repeated calls disagree: %q vs %q", got, again)
	}
}

func TestWorktreeRejectsIncompleteCheckout(t *testing.T) {
	// A directory without a .git link is what an interrupted
	// `git worktree add` leaves behind. It must never be handed out as a
	// finished checkout; the manager rebuilds from the base repo instead,
	// which fails here because the repo does not exist.
	m := NewManager(t.TempDir(), RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond}, zerolog.Nop())
	repo := filepath.Join(t.TempDir(), "missing", "repo")
	wt := m.worktreeDir(repo, "abc123def456789")
	if err := os.MkdirAll(wt, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := m.Worktree(context.Background(), repo, "abc123def456789")
	if err == nil {
		t.Fatalf("expected error, got path %q", got)
	}
	if got != "" {
		t.Errorf("incomplete checkout handed out as %q", got)
	}
}

func TestEvictCannotRaceLease(t *testing.T) {
	// Take the lease through the public path, then evict with a zero max
	// age so every unleased worktree would go. The leased one must
	// survive intact.
	m := newTestManager(t)
	wt := seedWorktree(t, m, "octo/webapp", "abc123def456789")
	doomed := seedWorktree(t, m, "octo/webapp", "fffffffffffffff")
	old := time.Now().Add(-48 * time.Hour)
	os.Chtimes(wt, old, old)
	os.Chtimes(doomed, old, old)

	leased, err := m.Worktree(context.Background(), "octo/webapp", "abc123def456789")
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}

	if err := m.Evict(time.Nanosecond, 0); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if _, err := os.Stat(filepath.Join(leased, ".git")); err != nil {
		t.Error("leased worktree did not survive eviction intact")
	}
	if _, err := os.Stat(doomed); !os.IsNotExist(err) {
		t.Error("unleased worktree survived eviction")
	}
}

func TestWorktreeDirUsesShortCommit(t *testing.T) {
	m := newTestManager(t)
	wt := m.worktreeDir("octo/webapp", "0123456789abcdef0123456789abcdef01234567")
	if filepath.Base(wt) != "0123456789ab" {
		t.Errorf("expected 12-char commit dir, got %q", filepath.Base(wt))
	}
}

func TestEvictSkipsLeasedWorktrees(t *testing.T) {
	m := newTestManager(t)
	wt := seedWorktree(t, m, "octo/webapp", "abc123def456789")
	old := time.Now().Add(-48 * time.Hour)
	os.Chtimes(wt, old, old)

	leased, err := m.Worktree(context.Background(), "octo/webapp", "abc123def456789")
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}

	if err := m.Evict(time.Hour, 0); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if _, err := os.Stat(wt); err != nil {
		t.Fatal("leased worktree was evicted")
	}

	m.Release(leased)
	os.Chtimes(wt, old, old)
	if err := m.Evict(time.Hour, 0); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if _, err := os.Stat(wt); !os.IsNotExist(err) {
		t.Error("released worktree survived eviction")
	}
}

func TestEvictBySize(t *testing.T) {
	m := newTestManager(t)
	newer := m.worktreeDir("octo/webapp", "bbbbbbbbbbbbbbb")
	older := m.worktreeDir("octo/webapp", "aaaaaaaaaaaaaaa")
	for _, wt := range []string{older, newer} {
		if err := os.MkdirAll(wt, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(wt, "f"), make([]byte, 1024), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-time.Hour)
	os.Chtimes(older, old, old)

	// Budget fits one worktree, so only the oldest goes.
	if err := m.Evict(0, 1536); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if _, err := os.Stat(older); !os.IsNotExist(err) {
		t.Error("oldest worktree survived size eviction")
	}
	if _, err := os.Stat(newer); err != nil {
		t.Error("newest worktree should survive size eviction")
	}
}

func TestEvictEmptyCache(t *testing.T) {
	m := newTestManager(t)
	if err := m.Evict(time.Hour, 0); err != nil {
		t.Fatalf("Evict on empty cache: %v", err)
	}
}

// fixtureRepo builds a local git repo with one committed file and
// returns its path and HEAD. Tests that need it skip when git is absent.
func fixtureRepo(t *testing.T) (string, string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	git := func(args ...string) string {
		c := exec.Command("git", args...)
		c.Dir = dir
		out, err := c.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
		return strings.TrimSpace(string(out))
	}
	git("init")
	git("config", "user.email", "test@test.com")
	git("config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('ok')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	git("add", ".")
	git("commit", "-m", "initial")
	return dir, git("rev-parse", "HEAD")
}

func TestWorktreeRebuildsIncompleteCheckout(t *testing.T) {
	repo, commit := fixtureRepo(t)
	m := newTestManager(t)

	// Fabricate the leftover of an interrupted checkout.
	stale := m.worktreeDir(repo, commit)
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}

	wt, err := m.Worktree(context.Background(), repo, commit)
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := os.Stat(filepath.Join(wt, "main.py")); err != nil {
		t.Errorf("rebuilt worktree is missing committed content: %v", err)
	}
	if _, err := os.Stat(filepath.Join(wt, ".git")); err != nil {
		t.Errorf("rebuilt worktree has no .git link: %v", err)
	}
}

func TestWorktreeConcurrentSameCommit(t *testing.T) {
	repo, commit := fixtureRepo(t)
	m := newTestManager(t)

	const callers = 4
	paths := make(chan string, callers)
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			wt, err := m.Worktree(context.Background(), repo, commit)
			if err != nil {
				errs <- err
				return
			}
			if _, err := os.Stat(filepath.Join(wt, "main.py")); err != nil {
				errs <- err
				return
			}
			paths <- wt
		}()
	}

	var first string
	for i := 0; i < callers; i++ {
		select {
		case err := <-errs:
			t.Fatalf("concurrent Worktree: %v", err)
		case wt := <-paths:
			if first == "" {
				first = wt
			} else if wt != first {
				t.Errorf("callers disagree on path: %q vs %q", wt, first)
			}
		}
	}
}
