// Package snapshot materializes working copies of benchmark repositories
// pinned to exact commits. Each repo is cloned once into a cache; each
// (repo, commit) pair gets its own detached worktree so concurrent cases
// never share a mutable checkout.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrRepoUnavailable marks a clone or fetch that failed after all
// retries. Recorded as a case-level error; the run continues.
var ErrRepoUnavailable = errors.New("repository unavailable")

type Manager struct {
	cacheDir string
	retry    RetryPolicy
	log      zerolog.Logger

	mu        sync.Mutex
	repoLocks map[string]*sync.Mutex
	leases    map[string]int
}

func NewManager(cacheDir string, retry RetryPolicy, log zerolog.Logger) *Manager {
	return &Manager{
		cacheDir:  cacheDir,
		retry:     retry,
		log:       log,
		repoLocks: make(map[string]*sync.Mutex),
		leases:    make(map[string]int),
	}
}

// repoKey derives a stable directory name from a repo identifier.
func repoKey(repo string) string {
	sum := sha256.Sum256([]byte(repo))
	name := strings.NewReplacer("/", "__", ":", "_", "@", "_").Replace(repo)
	name = strings.TrimSuffix(name, ".git")
	if len(name) > 64 {
		name = name[len(name)-64:]
	}
	return name + "-" + hex.EncodeToString(sum[:])[:12]
}

// cloneURL resolves a repo identifier to something git can clone.
// "owner/name" is treated as a GitHub shorthand; anything with a scheme,
// an scp-style remote, or an existing local path passes through.
func cloneURL(repo string) string {
	if strings.Contains(repo, "://") || strings.Contains(repo, "@") {
		return repo
	}
	if _, err := os.Stat(repo); err == nil {
		return repo
	}
	if strings.Count(repo, "/") == 1 {
		return "https://github.com/" + repo + ".git"
	}
	return repo
}

func (m *Manager) repoLock(repo string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.repoLocks[repo]
	if !ok {
		lock = &sync.Mutex{}
		m.repoLocks[repo] = lock
	}
	return lock
}

func (m *Manager) repoDir(repo string) string {
	return filepath.Join(m.cacheDir, "repos", repoKey(repo))
}

func (m *Manager) worktreeDir(repo, commit string) string {
	short := commit
	if len(short) > 12 {
		short = short[:12]
	}
	return filepath.Join(m.cacheDir, "worktrees", repoKey(repo), short)
}

// Worktree returns a checkout of repo at commit, cloning and fetching as
// needed. Idempotent: repeated calls return the same path. The clone and
// fetch steps are serialized per repo; distinct worktrees are created
// independently once the base clone exists. The returned path is leased
// until Release is called, which protects it from eviction.
func (m *Manager) Worktree(ctx context.Context, repo, commit string) (string, error) {
	wt := m.worktreeDir(repo, commit)
	if m.tryLease(wt) {
		return wt, nil
	}

	// Clone, fetch, and worktree creation all mutate the base repo, so
	// they share the per-repo lock. Complete worktrees are leased above
	// without touching it.
	lock := m.repoLock(repo)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have built the worktree while we waited.
	if m.tryLease(wt) {
		return wt, nil
	}

	repoDir := m.repoDir(repo)
	if err := m.ensureClone(ctx, repo, repoDir); err != nil {
		return "", err
	}
	if err := m.ensureCommit(ctx, repoDir, commit); err != nil {
		return "", err
	}

	// A directory at the final path with no .git link is the leftover of
	// an interrupted checkout. Discard it and build from scratch.
	if _, err := os.Stat(wt); err == nil {
		m.log.Warn().Str("worktree", wt).Msg("discarding incomplete worktree")
		if err := os.RemoveAll(wt); err != nil {
			return "", fmt.Errorf("removing incomplete worktree: %w", err)
		}
		gitCmd(ctx, repoDir, "worktree", "prune")
	}
	if err := os.MkdirAll(filepath.Dir(wt), 0o755); err != nil {
		return "", fmt.Errorf("creating worktree dir: %w", err)
	}

	// Check out under a temporary name and rename into place, so a
	// directory at the final path always holds a complete checkout.
	tmp := fmt.Sprintf("%s.tmp-%d", wt, os.Getpid())
	defer os.RemoveAll(tmp)
	if out, err := gitCmd(ctx, repoDir, "worktree", "add", "--detach", tmp, commit); err != nil {
		return "", fmt.Errorf("git worktree add: %s: %w", out, err)
	}
	if err := os.Rename(tmp, wt); err != nil {
		return "", fmt.Errorf("publishing worktree: %w", err)
	}
	gitCmd(ctx, repoDir, "worktree", "repair", wt)

	if !m.tryLease(wt) {
		return "", fmt.Errorf("worktree %s vanished after checkout", wt)
	}
	return wt, nil
}

// tryLease takes a lease on wt if it holds a complete checkout, keyed on
// the .git link that git writes into every worktree. The check and the
// lease increment happen under the same mutex Evict holds while
// unlinking, so a worktree can never be evicted between being observed
// and being leased.
func (m *Manager) tryLease(wt string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := os.Stat(filepath.Join(wt, ".git")); err != nil {
		return false
	}
	m.leases[wt]++
	return true
}

// Release drops a lease taken by Worktree.
func (m *Manager) Release(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leases[path] > 0 {
		m.leases[path]--
	}
}

func (m *Manager) ensureClone(ctx context.Context, repo, repoDir string) error {
	if _, err := os.Stat(filepath.Join(repoDir, ".git")); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(repoDir), 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	url := cloneURL(repo)
	m.log.Info().Str("repo", repo).Msg("cloning")
	err := m.retry.Do(ctx, func() error {
		os.RemoveAll(repoDir)
		out, err := gitCmd(ctx, "", "clone", "--no-checkout", url, repoDir)
		if err != nil {
			m.log.Warn().Str("repo", repo).Str("output", out).Msg("clone attempt failed")
			return fmt.Errorf("git clone: %s: %w", out, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRepoUnavailable, repo, err)
	}
	return nil
}

func (m *Manager) ensureCommit(ctx context.Context, repoDir, commit string) error {
	if hasCommit(ctx, repoDir, commit) {
		return nil
	}
	err := m.retry.Do(ctx, func() error {
		out, err := gitCmd(ctx, repoDir, "fetch", "origin", commit)
		if err != nil {
			return fmt.Errorf("git fetch: %s: %w", out, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: fetching %s: %v", ErrRepoUnavailable, commit, err)
	}
	if !hasCommit(ctx, repoDir, commit) {
		return fmt.Errorf("%w: commit %s not found after fetch", ErrRepoUnavailable, commit)
	}
	return nil
}

// Prewarm clones the base repos for a case list ahead of a run, at most
// parallel clones at a time. Failures are logged and surface later as
// per-case errors.
func (m *Manager) Prewarm(ctx context.Context, repos []string, parallel int) {
	if parallel < 1 {
		parallel = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, repo := range repos {
		g.Go(func() error {
			lock := m.repoLock(repo)
			lock.Lock()
			defer lock.Unlock()
			if err := m.ensureClone(ctx, repo, m.repoDir(repo)); err != nil {
				m.log.Warn().Str("repo", repo).Err(err).Msg("prewarm clone failed")
			}
			return nil
		})
	}
	g.Wait()
}

// Evict removes worktrees older than maxAge, oldest first, until the
// worktree cache is within maxBytes. Leased worktrees are never removed.
// Zero values disable the respective bound.
func (m *Manager) Evict(maxAge time.Duration, maxBytes int64) error {
	root := filepath.Join(m.cacheDir, "worktrees")
	type entry struct {
		path    string
		repoDir string
		mod     time.Time
		size    int64
	}
	var entries []entry

	repoGroups, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading worktree cache: %w", err)
	}
	for _, group := range repoGroups {
		if !group.IsDir() {
			continue
		}
		groupDir := filepath.Join(root, group.Name())
		worktrees, err := os.ReadDir(groupDir)
		if err != nil {
			continue
		}
		for _, wt := range worktrees {
			if !wt.IsDir() {
				continue
			}
			path := filepath.Join(groupDir, wt.Name())
			info, err := wt.Info()
			if err != nil {
				continue
			}
			entries = append(entries, entry{
				path:    path,
				repoDir: filepath.Join(m.cacheDir, "repos", group.Name()),
				mod:     info.ModTime(),
				size:    dirSize(path),
			})
		}
	}

	var total int64
	for _, e := range entries {
		total += e.size
	}

	// Oldest first.
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].mod.Before(entries[i].mod) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	now := time.Now()
	for _, e := range entries {
		expired := maxAge > 0 && now.Sub(e.mod) > maxAge
		oversize := maxBytes > 0 && total > maxBytes
		if !expired && !oversize {
			continue
		}
		// Unlink by rename under the lease mutex: once a caller holds a
		// lease the rename is skipped, and once the rename lands no new
		// lease can be taken on the path.
		doomed := e.path + ".evicting"
		m.mu.Lock()
		inUse := m.leases[e.path] > 0
		var renameErr error
		if !inUse {
			renameErr = os.Rename(e.path, doomed)
		}
		m.mu.Unlock()
		if inUse {
			continue
		}
		if renameErr != nil {
			m.log.Warn().Str("worktree", e.path).Err(renameErr).Msg("eviction failed")
			continue
		}
		m.log.Info().Str("worktree", e.path).Msg("evicting")
		if err := os.RemoveAll(doomed); err != nil {
			m.log.Warn().Str("worktree", e.path).Err(err).Msg("eviction failed")
		}
		gitCmd(context.Background(), e.repoDir, "worktree", "prune")
		total -= e.size
	}
	return nil
}

func gitCmd(ctx context.Context, dir string, args ...string) (string, error) {
	fullArgs := args
	if dir != "" {
		fullArgs = append([]string{"-C", dir}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func hasCommit(ctx context.Context, repoDir, commit string) bool {
	_, err := gitCmd(ctx, repoDir, "cat-file", "-e", commit+"^{commit}")
	return err == nil
}

func dirSize(root string) int64 {
	var size int64
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
