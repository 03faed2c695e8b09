package autoupdate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/git"
)

// Checkout is an isolated working copy of one package branch
type Checkout struct {
	Package string
	Dir     string
	Git     git.GitExecutor
}

// Workspace hands out isolated checkouts and owns the shared refs of the clone
type Workspace interface {
	// Sync refreshes remote-tracking refs and drops stale checkouts
	Sync(ctx context.Context) error
	// Acquire checks out the package branch as it is on the remote
	Acquire(ctx context.Context, pkg string) (*Checkout, error)
	Release(ctx context.Context, co *Checkout) error
	DeleteLocalBranch(ctx context.Context, branch string) error
	DeleteRemoteBranch(ctx context.Context, branch string) error
}

// WorktreeWorkspace gives every package its own git worktree of the root clone.
// Worktree bookkeeping and local ref deletion touch the shared .git directory and
// are serialized; pushes and everything inside a worktree run in parallel.
type WorktreeWorkspace struct {
	root      git.GitExecutor
	remote    string
	baseDir   string
	newRunner func(dir string) git.GitExecutor

	mu  sync.Mutex
	seq int
}

// NewWorktreeWorkspace creates worktrees below a fresh temporary directory
func NewWorktreeWorkspace(root git.GitExecutor, remote string) (*WorktreeWorkspace, error) {
	baseDir, err := os.MkdirTemp("", "alpa-autoupdate-")
	if err != nil {
		return nil, fmt.Errorf("failed to create worktree directory: %w", err)
	}
	return &WorktreeWorkspace{
		root:    root,
		remote:  remote,
		baseDir: baseDir,
		newRunner: func(dir string) git.GitExecutor {
			return git.NewGitRunner(dir)
		},
	}, nil
}

// SetRunnerFactory overrides how executors for new worktrees are created (useful for testing)
func (w *WorktreeWorkspace) SetRunnerFactory(fn func(dir string) git.GitExecutor) {
	w.newRunner = fn
}

// Remote returns the remote name branches are pushed to
func (w *WorktreeWorkspace) Remote() string {
	return w.remote
}

// Sync fetches the remote and prunes worktrees whose directory is gone
func (w *WorktreeWorkspace) Sync(ctx context.Context) error {
	if err := w.root.Fetch(ctx, w.remote); err != nil {
		return fmt.Errorf("failed to fetch %s: %w", w.remote, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root.WorktreePrune(ctx)
}

func (w *WorktreeWorkspace) Acquire(ctx context.Context, pkg string) (*Checkout, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	dir := filepath.Join(w.baseDir, fmt.Sprintf("%s-%d", dirName(pkg), w.seq))
	if err := w.root.WorktreeAdd(ctx, dir, pkg, w.remote+"/"+pkg); err != nil {
		return nil, fmt.Errorf("failed to check out %s: %w", pkg, err)
	}
	return &Checkout{Package: pkg, Dir: dir, Git: w.newRunner(dir)}, nil
}

func (w *WorktreeWorkspace) Release(ctx context.Context, co *Checkout) error {
	if co == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.root.WorktreeRemove(ctx, co.Dir); err != nil {
		return fmt.Errorf("failed to remove checkout of %s: %w", co.Package, err)
	}
	return nil
}

func (w *WorktreeWorkspace) DeleteLocalBranch(ctx context.Context, branch string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root.DeleteLocalBranch(ctx, branch)
}

func (w *WorktreeWorkspace) DeleteRemoteBranch(ctx context.Context, branch string) error {
	return w.root.DeleteRemoteBranch(ctx, w.remote, branch)
}

// Close prunes leftover worktrees and removes the temporary directory
func (w *WorktreeWorkspace) Close() error {
	err := os.RemoveAll(w.baseDir)
	w.mu.Lock()
	defer w.mu.Unlock()
	if perr := w.root.WorktreePrune(context.Background()); perr != nil && err == nil {
		err = perr
	}
	return err
}

// dirName maps a branch name to a single path element
func dirName(pkg string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(pkg)
}
