package git

import (
	"context"
	"strings"
	"sync"
)

// MockGitRunner implements GitExecutor for testing.
// Each method can be configured with a custom function to control behavior.
// Every call is recorded in Calls as "method arg1 arg2 ...".
type MockGitRunner struct {
	FetchFunc              func(remote string) error
	CreateBranchFunc       func(branch, startPoint string) error
	AddFunc                func(paths ...string) error
	CommitFunc             func(message string) error
	RevParseFunc           func(rev string) (string, error)
	MergeFunc              func(branch string) error
	MergeAbortFunc         func() error
	PushFunc               func(remote, branch string) error
	DeleteRemoteBranchFunc func(remote, branch string) error
	DeleteLocalBranchFunc  func(branch string) error
	WorktreeAddFunc        func(dir, branch, startPoint string) error
	WorktreeRemoveFunc     func(dir string) error
	WorktreePruneFunc      func() error

	workDir string
	mu      sync.Mutex
	calls   []string
}

// NewMockGitRunner creates a new MockGitRunner with the specified working directory
func NewMockGitRunner(workDir string) *MockGitRunner {
	return &MockGitRunner{
		workDir: workDir,
	}
}

func (m *MockGitRunner) record(method string, args ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, strings.TrimSpace(method+" "+strings.Join(args, " ")))
}

// Calls returns a copy of the recorded calls in order
func (m *MockGitRunner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many recorded calls start with prefix
func (m *MockGitRunner) CallCount(prefix string) int {
	n := 0
	for _, c := range m.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Fetch fetches changes from a remote repository
func (m *MockGitRunner) Fetch(ctx context.Context, remote string) error {
	m.record("fetch", remote)
	if m.FetchFunc != nil {
		return m.FetchFunc(remote)
	}
	return nil
}

// CreateBranch creates or resets a branch and checks it out
func (m *MockGitRunner) CreateBranch(ctx context.Context, branch, startPoint string) error {
	m.record("create-branch", branch, startPoint)
	if m.CreateBranchFunc != nil {
		return m.CreateBranchFunc(branch, startPoint)
	}
	return nil
}

// Add stages files for commit
func (m *MockGitRunner) Add(ctx context.Context, paths ...string) error {
	m.record("add", paths...)
	if m.AddFunc != nil {
		return m.AddFunc(paths...)
	}
	return nil
}

// Commit creates a git commit with the specified message
func (m *MockGitRunner) Commit(ctx context.Context, message string) error {
	m.record("commit", message)
	if m.CommitFunc != nil {
		return m.CommitFunc(message)
	}
	return nil
}

// RevParse resolves a revision to a commit id
func (m *MockGitRunner) RevParse(ctx context.Context, rev string) (string, error) {
	m.record("rev-parse", rev)
	if m.RevParseFunc != nil {
		return m.RevParseFunc(rev)
	}
	return "", nil
}

// Merge merges a branch into the current branch
func (m *MockGitRunner) Merge(ctx context.Context, branch string) error {
	m.record("merge", branch)
	if m.MergeFunc != nil {
		return m.MergeFunc(branch)
	}
	return nil
}

// MergeAbort aborts an in-progress merge
func (m *MockGitRunner) MergeAbort(ctx context.Context) error {
	m.record("merge-abort")
	if m.MergeAbortFunc != nil {
		return m.MergeAbortFunc()
	}
	return nil
}

// Push pushes a branch to the named remote
func (m *MockGitRunner) Push(ctx context.Context, remote, branch string) error {
	m.record("push", remote, branch)
	if m.PushFunc != nil {
		return m.PushFunc(remote, branch)
	}
	return nil
}

// DeleteRemoteBranch deletes a branch on the named remote
func (m *MockGitRunner) DeleteRemoteBranch(ctx context.Context, remote, branch string) error {
	m.record("delete-remote", remote, branch)
	if m.DeleteRemoteBranchFunc != nil {
		return m.DeleteRemoteBranchFunc(remote, branch)
	}
	return nil
}

// DeleteLocalBranch force-deletes a local branch
func (m *MockGitRunner) DeleteLocalBranch(ctx context.Context, branch string) error {
	m.record("delete-local", branch)
	if m.DeleteLocalBranchFunc != nil {
		return m.DeleteLocalBranchFunc(branch)
	}
	return nil
}

// WorktreeAdd creates a linked worktree
func (m *MockGitRunner) WorktreeAdd(ctx context.Context, dir, branch, startPoint string) error {
	m.record("worktree-add", dir, branch, startPoint)
	if m.WorktreeAddFunc != nil {
		return m.WorktreeAddFunc(dir, branch, startPoint)
	}
	return nil
}

// WorktreeRemove removes a linked worktree
func (m *MockGitRunner) WorktreeRemove(ctx context.Context, dir string) error {
	m.record("worktree-remove", dir)
	if m.WorktreeRemoveFunc != nil {
		return m.WorktreeRemoveFunc(dir)
	}
	return nil
}

// WorktreePrune prunes stale worktree administrative files
func (m *MockGitRunner) WorktreePrune(ctx context.Context) error {
	m.record("worktree-prune")
	if m.WorktreePruneFunc != nil {
		return m.WorktreePruneFunc()
	}
	return nil
}

// WorkDir returns the working directory of the git repository
func (m *MockGitRunner) WorkDir() string {
	return m.workDir
}

// Ensure MockGitRunner implements GitExecutor interface
var _ GitExecutor = (*MockGitRunner)(nil)
