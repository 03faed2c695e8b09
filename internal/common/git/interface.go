package git

import "context"

// GitExecutor defines the interface for git operations on one working copy.
// This interface allows for mocking git operations in tests.
type GitExecutor interface {
	// Fetch fetches and prunes refs from a remote repository
	Fetch(ctx context.Context, remote string) error

	// CreateBranch creates or resets a branch at startPoint and checks it out
	CreateBranch(ctx context.Context, branch, startPoint string) error

	// Add stages files for commit
	Add(ctx context.Context, paths ...string) error

	// Commit creates a git commit with the specified message
	Commit(ctx context.Context, message string) error

	// RevParse resolves a revision to a full commit id
	RevParse(ctx context.Context, rev string) (string, error)

	// Merge merges a branch into the current branch.
	// Conflicts are reported as a *ConflictError wrapping ErrMergeConflict.
	Merge(ctx context.Context, branch string) error

	// MergeAbort aborts an in-progress merge
	MergeAbort(ctx context.Context) error

	// Push pushes a branch to the named remote
	Push(ctx context.Context, remote, branch string) error

	// DeleteRemoteBranch deletes a branch on the named remote
	DeleteRemoteBranch(ctx context.Context, remote, branch string) error

	// DeleteLocalBranch force-deletes a local branch
	DeleteLocalBranch(ctx context.Context, branch string) error

	// WorktreeAdd creates a linked worktree at dir with branch reset to startPoint
	WorktreeAdd(ctx context.Context, dir, branch, startPoint string) error

	// WorktreeRemove force-removes a linked worktree
	WorktreeRemove(ctx context.Context, dir string) error

	// WorktreePrune prunes stale worktree administrative files
	WorktreePrune(ctx context.Context) error

	// WorkDir returns the working directory of the git repository
	WorkDir() string
}
