package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	ErrFileNotFound       = errors.New("file not found")
	ErrPathOutsideWorkDir = errors.New("path is outside working directory")
	ErrInvalidPath        = errors.New("invalid path")
	ErrGitCommand         = errors.New("git command failed")
	ErrMergeConflict      = errors.New("merge conflict")
)

// ConflictError reports the files left conflicted by a merge
type ConflictError struct {
	Branch string
	Files  []string
}

func (e *ConflictError) Error() string {
	if len(e.Files) == 0 {
		return fmt.Sprintf("merge of %s has conflicts", e.Branch)
	}
	return fmt.Sprintf("merge of %s has conflicts in %s", e.Branch, strings.Join(e.Files, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrMergeConflict
}

// Identity used for commits made by the tool when the repository has none configured
const (
	committerName  = "alpa-autoupdate"
	committerEmail = "alpa-autoupdate@users.noreply.github.com"
)

// GitRunner executes git commands in a specific working directory
type GitRunner struct {
	workDir string
}

// NewGitRunner creates a new GitRunner for the specified working directory
func NewGitRunner(workDir string) *GitRunner {
	return &GitRunner{
		workDir: workDir,
	}
}

// WorkDir returns the working directory of the GitRunner
func (g *GitRunner) WorkDir() string {
	return g.workDir
}

// runCommand executes a git command and returns stdout, stderr, and any error
func (g *GitRunner) runCommand(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.workDir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stdout, stderr, errors.Join(ErrGitCommand, ctxErr)
		}
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = err.Error()
		}
		err = errors.Join(ErrGitCommand, fmt.Errorf("git %s: %s", subcommand(args), msg))
	}

	return stdout, stderr, err
}

// subcommand returns the first argument that is not a -c option pair
func subcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return args[i]
	}
	return ""
}

// Fetch fetches and prunes refs from a remote repository
func (g *GitRunner) Fetch(ctx context.Context, remote string) error {
	_, _, err := g.runCommand(ctx, "fetch", "--prune", remote)
	return err
}

// CreateBranch creates or resets a branch at startPoint and checks it out.
// An empty startPoint branches from HEAD.
func (g *GitRunner) CreateBranch(ctx context.Context, branch, startPoint string) error {
	args := []string{"switch", "-C", branch}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	_, _, err := g.runCommand(ctx, args...)
	return err
}

// Add stages files for commit with path validation
func (g *GitRunner) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		_, _, err := g.runCommand(ctx, "add", ".")
		return err
	}

	for _, path := range paths {
		if err := g.validateAndAddPath(ctx, path); err != nil {
			return err
		}
	}

	return nil
}

// validateAndAddPath validates a single path and adds it to staging
func (g *GitRunner) validateAndAddPath(ctx context.Context, path string) error {
	absPath := path
	if !filepath.IsAbs(path) {
		absPath = filepath.Join(g.workDir, path)
	}

	absPath = filepath.Clean(absPath)
	workDirAbs := filepath.Clean(g.workDir)

	relPath, err := filepath.Rel(workDirAbs, absPath)
	if err != nil {
		return errors.Join(ErrInvalidPath, err)
	}

	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return ErrPathOutsideWorkDir
	}

	if !fileExists(absPath) {
		return ErrFileNotFound
	}

	_, _, err = g.runCommand(ctx, "add", "--", relPath)
	return err
}

// fileExists checks if a file or directory exists using os.Stat
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Commit creates a git commit with the specified message. The tool identity
// is used only when the repository has no user configured.
func (g *GitRunner) Commit(ctx context.Context, message string) error {
	args := append(g.identityArgs(ctx), "commit", "-m", message)
	_, _, err := g.runCommand(ctx, args...)
	return err
}

// identityArgs returns -c overrides for the tool identity when no user is configured
func (g *GitRunner) identityArgs(ctx context.Context) []string {
	out, _, err := g.runCommand(ctx, "config", "user.email")
	if err == nil && strings.TrimSpace(out) != "" {
		return nil
	}
	return []string{"-c", "user.name=" + committerName, "-c", "user.email=" + committerEmail}
}

// RevParse resolves a revision to a full commit id
func (g *GitRunner) RevParse(ctx context.Context, rev string) (string, error) {
	stdout, _, err := g.runCommand(ctx, "rev-parse", "--verify", rev+"^{commit}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout), nil
}

// Merge merges a branch into the current branch without opening an editor.
// Git reports conflicts on stdout, so both streams are inspected.
func (g *GitRunner) Merge(ctx context.Context, branch string) error {
	args := append(g.identityArgs(ctx), "merge", "--no-edit", branch)
	stdout, stderr, err := g.runCommand(ctx, args...)
	if err == nil {
		return nil
	}
	combined := stdout + "\n" + stderr
	if isConflictOutput(combined) {
		return &ConflictError{Branch: branch, Files: ParseConflicts(combined)}
	}
	return err
}

// MergeAbort aborts an in-progress merge
func (g *GitRunner) MergeAbort(ctx context.Context) error {
	_, _, err := g.runCommand(ctx, "merge", "--abort")
	return err
}

// isConflictOutput checks if merge output indicates conflicts
func isConflictOutput(out string) bool {
	for _, indicator := range []string{"CONFLICT", "Automatic merge failed", "fix conflicts"} {
		if strings.Contains(out, indicator) {
			return true
		}
	}
	return false
}

// ParseConflicts extracts conflicting file paths from git merge output
func ParseConflicts(out string) []string {
	var conflicts []string
	const marker = "Merge conflict in "

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "CONFLICT") {
			continue
		}
		if idx := strings.Index(line, marker); idx != -1 {
			if file := strings.TrimSpace(line[idx+len(marker):]); file != "" {
				conflicts = append(conflicts, file)
			}
		}
	}

	return conflicts
}

// Push pushes a branch to the named remote
func (g *GitRunner) Push(ctx context.Context, remote, branch string) error {
	_, _, err := g.runCommand(ctx, "push", remote, branch)
	return err
}

// DeleteRemoteBranch deletes a branch on the named remote
func (g *GitRunner) DeleteRemoteBranch(ctx context.Context, remote, branch string) error {
	_, _, err := g.runCommand(ctx, "push", remote, "--delete", branch)
	return err
}

// DeleteLocalBranch force-deletes a local branch
func (g *GitRunner) DeleteLocalBranch(ctx context.Context, branch string) error {
	_, _, err := g.runCommand(ctx, "branch", "-D", branch)
	return err
}

// WorktreeAdd creates a linked worktree at dir with branch reset to startPoint
func (g *GitRunner) WorktreeAdd(ctx context.Context, dir, branch, startPoint string) error {
	_, _, err := g.runCommand(ctx, "worktree", "add", "-f", "-B", branch, dir, startPoint)
	return err
}

// WorktreeRemove force-removes a linked worktree
func (g *GitRunner) WorktreeRemove(ctx context.Context, dir string) error {
	_, _, err := g.runCommand(ctx, "worktree", "remove", "--force", dir)
	return err
}

// WorktreePrune prunes stale worktree administrative files
func (g *GitRunner) WorktreePrune(ctx context.Context) error {
	_, _, err := g.runCommand(ctx, "worktree", "prune")
	return err
}

// Ensure GitRunner implements GitExecutor interface
var _ GitExecutor = (*GitRunner)(nil)
