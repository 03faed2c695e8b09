package git

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var (
	ErrNotRepository  = errors.New("not a git repository")
	ErrRemoteNotFound = errors.New("remote not found")
	ErrInvalidRemote  = errors.New("remote URL does not name an owner/repository")
)

// Repository inspects refs and remotes of a local clone without running git
type Repository struct {
	repo *gogit.Repository
	root string
}

// OpenRepository opens the repository containing dir
func OpenRepository(dir string) (*Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, dir)
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	root := dir
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}
	return &Repository{repo: repo, root: root}, nil
}

// Root returns the top-level directory of the working copy
func (r *Repository) Root() string {
	return r.root
}

// RemoteSlug returns the owner and repository name encoded in the first URL of a remote
func (r *Repository) RemoteSlug(remote string) (owner, name string, err error) {
	rem, err := r.repo.Remote(remote)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrRemoteNotFound, remote)
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return "", "", fmt.Errorf("%w: %s has no URL", ErrInvalidRemote, remote)
	}
	return ParseSlug(urls[0])
}

// ParseSlug extracts owner and repository from a remote URL.
// Accepts https, ssh and scp-like forms, and a bare "owner/name".
func ParseSlug(raw string) (owner, name string, err error) {
	path := strings.TrimSpace(raw)

	switch {
	case strings.Contains(path, "://"):
		u, perr := url.Parse(path)
		if perr != nil {
			return "", "", fmt.Errorf("%w: %s", ErrInvalidRemote, raw)
		}
		path = u.Path
	case strings.Contains(path, ":") && strings.Contains(path, "@"):
		// git@github.com:owner/name.git
		path = path[strings.Index(path, ":")+1:]
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidRemote, raw)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// RemoteBranches returns the short names of all remote-tracking branches of remote
func (r *Repository) RemoteBranches(remote string) ([]string, error) {
	refs, err := r.repo.References()
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	defer refs.Close()

	prefix := remote + "/"
	var branches []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if !ref.Name().IsRemote() || ref.Type() != plumbing.HashReference {
			return nil
		}
		short := ref.Name().Short()
		if strings.HasPrefix(short, prefix) {
			branches = append(branches, strings.TrimPrefix(short, prefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(branches)
	return branches, nil
}

// ProposalBranch returns the temporary branch name for a package
func ProposalBranch(prefix, pkg string) string {
	return prefix + "_" + pkg
}

// ListPackages returns package branches of remote: every remote branch that is
// neither excluded nor a proposal branch.
func (r *Repository) ListPackages(remote, prefix string, exclude []string) ([]string, error) {
	branches, err := r.RemoteBranches(remote)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(exclude))
	for _, b := range exclude {
		skip[b] = true
	}

	var packages []string
	for _, b := range branches {
		if skip[b] || strings.HasPrefix(b, prefix) {
			continue
		}
		packages = append(packages, b)
	}
	return packages, nil
}

// ProposalHeads maps package name to the head commit of its proposal branch on remote
func (r *Repository) ProposalHeads(remote, prefix string) (map[string]string, error) {
	branches, err := r.RemoteBranches(remote)
	if err != nil {
		return nil, err
	}

	heads := make(map[string]string)
	for _, b := range branches {
		pkg, ok := strings.CutPrefix(b, prefix+"_")
		if !ok || pkg == "" {
			continue
		}
		sha, err := r.RemoteBranchHead(remote, b)
		if err != nil {
			return nil, err
		}
		heads[pkg] = sha
	}
	return heads, nil
}

// RemoteBranchHead returns the commit id a remote-tracking branch points to
func (r *Repository) RemoteBranchHead(remote, branch string) (string, error) {
	ref, err := r.repo.Reference(plumbing.NewRemoteReferenceName(remote, branch), true)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s/%s: %w", remote, branch, err)
	}
	return ref.Hash().String(), nil
}
