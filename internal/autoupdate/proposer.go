package autoupdate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/git"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/logger"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/metadata"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/recipe"
)

// ProposeResult is what a proposer task reports to the engine
type ProposeResult struct {
	Package  string
	Proposal *Proposal
	Outcome  *Outcome
}

// CheckResult is the dry-run view of one package
type CheckResult struct {
	Package         string
	CurrentVersion  string
	UpstreamVersion string
	UpdateAvailable bool
	Err             error
}

// Proposer decides whether a package needs an update and pushes a proposal branch
type Proposer struct {
	workspace Workspace
	metadata  MetadataStore
	upstream  VersionLookup
	recipes   RecipeEditor
	maint     *maintainerNotifier
	remote    string
	prefix    string
	log       *logger.Logger
	now       func() time.Time
}

// NewProposer creates a proposer pushing to remote with branches named prefix_<pkg>
func NewProposer(ws Workspace, store MetadataStore, upstream VersionLookup, recipes RecipeEditor, notifier Notifier, remote, prefix string, log *logger.Logger) *Proposer {
	if log == nil {
		log = logger.Default()
	}
	return &Proposer{
		workspace: ws,
		metadata:  store,
		upstream:  upstream,
		recipes:   recipes,
		maint:     &maintainerNotifier{workspace: ws, metadata: store, notifier: notifier, log: log},
		remote:    remote,
		prefix:    prefix,
		log:       log,
		now:       time.Now,
	}
}

// inspection is the read-only part of a proposal decision
type inspection struct {
	meta     *metadata.Metadata
	current  string
	upstream string
	newer    bool
}

// inspect reads metadata and recipe from the checkout and compares against upstream
func (p *Proposer) inspect(ctx context.Context, co *Checkout) (*inspection, error) {
	meta, err := p.metadata.Load(co.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataMissing, err)
	}
	if !meta.HasAutoupdate() {
		return &inspection{meta: meta}, ErrNoAutoupdateConfig
	}

	upstream, err := p.upstream.LatestVersion(ctx, meta.Autoupdate.UpstreamPkgName, meta.Autoupdate.Backend)
	if err != nil {
		return &inspection{meta: meta}, err
	}

	current, err := p.recipes.ReadVersion(co.Dir, co.Package)
	if err != nil {
		return &inspection{meta: meta, upstream: upstream}, err
	}

	newer, err := recipe.IsNewer(upstream, current)
	if err != nil {
		return &inspection{meta: meta, upstream: upstream, current: current}, err
	}
	return &inspection{meta: meta, current: current, upstream: upstream, newer: newer}, nil
}

// Check reports current and upstream versions without touching any branch
func (p *Proposer) Check(ctx context.Context, pkg string) CheckResult {
	res := CheckResult{Package: pkg}
	co, err := p.workspace.Acquire(ctx, pkg)
	if err != nil {
		res.Err = err
		return res
	}
	defer p.release(ctx, co)

	in, err := p.inspect(ctx, co)
	if in != nil {
		res.CurrentVersion = in.current
		res.UpstreamVersion = in.upstream
		res.UpdateAvailable = in.newer
	}
	res.Err = err
	return res
}

// Propose runs one package from CHECKING to NO_UPDATE, PROPOSED or PROPOSAL_FAILED
func (p *Proposer) Propose(ctx context.Context, pkg string) ProposeResult {
	out := newOutcome(pkg, p.now())
	res := ProposeResult{Package: pkg, Outcome: out}
	log := p.log.WithPackage(pkg)
	defer func() {
		out.DurationSeconds = p.now().Sub(out.StartedAt).Seconds()
	}()

	co, err := p.workspace.Acquire(ctx, pkg)
	if err != nil {
		out.fail(StateProposalFailed, err)
		log.Error("%v", err)
		return res
	}

	in, err := p.inspect(ctx, co)
	if in != nil {
		out.CurrentVersion = in.current
		out.TargetVersion = in.upstream
	}
	if err != nil {
		p.release(ctx, co)
		out.fail(StateProposalFailed, err)
		if out.Skipped {
			log.Info("Skipping: %v", err)
		} else {
			log.Error("Cannot determine update: %v", err)
		}
		return res
	}

	if !in.newer {
		p.release(ctx, co)
		out.transition(StateNoUpdate)
		log.Info("Up to date at %s (upstream %s)", in.current, in.upstream)
		return res
	}

	log.Info("Updating %s -> %s", in.current, in.upstream)
	proposal, err := p.commitProposal(ctx, co, in.current, in.upstream)
	p.release(ctx, co)
	if err != nil {
		if proposal != nil {
			if derr := p.workspace.DeleteLocalBranch(context.WithoutCancel(ctx), proposal.Branch); derr != nil {
				log.Warn("Failed to roll back %s: %v", proposal.Branch, derr)
			}
		}
		out.applyProposal(proposal)
		if cerr := ctx.Err(); cerr != nil {
			out.setErr(fmt.Errorf("%w: %v", cerr, err))
			log.Warn("Proposal interrupted: %v", err)
			return res
		}
		out.fail(StateProposalFailed, err)
		log.Error("Proposal failed: %v", err)
		if errors.Is(err, ErrPushFailed) {
			out.Notified = p.maint.notify(ctx, pkg, in.meta.MaintainerEmails(), err)
		}
		return res
	}

	if derr := p.workspace.DeleteLocalBranch(context.WithoutCancel(ctx), proposal.Branch); derr != nil {
		log.Debug("Local proposal branch left behind: %v", derr)
	}
	out.applyProposal(proposal)
	out.transition(StateProposed)
	res.Proposal = proposal
	log.Info("Proposed %s at %s", proposal.Branch, shortSHA(proposal.Commit))
	return res
}

// commitProposal creates the proposal branch, bumps the recipe, commits and pushes.
// It returns the proposal built so far whenever the branch was created.
func (p *Proposer) commitProposal(ctx context.Context, co *Checkout, current, target string) (*Proposal, error) {
	branch := git.ProposalBranch(p.prefix, co.Package)
	if err := co.Git.CreateBranch(ctx, branch, "HEAD"); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", branch, err)
	}
	proposal := &Proposal{
		Package:        co.Package,
		Branch:         branch,
		CurrentVersion: current,
		TargetVersion:  target,
	}

	path, err := p.recipes.WriteVersion(co.Dir, co.Package, target)
	if err != nil {
		return proposal, fmt.Errorf("failed to bump recipe: %w", err)
	}
	if err := co.Git.Add(ctx, path); err != nil {
		return proposal, err
	}
	if err := co.Git.Commit(ctx, CommitMessage(co.Package, target)); err != nil {
		return proposal, err
	}
	sha, err := co.Git.RevParse(ctx, "HEAD")
	if err != nil {
		return proposal, err
	}
	proposal.Commit = sha

	if err := co.Git.Push(ctx, p.remote, branch); err != nil {
		return proposal, fmt.Errorf("%w: %s: %v", ErrPushFailed, branch, err)
	}
	return proposal, nil
}

func (p *Proposer) release(ctx context.Context, co *Checkout) {
	if err := p.workspace.Release(context.WithoutCancel(ctx), co); err != nil {
		p.log.WithPackage(co.Package).Warn("%v", err)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
