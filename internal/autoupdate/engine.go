package autoupdate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/git"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/logger"
)

// EngineConfig holds the run parameters of the engine
type EngineConfig struct {
	// Repository is the owner/name recorded in the report
	Repository string
	Remote     string
	Prefix     string
	Exclude    []string
	// Jobs bounds concurrent package tasks per phase, 0 means unbounded
	Jobs         int
	MaxPolls     int
	PollInterval time.Duration
	SettleDelay  time.Duration
}

// EngineDeps are the collaborators the engine drives
type EngineDeps struct {
	Workspace Workspace
	Packages  PackageSource
	Metadata  MetadataStore
	Upstream  VersionLookup
	CI        CIStatusLookup
	Recipes   RecipeEditor
	// Notifier may be nil, failures are then only logged
	Notifier Notifier
	Metrics  *Metrics
	Logger   *logger.Logger
}

// Engine runs the update cycle of every package in two phases: propose all,
// then after a settle delay wait for CI on every proposal and resolve it.
type Engine struct {
	cfg       EngineConfig
	workspace Workspace
	packages  PackageSource
	proposer  *Proposer
	waiter    *Waiter
	merger    *MergeCoordinator
	metrics   *Metrics
	log       *logger.Logger
	now       func() time.Time
	sleep     func(context.Context, time.Duration) error
}

// NewEngine wires the engine components
func NewEngine(cfg EngineConfig, deps EngineDeps) *Engine {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Engine{
		cfg:       cfg,
		workspace: deps.Workspace,
		packages:  deps.Packages,
		proposer:  NewProposer(deps.Workspace, deps.Metadata, deps.Upstream, deps.Recipes, deps.Notifier, cfg.Remote, cfg.Prefix, log),
		waiter:    NewWaiter(deps.CI, cfg.MaxPolls, cfg.PollInterval, deps.Metrics, log),
		merger:    NewMergeCoordinator(deps.Workspace, deps.Metadata, deps.Notifier, cfg.Remote, log),
		metrics:   deps.Metrics,
		log:       log,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// SetSleepFunc replaces every wait of the engine, settle delay and poll interval alike (useful for testing)
func (e *Engine) SetSleepFunc(fn func(context.Context, time.Duration) error) {
	e.sleep = fn
	e.waiter.SetSleepFunc(fn)
}

// Discover syncs the clone and returns the packages to process and the head
// commit of every in-flight proposal. A non-empty only restricts the packages.
func (e *Engine) Discover(ctx context.Context, only []string) ([]string, map[string]string, error) {
	if err := e.workspace.Sync(ctx); err != nil {
		return nil, nil, err
	}

	pkgs, err := e.packages.ListPackages(e.cfg.Remote, e.cfg.Prefix, e.cfg.Exclude)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list packages: %w", err)
	}
	if len(only) > 0 {
		known := make(map[string]bool, len(pkgs))
		for _, pkg := range pkgs {
			known[pkg] = true
		}
		seen := make(map[string]bool, len(only))
		var selected []string
		for _, pkg := range only {
			if !known[pkg] {
				return nil, nil, fmt.Errorf("%w: %s", ErrUnknownPackage, pkg)
			}
			if !seen[pkg] {
				seen[pkg] = true
				selected = append(selected, pkg)
			}
		}
		pkgs = selected
	}

	heads, err := e.packages.ProposalHeads(e.cfg.Remote, e.cfg.Prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	return pkgs, heads, nil
}

// Check compares current and upstream versions of packages without proposing anything
func (e *Engine) Check(ctx context.Context, only []string) ([]CheckResult, error) {
	pkgs, _, err := e.Discover(ctx, only)
	if err != nil {
		return nil, err
	}

	results := make([]CheckResult, len(pkgs))
	var g errgroup.Group
	if e.cfg.Jobs > 0 {
		g.SetLimit(e.cfg.Jobs)
	}
	for i, pkg := range pkgs {
		g.Go(func() error {
			results[i] = e.proposer.Check(ctx, pkg)
			return nil
		})
	}
	g.Wait()
	return results, ctx.Err()
}

// Run processes every package and returns the per-package outcomes. Package
// failures are reported in the Report, not as an error. The error is set when
// discovery fails or ctx is cancelled.
func (e *Engine) Run(ctx context.Context, only []string) (*Report, error) {
	report := &Report{Repository: e.cfg.Repository, StartedAt: e.now()}
	defer func() {
		report.FinishedAt = e.now()
		report.sort()
	}()

	pkgs, heads, err := e.Discover(ctx, only)
	if err != nil {
		return nil, err
	}

	var fresh []string
	var proposals []*Proposal
	outcomes := make(map[string]*Outcome)
	for _, pkg := range pkgs {
		sha, inFlight := heads[pkg]
		if !inFlight {
			fresh = append(fresh, pkg)
			continue
		}
		p := &Proposal{
			Package: pkg,
			Branch:  git.ProposalBranch(e.cfg.Prefix, pkg),
			Commit:  sha,
			Resumed: true,
		}
		out := newOutcome(pkg, report.StartedAt)
		out.applyProposal(p)
		out.transition(StateProposed)
		e.log.WithPackage(pkg).Info("Resuming %v at %s", ErrProposalInFlight, shortSHA(sha))
		outcomes[pkg] = out
		proposals = append(proposals, p)
	}

	e.log.Info("Checking %d package(s), %d proposal(s) in flight", len(fresh), len(proposals))
	pushed := 0
	for _, res := range e.proposeAll(ctx, fresh) {
		outcomes[res.Package] = res.Outcome
		if res.Proposal != nil {
			proposals = append(proposals, res.Proposal)
			pushed++
		}
	}
	for _, out := range outcomes {
		report.add(out)
	}

	if len(proposals) == 0 {
		e.finish(report)
		return report, ctx.Err()
	}

	if pushed > 0 {
		e.log.Info("Waiting %s for CI to pick up %d proposal(s)", e.cfg.SettleDelay, pushed)
		if err := e.sleep(ctx, e.cfg.SettleDelay); err != nil {
			e.finish(report)
			return report, err
		}
	}

	e.waitAll(ctx, proposals, outcomes)
	e.finish(report)
	return report, ctx.Err()
}

// proposeAll runs a proposer per package and collects results on one channel
func (e *Engine) proposeAll(ctx context.Context, pkgs []string) []ProposeResult {
	results := make(chan ProposeResult, len(pkgs))
	var g errgroup.Group
	if e.cfg.Jobs > 0 {
		g.SetLimit(e.cfg.Jobs)
	}
	go func() {
		for _, pkg := range pkgs {
			g.Go(func() error {
				results <- e.proposer.Propose(ctx, pkg)
				return nil
			})
		}
		g.Wait()
		close(results)
	}()

	collected := make([]ProposeResult, 0, len(pkgs))
	for res := range results {
		collected = append(collected, res)
	}
	return collected
}

// waitAll waits on every proposal and resolves it. Each task owns its outcome.
func (e *Engine) waitAll(ctx context.Context, proposals []*Proposal, outcomes map[string]*Outcome) {
	var g errgroup.Group
	if e.cfg.Jobs > 0 {
		g.SetLimit(e.cfg.Jobs)
	}
	for _, p := range proposals {
		out := outcomes[p.Package]
		g.Go(func() error {
			e.resolve(ctx, p, out)
			return nil
		})
	}
	g.Wait()
}

func (e *Engine) resolve(ctx context.Context, p *Proposal, out *Outcome) {
	if err := out.transition(StateAwaitingCI); err != nil {
		e.log.WithPackage(p.Package).Error("%v", err)
		return
	}

	res := e.waiter.Wait(ctx, p)
	out.Polls = res.Polls
	switch res.Verdict {
	case VerdictSuccess:
		e.merger.Merge(ctx, p, out)
	case VerdictFailure:
		e.merger.Fail(ctx, p, out, StateCIFailed, res.Err)
	case VerdictTimeout:
		e.merger.Fail(ctx, p, out, StateTimedOut, res.Err)
	default:
		// Left on the remote, the next run resumes it
		out.setErr(res.Err)
		e.log.WithPackage(p.Package).Warn("Stopped waiting: %v", res.Err)
	}
}

// finish stamps durations and records metrics
func (e *Engine) finish(report *Report) {
	now := e.now()
	for _, out := range report.Outcomes {
		if out.State != StateChecking && out.State != StateNoUpdate && out.State != StateProposalFailed {
			out.DurationSeconds = now.Sub(out.StartedAt).Seconds()
		}
		e.metrics.observeOutcome(out)
	}
}
