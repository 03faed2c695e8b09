package autoupdate

import (
	"context"
	"errors"
	"fmt"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/logger"
)

// MergeCoordinator resolves a proposal: it merges and publishes on success and
// discards the proposal with a maintainer notice otherwise. Either way the
// proposal branch is deleted exactly once.
type MergeCoordinator struct {
	workspace Workspace
	maint     *maintainerNotifier
	remote    string
	log       *logger.Logger
}

// NewMergeCoordinator creates a coordinator pushing to remote
func NewMergeCoordinator(ws Workspace, store MetadataStore, notifier Notifier, remote string, log *logger.Logger) *MergeCoordinator {
	if log == nil {
		log = logger.Default()
	}
	return &MergeCoordinator{
		workspace: ws,
		maint:     &maintainerNotifier{workspace: ws, metadata: store, notifier: notifier, log: log},
		remote:    remote,
		log:       log,
	}
}

// Merge merges the proposal into its package branch and pushes it.
// It moves out from AWAITING_CI to MERGED or MERGE_FAILED. When ctx is
// cancelled before the push lands, the outcome stays AWAITING_CI and the
// proposal is kept for the next run.
func (m *MergeCoordinator) Merge(ctx context.Context, p *Proposal, out *Outcome) {
	log := m.log.WithPackage(p.Package)

	err := m.mergeAndPush(ctx, p)
	if err != nil && ctx.Err() != nil {
		out.setErr(fmt.Errorf("%w: %v", ctx.Err(), err))
		log.Warn("Merge interrupted, keeping %s: %v", p.Branch, err)
		return
	}
	m.discard(ctx, p)
	if err != nil {
		out.fail(StateMergeFailed, err)
		log.Error("Merge failed: %v", err)
		out.Notified = m.maint.notifyFresh(ctx, p.Package, err)
		return
	}

	out.transition(StateMerged)
	if p.TargetVersion != "" {
		log.Info("Merged update to %s", p.TargetVersion)
	} else {
		log.Info("Merged %s", p.Branch)
	}
}

func (m *MergeCoordinator) mergeAndPush(ctx context.Context, p *Proposal) error {
	co, err := m.workspace.Acquire(ctx, p.Package)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := m.workspace.Release(context.WithoutCancel(ctx), co); rerr != nil {
			m.log.WithPackage(p.Package).Warn("%v", rerr)
		}
	}()

	if err := co.Git.Merge(ctx, m.remote+"/"+p.Branch); err != nil {
		if errors.Is(err, ErrMergeConflict) {
			if aerr := co.Git.MergeAbort(context.WithoutCancel(ctx)); aerr != nil {
				m.log.WithPackage(p.Package).Warn("Failed to abort merge: %v", aerr)
			}
		}
		return err
	}

	if err := co.Git.Push(ctx, m.remote, p.Package); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPushFailed, p.Package, err)
	}
	return nil
}

// Fail discards the proposal after a CI failure or timeout and notifies the
// maintainers found on a fresh checkout of the package branch. Nothing is
// discarded once ctx is cancelled; the next run sees the same verdict.
func (m *MergeCoordinator) Fail(ctx context.Context, p *Proposal, out *Outcome, state State, reason error) {
	log := m.log.WithPackage(p.Package)
	if err := ctx.Err(); err != nil {
		out.setErr(fmt.Errorf("%w: %w", err, reason))
		log.Warn("Interrupted before discarding %s: %v", p.Branch, reason)
		return
	}
	if errors.Is(reason, ErrCheckRunTimeout) {
		log.Warn("Discarding proposal: %v", reason)
	} else {
		log.Error("Discarding proposal: %v", reason)
	}

	m.discard(ctx, p)
	out.fail(state, reason)
	out.Notified = m.maint.notifyFresh(ctx, p.Package, reason)
}

// discard deletes the remote proposal branch, at most once per proposal
func (m *MergeCoordinator) discard(ctx context.Context, p *Proposal) {
	err := p.discard(func() error {
		return m.workspace.DeleteRemoteBranch(context.WithoutCancel(ctx), p.Branch)
	})
	if err != nil {
		m.log.WithPackage(p.Package).Warn("Failed to delete %s: %v", p.Branch, err)
	}
}
