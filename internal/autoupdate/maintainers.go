package autoupdate

import (
	"context"
	"errors"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/logger"
)

// maintainerNotifier sends failure notices to the maintainers of a package
type maintainerNotifier struct {
	workspace Workspace
	metadata  MetadataStore
	notifier  Notifier
	log       *logger.Logger
}

// notify sends the failure notice to every address and returns how many were delivered.
// Delivery errors are logged only.
func (n *maintainerNotifier) notify(ctx context.Context, pkg string, emails []string, reason error) int {
	log := n.log.WithPackage(pkg)
	if n.notifier == nil {
		if len(emails) > 0 {
			log.Warn("Notifications are not configured, %d maintainer(s) not notified", len(emails))
		}
		return 0
	}

	sent := 0
	subject := FailureSubject(pkg)
	body := FailureBody(pkg, reason)
	for _, to := range emails {
		if err := n.notifier.Send(ctx, to, subject, body); err != nil {
			log.Error("Failed to notify %s: %v", to, err)
			continue
		}
		log.Debug("Notified %s", to)
		sent++
	}
	return sent
}

// notifyFresh reads the maintainer list from a new checkout of the package branch
// and notifies them. Missing metadata means nobody is notified.
func (n *maintainerNotifier) notifyFresh(ctx context.Context, pkg string, reason error) int {
	log := n.log.WithPackage(pkg)
	cleanupCtx := context.WithoutCancel(ctx)

	co, err := n.workspace.Acquire(cleanupCtx, pkg)
	if err != nil {
		log.Warn("Cannot check out package to find maintainers: %v", err)
		return 0
	}
	meta, err := n.metadata.Load(co.Dir)
	if rerr := n.workspace.Release(cleanupCtx, co); rerr != nil {
		log.Warn("%v", rerr)
	}
	if err != nil {
		log.Warn("No maintainers to notify: %v", errors.Join(ErrMetadataMissing, err))
		return 0
	}
	return n.notify(ctx, pkg, meta.MaintainerEmails(), reason)
}
