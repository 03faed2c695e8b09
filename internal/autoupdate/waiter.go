package autoupdate

import (
	"context"
	"fmt"
	"time"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/github"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/logger"
)

// Verdict is the interpretation of one or more check-run polls
type Verdict int

const (
	VerdictPending Verdict = iota
	VerdictSuccess
	VerdictFailure
	VerdictTimeout
	VerdictCancelled
)

func (v Verdict) String() string {
	switch v {
	case VerdictPending:
		return "pending"
	case VerdictSuccess:
		return "success"
	case VerdictFailure:
		return "failure"
	case VerdictTimeout:
		return "timeout"
	case VerdictCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// Classify interprets one batch of check runs. A failed run wins over
// everything else; any unfinished run keeps the batch pending. A batch with
// no runs has nothing left to wait for and counts as success.
func Classify(runs []github.CheckRun) Verdict {
	pending := false
	for _, run := range runs {
		if run.Failed() {
			return VerdictFailure
		}
		if run.Running() {
			pending = true
		}
	}
	if pending {
		return VerdictPending
	}
	return VerdictSuccess
}

// WaitResult is how waiting on one proposal ended
type WaitResult struct {
	Verdict Verdict
	Polls   int
	Err     error
}

// Waiter polls check runs of a proposal commit with a fixed budget
type Waiter struct {
	ci       CIStatusLookup
	maxPolls int
	interval time.Duration
	metrics  *Metrics
	log      *logger.Logger
	sleep    func(context.Context, time.Duration) error
}

// NewWaiter creates a waiter doing at most maxPolls polls, interval apart
func NewWaiter(ci CIStatusLookup, maxPolls int, interval time.Duration, metrics *Metrics, log *logger.Logger) *Waiter {
	if log == nil {
		log = logger.Default()
	}
	return &Waiter{
		ci:       ci,
		maxPolls: maxPolls,
		interval: interval,
		metrics:  metrics,
		log:      log,
		sleep:    sleepContext,
	}
}

// SetSleepFunc replaces the wait between polls (useful for testing)
func (w *Waiter) SetSleepFunc(fn func(context.Context, time.Duration) error) {
	w.sleep = fn
}

// Wait polls until a definitive verdict, the poll budget runs out, or ctx is done.
// There is no sleep after the last poll.
func (w *Waiter) Wait(ctx context.Context, p *Proposal) WaitResult {
	log := w.log.WithPackage(p.Package)
	res := WaitResult{}

	for res.Polls < w.maxPolls {
		if err := ctx.Err(); err != nil {
			res.Verdict, res.Err = VerdictCancelled, err
			return res
		}

		res.Polls++
		w.metrics.observePoll()
		runs, err := w.ci.ListCheckRuns(ctx, p.Commit)
		if err != nil {
			if ctx.Err() != nil {
				res.Verdict, res.Err = VerdictCancelled, ctx.Err()
				return res
			}
			res.Verdict = VerdictFailure
			res.Err = fmt.Errorf("%w: %v", ErrCheckRunFetch, err)
			return res
		}

		switch v := Classify(runs); v {
		case VerdictFailure:
			res.Verdict = v
			res.Err = fmt.Errorf("%w: %s", ErrCheckRunFailed, failedNames(runs))
			return res
		case VerdictSuccess:
			res.Verdict = v
			log.Info("All %d check run(s) passed after %d poll(s)", len(runs), res.Polls)
			return res
		}

		log.Debug("Check runs pending (%d/%d)", res.Polls, w.maxPolls)
		if res.Polls >= w.maxPolls {
			break
		}
		if err := w.sleep(ctx, w.interval); err != nil {
			res.Verdict, res.Err = VerdictCancelled, err
			return res
		}
	}

	res.Verdict = VerdictTimeout
	res.Err = fmt.Errorf("%w after %d poll(s)", ErrCheckRunTimeout, res.Polls)
	log.Warn("Gave up waiting for check runs after %d poll(s)", res.Polls)
	return res
}

func failedNames(runs []github.CheckRun) string {
	var names []string
	for _, run := range runs {
		if run.Failed() {
			names = append(names, run.Name)
		}
	}
	return fmt.Sprintf("%q", names)
}
