package autoupdate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/git"
)

type mergerFixture struct {
	ws       *fakeWorkspace
	meta     fakeMetadata
	notifier *fakeNotifier
	merger   *MergeCoordinator
}

func newMergerFixture() *mergerFixture {
	f := &mergerFixture{
		ws:       newFakeWorkspace(),
		meta:     fakeMetadata{"foo": autoupdateMeta("foo", "alice@example.com", "bob@example.com")},
		notifier: &fakeNotifier{},
	}
	f.merger = NewMergeCoordinator(f.ws, f.meta, f.notifier, "origin", quietLogger())
	return f
}

func awaitingProposal() (*Proposal, *Outcome) {
	p := &Proposal{
		Package:        "foo",
		Branch:         "__alpa_autoupdate_foo",
		CurrentVersion: "1.2.0",
		TargetVersion:  "1.3.0",
		Commit:         "sha-foo",
	}
	out := &Outcome{Package: "foo", State: StateAwaitingCI}
	return p, out
}

func TestMergeSuccess(t *testing.T) {
	f := newMergerFixture()
	p, out := awaitingProposal()

	f.merger.Merge(context.Background(), p, out)

	if out.State != StateMerged {
		t.Fatalf("expected MERGED, got %s (%v)", out.State, out.Err())
	}
	calls := f.ws.runner("foo").Calls()
	want := []string{"merge origin/__alpa_autoupdate_foo", "push origin foo"}
	if len(calls) != len(want) || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("expected %v, got %v", want, calls)
	}
	if n := f.ws.remoteDeletions("__alpa_autoupdate_foo"); n != 1 {
		t.Errorf("expected proposal deleted once, got %d", n)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("expected no notifications, got %v", f.notifier.recipients())
	}
	if !f.ws.balanced("foo") {
		t.Error("checkout not released")
	}
}

func TestMergeFailures(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(r *git.MockGitRunner)
		wantErr   error
		wantAbort bool
		wantPush  bool
	}{
		{
			name: "conflict",
			setup: func(r *git.MockGitRunner) {
				r.MergeFunc = func(branch string) error {
					return &git.ConflictError{Branch: branch, Files: []string{"foo.spec"}}
				}
			},
			wantErr:   ErrMergeConflict,
			wantAbort: true,
		},
		{
			name: "merge command error",
			setup: func(r *git.MockGitRunner) {
				r.MergeFunc = func(branch string) error { return git.ErrGitCommand }
			},
			wantErr: git.ErrGitCommand,
		},
		{
			name: "push rejected",
			setup: func(r *git.MockGitRunner) {
				r.PushFunc = func(remote, branch string) error { return errors.New("non-fast-forward") }
			},
			wantErr:  ErrPushFailed,
			wantPush: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMergerFixture()
			tt.setup(f.ws.runner("foo"))
			p, out := awaitingProposal()

			f.merger.Merge(context.Background(), p, out)

			if out.State != StateMergeFailed {
				t.Fatalf("expected MERGE_FAILED, got %s", out.State)
			}
			if !errors.Is(out.Err(), tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, out.Err())
			}
			r := f.ws.runner("foo")
			if got := r.CallCount("merge-abort") == 1; got != tt.wantAbort {
				t.Errorf("merge abort: expected %v, calls %v", tt.wantAbort, r.Calls())
			}
			if got := r.CallCount("push") == 1; got != tt.wantPush {
				t.Errorf("push: expected %v, calls %v", tt.wantPush, r.Calls())
			}
			if n := f.ws.remoteDeletions("__alpa_autoupdate_foo"); n != 1 {
				t.Errorf("expected proposal deleted once, got %d", n)
			}
			if out.Notified != 2 || len(f.notifier.sent) != 2 {
				t.Errorf("expected 2 notifications, got %d", len(f.notifier.sent))
			}
			if !f.ws.balanced("foo") {
				t.Error("checkout not released")
			}
		})
	}
}

func TestFailNotifiesEveryMaintainer(t *testing.T) {
	f := newMergerFixture()
	p, out := awaitingProposal()
	reason := errors.Join(ErrCheckRunFailed, errors.New(`["build"]`))

	f.merger.Fail(context.Background(), p, out, StateCIFailed, reason)

	if out.State != StateCIFailed || !errors.Is(out.Err(), ErrCheckRunFailed) {
		t.Fatalf("expected CI_FAILED, got %s (%v)", out.State, out.Err())
	}
	if f.ws.runner("foo").CallCount("merge") != 0 {
		t.Error("failed proposal must not be merged")
	}
	if n := f.ws.remoteDeletions("__alpa_autoupdate_foo"); n != 1 {
		t.Errorf("expected proposal deleted once, got %d", n)
	}

	got := f.notifier.recipients()
	if len(got) != 2 || got[0] != "alice@example.com" || got[1] != "bob@example.com" {
		t.Errorf("unexpected recipients %v", got)
	}
	for _, m := range f.notifier.sent {
		if m.subject != "[Alpa-autoupdate] Your update of package foo failed" {
			t.Errorf("unexpected subject %q", m.subject)
		}
		if !strings.HasPrefix(m.body, "Hello! We want to notify you, that your scheduled update of package foo failed") {
			t.Errorf("unexpected body %q", m.body)
		}
		if !strings.Contains(m.body, "check run failed") {
			t.Errorf("body does not carry the reason: %q", m.body)
		}
	}
}

func TestFailToleratesMissingMetadata(t *testing.T) {
	f := newMergerFixture()
	delete(f.meta, "foo")
	p, out := awaitingProposal()

	f.merger.Fail(context.Background(), p, out, StateTimedOut, ErrCheckRunTimeout)

	if out.State != StateTimedOut {
		t.Fatalf("expected TIMED_OUT, got %s", out.State)
	}
	if out.Notified != 0 || len(f.notifier.sent) != 0 {
		t.Errorf("expected nobody notified, got %v", f.notifier.recipients())
	}
	if n := f.ws.remoteDeletions("__alpa_autoupdate_foo"); n != 1 {
		t.Errorf("expected proposal deleted once, got %d", n)
	}
}

func TestFailDeliveryErrorsDoNotEscalate(t *testing.T) {
	f := newMergerFixture()
	f.notifier.failTo = map[string]bool{"alice@example.com": true}
	p, out := awaitingProposal()

	f.merger.Fail(context.Background(), p, out, StateCIFailed, ErrCheckRunFailed)

	if out.State != StateCIFailed || !errors.Is(out.Err(), ErrCheckRunFailed) {
		t.Fatalf("delivery error changed the outcome: %s (%v)", out.State, out.Err())
	}
	if out.Notified != 1 {
		t.Errorf("expected 1 delivered notification, got %d", out.Notified)
	}
}

func TestFailWithoutNotifier(t *testing.T) {
	ws := newFakeWorkspace()
	m := NewMergeCoordinator(ws, fakeMetadata{"foo": autoupdateMeta("foo", "a@example.com")}, nil, "origin", quietLogger())
	p, out := awaitingProposal()

	m.Fail(context.Background(), p, out, StateCIFailed, ErrCheckRunFailed)

	if out.State != StateCIFailed || out.Notified != 0 {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestMergeInterruptedKeepsProposal(t *testing.T) {
	f := newMergerFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.ws.runner("foo").PushFunc = func(remote, branch string) error {
		cancel()
		return context.Canceled
	}
	p, out := awaitingProposal()

	f.merger.Merge(ctx, p, out)

	if out.State != StateAwaitingCI || !errors.Is(out.Err(), context.Canceled) {
		t.Fatalf("expected AWAITING_CI with the cancellation, got %s (%v)", out.State, out.Err())
	}
	if n := len(f.ws.remoteDeleted); n != 0 {
		t.Errorf("proposal must survive for the next run, got deletions %v", f.ws.remoteDeleted)
	}
	if len(f.notifier.sent) != 0 || out.Notified != 0 {
		t.Errorf("expected no notifications, got %v", f.notifier.recipients())
	}
	if !f.ws.balanced("foo") {
		t.Error("checkout not released")
	}
}

func TestFailAfterCancellationKeepsProposal(t *testing.T) {
	f := newMergerFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, out := awaitingProposal()

	f.merger.Fail(ctx, p, out, StateCIFailed, ErrCheckRunFailed)

	if out.State != StateAwaitingCI {
		t.Fatalf("expected AWAITING_CI, got %s", out.State)
	}
	if !errors.Is(out.Err(), context.Canceled) || !errors.Is(out.Err(), ErrCheckRunFailed) {
		t.Errorf("expected both causes recorded, got %v", out.Err())
	}
	if n := len(f.ws.remoteDeleted); n != 0 {
		t.Errorf("expected no deletions, got %v", f.ws.remoteDeleted)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("expected no notifications, got %v", f.notifier.recipients())
	}
}

func TestProposalDeletedExactlyOnce(t *testing.T) {
	f := newMergerFixture()
	p, _ := awaitingProposal()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.merger.discard(context.Background(), p)
		}()
	}
	wg.Wait()

	if n := f.ws.remoteDeletions("__alpa_autoupdate_foo"); n != 1 {
		t.Errorf("expected exactly one deletion, got %d", n)
	}
}
