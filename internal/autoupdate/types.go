package autoupdate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/git"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/github"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/metadata"
)

// Error variables for package update failures
var (
	// ErrMetadataMissing is returned when the package has no readable metadata file
	ErrMetadataMissing = errors.New("package metadata missing")
	// ErrNoAutoupdateConfig is returned when metadata has no update source
	ErrNoAutoupdateConfig = errors.New("autoupdate is not configured for package")
	// ErrUpstreamNotFound is returned when the release-monitoring service has no matching project
	ErrUpstreamNotFound = errors.New("upstream project not found")
	// ErrUpstreamRequest is returned when the release-monitoring service cannot be queried
	ErrUpstreamRequest = errors.New("upstream version request failed")
	// ErrPushFailed is returned when a branch cannot be pushed
	ErrPushFailed = errors.New("push failed")
	// ErrMergeConflict is returned when the proposal does not merge cleanly
	ErrMergeConflict = git.ErrMergeConflict
	// ErrCheckRunFailed is returned when at least one check run concluded with failure
	ErrCheckRunFailed = errors.New("check run failed")
	// ErrCheckRunTimeout is returned when the poll budget is exhausted
	ErrCheckRunTimeout = errors.New("timed out waiting for check runs")
	// ErrCheckRunFetch is returned when check runs cannot be fetched
	ErrCheckRunFetch = errors.New("failed to fetch check runs")
	// ErrProposalInFlight is returned when a package already has an unresolved proposal
	ErrProposalInFlight = errors.New("proposal already in flight")
	// ErrInvalidStateTransition is returned when a package state change is not allowed
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrUnknownPackage is returned when a requested package has no branch
	ErrUnknownPackage = errors.New("unknown package")
)

// State is the position of one package in its update cycle
type State string

const (
	StateChecking       State = "CHECKING"
	StateNoUpdate       State = "NO_UPDATE"
	StateProposed       State = "PROPOSED"
	StateProposalFailed State = "PROPOSAL_FAILED"
	StateAwaitingCI     State = "AWAITING_CI"
	StateMerged         State = "MERGED"
	StateMergeFailed    State = "MERGE_FAILED"
	StateCIFailed       State = "CI_FAILED"
	StateTimedOut       State = "TIMED_OUT"
)

// States returns every state in cycle order
func States() []State {
	return []State{
		StateChecking, StateNoUpdate, StateProposed, StateProposalFailed,
		StateAwaitingCI, StateMerged, StateMergeFailed, StateCIFailed, StateTimedOut,
	}
}

var transitions = map[State][]State{
	StateChecking:   {StateNoUpdate, StateProposed, StateProposalFailed},
	StateProposed:   {StateAwaitingCI},
	StateAwaitingCI: {StateMerged, StateMergeFailed, StateCIFailed, StateTimedOut},
}

// CanTransition reports whether a package may move from one state to another
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Failed reports whether the state is a terminal failure
func (s State) Failed() bool {
	switch s {
	case StateProposalFailed, StateMergeFailed, StateCIFailed, StateTimedOut:
		return true
	}
	return false
}

// Proposal is a pushed temporary branch carrying one version bump
type Proposal struct {
	Package        string
	Branch         string
	CurrentVersion string
	TargetVersion  string
	Commit         string
	// Resumed is set when the branch was left on the remote by an earlier run
	Resumed bool

	cleanupOnce sync.Once
	cleanupErr  error
}

// discard runs fn at most once for the proposal and returns its result on every call
func (p *Proposal) discard(fn func() error) error {
	p.cleanupOnce.Do(func() {
		p.cleanupErr = fn()
	})
	return p.cleanupErr
}

// CommitMessage returns the message of the version bump commit
func CommitMessage(pkg, version string) string {
	return fmt.Sprintf("[alpa]: autoupdate of package %s to version %s", pkg, version)
}

// FailureSubject returns the subject of the maintainer failure notification
func FailureSubject(pkg string) string {
	return fmt.Sprintf("[Alpa-autoupdate] Your update of package %s failed", pkg)
}

// FailureBody returns the plain-text body of the maintainer failure notification
func FailureBody(pkg string, reason error) string {
	body := fmt.Sprintf("Hello! We want to notify you, that your scheduled update of package %s failed", pkg)
	if reason != nil {
		body += "\n\nReason: " + reason.Error()
	}
	return body
}

// MetadataStore loads package metadata from a checkout
type MetadataStore interface {
	Load(dir string) (*metadata.Metadata, error)
}

// VersionLookup returns the latest upstream version of a project
type VersionLookup interface {
	LatestVersion(ctx context.Context, name, backend string) (string, error)
}

// CIStatusLookup returns the check runs reported for a commit
type CIStatusLookup interface {
	ListCheckRuns(ctx context.Context, sha string) ([]github.CheckRun, error)
}

// Notifier delivers one message to one recipient
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// RecipeEditor reads and bumps the declared version of a package recipe
type RecipeEditor interface {
	ReadVersion(dir, pkg string) (string, error)
	// WriteVersion returns the recipe path relative to dir
	WriteVersion(dir, pkg, version string) (string, error)
}

// PackageSource enumerates package branches and in-flight proposals
type PackageSource interface {
	ListPackages(remote, prefix string, exclude []string) ([]string, error)
	ProposalHeads(remote, prefix string) (map[string]string, error)
}

// Outcome is the result of one package's update cycle
type Outcome struct {
	Package         string    `json:"package"`
	State           State     `json:"state"`
	CurrentVersion  string    `json:"current_version,omitempty"`
	TargetVersion   string    `json:"target_version,omitempty"`
	Branch          string    `json:"branch,omitempty"`
	Commit          string    `json:"commit,omitempty"`
	Resumed         bool      `json:"resumed,omitempty"`
	Skipped         bool      `json:"skipped,omitempty"`
	Polls           int       `json:"polls,omitempty"`
	Notified        int       `json:"notified,omitempty"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`

	err error
}

func newOutcome(pkg string, now time.Time) *Outcome {
	return &Outcome{Package: pkg, State: StateChecking, StartedAt: now}
}

// Err returns the error that ended the cycle, if any
func (o *Outcome) Err() error {
	return o.err
}

// transition moves the outcome to a new state
func (o *Outcome) transition(to State) error {
	if !CanTransition(o.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, o.State, to)
	}
	o.State = to
	return nil
}

// fail moves the outcome to a failure state and records the cause
func (o *Outcome) fail(to State, err error) error {
	if terr := o.transition(to); terr != nil {
		return terr
	}
	o.setErr(err)
	return nil
}

func (o *Outcome) setErr(err error) {
	o.err = err
	if err != nil {
		o.Error = err.Error()
		o.Skipped = errors.Is(err, ErrNoAutoupdateConfig)
	}
}

// applyProposal copies proposal details into the outcome
func (o *Outcome) applyProposal(p *Proposal) {
	if p == nil {
		return
	}
	o.Branch = p.Branch
	o.Commit = p.Commit
	o.Resumed = p.Resumed
	if p.CurrentVersion != "" {
		o.CurrentVersion = p.CurrentVersion
	}
	if p.TargetVersion != "" {
		o.TargetVersion = p.TargetVersion
	}
}
