package autoupdate

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/git"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/github"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/logger"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/metadata"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/recipe"
)

func quietLogger() *logger.Logger {
	return logger.New(io.Discard)
}

// fakeWorkspace hands out one MockGitRunner per package
type fakeWorkspace struct {
	mu            sync.Mutex
	runners       map[string]*git.MockGitRunner
	acquired      map[string]int
	released      map[string]int
	localDeleted  []string
	remoteDeleted []string
	acquireErr    map[string]error
	syncErr       error
	syncs         int
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{
		runners:    make(map[string]*git.MockGitRunner),
		acquired:   make(map[string]int),
		released:   make(map[string]int),
		acquireErr: make(map[string]error),
	}
}

// runner returns the executor of a package, creating it on first use
func (w *fakeWorkspace) runner(pkg string) *git.MockGitRunner {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runnerLocked(pkg)
}

func (w *fakeWorkspace) runnerLocked(pkg string) *git.MockGitRunner {
	r, ok := w.runners[pkg]
	if !ok {
		r = git.NewMockGitRunner(filepath.Join("/work", pkg))
		r.RevParseFunc = func(rev string) (string, error) {
			return "sha-" + pkg, nil
		}
		w.runners[pkg] = r
	}
	return r
}

func (w *fakeWorkspace) Sync(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.syncs++
	return w.syncErr
}

func (w *fakeWorkspace) Acquire(ctx context.Context, pkg string) (*Checkout, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.acquireErr[pkg]; err != nil {
		return nil, err
	}
	w.acquired[pkg]++
	r := w.runnerLocked(pkg)
	return &Checkout{Package: pkg, Dir: r.WorkDir(), Git: r}, nil
}

func (w *fakeWorkspace) Release(ctx context.Context, co *Checkout) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released[co.Package]++
	return nil
}

func (w *fakeWorkspace) DeleteLocalBranch(ctx context.Context, branch string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.localDeleted = append(w.localDeleted, branch)
	return nil
}

func (w *fakeWorkspace) DeleteRemoteBranch(ctx context.Context, branch string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.remoteDeleted = append(w.remoteDeleted, branch)
	return nil
}

func (w *fakeWorkspace) remoteDeletions(branch string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.remoteDeleted {
		if b == branch {
			n++
		}
	}
	return n
}

func (w *fakeWorkspace) balanced(pkg string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acquired[pkg] == w.released[pkg]
}

// fakeMetadata serves metadata by package, keyed on the checkout directory name
type fakeMetadata map[string]*metadata.Metadata

func (f fakeMetadata) Load(dir string) (*metadata.Metadata, error) {
	m, ok := f[filepath.Base(dir)]
	if !ok {
		return nil, fmt.Errorf("%w in %s", metadata.ErrNotFound, dir)
	}
	return m, nil
}

func autoupdateMeta(upstream string, emails ...string) *metadata.Metadata {
	m := &metadata.Metadata{
		Autoupdate: &metadata.Autoupdate{UpstreamPkgName: upstream, Backend: "PyPI"},
	}
	for _, e := range emails {
		m.Maintainers = append(m.Maintainers, metadata.Maintainer{Email: e})
	}
	return m
}

// fakeUpstream returns fixed versions and tracks concurrent lookups
type fakeUpstream struct {
	versions map[string]string
	errs     map[string]error
	calls    atomic.Int32
	active   atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeUpstream) LatestVersion(ctx context.Context, name, backend string) (string, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if err := f.errs[name]; err != nil {
		return "", err
	}
	v, ok := f.versions[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUpstreamNotFound, name)
	}
	return v, nil
}

// fakeRecipes keeps declared versions in memory
type fakeRecipes struct {
	mu       sync.Mutex
	versions map[string]string
	writes   []string
}

func newFakeRecipes(versions map[string]string) *fakeRecipes {
	return &fakeRecipes{versions: versions}
}

func (f *fakeRecipes) ReadVersion(dir, pkg string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[pkg]
	if !ok {
		return "", fmt.Errorf("%w: %s", recipe.ErrRecipeNotFound, pkg)
	}
	return v, nil
}

func (f *fakeRecipes) WriteVersion(dir, pkg, version string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[pkg] = version
	f.writes = append(f.writes, pkg+"="+version)
	return recipe.FileName(pkg), nil
}

// fakeCI plays back batches per commit; the last batch repeats
type fakeCI struct {
	mu      sync.Mutex
	batches map[string][][]github.CheckRun
	errs    map[string]error
	polls   map[string]int
}

func newFakeCI() *fakeCI {
	return &fakeCI{
		batches: make(map[string][][]github.CheckRun),
		errs:    make(map[string]error),
		polls:   make(map[string]int),
	}
}

func (f *fakeCI) script(sha string, batches ...[]github.CheckRun) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[sha] = batches
}

func (f *fakeCI) ListCheckRuns(ctx context.Context, sha string) ([]github.CheckRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls[sha]
	f.polls[sha]++
	if err := f.errs[sha]; err != nil {
		return nil, err
	}
	batches := f.batches[sha]
	if len(batches) == 0 {
		return nil, nil
	}
	if i >= len(batches) {
		i = len(batches) - 1
	}
	return batches[i], nil
}

func (f *fakeCI) pollCount(sha string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[sha]
}

func run(status, conclusion string) github.CheckRun {
	return github.CheckRun{Name: "build", Status: status, Conclusion: conclusion}
}

var (
	passed     = []github.CheckRun{run("completed", "success")}
	failed     = []github.CheckRun{run("completed", "success"), run("completed", "failure")}
	inProgress = []github.CheckRun{run("in_progress", "")}
)

type sentMail struct {
	to, subject, body string
}

// fakeNotifier records messages and fails for listed recipients
type fakeNotifier struct {
	mu     sync.Mutex
	sent   []sentMail
	failTo map[string]bool
}

func (f *fakeNotifier) Send(ctx context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[to] {
		return fmt.Errorf("rejected %s", to)
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (f *fakeNotifier) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		out = append(out, m.to)
	}
	return out
}

// fakeSource lists fixed packages and proposals
type fakeSource struct {
	packages []string
	heads    map[string]string
	err      error
}

func (f *fakeSource) ListPackages(remote, prefix string, exclude []string) ([]string, error) {
	return f.packages, f.err
}

func (f *fakeSource) ProposalHeads(remote, prefix string) (map[string]string, error) {
	if f.heads == nil {
		return map[string]string{}, nil
	}
	return f.heads, nil
}

// countingSleep records requested waits without sleeping
type countingSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *countingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *countingSleep) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waits)
}
