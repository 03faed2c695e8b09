package autoupdate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleReport() *Report {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &Report{Repository: "alpa-team/alpa-repo", StartedAt: start, FinishedAt: start.Add(time.Hour)}
	r.add(&Outcome{Package: "foo", State: StateMerged, CurrentVersion: "1.2.0", TargetVersion: "1.3.0", Commit: "abc", Polls: 2})
	r.add(&Outcome{Package: "bar", State: StateNoUpdate})
	r.add(&Outcome{Package: "baz", State: StateCIFailed, Error: "check run failed"})
	r.add(&Outcome{Package: "qux", State: StateProposalFailed, Skipped: true})
	r.add(&Outcome{Package: "zed", State: StateTimedOut})
	r.sort()
	return r
}

func TestReportQueries(t *testing.T) {
	r := sampleReport()

	counts := r.Counts()
	if counts[StateMerged] != 1 || counts[StateNoUpdate] != 1 || counts[StateProposalFailed] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}

	failed := r.Failed()
	if len(failed) != 2 || failed[0].Package != "baz" || failed[1].Package != "zed" {
		t.Errorf("unexpected failures %v", failed)
	}
	if skipped := r.Skipped(); len(skipped) != 1 || skipped[0].Package != "qux" {
		t.Errorf("unexpected skipped %v", skipped)
	}

	if o, ok := r.Get("foo"); !ok || o.Polls != 2 {
		t.Errorf("Get(foo) = %v, %v", o, ok)
	}
	if _, ok := r.Get("nope"); ok {
		t.Error("Get(nope) should miss")
	}
}

func TestReportAddReplaces(t *testing.T) {
	r := &Report{}
	r.add(&Outcome{Package: "foo", State: StateProposed})
	r.add(&Outcome{Package: "foo", State: StateMerged})
	if len(r.Outcomes) != 1 || r.Outcomes[0].State != StateMerged {
		t.Errorf("unexpected outcomes %v", r.Outcomes)
	}
}

func TestReportWriteFile(t *testing.T) {
	r := sampleReport()
	path := filepath.Join(t.TempDir(), "out", "report.json")

	if err := r.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	loaded, err := LoadReport(path)
	if err != nil {
		t.Fatalf("LoadReport: %v", err)
	}
	if loaded.Repository != r.Repository || len(loaded.Outcomes) != len(r.Outcomes) {
		t.Fatalf("unexpected report %+v", loaded)
	}
	foo, _ := loaded.Get("foo")
	if foo.State != StateMerged || foo.TargetVersion != "1.3.0" {
		t.Errorf("unexpected foo %+v", foo)
	}
	if len(loaded.Failed()) != 2 {
		t.Errorf("expected 2 failures after reload, got %d", len(loaded.Failed()))
	}
}

func TestLoadReportCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadReport(path); !errors.Is(err, ErrReportCorrupted) {
		t.Errorf("expected ErrReportCorrupted, got %v", err)
	}
	if _, err := LoadReport(filepath.Join(t.TempDir(), "missing.json")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
