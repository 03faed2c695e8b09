package autoupdate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrReportCorrupted is returned when a report file cannot be parsed
var ErrReportCorrupted = errors.New("report file is corrupted")

// Report is the structured result of one engine run
type Report struct {
	Repository string     `json:"repository,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Outcomes   []*Outcome `json:"outcomes"`
}

// add inserts or replaces the outcome of a package
func (r *Report) add(o *Outcome) {
	for i, existing := range r.Outcomes {
		if existing.Package == o.Package {
			r.Outcomes[i] = o
			return
		}
	}
	r.Outcomes = append(r.Outcomes, o)
}

func (r *Report) sort() {
	sort.Slice(r.Outcomes, func(i, j int) bool {
		return r.Outcomes[i].Package < r.Outcomes[j].Package
	})
}

// Get returns the outcome of a package
func (r *Report) Get(pkg string) (*Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Package == pkg {
			return o, true
		}
	}
	return nil, false
}

// Counts tallies outcomes by state
func (r *Report) Counts() map[State]int {
	counts := make(map[State]int)
	for _, o := range r.Outcomes {
		counts[o.State]++
	}
	return counts
}

// Failed returns outcomes that ended in a failure state. Packages skipped
// for lack of autoupdate configuration are not failures.
func (r *Report) Failed() []*Outcome {
	var failed []*Outcome
	for _, o := range r.Outcomes {
		if o.State.Failed() && !o.Skipped {
			failed = append(failed, o)
		}
	}
	return failed
}

// Skipped returns outcomes of packages without autoupdate configuration
func (r *Report) Skipped() []*Outcome {
	var skipped []*Outcome
	for _, o := range r.Outcomes {
		if o.Skipped {
			skipped = append(skipped, o)
		}
	}
	return skipped
}

// WriteFile stores the report as indented JSON, replacing path atomically
func (r *Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	// Write to temp file first, then rename for atomicity
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename report: %w", err)
	}
	return nil
}

// LoadReport reads a report written by WriteFile
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReportCorrupted, err)
	}
	return &r, nil
}
