package main

import (
	"fmt"
	"io"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/autoupdate"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/output"
)

// printReport renders one line per package followed by state totals
func printReport(w io.Writer, r *autoupdate.Report) {
	fmt.Fprintln(w)
	output.Header.Fprintf(w, "Autoupdate results for %s\n", r.Repository)
	fmt.Fprintln(w)

	if len(r.Outcomes) == 0 {
		output.Dim.Fprintln(w, "  No packages found")
		return
	}

	for _, o := range r.Outcomes {
		line := fmt.Sprintf("  %s %s %s",
			output.FormatState(string(o.State)),
			output.FormatPackage(o.Package),
			output.FormatVersionChange(o.CurrentVersion, o.TargetVersion))
		if o.Resumed {
			line += output.Sprintf(output.Dim, " (resumed)")
		}
		if o.Polls > 0 {
			line += output.Sprintf(output.Dim, " [%d poll(s)]", o.Polls)
		}
		fmt.Fprintln(w, line)
		if o.Error != "" {
			style := output.Error
			if o.Skipped {
				style = output.Dim
			}
			style.Fprintf(w, "      %s\n", o.Error)
		}
	}

	counts := r.Counts()
	fmt.Fprintln(w)
	for _, s := range autoupdate.States() {
		if counts[s] > 0 {
			fmt.Fprintf(w, "  %s %d\n", output.FormatState(string(s)), counts[s])
		}
	}

	failed := r.Failed()
	fmt.Fprintln(w)
	switch {
	case len(failed) > 0:
		output.Warning.Fprintf(w, "%d package(s) failed\n", len(failed))
	case counts[autoupdate.StateMerged] > 0:
		output.Success.Fprintf(w, "%d package(s) updated\n", counts[autoupdate.StateMerged])
	default:
		output.Success.Fprintln(w, "Nothing to update")
	}
}

// printCheckResults renders the dry-run view
func printCheckResults(w io.Writer, results []autoupdate.CheckResult) {
	if len(results) == 0 {
		output.Dim.Fprintln(w, "No packages found")
		return
	}

	var updatesFound, errorsFound int

	fmt.Fprintln(w)
	output.Header.Fprintln(w, "Version Check Results")
	fmt.Fprintln(w)

	for _, r := range results {
		if r.Err != nil {
			errorsFound++
			output.Error.Fprintf(w, "  %s: %v\n", r.Package, r.Err)
			continue
		}
		if r.UpdateAvailable {
			updatesFound++
			output.Success.Fprintf(w, "  %s: %s\n", r.Package, output.FormatVersionChange(r.CurrentVersion, r.UpstreamVersion))
		} else {
			output.Dim.Fprintf(w, "  %s: %s (up to date)\n", r.Package, r.CurrentVersion)
		}
	}

	fmt.Fprintln(w)
	if updatesFound > 0 {
		output.Info.Fprintf(w, "Found %d update(s) available\n", updatesFound)
	} else {
		output.Success.Fprintln(w, "All packages are up to date")
	}
	if errorsFound > 0 {
		output.Warning.Fprintf(w, "%d package(s) had errors\n", errorsFound)
	}
}

// printPackages lists package branches, marking proposals in flight
func printPackages(w io.Writer, pkgs []string, heads, branches map[string]string) {
	if len(pkgs) == 0 {
		output.Dim.Fprintln(w, "No packages found")
		return
	}
	for _, pkg := range pkgs {
		sha, inFlight := heads[pkg]
		if !inFlight {
			fmt.Fprintf(w, "  %s\n", output.FormatPackage(pkg))
			continue
		}
		if len(sha) > 12 {
			sha = sha[:12]
		}
		fmt.Fprintf(w, "  %s %s\n", output.FormatPackage(pkg),
			output.Sprintf(output.Proposed, "(proposal %s at %s)", branches[pkg], sha))
	}
}
