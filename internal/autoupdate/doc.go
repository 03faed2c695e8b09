// Package autoupdate drives packages of an alpa repository through their
// update cycle.
//
// Every package lives on its own branch. A run has two phases:
//   - propose: for each package, compare the recipe version with the latest
//     release known to release-monitoring.org and, when upstream is newer,
//     push a proposal branch carrying the version bump
//   - resolve: after a settle delay, poll the check runs of every proposal
//     commit, merge the ones that pass and notify maintainers of the rest
//
// Each package is worked on in its own git worktree, so package tasks run
// concurrently without sharing a checkout.
//
// Usage:
//
//	engine := autoupdate.NewEngine(cfg, deps)
//	report, err := engine.Run(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, o := range report.Failed() {
//	    fmt.Println(o.Package, o.Error)
//	}
package autoupdate
