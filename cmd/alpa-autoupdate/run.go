package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/config"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/logger"
)

var (
	// runFailOnError makes failed packages fail the process
	runFailOnError bool
	// runReportPath overrides report_path
	runReportPath string
	// runMetricsPath overrides metrics_path
	runMetricsPath string
	// runJobs overrides jobs
	runJobs int
	// runRemote overrides remote
	runRemote string
)

var runCmd = &cobra.Command{
	Use:   "run [package...]",
	Short: "Propose, verify and merge package updates",
	Long: `Checks packages for newer upstream releases, pushes a proposal branch per update,
waits for its check runs and merges the proposals that pass. Maintainers of failed
updates are notified by email.

Packages with a proposal left by an earlier run are not checked again; their
proposal is resolved instead.

Examples:
  alpa-autoupdate run                          Update every package
  alpa-autoupdate run foo bar                  Update only foo and bar
  alpa-autoupdate run --report out.json        Also write a JSON report
  alpa-autoupdate run --fail-on-error          Exit 4 if any package failed`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runFailOnError, "fail-on-error", false, "Exit with status 4 when a package fails")
	runCmd.Flags().StringVar(&runReportPath, "report", "", "Write the run report as JSON to this file")
	runCmd.Flags().StringVar(&runMetricsPath, "metrics-file", "", "Write Prometheus metrics to this textfile")
	runCmd.Flags().IntVarP(&runJobs, "jobs", "j", 0, "Maximum packages processed at once (0: no limit)")
	runCmd.Flags().StringVar(&runRemote, "remote", "", "Remote holding the package branches")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, overrides{remote: runRemote, jobs: runJobs})
	if err != nil {
		return err
	}
	defer a.Close()

	report, runErr := a.engine.Run(ctx, args)
	if report == nil {
		return commandError(runErr)
	}
	printReport(os.Stdout, report)

	if path := outputPath(runReportPath, a.repo.Root(), a.cfg.ReportPath); path != "" {
		if err := report.WriteFile(path); err != nil {
			logger.Error("%v", err)
		} else {
			logger.Info("Report written to %s", path)
		}
	}
	if path := outputPath(runMetricsPath, a.repo.Root(), a.cfg.MetricsPath); path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			logger.Error("%v", err)
		}
	}

	if runErr != nil {
		return commandError(runErr)
	}
	if failed := report.Failed(); runFailOnError && len(failed) > 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("%d package(s) failed to update", len(failed)))
	}
	return nil
}

// outputPath prefers a flag value over a configured path relative to the repository
func outputPath(flag, root, configured string) string {
	if flag != "" {
		return flag
	}
	return config.ResolvePath(root, configured)
}
