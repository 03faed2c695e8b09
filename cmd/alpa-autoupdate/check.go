package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [package...]",
	Short: "Show available updates without changing anything",
	Long: `Compares the declared version of each package with the latest upstream release.
No branch is created and nothing is pushed.

Examples:
  alpa-autoupdate check          Check every package
  alpa-autoupdate check foo      Check only foo`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, overrides{})
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.engine.Check(ctx, args)
	if err != nil {
		return commandError(err)
	}
	printCheckResults(os.Stdout, results)
	return nil
}
