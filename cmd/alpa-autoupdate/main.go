package main

import (
	"errors"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/cobra"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/logger"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/output"
)

var (
	verbose    bool
	quiet      bool
	noColor    bool
	repoDir    string
	configPath string
	logToFile  bool
)

var rootCmd = &cobra.Command{
	Use:   "alpa-autoupdate",
	Short: "Autoupdate packages of an alpa repository",
	Long: `Checks every package branch of an alpa repository for a newer upstream release,
proposes version bumps, waits for CI and merges the ones that pass.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure logging based on flags
		if verbose {
			logger.SetVerbose(true)
		}
		if quiet {
			logger.SetQuiet(true)
		}
		if noColor {
			output.NoColor()
		}
		if logToFile {
			if err := logger.Default().EnableFileLogging(); err != nil {
				logger.Warn("file logging disabled: %v", err)
			}
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-file", false, "Also write JSON logs to the state directory")
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "C", ".", "Path to the alpa repository clone")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default <repo>/.github/alpa-autoupdate.toml)")
}

func main() {
	err := rootCmd.Execute()
	logger.Default().Close()
	if err != nil {
		output.PrintError("%v", errorMessage(err))
		os.Exit(exitCodeForError(err))
	}
}

// exitCodeForError maps error codes to process exit codes
func exitCodeForError(err error) int {
	switch errbuilder.CodeOf(err) {
	case errbuilder.CodeInvalidArgument:
		return 2
	case errbuilder.CodeFailedPrecondition:
		return 4
	case errbuilder.CodeInternal:
		return 5
	default:
		return 1
	}
}

func errorMessage(err error) string {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && strings.TrimSpace(builder.Msg) != "" {
		return builder.Msg
	}
	return err.Error()
}
