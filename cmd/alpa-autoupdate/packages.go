package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/git"
)

var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "List package branches and proposals in flight",
	Long: `Lists the package branches known from the last fetch of the remote, marking
packages that have an unresolved proposal branch.`,
	RunE: runPackages,
}

func init() {
	rootCmd.AddCommand(packagesCmd)
}

func runPackages(cmd *cobra.Command, args []string) error {
	cfg, repo, err := loadConfig(cmd.Context(), nil)
	if err != nil {
		return err
	}

	pkgs, err := repo.ListPackages(cfg.Remote, cfg.BranchPrefix, cfg.ExcludeBranches)
	if err != nil {
		return commandError(err)
	}
	heads, err := repo.ProposalHeads(cfg.Remote, cfg.BranchPrefix)
	if err != nil {
		return commandError(err)
	}

	branches := make(map[string]string, len(heads))
	for pkg := range heads {
		branches[pkg] = git.ProposalBranch(cfg.BranchPrefix, pkg)
	}
	printPackages(os.Stdout, pkgs, heads, branches)
	return nil
}
