package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/sethvargo/go-envconfig"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/autoupdate"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/config"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/git"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/github"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/logger"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/metadata"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/notify"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/recipe"
	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/version"
)

// app holds the wired engine of one invocation
type app struct {
	cfg       *config.Config
	repo      *git.Repository
	workspace *autoupdate.WorktreeWorkspace
	metrics   *autoupdate.Metrics
	engine    *autoupdate.Engine
}

// overrides are command flags that take precedence over the config file
type overrides struct {
	remote string
	jobs   int
}

// loadConfig reads the configuration of the repository at repoDir
func loadConfig(ctx context.Context, l envconfig.Lookuper) (*config.Config, *git.Repository, error) {
	repo, err := git.OpenRepository(repoDir)
	if err != nil {
		return nil, nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("cannot open repository %s: %v", repoDir, err)).
			WithCause(err)
	}

	cfg, err := config.Load(ctx, repo.Root(), configPath, l)
	if err != nil {
		return nil, nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid configuration: %v", err)).
			WithCause(err)
	}
	if cfg.Env.Debug() {
		logger.SetVerbose(true)
	}
	return cfg, repo, nil
}

// newApp wires every collaborator of the engine
func newApp(ctx context.Context, o overrides) (*app, error) {
	cfg, repo, err := loadConfig(ctx, nil)
	if err != nil {
		return nil, err
	}
	if o.remote != "" {
		cfg.Remote = o.remote
	}
	if o.jobs > 0 {
		cfg.Jobs = o.jobs
	}

	owner, name, ok, err := cfg.Env.Slug()
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(err.Error()).
			WithCause(err)
	}
	if !ok {
		owner, name, err = repo.RemoteSlug(cfg.Remote)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("cannot determine GitHub repository, set GITHUB_REPOSITORY: %v", err)).
				WithCause(err)
		}
	}

	ci, err := github.NewClient(owner, name, cfg.Env.GitHubToken, cfg.GitHubAPIURL, version.UserAgent())
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(err.Error()).
			WithCause(err)
	}
	if cfg.Env.GitHubToken == "" {
		logger.Warn("GITHUB_TOKEN is not set, check-run requests are unauthenticated")
	}

	httpClient := autoupdate.NewRetryableHTTPClient()
	httpClient.SetDefaultHeaders(map[string]string{
		"User-Agent": version.UserAgent(),
		"Accept":     "application/json",
	})

	var notifier autoupdate.Notifier
	if cfg.Env.Mail.Enabled() {
		notifier = notify.NewSMTPNotifier(cfg.Env.Mail)
	} else {
		logger.Warn("SMTP settings incomplete, maintainers will not be notified: %v", notify.ErrNotConfigured)
	}

	ws, err := autoupdate.NewWorktreeWorkspace(git.NewGitRunner(repo.Root()), cfg.Remote)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(err.Error()).
			WithCause(err)
	}

	metrics := autoupdate.NewMetrics()
	engine := autoupdate.NewEngine(autoupdate.EngineConfig{
		Repository:   owner + "/" + name,
		Remote:       cfg.Remote,
		Prefix:       cfg.BranchPrefix,
		Exclude:      cfg.ExcludeBranches,
		Jobs:         cfg.Jobs,
		MaxPolls:     cfg.MaxPolls,
		PollInterval: cfg.PollInterval,
		SettleDelay:  cfg.SettleDelay,
	}, autoupdate.EngineDeps{
		Workspace: ws,
		Packages:  repo,
		Metadata:  metadata.NewStore(),
		Upstream:  autoupdate.NewAnityaClient(cfg.ReleaseMonitoringURL, httpClient),
		CI:        ci,
		Recipes:   recipe.NewEditor(),
		Notifier:  notifier,
		Metrics:   metrics,
		Logger:    logger.Default(),
	})

	return &app{cfg: cfg, repo: repo, workspace: ws, metrics: metrics, engine: engine}, nil
}

func (a *app) Close() {
	if err := a.workspace.Close(); err != nil {
		logger.Warn("failed to clean up worktrees: %v", err)
	}
}

// commandError classifies an engine error for the exit code
func commandError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, autoupdate.ErrUnknownPackage):
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(err.Error()).
			WithCause(err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("interrupted: %w", err)
	default:
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(err.Error()).
			WithCause(err)
	}
}
