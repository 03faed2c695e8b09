package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"

	"github.com/alpa-team/autoupdate-alpa-repo/internal/common/notify"
)

var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrUnknownKey      = errors.New("unknown config key")
	ErrRemoteNotSet    = errors.New("remote is not configured")
	ErrInvalidPrefix   = errors.New("branch_prefix must not be empty")
	ErrInvalidMaxPolls = errors.New("max_polls must be at least 1")
	ErrInvalidInterval = errors.New("intervals must not be negative")
	ErrInvalidJobs     = errors.New("jobs must not be negative")
	ErrInvalidRepoSlug = errors.New("GITHUB_REPOSITORY must be owner/name")
)

// DefaultPath is the config file location relative to the repository root
const DefaultPath = ".github/alpa-autoupdate.toml"

const (
	DefaultRemote               = "origin"
	DefaultBranchPrefix         = "__alpa_autoupdate"
	DefaultReleaseMonitoringURL = "https://release-monitoring.org/api/projects/"
	DefaultGitHubAPIURL         = "https://api.github.com"
	DefaultMaxPolls             = 700
	DefaultPollInterval         = 120 * time.Second
	DefaultSettleDelay          = 30 * time.Second
)

// Config represents the tool configuration
type Config struct {
	Remote               string        `toml:"remote"`
	BranchPrefix         string        `toml:"branch_prefix"`
	ReleaseMonitoringURL string        `toml:"release_monitoring_url"`
	GitHubAPIURL         string        `toml:"github_api_url"`
	MaxPolls             int           `toml:"max_polls"`
	PollInterval         time.Duration `toml:"poll_interval"`
	SettleDelay          time.Duration `toml:"settle_delay"`
	Jobs                 int           `toml:"jobs"`
	ExcludeBranches      []string      `toml:"exclude_branches"`
	ReportPath           string        `toml:"report_path"`
	MetricsPath          string        `toml:"metrics_path"`

	Env Env `toml:"-"`
}

// Env holds settings that only come from the environment
type Env struct {
	GitHubToken      string `env:"GITHUB_TOKEN"`
	GitHubRepository string `env:"GITHUB_REPOSITORY"`
	InputDebug       string `env:"INPUT_DEBUG"`
	RunnerDebug      string `env:"RUNNER_DEBUG"`

	Mail notify.Config
}

// Debug reports whether the workflow asked for debug output
func (e Env) Debug() bool {
	return strings.EqualFold(strings.TrimSpace(e.InputDebug), "true") || strings.TrimSpace(e.RunnerDebug) == "1"
}

// Slug splits GITHUB_REPOSITORY into owner and name. ok is false when unset.
func (e Env) Slug() (owner, name string, ok bool, err error) {
	if e.GitHubRepository == "" {
		return "", "", false, nil
	}
	parts := strings.Split(e.GitHubRepository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false, fmt.Errorf("%w: %q", ErrInvalidRepoSlug, e.GitHubRepository)
	}
	return parts[0], parts[1], true, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Remote:               DefaultRemote,
		BranchPrefix:         DefaultBranchPrefix,
		ReleaseMonitoringURL: DefaultReleaseMonitoringURL,
		GitHubAPIURL:         DefaultGitHubAPIURL,
		MaxPolls:             DefaultMaxPolls,
		PollInterval:         DefaultPollInterval,
		SettleDelay:          DefaultSettleDelay,
		ExcludeBranches:      []string{"main", "master", "HEAD"},
	}
}

// Load reads the config file and overlays the environment.
// An empty path falls back to DefaultPath under root, which may be absent.
// A nil lookuper reads the process environment.
func Load(ctx context.Context, root, path string, l envconfig.Lookuper) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(root, DefaultPath)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, ErrConfigNotFound) {
			cfg = Default()
		} else {
			return nil, err
		}
	}

	if l == nil {
		l = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg.Env, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a TOML config file on top of the defaults
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Remote) == "":
		return ErrRemoteNotSet
	case strings.TrimSpace(c.BranchPrefix) == "":
		return ErrInvalidPrefix
	case c.MaxPolls < 1:
		return fmt.Errorf("%w: got %d", ErrInvalidMaxPolls, c.MaxPolls)
	case c.PollInterval < 0 || c.SettleDelay < 0:
		return fmt.Errorf("%w: poll_interval=%s settle_delay=%s", ErrInvalidInterval, c.PollInterval, c.SettleDelay)
	case c.Jobs < 0:
		return fmt.Errorf("%w: got %d", ErrInvalidJobs, c.Jobs)
	}
	if _, _, _, err := c.Env.Slug(); err != nil {
		return err
	}
	return nil
}

// ResolvePath makes a configured relative path absolute against root
func ResolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
