package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v84/github"
)

var (
	// ErrRateLimit indicates GitHub API rate limit exceeded
	ErrRateLimit = errors.New("GitHub API rate limit exceeded")
	// ErrNotFound indicates the commit or repository was not found
	ErrNotFound = errors.New("commit not found in repository")
	// ErrAPIError indicates a general GitHub API error
	ErrAPIError = errors.New("GitHub API error")
)

// DefaultBaseURL is the public GitHub REST endpoint
const DefaultBaseURL = "https://api.github.com"

// Check run statuses that mean the run has not finished yet
var runningStatuses = map[string]bool{
	"queued":      true,
	"in_progress": true,
	"pending":     true,
	"waiting":     true,
	"requested":   true,
}

// CheckRun is one CI job's reported state for a commit
type CheckRun struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion,omitempty"`
}

// Running reports whether the check run is still queued or executing
func (c CheckRun) Running() bool {
	return runningStatuses[c.Status]
}

// Failed reports whether the check run concluded with failure
func (c CheckRun) Failed() bool {
	return c.Conclusion == "failure"
}

// Client lists check runs of one repository
type Client struct {
	Owner string
	Repo  string

	gh *gh.Client
}

// NewClient creates a check-run client for owner/repo. An empty baseURL uses
// the public API, an empty token sends unauthenticated requests.
func NewClient(owner, repo, token, baseURL, userAgent string) (*Client, error) {
	client := gh.NewClient(&http.Client{Timeout: 30 * time.Second})
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if userAgent != "" {
		client.UserAgent = userAgent
	}

	if baseURL != "" && baseURL != DefaultBaseURL {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", baseURL, err)
		}
		client.BaseURL = u
	}

	return &Client{Owner: owner, Repo: repo, gh: client}, nil
}

// ListCheckRuns returns every check run reported for a commit, following pagination
func (c *Client) ListCheckRuns(ctx context.Context, sha string) ([]CheckRun, error) {
	opts := &gh.ListCheckRunsOptions{ListOptions: gh.ListOptions{PerPage: 100}}

	var runs []CheckRun
	for {
		result, resp, err := c.gh.Checks.ListCheckRunsForRef(ctx, c.Owner, c.Repo, sha, opts)
		if err != nil {
			return nil, classifyError(err)
		}
		for _, run := range result.CheckRuns {
			runs = append(runs, CheckRun{
				Name:       run.GetName(),
				Status:     run.GetStatus(),
				Conclusion: run.GetConclusion(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return runs, nil
}

// classifyError maps go-github errors onto the package sentinels
func classifyError(err error) error {
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: rate limit resets at %s", ErrRateLimit, rateErr.Rate.Reset.Time.Format(time.RFC3339))
	}
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%w: %v", ErrRateLimit, err)
	}

	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		if respErr.Response.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("%w: status %d: %s", ErrAPIError, respErr.Response.StatusCode, respErr.Message)
	}

	return fmt.Errorf("%w: %v", ErrAPIError, err)
}
