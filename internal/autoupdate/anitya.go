package autoupdate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultReleaseMonitoringURL is the project search endpoint of release-monitoring.org
const DefaultReleaseMonitoringURL = "https://release-monitoring.org/api/projects/"

// maxResponseSize bounds how much of a project search response is read
const maxResponseSize = 10 * 1024 * 1024

// anityaProject is one entry of a project search response
type anityaProject struct {
	Name    string  `json:"name"`
	Backend string  `json:"backend"`
	Version *string `json:"version"`
}

type anityaResponse struct {
	Projects []anityaProject `json:"projects"`
}

// AnityaClient looks up the latest upstream version of a project on release-monitoring.org
type AnityaClient struct {
	baseURL string
	client  *RetryableHTTPClient
}

// NewAnityaClient creates a lookup client. An empty baseURL uses the public service.
func NewAnityaClient(baseURL string, client *RetryableHTTPClient) *AnityaClient {
	if baseURL == "" {
		baseURL = DefaultReleaseMonitoringURL
	}
	if client == nil {
		client = NewRetryableHTTPClient()
	}
	return &AnityaClient{baseURL: baseURL, client: client}
}

// LatestVersion returns the version of the first project whose name and backend
// match case-insensitively.
func (c *AnityaClient) LatestVersion(ctx context.Context, name, backend string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid URL %q: %v", ErrUpstreamRequest, c.baseURL, err)
	}
	q := u.Query()
	q.Set("pattern", name)
	u.RawQuery = q.Encode()

	resp, err := c.client.Get(ctx, u.String())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUpstreamRequest, resp.StatusCode)
	}

	var body anityaResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: invalid response: %v", ErrUpstreamRequest, err)
	}

	for _, p := range body.Projects {
		if !strings.EqualFold(p.Name, name) || !strings.EqualFold(p.Backend, backend) {
			continue
		}
		if p.Version == nil || strings.TrimSpace(*p.Version) == "" {
			return "", fmt.Errorf("%w: %s (%s) has no released version", ErrUpstreamNotFound, name, backend)
		}
		return strings.TrimSpace(*p.Version), nil
	}

	return "", fmt.Errorf("%w: %s with backend %s", ErrUpstreamNotFound, name, backend)
}
