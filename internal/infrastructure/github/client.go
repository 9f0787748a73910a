// Package github fetches commit diffs from the GitHub compare API.
package github

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/diff"
)

const (
	// DefaultAPIURL is the default GitHub API endpoint
	DefaultAPIURL = "https://api.github.com"
	// diffMediaType asks the compare endpoint for a unified diff.
	diffMediaType = "application/vnd.github.diff"
	// maxDiffBytes bounds the diff body read from the API.
	maxDiffBytes = 64 << 20
)

// Client implements application.DiffProvider for one GitHub repository.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	owner      string
	repo       string
}

// NewClient creates a new GitHub client for repo ("owner/name").
// Token is read from GITHUB_TOKEN environment variable if not provided.
func NewClient(repo, token string) (*Client, error) {
	return NewClientWithHTTP(repo, token, &http.Client{}, "")
}

// NewClientWithHTTP creates a client with a custom HTTP client (for testing).
func NewClientWithHTTP(repo, token string, httpClient *http.Client, apiURL string) (*Client, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("repository %q must be owner/name", repo)
	}
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		httpClient: httpClient,
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		token:      token,
		owner:      owner,
		repo:       name,
	}, nil
}

// Compare returns the diff between base and head. An exhausted rate limit
// is reported as application.ErrRateLimited.
func (c *Client) Compare(ctx context.Context, base, head string) (*domain.Diff, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/compare/%s...%s", c.apiURL,
		url.PathEscape(c.owner), url.PathEscape(c.repo), url.PathEscape(base), url.PathEscape(head))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", diffMediaType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: http request: %v", application.ErrDiffUnavailable, err)
	}
	defer resp.Body.Close()

	if isRateLimited(resp) {
		return nil, fmt.Errorf("%w: %s", application.ErrRateLimited, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: GitHub API error: %s - %s", application.ErrDiffUnavailable, resp.Status, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiffBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return diff.Parse(bytes.NewReader(body))
}

func isRateLimited(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != ""
	}
	return false
}

// setHeaders sets common headers for GitHub API requests.
func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
}

var _ application.DiffProvider = (*Client)(nil)
