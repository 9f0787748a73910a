// Package bitbucket fetches commit diffs from the Bitbucket Cloud API.
package bitbucket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/diff"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultAPIURL is the default Bitbucket API endpoint
	DefaultAPIURL = "https://api.bitbucket.org/2.0"
	maxDiffBytes  = 64 << 20
)

// Client implements application.DiffProvider for one Bitbucket repository.
type Client struct {
	httpClient  *http.Client
	apiURL      string
	username    string
	appPassword string
	workspace   string
	slug        string
}

// NewClient creates a new Bitbucket client for repo ("workspace/slug").
// Credentials are read from BITBUCKET_USERNAME and BITBUCKET_APP_PASSWORD environment variables.
func NewClient(repo string) (*Client, error) {
	return NewClientWithHTTP(repo, "", "", &http.Client{Timeout: DefaultHTTPTimeout}, "")
}

// NewClientWithHTTP creates a client with a custom HTTP client (for testing).
func NewClientWithHTTP(repo, username, appPassword string, httpClient *http.Client, apiURL string) (*Client, error) {
	workspace, slug, ok := strings.Cut(repo, "/")
	if !ok || workspace == "" || slug == "" || strings.Contains(slug, "/") {
		return nil, fmt.Errorf("repository %q must be workspace/slug", repo)
	}
	if username == "" {
		username = os.Getenv("BITBUCKET_USERNAME")
	}
	if appPassword == "" {
		appPassword = os.Getenv("BITBUCKET_APP_PASSWORD")
		if appPassword == "" {
			appPassword = os.Getenv("BITBUCKET_TOKEN")
		}
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		httpClient:  httpClient,
		apiURL:      strings.TrimSuffix(apiURL, "/"),
		username:    username,
		appPassword: appPassword,
		workspace:   workspace,
		slug:        slug,
	}, nil
}

// Compare returns the diff between base and head. Bitbucket spells the
// range newest first.
func (c *Client) Compare(ctx context.Context, base, head string) (*domain.Diff, error) {
	endpoint := fmt.Sprintf("%s/repositories/%s/%s/diff/%s", c.apiURL,
		url.PathEscape(c.workspace), url.PathEscape(c.slug), url.PathEscape(head+".."+base))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: http request: %v", application.ErrDiffUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %s", application.ErrRateLimited, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: Bitbucket API error: %s - %s", application.ErrDiffUnavailable, resp.Status, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiffBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return diff.Parse(bytes.NewReader(body))
}

// setHeaders sets common headers for Bitbucket API requests.
func (c *Client) setHeaders(req *http.Request) {
	if c.username != "" && c.appPassword != "" {
		req.SetBasicAuth(c.username, c.appPassword)
	}
	req.Header.Set("Accept", "text/plain")
}

var _ application.DiffProvider = (*Client)(nil)
