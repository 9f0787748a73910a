// Package gitlab fetches commit diffs from the GitLab repository compare API.
package gitlab

import (
	"context"
	"encoding/json"
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
	// DefaultAPIURL is the default GitLab API endpoint
	DefaultAPIURL = "https://gitlab.com/api/v4"
	maxBodyBytes  = 64 << 20
)

// Client implements application.DiffProvider for one GitLab project.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	jobToken   bool
	project    string
}

// NewClient creates a new GitLab client for project ("group/name").
// Token is read from GITLAB_TOKEN or CI_JOB_TOKEN environment variable if not provided.
func NewClient(project, token string) (*Client, error) {
	return NewClientWithHTTP(project, token, &http.Client{}, "")
}

// NewClientWithHTTP creates a client with a custom HTTP client (for testing).
func NewClientWithHTTP(project, token string, httpClient *http.Client, apiURL string) (*Client, error) {
	project = strings.Trim(project, "/")
	if !strings.Contains(project, "/") {
		return nil, fmt.Errorf("project %q must be group/name", project)
	}
	c := &Client{httpClient: httpClient, apiURL: strings.TrimSuffix(apiURL, "/"), token: token, project: project}
	if c.token == "" {
		c.token = os.Getenv("GITLAB_TOKEN")
	}
	if c.token == "" {
		c.token = os.Getenv("CI_JOB_TOKEN")
		c.jobToken = c.token != ""
	}
	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	return c, nil
}

type compareResponse struct {
	Diffs []fileChange `json:"diffs"`
}

type fileChange struct {
	OldPath     string `json:"old_path"`
	NewPath     string `json:"new_path"`
	Diff        string `json:"diff"`
	NewFile     bool   `json:"new_file"`
	RenamedFile bool   `json:"renamed_file"`
	DeletedFile bool   `json:"deleted_file"`
}

// Compare returns the diff between base and head, measured from their
// merge base.
func (c *Client) Compare(ctx context.Context, base, head string) (*domain.Diff, error) {
	q := url.Values{"from": {base}, "to": {head}}
	endpoint := fmt.Sprintf("%s/projects/%s/repository/compare?%s", c.apiURL, url.PathEscape(c.project), q.Encode())

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
		return nil, fmt.Errorf("%w: GitLab API error: %s - %s", application.ErrDiffUnavailable, resp.Status, string(body))
	}

	var cmp compareResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&cmp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return diff.Parse(strings.NewReader(unified(cmp.Diffs)))
}

// unified rebuilds a git diff from the per-file hunks GitLab returns.
func unified(changes []fileChange) string {
	var b strings.Builder
	for _, ch := range changes {
		fmt.Fprintf(&b, "diff --git a/%s b/%s\n", ch.OldPath, ch.NewPath)
		oldName, newName := "a/"+ch.OldPath, "b/"+ch.NewPath
		switch {
		case ch.NewFile:
			b.WriteString("new file mode 100644\n")
			oldName = "/dev/null"
		case ch.DeletedFile:
			b.WriteString("deleted file mode 100644\n")
			newName = "/dev/null"
		case ch.RenamedFile:
			fmt.Fprintf(&b, "rename from %s\nrename to %s\n", ch.OldPath, ch.NewPath)
		}
		if ch.Diff == "" {
			continue
		}
		fmt.Fprintf(&b, "--- %s\n+++ %s\n", oldName, newName)
		b.WriteString(ch.Diff)
		if !strings.HasSuffix(ch.Diff, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// setHeaders sets common headers for GitLab API requests.
func (c *Client) setHeaders(req *http.Request) {
	if c.token == "" {
		return
	}
	if c.jobToken {
		req.Header.Set("JOB-TOKEN", c.token)
		return
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
}

var _ application.DiffProvider = (*Client)(nil)
