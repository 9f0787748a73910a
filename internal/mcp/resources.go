package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/felixgeelhaar/covreport/internal/application"
)

const (
	commitsURI       = "covreport://commits"
	flarePrefix      = "covreport://reports/"
	flareSuffix      = "/flare"
	flareURITemplate = flarePrefix + "{commit}" + flareSuffix
)

// handleCommitsResource lists the commits with a stored report.
func (s *Server) handleCommitsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	commits, err := s.svc.Commits(ctx, s.config.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}
	if commits == nil {
		commits = []string{}
	}
	return jsonResource(req.Params.URI, map[string]any{"commits": commits})
}

// handleFlareResource returns the coverage tree of covreport://reports/{commit}/flare.
func (s *Server) handleFlareResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	commit, ok := flareCommit(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	tree, err := s.svc.Flare(ctx, application.FlareOptions{
		ConfigPath: s.config.ConfigPath,
		Commit:     commit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build flare for %s: %w", commit, err)
	}
	return jsonResource(req.Params.URI, tree)
}

func flareCommit(uri string) (string, bool) {
	if !strings.HasPrefix(uri, flarePrefix) || !strings.HasSuffix(uri, flareSuffix) {
		return "", false
	}
	commit := strings.TrimSuffix(strings.TrimPrefix(uri, flarePrefix), flareSuffix)
	if commit == "" || strings.Contains(commit, "/") {
		return "", false
	}
	return commit, true
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
