package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the application service with MCP protocol handling.
type Server struct {
	svc    Service
	config Config
	server *mcp.Server
}

// New creates a new MCP server wrapping the given service.
func New(svc Service, cfg Config, version string) *Server {
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = DefaultConfig().ConfigPath
	}
	s := &Server{svc: svc, config: cfg}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "covreport",
		Version: version,
	}, &mcp.ServerOptions{})
	s.registerTools()
	s.registerResources()
	return s
}

// Run serves over stdio and blocks until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcp.StdioTransport{})
}

// RunWithTransport serves over transport until the context is canceled or
// the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcp.Transport) error {
	if err := s.server.Run(ctx, transport); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "report",
		Description: "Summarize the stored coverage report of a commit, optionally restricted to paths and flags.",
	}, s.handleReport)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "patch",
		Description: "Measure the coverage of the lines added between a base and a head commit.",
	}, s.handlePatch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "status",
		Description: "Evaluate the configured project and patch status checks of a head commit.",
	}, s.handleStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "sessions",
		Description: "List the upload sessions that make up the report of a commit.",
	}, s.handleSessions)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "upload",
		Description: "Parse coverage files into a new session and merge it into the report of a commit.",
	}, s.handleUpload)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "carryforward",
		Description: "Copy sessions of carry-forward flags from a parent commit, shifting lines through the diff.",
	}, s.handleCarryForward)
}

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         commitsURI,
		Name:        "Stored Commits",
		Description: "Commits that have a stored coverage report",
		MIMEType:    "application/json",
	}, s.handleCommitsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: flareURITemplate,
		Name:        "Coverage Flare",
		Description: "Directory tree of a commit report with per-node coverage and colors",
		MIMEType:    "application/json",
	}, s.handleFlareResource)
}
