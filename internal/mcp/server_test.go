package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

// mockService implements the Service interface for testing.
type mockService struct {
	summary     application.ReportSummary
	summaryErr  error
	reportOpts  application.ReportOptions
	patch       application.ReportSummary
	patchErr    error
	status      []domain.StatusResult
	statusErr   error
	sessions    []*domain.Session
	sessionsErr error
	upload      application.UploadResult
	uploadErr   error
	uploadOpts  application.UploadOptions
	carried     application.CarryForwardResult
	carryErr    error
	commits     []string
	commitsErr  error
	flare       *domain.FlareNode
	flareErr    error
	flareCommit string
}

func (m *mockService) Upload(_ context.Context, opts application.UploadOptions) (application.UploadResult, error) {
	m.uploadOpts = opts
	return m.upload, m.uploadErr
}

func (m *mockService) CarryForward(context.Context, application.CarryForwardOptions) (application.CarryForwardResult, error) {
	return m.carried, m.carryErr
}

func (m *mockService) Summary(_ context.Context, opts application.ReportOptions) (application.ReportSummary, error) {
	m.reportOpts = opts
	return m.summary, m.summaryErr
}

func (m *mockService) PatchTotals(context.Context, application.PatchOptions) (application.ReportSummary, *domain.Diff, error) {
	return m.patch, nil, m.patchErr
}

func (m *mockService) Status(context.Context, application.StatusOptions) ([]domain.StatusResult, error) {
	return m.status, m.statusErr
}

func (m *mockService) Sessions(context.Context, application.SessionsOptions) ([]*domain.Session, error) {
	return m.sessions, m.sessionsErr
}

func (m *mockService) Commits(context.Context, string) ([]string, error) {
	return m.commits, m.commitsErr
}

func (m *mockService) Flare(_ context.Context, opts application.FlareOptions) (*domain.FlareNode, error) {
	m.flareCommit = opts.Commit
	return m.flare, m.flareErr
}

func sampleTotals() domain.ReportTotals {
	return domain.ReportTotals{Files: 1, Lines: 4, Hits: 3, Misses: 1, Coverage: "75.00000", Sessions: 1}
}

func TestNew(t *testing.T) {
	server := New(&mockService{}, Config{ConfigPath: "custom.yaml"}, "test")
	if server.config.ConfigPath != "custom.yaml" {
		t.Errorf("expected ConfigPath %q, got %q", "custom.yaml", server.config.ConfigPath)
	}
	if server.server == nil {
		t.Error("expected internal MCP server to be initialized")
	}
}

func TestNew_DefaultConfig(t *testing.T) {
	server := New(&mockService{}, Config{}, "test")
	if server.config.ConfigPath != DefaultConfig().ConfigPath {
		t.Errorf("expected default ConfigPath, got %q", server.config.ConfigPath)
	}
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback string
		expected string
	}{
		{name: "returns value when non-empty", value: "custom", fallback: "default", expected: "custom"},
		{name: "returns fallback when value is empty", value: "", fallback: "default", expected: "default"},
		{name: "returns empty fallback when both empty", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coalesce(tt.value, tt.fallback); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestHandleReport(t *testing.T) {
	svc := &mockService{summary: application.ReportSummary{
		Commit: "c1",
		Totals: sampleTotals(),
		Files:  []application.FileSummary{{Name: "api/a.go", Totals: sampleTotals()}},
	}}
	server := New(svc, Config{}, "test")

	_, out, err := server.handleReport(context.Background(), nil, ReportInput{Commit: "c1", Files: true, Flags: []string{"unit"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Error != "" {
		t.Fatalf("unexpected tool error: %s", out.Error)
	}
	if out.Totals.Coverage == nil || *out.Totals.Coverage != 75 {
		t.Errorf("unexpected coverage %v", out.Totals.Coverage)
	}
	if len(out.Files) != 1 || out.Files[0].Name != "api/a.go" {
		t.Errorf("unexpected files %+v", out.Files)
	}
	if svc.reportOpts.ConfigPath != DefaultConfig().ConfigPath || !svc.reportOpts.Files {
		t.Errorf("unexpected options %+v", svc.reportOpts)
	}
}

func TestHandleReport_Error(t *testing.T) {
	server := New(&mockService{summaryErr: domain.ErrReportNotFound}, Config{}, "test")
	_, out, err := server.handleReport(context.Background(), nil, ReportInput{Commit: "missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.Error, "not found") {
		t.Errorf("expected not found error, got %q", out.Error)
	}
}

func TestHandlePatch(t *testing.T) {
	svc := &mockService{patch: application.ReportSummary{Commit: "head", Totals: sampleTotals()}}
	_, out, err := New(svc, Config{}, "test").handlePatch(context.Background(), nil, PatchInput{Base: "base", Head: "head"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Commit != "head" || out.Totals.Lines != 4 {
		t.Errorf("unexpected output %+v", out)
	}

	svc.patchErr = application.ErrDiffUnavailable
	_, out, _ = New(svc, Config{}, "test").handlePatch(context.Background(), nil, PatchInput{Base: "base", Head: "head"})
	if out.Error == "" {
		t.Error("expected error in output")
	}
}

func TestHandleStatus(t *testing.T) {
	svc := &mockService{status: []domain.StatusResult{
		{Name: "project", Kind: domain.StatusProject, Status: domain.StatusPass},
		{Name: "patch", Kind: domain.StatusPatch, Status: domain.StatusFail},
	}}
	_, out, err := New(svc, Config{}, "test").handleStatus(context.Background(), nil, StatusInput{Head: "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Passed {
		t.Error("expected failing status")
	}
	if len(out.Checks) != 2 {
		t.Errorf("expected 2 checks, got %d", len(out.Checks))
	}

	svc.status = svc.status[:1]
	_, out, _ = New(svc, Config{}, "test").handleStatus(context.Background(), nil, StatusInput{Head: "c1"})
	if !out.Passed {
		t.Error("expected passing status")
	}
}

func TestHandleSessions(t *testing.T) {
	totals := sampleTotals()
	svc := &mockService{sessions: []*domain.Session{
		{ID: 0, Type: domain.SessionUploaded, Flags: []string{"unit"}, Totals: &totals},
		{ID: 1, Type: domain.SessionCarriedForward, Extras: map[string]any{domain.ExtraCarriedForwardFrom: "p1"}},
	}}
	_, out, err := New(svc, Config{}, "test").handleSessions(context.Background(), nil, SessionsInput{Commit: "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(out.Sessions))
	}
	if out.Sessions[0].Totals == nil || out.Sessions[0].Totals.Hits != 3 {
		t.Errorf("unexpected totals %+v", out.Sessions[0].Totals)
	}
	if out.Sessions[1].CarriedForwardFrom != "p1" || out.Sessions[1].Totals != nil {
		t.Errorf("unexpected carried session %+v", out.Sessions[1])
	}
}

func TestHandleUpload(t *testing.T) {
	svc := &mockService{upload: application.UploadResult{SessionID: 2, Files: 1, Totals: sampleTotals(), Report: sampleTotals()}}
	_, out, err := New(svc, Config{}, "test").handleUpload(context.Background(), nil, UploadInput{
		Commit: "c1", Files: []string{"coverage.out"}, Flags: []string{"unit"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.SessionID != 2 || out.Upload.Lines != 4 {
		t.Errorf("unexpected output %+v", out)
	}
	if svc.uploadOpts.Format != application.FormatAuto || svc.uploadOpts.Provider != "mcp" {
		t.Errorf("unexpected options %+v", svc.uploadOpts)
	}

	svc.uploadErr = application.ErrNoFiles
	_, out, _ = New(svc, Config{}, "test").handleUpload(context.Background(), nil, UploadInput{Commit: "c1"})
	if out.Error == "" {
		t.Error("expected error in output")
	}
}

func TestHandleCarryForward(t *testing.T) {
	svc := &mockService{carried: application.CarryForwardResult{
		Flags: []string{"unit"}, Sessions: map[int]int{0: 1}, Shifted: true, Totals: sampleTotals(),
	}}
	_, out, err := New(svc, Config{}, "test").handleCarryForward(context.Background(), nil, CarryForwardInput{Commit: "c2", Parent: "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Sessions != 1 || !out.Shifted || out.Report.Hits != 3 {
		t.Errorf("unexpected output %+v", out)
	}

	svc.carryErr = errors.New("parent missing")
	_, out, _ = New(svc, Config{}, "test").handleCarryForward(context.Background(), nil, CarryForwardInput{Commit: "c2", Parent: "c1"})
	if out.Error != "parent missing" {
		t.Errorf("unexpected error %q", out.Error)
	}
}

func TestFlareCommit(t *testing.T) {
	tests := map[string]struct {
		uri    string
		commit string
		ok     bool
	}{
		"valid":        {uri: "covreport://reports/abc/flare", commit: "abc", ok: true},
		"empty commit": {uri: "covreport://reports//flare"},
		"nested":       {uri: "covreport://reports/a/b/flare"},
		"other":        {uri: "covreport://commits"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			commit, ok := flareCommit(tt.uri)
			if ok != tt.ok || commit != tt.commit {
				t.Errorf("flareCommit(%q) = %q, %v", tt.uri, commit, ok)
			}
		})
	}
}

func connect(t *testing.T, svc Service) (*mcp.ClientSession, context.Context) {
	t.Helper()
	server := New(svc, Config{}, "test")
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	done := make(chan error, 1)
	go func() { done <- server.RunWithTransport(ctx, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		<-done
	})
	return session, ctx
}

func TestServer_ListTools(t *testing.T) {
	session, ctx := connect(t, &mockService{})

	result, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}
	assert.ElementsMatch(t, []string{"report", "patch", "status", "sessions", "upload", "carryforward"}, names)
}

func TestServer_CallReport(t *testing.T) {
	svc := &mockService{summary: application.ReportSummary{Commit: "c1", Totals: sampleTotals()}}
	session, ctx := connect(t, svc)

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "report",
		Arguments: map[string]any{"commit": "c1"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, `"commit":"c1"`)
	assert.Equal(t, "c1", svc.reportOpts.Commit)
}

func TestServer_ReadResources(t *testing.T) {
	svc := &mockService{
		commits: []string{"c1", "c2"},
		flare:   &domain.FlareNode{Name: "", Coverage: 75, Color: "#ffdd00", Lines: 4},
	}
	session, ctx := connect(t, svc)

	commits, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: commitsURI})
	require.NoError(t, err)
	require.Len(t, commits.Contents, 1)
	assert.Contains(t, commits.Contents[0].Text, `"c2"`)

	flare, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: "covreport://reports/c1/flare"})
	require.NoError(t, err)
	require.Len(t, flare.Contents, 1)
	assert.Contains(t, flare.Contents[0].Text, `"coverage": 75`)
	assert.Equal(t, "c1", svc.flareCommit)
}

func TestHandleCommitsResource_Empty(t *testing.T) {
	server := New(&mockService{}, Config{}, "test")
	result, err := server.handleCommitsResource(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: commitsURI},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Contents[0].Text, `"commits": []`) {
		t.Errorf("expected empty list, got %s", result.Contents[0].Text)
	}
}

func TestHandleFlareResource_Error(t *testing.T) {
	server := New(&mockService{flareErr: domain.ErrReportNotFound}, Config{}, "test")
	_, err := server.handleFlareResource(context.Background(), &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: "covreport://reports/c1/flare"},
	})
	if !errors.Is(err, domain.ErrReportNotFound) {
		t.Errorf("expected ErrReportNotFound, got %v", err)
	}
}
