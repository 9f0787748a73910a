package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/felixgeelhaar/covreport/internal/application"
)

func totalsOutput(summary application.ReportSummary) TotalsOutput {
	out := TotalsOutput{Commit: summary.Commit, Totals: application.ViewTotals(summary.Totals)}
	for _, f := range summary.Files {
		out.Files = append(out.Files, FileOutput{Name: f.Name, Totals: application.ViewTotals(f.Totals)})
	}
	return out
}

func (s *Server) handleReport(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ReportInput,
) (*mcp.CallToolResult, TotalsOutput, error) {
	summary, err := s.svc.Summary(ctx, application.ReportOptions{
		ConfigPath: coalesce(input.ConfigPath, s.config.ConfigPath),
		Commit:     input.Commit,
		Paths:      input.Paths,
		Flags:      input.Flags,
		Files:      input.Files,
	})
	if err != nil {
		return nil, TotalsOutput{Commit: input.Commit, Error: err.Error()}, nil
	}
	return nil, totalsOutput(summary), nil
}

func (s *Server) handlePatch(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PatchInput,
) (*mcp.CallToolResult, TotalsOutput, error) {
	summary, _, err := s.svc.PatchTotals(ctx, application.PatchOptions{
		ConfigPath: coalesce(input.ConfigPath, s.config.ConfigPath),
		Base:       input.Base,
		Head:       input.Head,
		Paths:      input.Paths,
		Flags:      input.Flags,
	})
	if err != nil {
		return nil, TotalsOutput{Commit: input.Head, Error: err.Error()}, nil
	}
	return nil, totalsOutput(summary), nil
}

func (s *Server) handleStatus(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	results, err := s.svc.Status(ctx, application.StatusOptions{
		ConfigPath: coalesce(input.ConfigPath, s.config.ConfigPath),
		Base:       input.Base,
		Head:       input.Head,
		Output:     application.OutputJSON,
	})
	if err != nil {
		return nil, StatusOutput{Error: err.Error()}, nil
	}
	out := StatusOutput{Passed: true, Checks: results}
	for _, r := range results {
		if r.IsFailing() {
			out.Passed = false
		}
	}
	return nil, out, nil
}

func (s *Server) handleSessions(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SessionsInput,
) (*mcp.CallToolResult, SessionsOutput, error) {
	sessions, err := s.svc.Sessions(ctx, application.SessionsOptions{
		ConfigPath: coalesce(input.ConfigPath, s.config.ConfigPath),
		Commit:     input.Commit,
		Output:     application.OutputJSON,
	})
	if err != nil {
		return nil, SessionsOutput{Error: err.Error()}, nil
	}
	var out SessionsOutput
	for _, sess := range sessions {
		so := SessionOutput{
			ID:                 sess.ID,
			Type:               sess.Type,
			Flags:              sess.Flags,
			Name:               sess.Name,
			CarriedForwardFrom: sess.CarriedForwardFrom(),
		}
		if sess.Totals != nil {
			v := application.ViewTotals(*sess.Totals)
			so.Totals = &v
		}
		out.Sessions = append(out.Sessions, so)
	}
	return nil, out, nil
}

func (s *Server) handleUpload(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input UploadInput,
) (*mcp.CallToolResult, UploadOutput, error) {
	result, err := s.svc.Upload(ctx, application.UploadOptions{
		ConfigPath: coalesce(input.ConfigPath, s.config.ConfigPath),
		Commit:     input.Commit,
		Files:      input.Files,
		Format:     application.Format(coalesce(input.Format, string(application.FormatAuto))),
		Flags:      input.Flags,
		Name:       input.Name,
		Root:       input.Root,
		Provider:   "mcp",
	})
	if err != nil {
		return nil, UploadOutput{Error: err.Error()}, nil
	}
	return nil, UploadOutput{
		SessionID: result.SessionID,
		Files:     result.Files,
		Upload:    application.ViewTotals(result.Totals),
		Report:    application.ViewTotals(result.Report),
	}, nil
}

func (s *Server) handleCarryForward(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CarryForwardInput,
) (*mcp.CallToolResult, CarryForwardOutput, error) {
	result, err := s.svc.CarryForward(ctx, application.CarryForwardOptions{
		ConfigPath: coalesce(input.ConfigPath, s.config.ConfigPath),
		Commit:     input.Commit,
		Parent:     input.Parent,
		Flags:      input.Flags,
	})
	if err != nil {
		return nil, CarryForwardOutput{Error: err.Error()}, nil
	}
	return nil, CarryForwardOutput{
		Flags:    result.Flags,
		Sessions: len(result.Sessions),
		Shifted:  result.Shifted,
		Report:   application.ViewTotals(result.Totals),
	}, nil
}
