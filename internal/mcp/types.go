// Package mcp exposes stored coverage reports over the Model Context Protocol.
package mcp

import (
	"context"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

// Service defines the application operations needed by MCP.
type Service interface {
	// Tools
	Upload(ctx context.Context, opts application.UploadOptions) (application.UploadResult, error)
	CarryForward(ctx context.Context, opts application.CarryForwardOptions) (application.CarryForwardResult, error)
	Summary(ctx context.Context, opts application.ReportOptions) (application.ReportSummary, error)
	PatchTotals(ctx context.Context, opts application.PatchOptions) (application.ReportSummary, *domain.Diff, error)
	Status(ctx context.Context, opts application.StatusOptions) ([]domain.StatusResult, error)
	Sessions(ctx context.Context, opts application.SessionsOptions) ([]*domain.Session, error)

	// Resources
	Commits(ctx context.Context, configPath string) ([]string, error)
	Flare(ctx context.Context, opts application.FlareOptions) (*domain.FlareNode, error)
}

// Config holds MCP server configuration.
type Config struct {
	ConfigPath string // config file used when a call names none
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() Config {
	return Config{ConfigPath: ".covreport.yaml"}
}

// ReportInput defines the input parameters for the report tool.
type ReportInput struct {
	ConfigPath string   `json:"configPath,omitempty" jsonschema:"path to the covreport config file"`
	Commit     string   `json:"commit" jsonschema:"commit whose report is summarized"`
	Paths      []string `json:"paths,omitempty" jsonschema:"glob patterns restricting the files"`
	Flags      []string `json:"flags,omitempty" jsonschema:"restrict to sessions with these flags"`
	Files      bool     `json:"files,omitempty" jsonschema:"include per-file totals"`
}

// PatchInput defines the input parameters for the patch tool.
type PatchInput struct {
	ConfigPath string   `json:"configPath,omitempty" jsonschema:"path to the covreport config file"`
	Base       string   `json:"base" jsonschema:"base commit of the comparison"`
	Head       string   `json:"head" jsonschema:"head commit whose report is measured"`
	Paths      []string `json:"paths,omitempty" jsonschema:"glob patterns restricting the files"`
	Flags      []string `json:"flags,omitempty" jsonschema:"restrict to sessions with these flags"`
}

// StatusInput defines the input parameters for the status tool.
type StatusInput struct {
	ConfigPath string `json:"configPath,omitempty" jsonschema:"path to the covreport config file"`
	Base       string `json:"base,omitempty" jsonschema:"base commit for relative targets and patch checks"`
	Head       string `json:"head" jsonschema:"head commit to evaluate"`
}

// SessionsInput defines the input parameters for the sessions tool.
type SessionsInput struct {
	ConfigPath string `json:"configPath,omitempty" jsonschema:"path to the covreport config file"`
	Commit     string `json:"commit" jsonschema:"commit whose sessions are listed"`
}

// UploadInput defines the input parameters for the upload tool.
type UploadInput struct {
	ConfigPath string   `json:"configPath,omitempty" jsonschema:"path to the covreport config file"`
	Commit     string   `json:"commit" jsonschema:"commit the upload belongs to"`
	Files      []string `json:"files" jsonschema:"coverage files to upload"`
	Format     string   `json:"format,omitempty" jsonschema:"upload format: auto, go, lcov or cobertura"`
	Flags      []string `json:"flags,omitempty" jsonschema:"flags of the new session"`
	Name       string   `json:"name,omitempty" jsonschema:"session name"`
	Root       string   `json:"root,omitempty" jsonschema:"source checkout scanned for ignore comments"`
}

// CarryForwardInput defines the input parameters for the carryforward tool.
type CarryForwardInput struct {
	ConfigPath string   `json:"configPath,omitempty" jsonschema:"path to the covreport config file"`
	Commit     string   `json:"commit" jsonschema:"commit receiving the sessions"`
	Parent     string   `json:"parent" jsonschema:"parent commit the sessions are copied from"`
	Flags      []string `json:"flags,omitempty" jsonschema:"flags to carry; defaults to the configured carry-forward flags"`
}

// TotalsOutput is returned by the report and patch tools.
type TotalsOutput struct {
	Commit string                 `json:"commit,omitempty"`
	Totals application.TotalsView `json:"totals"`
	Files  []FileOutput           `json:"files,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

type FileOutput struct {
	Name   string                 `json:"name"`
	Totals application.TotalsView `json:"totals"`
}

// StatusOutput is returned by the status tool.
type StatusOutput struct {
	Passed bool                  `json:"passed"`
	Checks []domain.StatusResult `json:"checks,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// SessionsOutput is returned by the sessions tool.
type SessionsOutput struct {
	Sessions []SessionOutput `json:"sessions,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type SessionOutput struct {
	ID                 int                     `json:"id"`
	Type               domain.SessionType      `json:"type"`
	Flags              []string                `json:"flags,omitempty"`
	Name               string                  `json:"name,omitempty"`
	CarriedForwardFrom string                  `json:"carriedForwardFrom,omitempty"`
	Totals             *application.TotalsView `json:"totals,omitempty"`
}

// UploadOutput is returned by the upload tool.
type UploadOutput struct {
	SessionID int                    `json:"sessionId"`
	Files     int                    `json:"files"`
	Upload    application.TotalsView `json:"upload"`
	Report    application.TotalsView `json:"report"`
	Error     string                 `json:"error,omitempty"`
}

// CarryForwardOutput is returned by the carryforward tool.
type CarryForwardOutput struct {
	Flags    []string               `json:"flags,omitempty"`
	Sessions int                    `json:"sessions"`
	Shifted  bool                   `json:"shifted"`
	Report   application.TotalsView `json:"report"`
	Error    string                 `json:"error,omitempty"`
}

// coalesce returns value if non-empty, otherwise fallback.
func coalesce(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
