package application

import (
	"context"
	"errors"
	"io"

	"github.com/felixgeelhaar/covreport/internal/domain"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// Format represents a coverage upload format.
type Format string

const (
	// FormatAuto detects the format from the file content.
	FormatAuto Format = "auto"
	// FormatGo is the Go coverage profile format.
	FormatGo Format = "go"
	// FormatLCOV is the LCOV tracefile format.
	FormatLCOV Format = "lcov"
	// FormatCobertura is the Cobertura XML format.
	FormatCobertura Format = "cobertura"
)

// DiffProviderKind selects where commit diffs come from.
type DiffProviderKind string

const (
	DiffProviderGit       DiffProviderKind = "git"
	DiffProviderGitHub    DiffProviderKind = "github"
	DiffProviderGitLab    DiffProviderKind = "gitlab"
	DiffProviderBitbucket DiffProviderKind = "bitbucket"
)

var (
	ErrConfigNotFound  = errors.New("config not found")
	ErrRateLimited     = errors.New("diff provider rate limited")
	ErrDiffUnavailable = errors.New("diff unavailable")
	ErrNoFiles         = errors.New("no coverage files given")
	ErrNoCoverage      = errors.New("no coverage found in upload")
)

// Config represents validated, application-ready configuration.
type Config struct {
	Version int
	Storage StorageConfig
	Paths   PathsConfig
	Flags   map[string]FlagConfig
	Diff    DiffConfig
	Flare   domain.ColorRange
	Status  []domain.StatusCheck
}

// StorageConfig locates the report archive.
type StorageConfig struct {
	Path     string
	Compress bool
}

// PathsConfig rewrites and filters uploaded paths.
type PathsConfig struct {
	Fixes  []string // "before::after" prefix rewrites
	Ignore []string // globs excluded from every upload
}

// FlagConfig configures one upload flag.
type FlagConfig struct {
	Carryforward bool
	Paths        []string
}

type DiffConfig struct {
	Provider DiffProviderKind
	Repo     string // owner/name for the github provider
	Dir      string // repository checkout for the git provider
}

// CarryforwardFlags returns the configured flags that carry forward, sorted.
func (c Config) CarryforwardFlags() []string {
	var flags []string
	for _, name := range sortedKeys(c.Flags) {
		if c.Flags[name].Carryforward {
			flags = append(flags, name)
		}
	}
	return flags
}

type ConfigLoader interface {
	Load(path string) (Config, error)
	Exists(path string) (bool, error)
}

// ProfileParser parses one uploaded coverage file into a builder session.
// Implementations exist for each supported format.
type ProfileParser interface {
	Parse(path string, session *domain.ReportBuilderSession) error
	// Format returns the format this parser handles.
	Format() Format
}

// ParserRegistry parses uploads in any supported format.
type ParserRegistry interface {
	ProfileParser
	ParseWithFormat(path string, format Format, session *domain.ReportBuilderSession) error
}

// ReportStore persists one report per commit.
type ReportStore interface {
	// Load returns domain.ErrReportNotFound when the commit has no report.
	Load(ctx context.Context, commit string) (*domain.Report, error)
	Save(ctx context.Context, commit string, report *domain.Report) error
	List(ctx context.Context) ([]string, error)
}

// StoreFactory opens the report store described by the storage config.
type StoreFactory func(cfg StorageConfig) (ReportStore, error)

// DiffProvider fetches the unified diff between two commits.
type DiffProvider interface {
	Compare(ctx context.Context, base, head string) (*domain.Diff, error)
}

// DiffProviderFactory builds the diff provider selected by the config.
type DiffProviderFactory func(cfg DiffConfig) (DiffProvider, error)

// AnnotationScanner finds lines excluded by source comments.
type AnnotationScanner interface {
	Scan(ctx context.Context, root string, files []string) (map[string]domain.Ignore, error)
}

// PathFixerFactory builds the path fixer for an upload.
type PathFixerFactory func(cfg PathsConfig, extraIgnore []string) (domain.PathFixer, error)

type Reporter interface {
	WriteTotals(w io.Writer, summary ReportSummary, format OutputFormat) error
	WriteStatus(w io.Writer, results []domain.StatusResult, format OutputFormat) error
	WriteSessions(w io.Writer, sessions []*domain.Session, format OutputFormat) error
}

// Recorder tracks ingestion metrics.
type Recorder interface {
	Upload(flags []string, files int, totals domain.ReportTotals)
	CarryForward(flags []string, sessions int, shifted bool)
	DiffFailure(provider string)
	SessionsDeleted(n int)
}

// CoverageFinder discovers coverage files below a directory.
type CoverageFinder interface {
	Find(ctx context.Context, root string) ([]string, error)
}

// FileWatcher provides file change notifications.
type FileWatcher interface {
	WatchDir(root string) error
	Events(ctx context.Context) <-chan string
	Close() error
}

// UploadOptions configures one upload session.
type UploadOptions struct {
	ConfigPath string
	Commit     string
	Files      []string
	Format     Format
	Root       string // source checkout scanned for ignore annotations
	Search     string // searched for coverage files when Files is empty
	Flags      []string
	Name       string
	Provider   string
	Build      string
	Job        string
	URL        string
	Env        map[string]string
	Time       int64
}

// UploadResult summarizes a stored upload.
type UploadResult struct {
	SessionID int
	Files     int
	Bytes     int64
	Totals    domain.ReportTotals
	Report    domain.ReportTotals
}

// CarryForwardOptions configures carrying sessions from a parent commit.
type CarryForwardOptions struct {
	ConfigPath string
	Commit     string
	Parent     string
	Flags      []string // defaults to every carry-forward flag in the config
}

// CarryForwardResult summarizes a carry-forward.
type CarryForwardResult struct {
	Flags    []string
	Sessions map[int]int // parent id to head id
	Shifted  bool
	Totals   domain.ReportTotals
}

type ReportOptions struct {
	ConfigPath string
	Commit     string
	Paths      []string
	Flags      []string
	Files      bool
	Output     OutputFormat
}

// ReportSummary is the rendered form of a (filtered) report.
type ReportSummary struct {
	Commit string              `json:"commit"`
	Totals domain.ReportTotals `json:"totals"`
	Files  []FileSummary       `json:"files,omitempty"`
}

type FileSummary struct {
	Name   string              `json:"name"`
	Totals domain.ReportTotals `json:"totals"`
}

type PatchOptions struct {
	ConfigPath string
	Base       string
	Head       string
	Paths      []string
	Flags      []string
	Output     OutputFormat
}

type StatusOptions struct {
	ConfigPath string
	Base       string
	Head       string
	Output     OutputFormat
}

type DeleteOptions struct {
	ConfigPath string
	Commit     string
	IDs        []int
	Flags      []string
}

type RenameOptions struct {
	ConfigPath string
	Commit     string
	From       int
	To         int
}

type SessionsOptions struct {
	ConfigPath string
	Commit     string
	Output     OutputFormat
}

type FlareOptions struct {
	ConfigPath string
	Commit     string
	Base       string // when set, files changed since Base are marked
	Paths      []string
	Flags      []string
}

// WatchOptions configures watch mode behavior.
type WatchOptions struct {
	UploadOptions
	Dir string
}

// WatchCallback is called after each ingested file.
type WatchCallback func(path string, result UploadResult, err error)

// TotalsView is the named-field rendering of report totals used by the
// text, JSON and MCP outputs. The stored form is positional.
type TotalsView struct {
	Files      int      `json:"files"`
	Lines      int      `json:"lines"`
	Hits       int      `json:"hits"`
	Misses     int      `json:"misses"`
	Partials   int      `json:"partials"`
	Coverage   *float64 `json:"coverage"`
	Branches   int      `json:"branches"`
	Methods    int      `json:"methods"`
	Sessions   int      `json:"sessions"`
	Complexity int      `json:"complexity,omitempty"`
}

// ViewTotals converts totals to their named rendering. Coverage is nil when
// there are no lines.
func ViewTotals(t domain.ReportTotals) TotalsView {
	v := TotalsView{
		Files: t.Files, Lines: t.Lines, Hits: t.Hits, Misses: t.Misses,
		Partials: t.Partials, Branches: t.Branches, Methods: t.Methods,
		Sessions: t.Sessions, Complexity: t.Complexity,
	}
	if t.HasCoverage() {
		pct := t.Percent()
		v.Coverage = &pct
	}
	return v
}
