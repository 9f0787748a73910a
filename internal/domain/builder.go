package domain

// CoverageType is the kind of measurement a parser reports for a line.
type CoverageType int

const (
	CoverageLine CoverageType = iota
	CoverageBranch
	CoverageMethod
)

// LineType maps a coverage type onto the stored line type.
func (t CoverageType) LineType() LineType {
	switch t {
	case CoverageBranch:
		return TypeBranch
	case CoverageMethod:
		return TypeMethod
	}
	return TypeLine
}

// ReportBuilder produces report fragments for a single upload session.
type ReportBuilder struct {
	sessionID int
	fixer     PathFixer
	ignored   map[string]Ignore
}

// NewReportBuilder returns a builder for sessionID. A nil fixer keeps paths
// as reported. ignored lists lines to drop, keyed by fixed path.
func NewReportBuilder(sessionID int, fixer PathFixer, ignored map[string]Ignore) *ReportBuilder {
	if fixer == nil {
		fixer = PathFixerFunc(func(p string) string { return p })
	}
	return &ReportBuilder{sessionID: sessionID, fixer: fixer, ignored: ignored}
}

// SessionID returns the id the builder stamps on every line.
func (b *ReportBuilder) SessionID() int { return b.sessionID }

// NewSession starts building the fragment for one uploaded file.
func (b *ReportBuilder) NewSession(filepath string) *ReportBuilderSession {
	return &ReportBuilderSession{builder: b, filepath: filepath, report: NewReport()}
}

// ReportBuilderSession collects the files parsed from one uploaded file.
type ReportBuilderSession struct {
	builder  *ReportBuilder
	filepath string
	report   *Report
}

// FilePath returns the path of the uploaded file being parsed.
func (s *ReportBuilderSession) FilePath() string { return s.filepath }

// ResolvePath runs path through the builder's fixer.
func (s *ReportBuilderSession) ResolvePath(path string) string {
	return s.builder.fixer.Fix(path)
}

// CreateCoverageFile returns an empty file for path, or false when the path
// fixer excludes it. With fix unset path is used verbatim.
func (s *ReportBuilderSession) CreateCoverageFile(path string, fix bool) (*ReportFile, bool) {
	if fix {
		path = s.ResolvePath(path)
	}
	if path == "" {
		return nil, false
	}
	var opts []FileOption
	if ignore, ok := s.builder.ignored[path]; ok {
		opts = append(opts, WithIgnore(ignore))
	}
	return NewReportFile(path, opts...), true
}

// LineOption sets optional per-session line data.
type LineOption func(*LineSession)

// WithMissingBranches records the branch ids the session missed.
func WithMissingBranches(ids ...string) LineOption {
	return func(s *LineSession) { s.Branches = NewBranches(ids...) }
}

// WithPartials records sub-line ranges.
func WithPartials(ranges ...PartialRange) LineOption {
	return func(s *LineSession) { s.Partials = append([]PartialRange(nil), ranges...) }
}

// WithComplexity records the line complexity.
func WithComplexity(c Complexity) LineOption {
	return func(s *LineSession) { s.Complexity = c }
}

// CreateCoverageLine builds a line carrying a single session contribution.
func (s *ReportBuilderSession) CreateCoverageLine(cov Coverage, typ CoverageType, opts ...LineOption) (ReportLine, error) {
	ls := LineSession{ID: s.builder.sessionID, Coverage: cov}
	for _, opt := range opts {
		opt(&ls)
	}
	return NewReportLine(typ.LineType(), ls)
}

// Append adds a parsed file to the fragment.
func (s *ReportBuilderSession) Append(file *ReportFile) bool {
	return s.report.Append(file)
}

// Output returns the fragment built so far.
func (s *ReportBuilderSession) Output() *Report {
	return s.report
}
