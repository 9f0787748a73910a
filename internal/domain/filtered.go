package domain

import (
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPattern is returned for path patterns that do not compile.
var ErrInvalidPattern = errors.New("invalid path pattern")

// View is the read surface shared by Report and FilteredReport.
type View interface {
	File(name string) (FileView, bool)
	FileNames() []string
	SessionIDs() []int
	Totals() ReportTotals
}

// FileView is the read surface shared by ReportFile and FilteredReportFile.
type FileView interface {
	Name() string
	Get(ln int) (ReportLine, bool)
	Lines() iter.Seq2[int, ReportLine]
	Totals() ReportTotals
	CalculateDiff(segments []Segment) ReportTotals
}

// PathMatcher matches file paths against include and exclude patterns.
//
// A pattern starting with "^" is a regular expression, a leading "!" negates
// a pattern, patterns with glob syntax are matched with doublestar and plain
// patterns match the path itself or anything below it.
type PathMatcher struct {
	include []func(string) bool
	exclude []func(string) bool
}

// NewPathMatcher compiles patterns.
func NewPathMatcher(patterns []string) (*PathMatcher, error) {
	m := &PathMatcher{}
	for _, p := range patterns {
		negate := strings.HasPrefix(p, "!")
		p = strings.TrimPrefix(p, "!")
		if p == "" {
			continue
		}
		fn, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		if negate {
			m.exclude = append(m.exclude, fn)
		} else {
			m.include = append(m.include, fn)
		}
	}
	return m, nil
}

func compilePattern(p string) (func(string) bool, error) {
	if strings.HasPrefix(p, "^") {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err)
		}
		return re.MatchString, nil
	}
	if strings.ContainsAny(p, "*?[{") {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
		return func(path string) bool {
			ok, _ := doublestar.Match(p, path)
			return ok
		}, nil
	}
	dir := strings.TrimSuffix(p, "/")
	return func(path string) bool {
		return path == dir || strings.HasPrefix(path, dir+"/")
	}, nil
}

// Match reports whether path passes the matcher. A matcher without include
// patterns accepts everything not excluded.
func (m *PathMatcher) Match(path string) bool {
	if m == nil {
		return true
	}
	for _, fn := range m.exclude {
		if fn(path) {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, fn := range m.include {
		if fn(path) {
			return true
		}
	}
	return false
}

// FilteredReport is a read-only projection of a Report onto a set of paths
// and flags. It never mutates the report it wraps.
type FilteredReport struct {
	report  *Report
	matcher *PathMatcher
	flags   []string

	idsOnce sync.Once
	include map[int]struct{}
	ids     []int

	totalsOnce sync.Once
	totals     ReportTotals
}

// NewFilteredReport wraps report.
func NewFilteredReport(report *Report, paths, flags []string) (*FilteredReport, error) {
	matcher, err := NewPathMatcher(paths)
	if err != nil {
		return nil, err
	}
	return &FilteredReport{report: report, matcher: matcher, flags: flags}, nil
}

func (fr *FilteredReport) sessionSet() map[int]struct{} {
	fr.idsOnce.Do(func() {
		if len(fr.flags) == 0 {
			fr.ids = fr.report.SessionIDs()
		} else {
			fr.ids = fr.report.SessionIDsWithFlags(fr.flags)
		}
		fr.include = make(map[int]struct{}, len(fr.ids))
		for _, id := range fr.ids {
			fr.include[id] = struct{}{}
		}
	})
	return fr.include
}

// SessionIDs returns the ids of the sessions kept by the flag filter.
func (fr *FilteredReport) SessionIDs() []int {
	fr.sessionSet()
	return append([]int(nil), fr.ids...)
}

// File returns the filtered file. Files outside the path filter and files
// left without lines are absent.
func (fr *FilteredReport) File(name string) (FileView, bool) {
	f := fr.file(name)
	if f == nil {
		return nil, false
	}
	return f, true
}

func (fr *FilteredReport) file(name string) *FilteredReportFile {
	if !fr.matcher.Match(name) {
		return nil
	}
	f, ok := fr.report.files[name]
	if !ok {
		return nil
	}
	ff := &FilteredReportFile{file: f, include: fr.sessionSet(), all: len(fr.flags) == 0}
	if ff.isEmpty() {
		return nil
	}
	return ff
}

// FileNames returns the paths visible through the filter, sorted.
func (fr *FilteredReport) FileNames() []string {
	var names []string
	for _, name := range fr.report.FileNames() {
		if fr.file(name) != nil {
			names = append(names, name)
		}
	}
	return names
}

// Totals sums the filtered file totals. Sessions counts the included sessions.
func (fr *FilteredReport) Totals() ReportTotals {
	fr.totalsOnce.Do(func() {
		var list []ReportTotals
		for _, name := range fr.report.FileNames() {
			if f := fr.file(name); f != nil {
				list = append(list, f.Totals())
			}
		}
		fr.totals = SumTotals(list)
		fr.totals.Sessions = len(fr.sessionSet())
	})
	return fr.totals
}

// FilteredReportFile is one file seen through a session filter.
type FilteredReportFile struct {
	file    *ReportFile
	include map[int]struct{}
	all     bool

	totalsOnce sync.Once
	totals     ReportTotals
}

// Name returns the file path.
func (f *FilteredReportFile) Name() string { return f.file.Name() }

// lineModifier keeps only the included sessions of line. It returns false
// when no session is left, in which case the line must be skipped entirely.
func (f *FilteredReportFile) lineModifier(line ReportLine) (ReportLine, bool) {
	if f.all {
		return line, true
	}
	kept := make([]LineSession, 0, len(line.Sessions))
	for _, s := range line.Sessions {
		if _, ok := f.include[s.ID]; ok {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return ReportLine{}, false
	}
	if len(kept) == len(line.Sessions) {
		return line, true
	}
	out := ReportLine{Type: line.Type, Sessions: kept}
	out.recompute()
	return out, true
}

// Get returns the filtered line at ln.
func (f *FilteredReportFile) Get(ln int) (ReportLine, bool) {
	line, ok := f.file.Get(ln)
	if !ok {
		return ReportLine{}, false
	}
	return f.lineModifier(line)
}

// Lines yields the filtered lines in order.
func (f *FilteredReportFile) Lines() iter.Seq2[int, ReportLine] {
	return func(yield func(int, ReportLine) bool) {
		for ln, line := range f.file.Lines() {
			l, ok := f.lineModifier(line)
			if !ok {
				continue
			}
			if !yield(ln, l) {
				return
			}
		}
	}
}

func (f *FilteredReportFile) isEmpty() bool {
	for range f.Lines() {
		return false
	}
	return true
}

// Totals returns the totals of the filtered lines.
func (f *FilteredReportFile) Totals() ReportTotals {
	f.totalsOnce.Do(func() {
		if f.all {
			f.totals = f.file.Totals()
			return
		}
		var lines []ReportLine
		for _, l := range f.Lines() {
			lines = append(lines, l)
		}
		f.totals = LineTotals(lines)
	})
	return f.totals
}

// CalculateDiff returns the totals of the filtered lines added by segments.
func (f *FilteredReportFile) CalculateDiff(segments []Segment) ReportTotals {
	lines := make([]ReportLine, 0)
	for _, ln := range AddedLines(segments) {
		if l, ok := f.Get(ln); ok {
			lines = append(lines, l)
		}
	}
	return LineTotals(lines)
}
