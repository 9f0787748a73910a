// Package cobertura implements a parser for Cobertura XML coverage format.
//
// Cobertura XML format is widely used by:
//   - Java (Maven JaCoCo, Gradle)
//   - Python (coverage.py with --xml)
//   - .NET (coverlet)
//   - Many CI tools (Jenkins, Azure DevOps, etc.)
package cobertura

import (
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/paths"
)

// coverage represents the root Cobertura XML element.
type coverage struct {
	XMLName  xml.Name `xml:"coverage"`
	Packages []pkg    `xml:"packages>package"`
}

type pkg struct {
	Name    string  `xml:"name,attr"`
	Classes []class `xml:"classes>class"`
}

type class struct {
	Name     string   `xml:"name,attr"`
	Filename string   `xml:"filename,attr"`
	Lines    []line   `xml:"lines>line"`
	Methods  []method `xml:"methods>method"`
}

type method struct {
	Name       string `xml:"name,attr"`
	Complexity string `xml:"complexity,attr"`
	Lines      []line `xml:"lines>line"`
}

type line struct {
	Number            int    `xml:"number,attr"`
	Hits              string `xml:"hits,attr"`
	Branch            string `xml:"branch,attr"`
	ConditionCoverage string `xml:"condition-coverage,attr"`
}

// entry merges every element reported for one source line.
type entry struct {
	hits       int64
	method     bool
	complexity int
	covered    int
	total      int
}

// Parser implements ProfileParser for Cobertura XML format.
type Parser struct{}

// New creates a new Cobertura parser.
func New() *Parser {
	return &Parser{}
}

// Format returns the format this parser handles.
func (p *Parser) Format() application.Format {
	return application.FormatCobertura
}

// Parse reads a Cobertura XML coverage file into session. Classes sharing a
// filename are combined. The first line of each method becomes a method line
// and lines with condition coverage become branch lines.
func (p *Parser) Parse(path string, session *domain.ReportBuilderSession) error {
	cleanPath, err := paths.ValidateInput(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	file, err := os.Open(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return fmt.Errorf("open cobertura file: %w", err)
	}
	defer file.Close()

	var cov coverage
	if err := xml.NewDecoder(file).Decode(&cov); err != nil {
		return fmt.Errorf("decode cobertura xml: %w", err)
	}

	var order []string
	files := make(map[string]map[int]*entry)
	for _, pk := range cov.Packages {
		for _, cl := range pk.Classes {
			if cl.Filename == "" {
				continue
			}
			entries, ok := files[cl.Filename]
			if !ok {
				entries = make(map[int]*entry)
				files[cl.Filename] = entries
				order = append(order, cl.Filename)
			}
			if err := collect(entries, cl); err != nil {
				return fmt.Errorf("%s: %w", cl.Filename, err)
			}
		}
	}

	for _, name := range order {
		if err := emit(session, name, files[name]); err != nil {
			return err
		}
	}
	return nil
}

func collect(entries map[int]*entry, cl class) error {
	get := func(ln int) *entry {
		e, ok := entries[ln]
		if !ok {
			e = &entry{}
			entries[ln] = e
		}
		return e
	}
	add := func(l line) error {
		if l.Number < 1 {
			return fmt.Errorf("invalid line number %d", l.Number)
		}
		hits, err := parseHits(l.Hits)
		if err != nil {
			return fmt.Errorf("line %d: %w", l.Number, err)
		}
		e := get(l.Number)
		e.hits = max(e.hits, hits)
		if strings.EqualFold(l.Branch, "true") {
			covered, total, ok := parseCondition(l.ConditionCoverage)
			if ok && total >= e.total {
				e.covered, e.total = covered, total
			}
		}
		return nil
	}

	for _, m := range cl.Methods {
		first := 0
		for _, l := range m.Lines {
			if err := add(l); err != nil {
				return err
			}
			if first == 0 || l.Number < first {
				first = l.Number
			}
		}
		if first > 0 {
			e := get(first)
			e.method = true
			e.complexity = max(e.complexity, parseComplexity(m.Complexity))
		}
	}
	for _, l := range cl.Lines {
		if err := add(l); err != nil {
			return err
		}
	}
	return nil
}

func emit(session *domain.ReportBuilderSession, name string, entries map[int]*entry) error {
	if len(entries) == 0 {
		return nil
	}
	file, ok := session.CreateCoverageFile(name, true)
	if !ok {
		return nil
	}
	lines := make([]int, 0, len(entries))
	for ln := range entries {
		lines = append(lines, ln)
	}
	sort.Ints(lines)
	for _, ln := range lines {
		e := entries[ln]
		var (
			rl  domain.ReportLine
			err error
		)
		switch {
		case e.total > 0:
			var cov domain.Coverage
			cov, err = domain.NewBranch(e.covered, e.total)
			if err == nil {
				rl, err = session.CreateCoverageLine(cov, domain.CoverageBranch)
			}
		case e.method:
			var opts []domain.LineOption
			if e.complexity > 0 {
				opts = append(opts, domain.WithComplexity(domain.ScalarComplexity(e.complexity)))
			}
			rl, err = session.CreateCoverageLine(domain.Hit(e.hits), domain.CoverageMethod, opts...)
		default:
			rl, err = session.CreateCoverageLine(domain.Hit(e.hits), domain.CoverageLine)
		}
		if err != nil {
			return fmt.Errorf("%s:%d: %w", name, ln, err)
		}
		if _, err := file.Append(ln, rl); err != nil {
			return fmt.Errorf("%s:%d: %w", name, ln, err)
		}
	}
	session.Append(file)
	return nil
}

// parseHits accepts integer and float hit counts. Negative counts clamp to 0.
func parseHits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return max(n, 0), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid hits %q", s)
	}
	if f < 0 {
		return 0, nil
	}
	if f > math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(f), nil
}

// parseCondition reads condition-coverage values like "50% (1/2)".
func parseCondition(s string) (covered, total int, ok bool) {
	open := strings.IndexByte(s, '(')
	closing := strings.IndexByte(s, ')')
	if open < 0 || closing < open {
		return 0, 0, false
	}
	c, t, found := strings.Cut(s[open+1:closing], "/")
	if !found {
		return 0, 0, false
	}
	covered, err := strconv.Atoi(strings.TrimSpace(c))
	if err != nil {
		return 0, 0, false
	}
	total, err = strconv.Atoi(strings.TrimSpace(t))
	if err != nil || total <= 0 || covered < 0 || covered > total {
		return 0, 0, false
	}
	return covered, total, true
}

func parseComplexity(s string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 || math.IsNaN(f) || f > math.MaxInt32 {
		return 0
	}
	return int(math.Round(f))
}
