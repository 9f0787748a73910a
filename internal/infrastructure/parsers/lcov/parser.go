// Package lcov implements a parser for the LCOV tracefile format.
//
// LCOV is produced by:
//   - pytest-cov (Python)
//   - nyc/c8/Jest (JavaScript/TypeScript)
//   - GCC/LLVM gcov and lcov
package lcov

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/paths"
)

// Parser implements ProfileParser for LCOV format.
type Parser struct{}

// New creates a new LCOV parser.
func New() *Parser {
	return &Parser{}
}

// Format returns the format this parser handles.
func (p *Parser) Format() application.Format {
	return application.FormatLCOV
}

// lineData accumulates the records of one source line.
type lineData struct {
	hits     *int64
	method   bool
	fnHits   int64
	branches int
	covered  int
	missing  []string
}

// record is one SF: .. end_of_record block.
type record struct {
	file      string
	lines     map[int]*lineData
	functions map[string]int // function name to line
}

func newRecord(file string) *record {
	return &record{file: file, lines: make(map[int]*lineData), functions: make(map[string]int)}
}

func (r *record) line(ln int) *lineData {
	d, ok := r.lines[ln]
	if !ok {
		d = &lineData{}
		r.lines[ln] = d
	}
	return d
}

// Parse reads an LCOV tracefile into session. DA records give line hits,
// BRDA records turn a line into a branch with its missed branches, and FN
// records mark method lines.
func (p *Parser) Parse(path string, session *domain.ReportBuilderSession) error {
	cleanPath, err := paths.ValidateInput(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	file, err := os.Open(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return fmt.Errorf("open lcov file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var current *record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, _ := strings.Cut(line, ":")
		switch {
		case key == "SF":
			if current != nil {
				if err := flush(current, session); err != nil {
					return err
				}
			}
			current = newRecord(value)
		case line == "end_of_record":
			if current != nil {
				if err := flush(current, session); err != nil {
					return err
				}
			}
			current = nil
		case current == nil:
			// TN and summary records outside a file record.
		default:
			if err := current.add(key, value); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan lcov file: %w", err)
	}
	if current != nil {
		return flush(current, session)
	}
	return nil
}

func (r *record) add(key, value string) error {
	parts := strings.Split(value, ",")
	switch key {
	case "DA":
		// DA:<line>,<hits>[,<checksum>]
		if len(parts) < 2 {
			return fmt.Errorf("invalid DA record %q", value)
		}
		ln, err := strconv.Atoi(parts[0])
		if err != nil || ln < 1 {
			return fmt.Errorf("invalid DA line %q", parts[0])
		}
		hits, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			// Some generators emit floats for large counts.
			f, ferr := strconv.ParseFloat(parts[1], 64)
			if ferr != nil {
				return fmt.Errorf("invalid DA hits %q", parts[1])
			}
			hits = int64(f)
		}
		if hits < 0 {
			hits = 0
		}
		d := r.line(ln)
		d.hits = &hits
	case "BRDA":
		// BRDA:<line>,<block>,<branch>,<taken|->
		if len(parts) < 4 {
			return fmt.Errorf("invalid BRDA record %q", value)
		}
		ln, err := strconv.Atoi(parts[0])
		if err != nil || ln < 1 {
			return fmt.Errorf("invalid BRDA line %q", parts[0])
		}
		d := r.line(ln)
		d.branches++
		if taken, err := strconv.ParseInt(parts[3], 10, 64); err == nil && taken > 0 {
			d.covered++
		} else {
			d.missing = append(d.missing, parts[1]+":"+parts[2])
		}
	case "FN":
		// FN:<line>,<name>
		if len(parts) < 2 {
			return fmt.Errorf("invalid FN record %q", value)
		}
		ln, err := strconv.Atoi(parts[0])
		if err != nil || ln < 1 {
			return fmt.Errorf("invalid FN line %q", parts[0])
		}
		r.functions[strings.Join(parts[1:], ",")] = ln
		r.line(ln).method = true
	case "FNDA":
		// FNDA:<hits>,<name>
		if len(parts) < 2 {
			return fmt.Errorf("invalid FNDA record %q", value)
		}
		hits, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid FNDA hits %q", parts[0])
		}
		if ln, ok := r.functions[strings.Join(parts[1:], ",")]; ok {
			r.line(ln).fnHits += hits
		}
	}
	return nil
}

func flush(r *record, session *domain.ReportBuilderSession) error {
	if r.file == "" || len(r.lines) == 0 {
		return nil
	}
	file, ok := session.CreateCoverageFile(r.file, true)
	if !ok {
		return nil
	}
	lines := make([]int, 0, len(r.lines))
	for ln := range r.lines {
		lines = append(lines, ln)
	}
	sort.Ints(lines)
	for _, ln := range lines {
		line, ok, err := r.lines[ln].build(session)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", r.file, ln, err)
		}
		if !ok {
			continue
		}
		if _, err := file.Append(ln, line); err != nil {
			return fmt.Errorf("%s:%d: %w", r.file, ln, err)
		}
	}
	session.Append(file)
	return nil
}

func (d *lineData) build(session *domain.ReportBuilderSession) (domain.ReportLine, bool, error) {
	switch {
	case d.branches > 0:
		cov, err := domain.NewBranch(d.covered, d.branches)
		if err != nil {
			return domain.ReportLine{}, false, err
		}
		line, err := session.CreateCoverageLine(cov, domain.CoverageBranch, domain.WithMissingBranches(d.missing...))
		return line, err == nil, err
	case d.method:
		hits := d.fnHits
		if d.hits != nil && *d.hits > hits {
			hits = *d.hits
		}
		line, err := session.CreateCoverageLine(domain.Hit(hits), domain.CoverageMethod)
		return line, err == nil, err
	case d.hits != nil:
		line, err := session.CreateCoverageLine(domain.Hit(*d.hits), domain.CoverageLine)
		return line, err == nil, err
	}
	return domain.ReportLine{}, false, nil
}
