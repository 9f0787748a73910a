// Package coverprofile parses Go coverage profiles (go test -coverprofile).
package coverprofile

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

type Parser struct{}

func (Parser) Format() application.Format { return application.FormatGo }

// block is one profile record: file:startLine.startCol,endLine.endCol stmts count.
type block struct {
	file                                 string
	startLine, startCol, endLine, endCol int
	stmts                                int
	count                                int64
}

func (b block) key() string {
	return fmt.Sprintf("%s:%d.%d,%d.%d", b.file, b.startLine, b.startCol, b.endLine, b.endCol)
}

// segment is the part of a source line one block covers. A nil end runs to
// the end of the line.
type segment struct {
	start int
	end   *int
	hits  int64
}

// Parse reads a Go coverage profile into session. Every line spanned by a
// block is reported. A line covered by blocks that disagree about being
// executed becomes a partial line with one range per block.
func (Parser) Parse(path string, session *domain.ReportBuilderSession) error {
	cleanPath, err := paths.ValidateInput(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	file, err := os.Open(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var (
		mode   string
		order  []string
		blocks = make(map[string]*block)
	)
	lineNo := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNo++
		if lineNo == 1 && !strings.HasPrefix(line, "mode:") {
			return fmt.Errorf("invalid coverage mode line")
		}
		if line == "" {
			continue
		}
		// Concatenated profiles repeat the mode line.
		if m, ok := strings.CutPrefix(line, "mode:"); ok {
			mode = strings.TrimSpace(m)
			continue
		}
		b, err := parseLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		k := b.key()
		existing, ok := blocks[k]
		if !ok {
			blocks[k] = &b
			order = append(order, k)
			continue
		}
		if mode == "set" {
			existing.count = max(existing.count, b.count)
		} else {
			existing.count += b.count
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return emit(session, order, blocks)
}

func emit(session *domain.ReportBuilderSession, order []string, blocks map[string]*block) error {
	var names []string
	files := make(map[string]map[int][]segment)
	for _, k := range order {
		b := blocks[k]
		lines, ok := files[b.file]
		if !ok {
			lines = make(map[int][]segment)
			files[b.file] = lines
			names = append(names, b.file)
		}
		for ln := b.startLine; ln <= b.endLine; ln++ {
			seg := segment{hits: b.count}
			if ln == b.startLine {
				seg.start = b.startCol
			}
			if ln == b.endLine {
				end := b.endCol
				seg.end = &end
			}
			lines[ln] = append(lines[ln], seg)
		}
	}

	for _, name := range names {
		rf, ok := session.CreateCoverageFile(name, true)
		if !ok {
			continue
		}
		lines := files[name]
		numbers := make([]int, 0, len(lines))
		for ln := range lines {
			numbers = append(numbers, ln)
		}
		sort.Ints(numbers)
		for _, ln := range numbers {
			cov, err := lineCoverage(lines[ln])
			if err != nil {
				return fmt.Errorf("%s:%d: %w", name, ln, err)
			}
			rl, err := session.CreateCoverageLine(cov, domain.CoverageLine)
			if err != nil {
				return fmt.Errorf("%s:%d: %w", name, ln, err)
			}
			if _, err := rf.Append(ln, rl); err != nil {
				return fmt.Errorf("%s:%d: %w", name, ln, err)
			}
		}
		session.Append(rf)
	}
	return nil
}

func lineCoverage(segs []segment) (domain.Coverage, error) {
	var hit, missed bool
	var best int64
	for _, s := range segs {
		if s.hits > 0 {
			hit = true
			best = max(best, s.hits)
		} else {
			missed = true
		}
	}
	if !hit || !missed {
		return domain.Hit(best), nil
	}
	ranges := make([]domain.PartialRange, 0, len(segs))
	for _, s := range segs {
		if s.end == nil {
			ranges = append(ranges, domain.Open(s.start, s.hits))
			continue
		}
		end := max(*s.end, s.start)
		ranges = append(ranges, domain.Bounded(s.start, end, s.hits))
	}
	return domain.NewPartial(ranges...)
}

func parseLine(line string) (block, error) {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return block{}, fmt.Errorf("invalid coverage line")
	}
	i := strings.LastIndex(parts[0], ":")
	if i <= 0 {
		return block{}, fmt.Errorf("invalid block position")
	}
	b := block{file: parts[0][:i]}
	start, end, ok := strings.Cut(parts[0][i+1:], ",")
	if !ok {
		return block{}, fmt.Errorf("invalid block position")
	}
	var err error
	if b.startLine, b.startCol, err = parsePos(start); err != nil {
		return block{}, err
	}
	if b.endLine, b.endCol, err = parsePos(end); err != nil {
		return block{}, err
	}
	if b.startLine < 1 || b.endLine < b.startLine {
		return block{}, fmt.Errorf("invalid block range")
	}
	b.stmts, err = strconv.Atoi(parts[1])
	if err != nil {
		return block{}, fmt.Errorf("invalid statement count")
	}
	b.count, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil || b.count < 0 {
		return block{}, fmt.Errorf("invalid count")
	}
	return b, nil
}

func parsePos(s string) (int, int, error) {
	l, c, ok := strings.Cut(s, ".")
	if !ok {
		return 0, 0, fmt.Errorf("invalid position %q", s)
	}
	line, err := strconv.Atoi(l)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid position %q", s)
	}
	col, err := strconv.Atoi(c)
	if err != nil || col < 0 {
		return 0, 0, fmt.Errorf("invalid position %q", s)
	}
	return line, col, nil
}
