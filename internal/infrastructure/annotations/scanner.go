package annotations

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/covreport/internal/domain"
)

// Scanner reads source files and reports the lines excluded from coverage.
type Scanner struct{}

const (
	maxHeaderLines   = 20
	pragmaIgnore     = "covreport:ignore"
	pragmaIgnoreFile = "covreport:ignore-file"
	pragmaStart      = "covreport:ignore-start"
	pragmaEnd        = "covreport:ignore-end"
	lcovExclLine     = "LCOV_EXCL_LINE"
	lcovExclStart    = "LCOV_EXCL_START"
	lcovExclStop     = "LCOV_EXCL_STOP"
)

// Scan returns an Ignore per file found under root. Every scanned file gets
// its line count as EOF, so coverage reported past the end of the file is
// dropped. Missing files are skipped.
func (Scanner) Scan(ctx context.Context, root string, files []string) (map[string]domain.Ignore, error) {
	out := make(map[string]domain.Ignore)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := file
		if root != "" {
			path = filepath.Join(root, filepath.FromSlash(file))
		}
		ignore, err := scanFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		out[file] = ignore
	}
	return out, nil
}

func scanFile(path string) (domain.Ignore, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the upload's own file list
	if err != nil {
		return domain.Ignore{}, err
	}
	defer f.Close()

	var lines []int
	inBlock, wholeFile := false, false
	lineNo := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		switch {
		case lineNo <= maxHeaderLines && strings.Contains(text, pragmaIgnoreFile):
			wholeFile = true
		case strings.Contains(text, pragmaStart) || strings.Contains(text, lcovExclStart):
			inBlock = true
			lines = append(lines, lineNo)
		case strings.Contains(text, pragmaEnd) || strings.Contains(text, lcovExclStop):
			inBlock = false
			lines = append(lines, lineNo)
		case inBlock, strings.Contains(text, pragmaIgnore), strings.Contains(text, lcovExclLine):
			lines = append(lines, lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.Ignore{}, err
	}
	if wholeFile {
		lines = lines[:0]
		for ln := 1; ln <= lineNo; ln++ {
			lines = append(lines, ln)
		}
	}
	return domain.NewIgnore(lineNo, lines...), nil
}
