// Package autodetect finds coverage files produced by common test tools.
package autodetect

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns match the file names written by go test, lcov based
// tools and Cobertura exporters.
var DefaultPatterns = []string{
	"coverage.out",
	"cover.out",
	"*.coverprofile",
	"lcov.info",
	"*.lcov",
	"coverage.xml",
	"cobertura.xml",
	"*cobertura*.xml",
}

var skipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"vendor":       {},
	"testdata":     {},
	".covreport":   {},
}

// Finder walks a directory for files whose base name matches one of
// Patterns, or DefaultPatterns when empty.
type Finder struct {
	Patterns []string
}

// Find returns the matching files below root, sorted. Hidden and vendored
// directories are not searched.
func (f Finder) Find(ctx context.Context, root string) ([]string, error) {
	patterns := f.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	var found []string
	err := fs.WalkDir(os.DirFS(root), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != "." && skipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if matchAny(patterns, d.Name()) {
			found = append(found, filepath.Join(root, filepath.FromSlash(path)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}

func skipDir(name string) bool {
	if _, ok := skipDirs[name]; ok {
		return true
	}
	return len(name) > 1 && name[0] == '.'
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
