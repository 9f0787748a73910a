// Package paths rewrites the source paths found in coverage uploads onto
// repository-relative paths.
package paths

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

// fix rewrites a leading before prefix to after. An empty before prepends.
type fix struct {
	before string
	after  string
}

// Fixer implements domain.PathFixer. It is safe for concurrent use.
type Fixer struct {
	fixes  []fix
	ignore []string
}

// NewFixer builds a fixer from "before::after" rewrites and ignore globs.
func NewFixer(fixes, ignore []string) (*Fixer, error) {
	f := &Fixer{}
	for _, raw := range fixes {
		before, after, ok := strings.Cut(raw, "::")
		if !ok {
			return nil, fmt.Errorf("invalid path fix %q: want before::after", raw)
		}
		f.fixes = append(f.fixes, fix{before: clean(before), after: clean(after)})
	}
	for _, pattern := range ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPattern, pattern)
		}
		f.ignore = append(f.ignore, pattern)
	}
	return f, nil
}

// Factory adapts NewFixer to the application's fixer factory.
func Factory(cfg application.PathsConfig, extraIgnore []string) (domain.PathFixer, error) {
	ignore := append(append([]string(nil), cfg.Ignore...), extraIgnore...)
	return NewFixer(cfg.Fixes, ignore)
}

// Fix returns the repository path for raw, or "" when it is ignored.
func (f *Fixer) Fix(raw string) string {
	p := clean(raw)
	if p == "" {
		return ""
	}
	for _, fx := range f.fixes {
		if fx.before == "" {
			p = join(fx.after, p)
			break
		}
		if p == fx.before || strings.HasPrefix(p, fx.before+"/") {
			p = join(fx.after, strings.TrimPrefix(strings.TrimPrefix(p, fx.before), "/"))
			break
		}
	}
	for _, pattern := range f.ignore {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return ""
		}
	}
	return p
}

func clean(p string) string {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	if p == "." {
		return ""
	}
	return p
}

func join(prefix, rest string) string {
	if prefix == "" {
		return rest
	}
	if rest == "" {
		return prefix
	}
	return prefix + "/" + rest
}

var _ domain.PathFixer = (*Fixer)(nil)
