package application

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/felixgeelhaar/covreport/internal/domain"
)

// DefaultStoragePath is where reports live when the config names no path.
const DefaultStoragePath = ".covreport"

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	return Config{
		Version: 1,
		Storage: StorageConfig{Path: DefaultStoragePath},
		Diff:    DiffConfig{Provider: DiffProviderGit},
		Flare:   domain.DefaultColorRange,
	}
}

// loadConfig loads config from path, falling back to the defaults when the
// file does not exist.
func loadConfig(loader ConfigLoader, configPath string) (Config, error) {
	if loader == nil {
		return DefaultConfig(), nil
	}
	exists, err := loader.Exists(configPath)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return DefaultConfig(), nil
	}
	cfg, err := loader.Load(configPath)
	if err != nil {
		return Config{}, err
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Diff.Provider == "" {
		cfg.Diff.Provider = DiffProviderGit
	}
	if cfg.Flare == (domain.ColorRange{}) {
		cfg.Flare = domain.DefaultColorRange
	}
	return cfg, nil
}

// flagMatcher unions the path restrictions of flags. A flag without paths
// lifts every restriction.
func flagMatcher(cfg Config, flags []string) (*domain.PathMatcher, error) {
	var patterns []string
	for _, f := range flags {
		fc, ok := cfg.Flags[f]
		if !ok || len(fc.Paths) == 0 {
			return nil, nil
		}
		patterns = append(patterns, fc.Paths...)
	}
	if len(patterns) == 0 {
		return nil, nil
	}
	return domain.NewPathMatcher(patterns)
}

// applyIgnores rebuilds the files of report that have ignored lines so the
// ignored lines are dropped.
func applyIgnores(report *domain.Report, ignored map[string]domain.Ignore) *domain.Report {
	if len(ignored) == 0 {
		return report
	}
	for _, name := range report.FileNames() {
		ig, ok := ignored[name]
		if !ok || ig.IsZero() {
			continue
		}
		f, _ := report.Get(name)
		rebuilt := domain.NewReportFile(name, domain.WithIgnore(ig))
		rebuilt.Merge(f, true, false)
		report.Remove(name)
		report.Append(rebuilt)
	}
	return report
}

func summarize(commit string, view domain.View, withFiles bool) ReportSummary {
	summary := ReportSummary{Commit: commit, Totals: view.Totals()}
	if !withFiles {
		return summary
	}
	for _, name := range view.FileNames() {
		f, ok := view.File(name)
		if !ok {
			continue
		}
		summary.Files = append(summary.Files, FileSummary{Name: name, Totals: f.Totals()})
	}
	return summary
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func requireCommit(commit string) error {
	if commit == "" {
		return fmt.Errorf("commit is required")
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := slices.Collect(maps.Keys(m))
	sort.Strings(keys)
	return keys
}
