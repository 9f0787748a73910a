package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = ".covreport.yaml"

type Loader struct{}

type fileConfig struct {
	Version int                 `yaml:"version"`
	Storage fileStorage         `yaml:"storage,omitempty"`
	Paths   filePaths           `yaml:"paths,omitempty"`
	Flags   map[string]fileFlag `yaml:"flags,omitempty"`
	Diff    fileDiff            `yaml:"diff,omitempty"`
	Flare   *domain.ColorRange  `yaml:"flare,omitempty"`
	Status  []fileStatus        `yaml:"status,omitempty"`
}

type fileStorage struct {
	Path     string `yaml:"path,omitempty"`
	Compress bool   `yaml:"compress,omitempty"`
}

type filePaths struct {
	Fixes  []string `yaml:"fixes,omitempty"`
	Ignore []string `yaml:"ignore,omitempty"`
}

type fileFlag struct {
	Carryforward bool     `yaml:"carryforward"`
	Paths        []string `yaml:"paths,omitempty"`
}

type fileDiff struct {
	Provider string `yaml:"provider,omitempty"`
	Repo     string `yaml:"repo,omitempty"`
	Dir      string `yaml:"dir,omitempty"`
}

type fileStatus struct {
	Name      string   `yaml:"name,omitempty"`
	Kind      string   `yaml:"kind"`
	Target    target   `yaml:"target,omitempty"`
	Threshold float64  `yaml:"threshold,omitempty"`
	Paths     []string `yaml:"paths,omitempty"`
	Flags     []string `yaml:"flags,omitempty"`
}

// target is a percentage such as 80 or "80%", or "auto" to compare
// against the base commit.
type target struct {
	value *float64
}

func (t *target) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" || strings.EqualFold(raw, "auto") {
		t.value = nil
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
	if err != nil {
		return fmt.Errorf("line %d: invalid target %q", node.Line, node.Value)
	}
	t.value = &v
	return nil
}

func (t target) MarshalYAML() (any, error) {
	if t.value == nil {
		return "auto", nil
	}
	return *t.value, nil
}

// IsZero keeps an auto target out of written configs.
func (t target) IsZero() bool { return t.value == nil }

func (l Loader) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l Loader) Load(path string) (application.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return application.Config{}, fmt.Errorf("%w: %s", application.ErrConfigNotFound, path)
		}
		return application.Config{}, err
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return application.Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	out, err := cfg.toConfig()
	if err != nil {
		return application.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// currentVersion is the only config schema version understood.
const currentVersion = 1

func (c fileConfig) toConfig() (application.Config, error) {
	switch c.Version {
	case 0:
		c.Version = currentVersion
	case currentVersion:
	default:
		return application.Config{}, fmt.Errorf("unsupported config version %d", c.Version)
	}
	out := application.Config{
		Version: c.Version,
		Storage: application.StorageConfig{Path: c.Storage.Path, Compress: c.Storage.Compress},
		Paths:   application.PathsConfig{Fixes: c.Paths.Fixes, Ignore: c.Paths.Ignore},
		Diff: application.DiffConfig{
			Provider: application.DiffProviderKind(strings.ToLower(c.Diff.Provider)),
			Repo:     c.Diff.Repo,
			Dir:      c.Diff.Dir,
		},
	}
	switch out.Diff.Provider {
	case "", application.DiffProviderGit:
	case application.DiffProviderGitHub, application.DiffProviderGitLab, application.DiffProviderBitbucket:
		if !strings.Contains(out.Diff.Repo, "/") {
			return application.Config{}, fmt.Errorf("diff.repo must be owner/name for the %s provider", out.Diff.Provider)
		}
	default:
		return application.Config{}, fmt.Errorf("unknown diff provider %q", c.Diff.Provider)
	}
	for _, fix := range c.Paths.Fixes {
		if !strings.Contains(fix, "::") {
			return application.Config{}, fmt.Errorf("path fix %q must be before::after", fix)
		}
	}

	if len(c.Flags) > 0 {
		out.Flags = make(map[string]application.FlagConfig, len(c.Flags))
		for name, f := range c.Flags {
			out.Flags[name] = application.FlagConfig{Carryforward: f.Carryforward, Paths: f.Paths}
		}
	}

	if c.Flare != nil {
		if c.Flare.Low < 0 || c.Flare.High > 100 || c.Flare.Low >= c.Flare.High {
			return application.Config{}, fmt.Errorf("flare range %v-%v is invalid", c.Flare.Low, c.Flare.High)
		}
		out.Flare = *c.Flare
	}

	for i, s := range c.Status {
		kind := domain.StatusKind(strings.ToLower(s.Kind))
		switch kind {
		case "":
			kind = domain.StatusProject
		case domain.StatusProject, domain.StatusPatch:
		default:
			return application.Config{}, fmt.Errorf("status[%d]: unknown kind %q", i, s.Kind)
		}
		if s.Threshold < 0 {
			return application.Config{}, fmt.Errorf("status[%d]: threshold must not be negative", i)
		}
		out.Status = append(out.Status, domain.StatusCheck{
			Name:      s.Name,
			Kind:      kind,
			Target:    s.Target.value,
			Threshold: s.Threshold,
			Paths:     s.Paths,
			Flags:     s.Flags,
		})
	}
	return out, nil
}

func Write(w io.Writer, cfg application.Config) error {
	version := cfg.Version
	if version == 0 {
		version = currentVersion
	}
	out := fileConfig{
		Version: version,
		Storage: fileStorage{Path: cfg.Storage.Path, Compress: cfg.Storage.Compress},
		Paths:   filePaths{Fixes: cfg.Paths.Fixes, Ignore: cfg.Paths.Ignore},
		Diff: fileDiff{
			Provider: string(cfg.Diff.Provider),
			Repo:     cfg.Diff.Repo,
			Dir:      cfg.Diff.Dir,
		},
	}
	if len(cfg.Flags) > 0 {
		out.Flags = make(map[string]fileFlag, len(cfg.Flags))
		for name, f := range cfg.Flags {
			out.Flags[name] = fileFlag{Carryforward: f.Carryforward, Paths: f.Paths}
		}
	}
	if cfg.Flare != (domain.ColorRange{}) {
		flare := cfg.Flare
		out.Flare = &flare
	}
	for _, s := range cfg.Status {
		out.Status = append(out.Status, fileStatus{
			Name:      s.Name,
			Kind:      string(s.Kind),
			Target:    target{value: s.Target},
			Threshold: s.Threshold,
			Paths:     s.Paths,
			Flags:     s.Flags,
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
