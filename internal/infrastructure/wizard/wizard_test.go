package wizard

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

func TestInitWizardModelDefaults(t *testing.T) {
	model := newInitWizardModel(application.Config{})
	if model.provider != application.DiffProviderGit {
		t.Fatalf("expected git provider, got %s", model.provider)
	}
	if len(model.flags) != 1 || model.flags[0].name != "unit" || !model.flags[0].carryforward {
		t.Fatalf("unexpected default flags: %+v", model.flags)
	}
	if model.target != 0 {
		t.Fatalf("expected auto target, got %.0f", model.target)
	}
}

func TestInitWizardModelAdjustsSelection(t *testing.T) {
	model := newInitWizardModel(minimalConfig())

	model.cursor = rowProvider
	model.adjustSelection(1)
	if model.provider != application.DiffProviderGitHub {
		t.Fatalf("expected github provider, got %s", model.provider)
	}

	model.cursor = rowCompress
	model.adjustSelection(1)
	if !model.compress {
		t.Fatalf("expected compress toggled on")
	}

	model.cursor = rowTarget
	model.adjustSelection(1)
	if model.target != 85 {
		t.Fatalf("expected target 85, got %.0f", model.target)
	}
	model.adjustSelection(-100)
	if model.target != 0 {
		t.Fatalf("expected target clamped to auto, got %.0f", model.target)
	}

	model.cursor = fixedRows + 1 // unit
	model.adjustSelection(1)
	if model.flags[1].carryforward {
		t.Fatalf("expected unit carryforward toggled off")
	}
}

func TestInitWizardModelConfigOutput(t *testing.T) {
	model := newInitWizardModel(minimalConfig())
	model.cursor = fixedRows // e2e
	model.adjustSelection(1)

	cfg := model.toConfig()
	if !cfg.Flags["e2e"].Carryforward {
		t.Fatalf("expected e2e to carry forward")
	}
	if got := cfg.Flags["unit"].Paths; len(got) != 1 || got[0] != "api/**" {
		t.Fatalf("expected unit paths preserved, got %v", got)
	}
	if cfg.Storage.Path != ".covreport" {
		t.Fatalf("expected storage path preserved, got %q", cfg.Storage.Path)
	}
	if len(cfg.Status) != 2 {
		t.Fatalf("expected status checks preserved, got %+v", cfg.Status)
	}
	if cfg.Status[0].Target == nil || *cfg.Status[0].Target != 80 {
		t.Fatalf("unexpected project target: %v", cfg.Status[0].Target)
	}
}

func TestInitWizardAddsProjectCheck(t *testing.T) {
	model := newInitWizardModel(application.Config{})
	model.target = 70
	cfg := model.toConfig()
	if len(cfg.Status) != 1 || cfg.Status[0].Kind != domain.StatusProject {
		t.Fatalf("expected a project check, got %+v", cfg.Status)
	}
	if *cfg.Status[0].Target != 70 {
		t.Fatalf("expected target 70, got %v", *cfg.Status[0].Target)
	}
}

func TestRunInitWizardCompletes(t *testing.T) {
	var out bytes.Buffer
	stdin := strings.NewReader("\r\r\r")
	cfg, confirmed, err := runInitWizard(minimalConfig(), &out, stdin)
	if err != nil {
		t.Fatalf("wizard error: %v", err)
	}
	if !confirmed {
		t.Fatalf("expected wizard to confirm")
	}
	if cfg.Diff.Provider != application.DiffProviderGit {
		t.Fatalf("unexpected provider %s", cfg.Diff.Provider)
	}
	if len(cfg.Flags) != 2 {
		t.Fatalf("expected flags preserved, got %v", cfg.Flags)
	}
}

func TestInitWizardMoveCursor(t *testing.T) {
	model := newInitWizardModel(minimalConfig())
	model.moveCursor(1)
	if model.cursor != 1 {
		t.Fatalf("expected cursor 1, got %d", model.cursor)
	}
	model.moveCursor(-5)
	if model.cursor != 0 {
		t.Fatalf("expected cursor 0, got %d", model.cursor)
	}
	last := fixedRows + len(model.flags) - 1
	model.moveCursor(last + 5)
	if model.cursor != last {
		t.Fatalf("expected cursor at max %d, got %d", last, model.cursor)
	}
}

func TestInitWizardClamp(t *testing.T) {
	if clamp(-5, 0, 10) != 0 {
		t.Fatalf("expected clamp to min")
	}
	if clamp(20, 0, 10) != 10 {
		t.Fatalf("expected clamp to max")
	}
	if clamp(5, 0, 10) != 5 {
		t.Fatalf("expected clamp to keep value")
	}
}

func TestInitWizardUpdateTransitions(t *testing.T) {
	model := newInitWizardModel(minimalConfig())
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if model.state != stateEdit {
		t.Fatalf("expected edit state, got %d", model.state)
	}
	model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model.Update(tea.KeyMsg{Type: tea.KeyRight})
	if !model.compress {
		t.Fatalf("expected compress toggled via key")
	}
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if model.state != stateConfirm {
		t.Fatalf("expected confirm state, got %d", model.state)
	}
	model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if model.state != stateEdit {
		t.Fatalf("expected edit state on esc, got %d", model.state)
	}
}

func TestInitWizardViewConfirm(t *testing.T) {
	model := newInitWizardModel(minimalConfig())
	model.state = stateConfirm
	model.provider = application.DiffProviderGitHub
	view := model.View()
	for _, want := range []string{"Carry forward: unit", "set diff.repo", "Project target: 80%"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected %q in view:\n%s", want, view)
		}
	}
}

func minimalConfig() application.Config {
	eighty := 80.0
	return application.Config{
		Version: 1,
		Storage: application.StorageConfig{Path: ".covreport"},
		Flags: map[string]application.FlagConfig{
			"unit": {Carryforward: true, Paths: []string{"api/**"}},
			"e2e":  {},
		},
		Status: []domain.StatusCheck{
			{Name: "project", Kind: domain.StatusProject, Target: &eighty},
			{Name: "patch", Kind: domain.StatusPatch},
		},
	}
}

func TestNextProviderCycles(t *testing.T) {
	got := application.DiffProviderGit
	for _, want := range []application.DiffProviderKind{
		application.DiffProviderGitHub,
		application.DiffProviderGitLab,
		application.DiffProviderBitbucket,
		application.DiffProviderGit,
	} {
		got = nextProvider(got, 1)
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
	if got := nextProvider(application.DiffProviderGit, -1); got != application.DiffProviderBitbucket {
		t.Fatalf("expected bitbucket going backwards, got %s", got)
	}
	if got := nextProvider("svn", 1); got != application.DiffProviderGit {
		t.Fatalf("expected unknown provider to reset to git, got %s", got)
	}
}
