package wizard

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

type (
	wizardState int

	initWizardModel struct {
		state     wizardState
		cursor    int
		confirmed bool
		aborted   bool

		base     application.Config
		provider application.DiffProviderKind
		compress bool
		target   float64 // project target; 0 compares against the base commit
		flags    []wizardFlag
	}

	wizardFlag struct {
		name         string
		carryforward bool
		paths        []string
	}
)

const (
	stateIntro wizardState = iota
	stateEdit
	stateConfirm
)

// Rows before the flag list in the edit view.
const (
	rowProvider = iota
	rowCompress
	rowTarget
	fixedRows
)

// Run walks the user through the settings in cfg and returns the edited
// config. The bool is false when the wizard was cancelled.
func Run(cfg application.Config, stdout io.Writer, stdin io.Reader) (application.Config, bool, error) {
	return runInitWizard(cfg, stdout, stdin)
}

func runInitWizard(cfg application.Config, stdout io.Writer, stdin io.Reader) (application.Config, bool, error) {
	model := newInitWizardModel(cfg)
	program := tea.NewProgram(model, tea.WithInput(stdin), tea.WithOutput(stdout))
	res, err := program.Run()
	if err != nil {
		return cfg, false, err
	}
	finalModel, ok := res.(*initWizardModel)
	if !ok {
		return cfg, false, fmt.Errorf("unexpected wizard state")
	}
	if finalModel.aborted || !finalModel.confirmed {
		return cfg, false, nil
	}
	return finalModel.toConfig(), true, nil
}

func newInitWizardModel(cfg application.Config) *initWizardModel {
	m := &initWizardModel{
		state:    stateIntro,
		base:     cfg,
		provider: cfg.Diff.Provider,
		compress: cfg.Storage.Compress,
	}
	if m.provider == "" {
		m.provider = application.DiffProviderGit
	}
	for _, check := range cfg.Status {
		if check.Kind == domain.StatusProject && check.Target != nil {
			m.target = *check.Target
			break
		}
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Flags)) {
		f := cfg.Flags[name]
		m.flags = append(m.flags, wizardFlag{name: name, carryforward: f.Carryforward, paths: f.Paths})
	}
	if len(m.flags) == 0 {
		m.flags = []wizardFlag{{name: "unit", carryforward: true}}
	}
	return m
}

func (m *initWizardModel) Init() tea.Cmd {
	return nil
}

func (m *initWizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "q":
		m.aborted = true
		return m, tea.Quit
	case "enter":
		switch m.state {
		case stateIntro:
			m.state = stateEdit
		case stateEdit:
			m.state = stateConfirm
		case stateConfirm:
			m.confirmed = true
			return m, tea.Quit
		}
	case "esc":
		if m.state == stateConfirm {
			m.state = stateEdit
		}
	case "up", "k":
		if m.state == stateEdit {
			m.moveCursor(-1)
		}
	case "down", "j":
		if m.state == stateEdit {
			m.moveCursor(1)
		}
	case "left", "-":
		if m.state == stateEdit {
			m.adjustSelection(-1)
		}
	case "right", "+", " ":
		if m.state == stateEdit {
			m.adjustSelection(1)
		}
	}
	return m, nil
}

func (m *initWizardModel) View() string {
	switch m.state {
	case stateIntro:
		return m.viewIntro()
	case stateEdit:
		return m.viewEdit()
	case stateConfirm:
		return m.viewConfirm()
	default:
		return ""
	}
}

func (m *initWizardModel) moveCursor(delta int) {
	last := fixedRows + len(m.flags) - 1
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor > last {
		m.cursor = last
	}
}

// adjustSelection changes the value under the cursor. Toggles ignore the
// direction; the target moves in steps of five.
func (m *initWizardModel) adjustSelection(delta int) {
	switch m.cursor {
	case rowProvider:
		m.provider = nextProvider(m.provider, delta)
	case rowCompress:
		m.compress = !m.compress
	case rowTarget:
		m.target = clamp(m.target+float64(delta*5), 0, 100)
	default:
		i := m.cursor - fixedRows
		if i >= 0 && i < len(m.flags) {
			m.flags[i].carryforward = !m.flags[i].carryforward
		}
	}
}

func (m *initWizardModel) targetLabel() string {
	if m.target == 0 {
		return "auto (base commit)"
	}
	return fmt.Sprintf("%.0f%%", m.target)
}

func (m *initWizardModel) viewIntro() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\ncovreport init wizard\n\n")
	fmt.Fprintf(&b, "Found %d upload flags. The wizard sets carry-forward, the diff provider and the project target.\n\n", len(m.flags))
	fmt.Fprintf(&b, "Press Enter to continue, or Ctrl+C to cancel.\n")
	return b.String()
}

func (m *initWizardModel) viewEdit() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nReview settings\n\n")
	fmt.Fprintf(&b, "Use ↑/↓ to move, ←/→ or space to change values.\n\n")
	rows := []string{
		fmt.Sprintf("Diff provider: %s", m.provider),
		fmt.Sprintf("Compress chunks: %s", yesNo(m.compress)),
		fmt.Sprintf("Project target: %s", m.targetLabel()),
	}
	for i, row := range rows {
		fmt.Fprintf(&b, "%s%s\n", m.indicator(i), row)
	}
	fmt.Fprintf(&b, "\nFlags (carry forward):\n")
	for i, f := range m.flags {
		mark := "[ ]"
		if f.carryforward {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "%s%s %s\n", m.indicator(fixedRows+i), mark, f.name)
	}
	fmt.Fprintf(&b, "\nEnter to continue, q to cancel.\n")
	return b.String()
}

func (m *initWizardModel) indicator(row int) string {
	if m.cursor == row {
		return "> "
	}
	return "  "
}

func (m *initWizardModel) viewConfirm() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nReady to write configuration\n\n")
	fmt.Fprintf(&b, "Diff provider: %s\n", m.provider)
	if m.provider != application.DiffProviderGit && m.base.Diff.Repo == "" {
		fmt.Fprintf(&b, "  set diff.repo to owner/name before running patch\n")
	}
	fmt.Fprintf(&b, "Compress chunks: %s\n", yesNo(m.compress))
	fmt.Fprintf(&b, "Project target: %s\n", m.targetLabel())
	var carried []string
	for _, f := range m.flags {
		if f.carryforward {
			carried = append(carried, f.name)
		}
	}
	if len(carried) > 0 {
		fmt.Fprintf(&b, "Carry forward: %s\n", strings.Join(carried, ", "))
	} else {
		fmt.Fprintf(&b, "No flags carry forward.\n")
	}
	fmt.Fprintf(&b, "\nPress Enter to save, Esc to go back, q to cancel.\n")
	return b.String()
}

func (m *initWizardModel) toConfig() application.Config {
	cfg := m.base
	cfg.Diff.Provider = m.provider
	cfg.Storage.Compress = m.compress
	cfg.Flags = make(map[string]application.FlagConfig, len(m.flags))
	for _, f := range m.flags {
		cfg.Flags[f.name] = application.FlagConfig{Carryforward: f.carryforward, Paths: f.paths}
	}

	var target *float64
	if m.target > 0 {
		t := m.target
		target = &t
	}
	status := make([]domain.StatusCheck, 0, len(m.base.Status)+1)
	found := false
	for _, check := range m.base.Status {
		if check.Kind == domain.StatusProject && !found {
			check.Target = target
			found = true
		}
		status = append(status, check)
	}
	if !found {
		status = append([]domain.StatusCheck{{Name: "project", Kind: domain.StatusProject, Target: target}}, status...)
	}
	cfg.Status = status
	return cfg
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

var providers = []application.DiffProviderKind{
	application.DiffProviderGit,
	application.DiffProviderGitHub,
	application.DiffProviderGitLab,
	application.DiffProviderBitbucket,
}

// nextProvider cycles through the known providers in the direction of delta.
func nextProvider(current application.DiffProviderKind, delta int) application.DiffProviderKind {
	step := 1
	if delta < 0 {
		step = -1
	}
	i := slices.Index(providers, current)
	if i < 0 {
		return providers[0]
	}
	return providers[(i+step+len(providers))%len(providers)]
}
