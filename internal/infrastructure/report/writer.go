package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

// Writer renders reports, status checks and session tables.
type Writer struct {
	// Colors colors coverage cells; the zero value uses the default range.
	Colors domain.ColorRange
}

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#CA8A04")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8"))
)

func (wr Writer) WriteTotals(w io.Writer, summary application.ReportSummary, format application.OutputFormat) error {
	switch format {
	case application.OutputJSON:
		type fileJSON struct {
			Name   string                 `json:"name"`
			Totals application.TotalsView `json:"totals"`
		}
		payload := struct {
			Commit string                 `json:"commit"`
			Totals application.TotalsView `json:"totals"`
			Files  []fileJSON             `json:"files,omitempty"`
		}{Commit: summary.Commit, Totals: application.ViewTotals(summary.Totals)}
		for _, f := range summary.Files {
			payload.Files = append(payload.Files, fileJSON{Name: f.Name, Totals: application.ViewTotals(f.Totals)})
		}
		return encodeJSON(w, payload)
	case application.OutputText, "":
		return wr.writeTotalsText(w, summary)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func (wr Writer) writeTotalsText(w io.Writer, summary application.ReportSummary) error {
	colorize := colorEnabled(w)
	if summary.Commit != "" {
		fmt.Fprintf(w, "Commit %s\n\n", summary.Commit)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "File\tLines\tHits\tMisses\tPartials\tCoverage")
	for _, f := range summary.Files {
		wr.totalsRow(tw, f.Name, f.Totals, colorize)
	}
	wr.totalsRow(tw, "TOTAL", summary.Totals, colorize)
	if err := tw.Flush(); err != nil {
		return err
	}
	if summary.Totals.Sessions > 0 {
		fmt.Fprintf(w, "\n%s sessions, %s files\n",
			humanize.Comma(int64(summary.Totals.Sessions)), humanize.Comma(int64(summary.Totals.Files)))
	}
	return nil
}

func (wr Writer) totalsRow(w io.Writer, name string, t domain.ReportTotals, colorize bool) {
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", name,
		humanize.Comma(int64(t.Lines)), humanize.Comma(int64(t.Hits)),
		humanize.Comma(int64(t.Misses)), humanize.Comma(int64(t.Partials)),
		wr.coverageCell(t, colorize))
}

func (wr Writer) coverageCell(t domain.ReportTotals, colorize bool) string {
	if !t.HasCoverage() {
		return "-"
	}
	pct := t.Percent()
	cell := fmt.Sprintf("%.2f%%", pct)
	if !colorize {
		return cell
	}
	colors := wr.Colors
	if colors == (domain.ColorRange{}) {
		colors = domain.DefaultColorRange
	}
	switch {
	case pct >= colors.High:
		return passStyle.Render(cell)
	case pct >= colors.Low:
		return warnStyle.Render(cell)
	default:
		return failStyle.Render(cell)
	}
}

func (wr Writer) WriteStatus(w io.Writer, results []domain.StatusResult, format application.OutputFormat) error {
	passed := true
	for _, r := range results {
		if r.IsFailing() {
			passed = false
		}
	}
	switch format {
	case application.OutputJSON:
		payload := struct {
			Checks  []domain.StatusResult `json:"checks"`
			Summary struct {
				Pass bool `json:"pass"`
			} `json:"summary"`
		}{Checks: results}
		if payload.Checks == nil {
			payload.Checks = []domain.StatusResult{}
		}
		payload.Summary.Pass = passed
		return encodeJSON(w, payload)
	case application.OutputText, "":
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}

	colorize := colorEnabled(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "Check\tKind\tCoverage\tRequired\tLines\tStatus")
	var notes []string
	for _, r := range results {
		status := string(r.Status)
		if colorize {
			switch r.Status {
			case domain.StatusPass:
				status = passStyle.Render(status)
			case domain.StatusFail:
				status = failStyle.Render(status)
			case domain.StatusWarn:
				status = warnStyle.Render(status)
			}
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%.1f%%\t%s\t%s\n",
			r.Name, r.Kind, r.Percent, r.Required, humanize.Comma(int64(r.Lines)), status)
		if r.Message != "" {
			notes = append(notes, fmt.Sprintf("%s: %s", r.Name, r.Message))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(notes) > 0 {
		fmt.Fprintln(w, "\nNotes:")
		for _, n := range notes {
			fmt.Fprintf(w, "  - %s\n", n)
		}
	}
	return nil
}

// sessionJSON is the readable rendering of a session.
type sessionJSON struct {
	ID                 int                     `json:"id"`
	Type               domain.SessionType      `json:"type"`
	Flags              []string                `json:"flags,omitempty"`
	Name               string                  `json:"name,omitempty"`
	Provider           string                  `json:"provider,omitempty"`
	Build              string                  `json:"build,omitempty"`
	Job                string                  `json:"job,omitempty"`
	URL                string                  `json:"url,omitempty"`
	Time               int64                   `json:"time,omitempty"`
	CarriedForwardFrom string                  `json:"carriedforward_from,omitempty"`
	Totals             *application.TotalsView `json:"totals,omitempty"`
}

func (wr Writer) WriteSessions(w io.Writer, sessions []*domain.Session, format application.OutputFormat) error {
	switch format {
	case application.OutputJSON:
		out := make([]sessionJSON, 0, len(sessions))
		for _, s := range sessions {
			sj := sessionJSON{
				ID: s.ID, Type: s.Type, Flags: s.Flags, Name: s.Name, Provider: s.Provider,
				Build: s.Build, Job: s.Job, URL: s.URL, Time: s.Time,
				CarriedForwardFrom: s.CarriedForwardFrom(),
			}
			if s.Totals != nil {
				v := application.ViewTotals(*s.Totals)
				sj.Totals = &v
			}
			out = append(out, sj)
		}
		return encodeJSON(w, out)
	case application.OutputText, "":
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return nil
	}
	colorize := colorEnabled(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tType\tFlags\tName\tLines\tCoverage\tFrom")
	for _, s := range sessions {
		lines, cov := "-", "-"
		if s.Totals != nil {
			lines = humanize.Comma(int64(s.Totals.Lines))
			cov = wr.coverageCell(*s.Totals, colorize)
		}
		from := s.CarriedForwardFrom()
		if from == "" {
			from = "-"
		} else if colorize {
			from = mutedStyle.Render(from)
		}
		flags := strings.Join(s.Flags, ",")
		if flags == "" {
			flags = "-"
		}
		name := s.Name
		if name == "" {
			name = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.Type, flags, name, lines, cov, from)
	}
	return tw.Flush()
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

var _ application.Reporter = Writer{}
