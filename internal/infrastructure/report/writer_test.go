package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

func sampleSummary() application.ReportSummary {
	return application.ReportSummary{
		Commit: "abc123",
		Totals: domain.ReportTotals{Files: 2, Lines: 1200, Hits: 900, Misses: 300, Coverage: "75.00000", Sessions: 2},
		Files: []application.FileSummary{
			{Name: "api/a.go", Totals: domain.ReportTotals{Files: 1, Lines: 1000, Hits: 800, Misses: 200, Coverage: "80.00000"}},
			{Name: "web/b.go", Totals: domain.ReportTotals{Files: 1, Lines: 200, Hits: 100, Misses: 100, Coverage: "50.00000"}},
		},
	}
}

func TestWriteTotalsText(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := (Writer{}).WriteTotals(buf, sampleSummary(), application.OutputText); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Commit abc123", "api/a.go", "1,000", "80.00%", "TOTAL", "75.00%", "2 sessions, 2 files"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWriteTotalsTextEmpty(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := (Writer{}).WriteTotals(buf, application.ReportSummary{}, application.OutputText); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "TOTAL") || !strings.Contains(buf.String(), "-") {
		t.Fatalf("expected empty totals row:\n%s", buf.String())
	}
}

func TestWriteTotalsJSON(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := (Writer{}).WriteTotals(buf, sampleSummary(), application.OutputJSON); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got struct {
		Commit string                 `json:"commit"`
		Totals application.TotalsView `json:"totals"`
		Files  []struct {
			Name string `json:"name"`
		} `json:"files"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if got.Commit != "abc123" || got.Totals.Lines != 1200 || len(got.Files) != 2 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.Totals.Coverage == nil || *got.Totals.Coverage != 75 {
		t.Fatalf("unexpected coverage: %v", got.Totals.Coverage)
	}
}

func TestWriteStatus(t *testing.T) {
	results := []domain.StatusResult{
		{Name: "project", Kind: domain.StatusProject, Percent: 75, Required: 80, Lines: 1200, Status: domain.StatusFail},
		{Name: "patch", Kind: domain.StatusPatch, Status: domain.StatusWarn, Message: "no covered lines to measure"},
	}

	buf := new(bytes.Buffer)
	if err := (Writer{}).WriteStatus(buf, results, application.OutputText); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"project", "FAIL", "80.0%", "Notes:", "patch: no covered lines to measure"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := (Writer{}).WriteStatus(buf, results, application.OutputJSON); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "\"pass\": false") {
		t.Fatalf("expected JSON summary:\n%s", buf.String())
	}
}

func TestWriteStatusJSONEmpty(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := (Writer{}).WriteStatus(buf, nil, application.OutputJSON); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "\"checks\": []") || !strings.Contains(buf.String(), "\"pass\": true") {
		t.Fatalf("unexpected payload:\n%s", buf.String())
	}
}

func TestWriteSessions(t *testing.T) {
	totals := domain.ReportTotals{Lines: 3, Hits: 2, Misses: 1, Coverage: "66.66667"}
	sessions := []*domain.Session{
		{ID: 0, Type: domain.SessionUploaded, Flags: []string{"unit"}, Name: "ci", Totals: &totals},
		{ID: 1, Type: domain.SessionCarriedForward, Flags: []string{"e2e"},
			Extras: map[string]any{domain.ExtraCarriedForwardFrom: "parent1"}},
	}

	buf := new(bytes.Buffer)
	if err := (Writer{}).WriteSessions(buf, sessions, application.OutputText); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"unit", "66.67%", "carriedforward", "parent1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := (Writer{}).WriteSessions(buf, sessions, application.OutputJSON); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got []sessionJSON
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[1].CarriedForwardFrom != "parent1" || got[0].Totals == nil || got[0].Totals.Hits != 2 {
		t.Fatalf("unexpected sessions: %+v", got)
	}
}

func TestWriteSessionsEmptyText(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := (Writer{}).WriteSessions(buf, nil, application.OutputText); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "No sessions.") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestUnsupportedFormat(t *testing.T) {
	w := Writer{}
	if err := w.WriteTotals(new(bytes.Buffer), application.ReportSummary{}, "xml"); err == nil {
		t.Fatalf("expected error for totals")
	}
	if err := w.WriteStatus(new(bytes.Buffer), nil, "xml"); err == nil {
		t.Fatalf("expected error for status")
	}
	if err := w.WriteSessions(new(bytes.Buffer), nil, "xml"); err == nil {
		t.Fatalf("expected error for sessions")
	}
}
