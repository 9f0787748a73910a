package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var coverageComparer = cmp.Comparer(func(a, b Coverage) bool { return a.Equal(b) })

func mustLine(t *testing.T, typ LineType, sessions ...LineSession) ReportLine {
	t.Helper()
	l, err := NewReportLine(typ, sessions...)
	if err != nil {
		t.Fatalf("NewReportLine: %v", err)
	}
	return l
}

// fileOf builds a file where covs[i] is session id's coverage of line i+1.
// Absent values leave the line without data.
func fileOf(t *testing.T, name string, id int, covs ...Coverage) *ReportFile {
	t.Helper()
	f := NewReportFile(name)
	for i, c := range covs {
		if c.IsNone() {
			continue
		}
		if _, err := f.Append(i+1, mustLine(t, TypeLine, LineSession{ID: id, Coverage: c})); err != nil {
			t.Fatalf("Append line %d: %v", i+1, err)
		}
	}
	return f
}

func reportOf(t *testing.T, sessions []Session, files ...*ReportFile) *Report {
	t.Helper()
	r := NewReport()
	for _, s := range sessions {
		r.AddSession(s, true)
	}
	for _, f := range files {
		r.Append(f)
	}
	return r
}

func assertConsistent(t *testing.T, tot ReportTotals) {
	t.Helper()
	if tot.Hits+tot.Misses+tot.Partials != tot.Lines {
		t.Errorf("hits+misses+partials = %d, lines = %d", tot.Hits+tot.Misses+tot.Partials, tot.Lines)
	}
	if (tot.Lines == 0) != (tot.Coverage == "") {
		t.Errorf("lines = %d but coverage = %q", tot.Lines, tot.Coverage)
	}
}
