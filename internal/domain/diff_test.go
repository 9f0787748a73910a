package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestShiftLine(t *testing.T) {
	insertTop := []Segment{{
		Header: SegmentHeader{OldStart: 0, OldLength: 0, NewStart: 1, NewLength: 2},
		Lines:  []string{"+a", "+b"},
	}}
	replace := []Segment{{
		Header: SegmentHeader{OldStart: 4, OldLength: 3, NewStart: 4, NewLength: 2},
		Lines:  []string{" four", "-five", "-six", "+new"},
	}}
	bare := []Segment{{Header: SegmentHeader{OldStart: 3, OldLength: 2, NewStart: 3, NewLength: 5}}}

	tests := []struct {
		name     string
		segments []Segment
		in       int
		want     int
		ok       bool
	}{
		{"insert at top moves line 1", insertTop, 1, 3, true},
		{"insert at top moves line 5", insertTop, 5, 7, true},
		{"before hunk", replace, 2, 2, true},
		{"context inside hunk", replace, 4, 4, true},
		{"removed line", replace, 5, 0, false},
		{"after hunk", replace, 9, 8, true},
		{"inside bare hunk", bare, 4, 0, false},
		{"after bare hunk", bare, 6, 9, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ShiftLine(tt.in, tt.segments)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("ShiftLine(%d) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAddedAndRemovedLines(t *testing.T) {
	segs := []Segment{{
		Header: SegmentHeader{OldStart: 10, OldLength: 3, NewStart: 10, NewLength: 3},
		Lines:  []string{" a", "-b", "+c", " d"},
	}}
	if diff := cmp.Diff([]int{11}, AddedLines(segs)); diff != "" {
		t.Fatalf("added (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{11}, RemovedLines(segs)); diff != "" {
		t.Fatalf("removed (-want +got):\n%s", diff)
	}
}

func TestSegmentHeaderJSON(t *testing.T) {
	var h SegmentHeader
	if err := json.Unmarshal([]byte(`["3","","5","2"]`), &h); err != nil {
		t.Fatal(err)
	}
	want := SegmentHeader{OldStart: 3, OldLength: 1, NewStart: 5, NewLength: 2}
	if h != want {
		t.Fatalf("got %+v, want %+v", h, want)
	}
}

func patchFixture(t *testing.T) *Report {
	t.Helper()
	return reportOf(t, []Session{{ID: 0}},
		fileOf(t, "mod.go", 0, Hit(1), Hit(0), Hit(1), Hit(1), Hit(0)),
		fileOf(t, "new.go", 0, Hit(1), Hit(0)),
		fileOf(t, "empty.go", 0, Skipped()),
	)
}

func TestCalculateReportDiff(t *testing.T) {
	r := patchFixture(t)
	diff := &Diff{Files: map[string]*FileDiff{
		"mod.go": {Type: DiffModified, Segments: []Segment{{
			Header: SegmentHeader{OldStart: 1, OldLength: 3, NewStart: 1, NewLength: 4},
			Lines:  []string{" one", "+two", "+three", "-gone", " four"},
		}}},
		"new.go": {Type: DiffNew, Segments: []Segment{{
			Header: SegmentHeader{OldStart: 0, OldLength: 0, NewStart: 1, NewLength: 2},
			Lines:  []string{"+x", "+y"},
		}}},
		"gone.go":  {Type: DiffDeleted},
		"other.go": {Type: DiffModified},
		"empty.go": {Type: DiffNew, Segments: []Segment{{
			Header: SegmentHeader{NewStart: 1, NewLength: 1},
			Lines:  []string{"+skip"},
		}}},
	}}

	got := CalculateReportDiff(r, diff)

	wantFiles := map[string]ReportTotals{
		"mod.go":   {Lines: 2, Hits: 1, Misses: 1, Coverage: "50.00000"},
		"new.go":   {Lines: 2, Hits: 1, Misses: 1, Coverage: "50.00000"},
		"empty.go": {},
	}
	if diff := cmp.Diff(wantFiles, got.Files); diff != "" {
		t.Fatalf("file totals (-want +got):\n%s", diff)
	}
	wantGeneral := ReportTotals{Files: 3, Lines: 4, Hits: 2, Misses: 2, Coverage: "50.00000"}
	if diff := cmp.Diff(wantGeneral, got.General); diff != "" {
		t.Fatalf("general totals (-want +got):\n%s", diff)
	}
}

func TestApplyDiff(t *testing.T) {
	t.Run("no diff is a no-op", func(t *testing.T) {
		r := patchFixture(t)
		before := r.Totals()
		empty := &Diff{}

		if got := ApplyDiff(r, nil, true); got != nil {
			t.Fatalf("expected nil, got %+v", got)
		}
		if got := ApplyDiff(r, empty, true); got != nil {
			t.Fatalf("expected nil, got %+v", got)
		}
		if empty.Totals != nil || empty.Files != nil {
			t.Fatalf("empty diff was mutated: %+v", empty)
		}
		if diff := cmp.Diff(before, r.Totals()); diff != "" {
			t.Fatalf("report mutated (-before +after):\n%s", diff)
		}
	})

	t.Run("save writes totals back", func(t *testing.T) {
		r := patchFixture(t)
		diff := &Diff{Files: map[string]*FileDiff{
			"new.go": {Type: DiffNew, Segments: []Segment{{
				Header: SegmentHeader{NewStart: 1, NewLength: 2},
				Lines:  []string{"+x", "+y"},
			}}},
		}}

		got := ApplyDiff(r, diff, true)

		if got == nil || got.Lines != 2 {
			t.Fatalf("unexpected result %+v", got)
		}
		if diff.Totals == nil || diff.Totals.Coverage != "50.00000" {
			t.Fatalf("top-level totals not saved: %+v", diff.Totals)
		}
		if diff.Files["new.go"].Totals == nil {
			t.Fatal("file totals not saved")
		}
	})

	t.Run("without save diff is untouched", func(t *testing.T) {
		r := patchFixture(t)
		diff := &Diff{Files: map[string]*FileDiff{"new.go": {Type: DiffNew}}}
		ApplyDiff(r, diff, false)
		if diff.Totals != nil || diff.Files["new.go"].Totals != nil {
			t.Fatal("diff mutated without save")
		}
	})
}
