package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMergeCoverage(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Coverage
		missing Branches
		want    Coverage
	}{
		{"absent is identity left", Coverage{}, Hit(3), nil, Hit(3)},
		{"absent is identity right", Branch(1, 2), Coverage{}, nil, Branch(1, 2)},
		{"skipped absorbs hit", Skipped(), Hit(9), nil, Skipped()},
		{"skipped absorbs branch", Branch(2, 2), Skipped(), nil, Skipped()},
		{"hits keep max", Hit(2), Hit(7), nil, Hit(7)},
		{"true marker yields to hit", Bool(true), Hit(4), nil, Hit(4)},
		{"miss yields to true marker", Hit(0), Bool(true), nil, Bool(true)},
		{"equal fractions", Branch(1, 2), Branch(1, 2), nil, Branch(1, 2)},
		{"complete fraction wins", Branch(0, 1), Branch(1, 1), nil, Branch(1, 1)},
		{"multi digit numerators", Branch(9, 12), Branch(10, 12), nil, Branch(10, 12)},
		{"missing branches recompute", Branch(1, 3), Branch(2, 3), NewBranches("x"), Branch(2, 3)},
		{"positive hit beats fraction", Hit(5), Branch(1, 2), nil, Hit(5)},
		{"zero hit yields fraction", Hit(0), Branch(1, 2), nil, Branch(1, 2)},
		{"hit against fraction with missing", Hit(1), Branch(1, 4), NewBranches("a"), Branch(3, 4)},
		{"partial against hit", Partial(Bounded(0, 2, 1), Bounded(2, 4, 0)), Hit(0), nil, Branch(1, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeCoverage(tt.a, tt.b, tt.missing)
			if !got.Equal(tt.want) {
				t.Fatalf("MergeCoverage(%v, %v) = %v (%s), want %v (%s)", tt.a, tt.b, got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

func TestMergePartialLine(t *testing.T) {
	t.Run("column max collapses to one range", func(t *testing.T) {
		a := Partial(Bounded(0, 2, 1), Bounded(2, 4, 0))
		b := Partial(Bounded(0, 2, 0), Bounded(2, 4, 1))

		got := MergePartialLine(a, b)

		want := []PartialRange{Bounded(0, 4, 1)}
		if diff := cmp.Diff(want, got.Ranges(), cmp.Comparer(PartialRange.equal)); diff != "" {
			t.Fatalf("ranges mismatch (-want +got):\n%s", diff)
		}
		if got.State() != StateHit {
			t.Fatalf("expected fully covered, got state %d", got.State())
		}
		// The fraction counts collapsed ranges, not columns: 4/4 covered
		// columns read as a single covered range.
		if s := got.String(); s != "1/1" {
			t.Fatalf("String() = %q, want 1/1", s)
		}
	})

	t.Run("open range runs to last known column", func(t *testing.T) {
		a := Partial(Open(2, 1))
		b := Partial(Bounded(0, 5, 0))

		got := MergePartialLine(a, b)

		want := []PartialRange{Bounded(0, 2, 0), Bounded(2, 5, 1)}
		if diff := cmp.Diff(want, got.Ranges(), cmp.Comparer(PartialRange.equal)); diff != "" {
			t.Fatalf("ranges mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("identical values are returned as is", func(t *testing.T) {
		a := Partial(Bounded(0, 3, 2))
		if got := MergePartialLine(a, a); !got.Equal(a) {
			t.Fatalf("got %v", got.Ranges())
		}
	})
}

func TestMergeMissedBranches(t *testing.T) {
	s1 := LineSession{ID: 0, Coverage: Branch(1, 3), Branches: NewBranches("A", "B")}
	s2 := LineSession{ID: 1, Coverage: Branch(1, 3), Branches: NewBranches("B", "C")}

	t.Run("intersection", func(t *testing.T) {
		got := MergeMissedBranches([]LineSession{s1, s2})
		if diff := cmp.Diff(NewBranches("B"), got); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("full hit without branch data", func(t *testing.T) {
		full := LineSession{ID: 2, Coverage: Hit(3)}
		got := MergeMissedBranches([]LineSession{s1, full})
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil set, got %#v", got)
		}
	})

	t.Run("no branch data", func(t *testing.T) {
		got := MergeMissedBranches([]LineSession{{ID: 0, Coverage: Hit(1)}})
		if got != nil {
			t.Fatalf("expected nil, got %#v", got)
		}
	})
}

func TestMergeLine(t *testing.T) {
	t.Run("idempotent on itself", func(t *testing.T) {
		l := mustLine(t, TypeBranch,
			LineSession{ID: 0, Coverage: Hit(3)},
			LineSession{ID: 1, Coverage: Branch(1, 2), Branches: NewBranches("1")},
		)
		a, b := l.clone(), l.clone()

		got := MergeLine(&a, &b, true, false)

		if diff := cmp.Diff(l.SessionIDs(), got.SessionIDs()); diff != "" {
			t.Fatalf("session ids (-want +got):\n%s", diff)
		}
		if !got.Coverage.Equal(l.Coverage) {
			t.Fatalf("coverage changed: %v -> %v", l.Coverage, got.Coverage)
		}
	})

	t.Run("overwrite keeps first coverage", func(t *testing.T) {
		a := mustLine(t, TypeLine, LineSession{ID: 0, Coverage: Hit(0)})
		b := mustLine(t, TypeLine, LineSession{ID: 1, Coverage: Hit(5)})

		got := MergeLine(&a, &b, false, false)

		if !got.Coverage.Equal(Hit(0)) {
			t.Fatalf("expected first coverage, got %v", got.Coverage)
		}
		if len(got.Sessions) != 2 {
			t.Fatalf("expected both sessions recorded, got %d", len(got.Sessions))
		}
	})

	t.Run("disjoint leaves aggregate pending", func(t *testing.T) {
		a := mustLine(t, TypeLine, LineSession{ID: 0, Coverage: Hit(1)})
		b := mustLine(t, TypeMethod, LineSession{ID: 1, Coverage: Hit(0)})

		got := MergeLine(&a, &b, true, true)

		if !got.Coverage.IsNone() {
			t.Fatalf("expected pending coverage, got %v", got.Coverage)
		}
		if got.Type != TypeMethod {
			t.Fatalf("expected first non-empty type, got %q", got.Type)
		}
	})
}

func TestMergeComplexity(t *testing.T) {
	tests := []struct {
		name string
		a, b Complexity
		want Complexity
	}{
		{"unset", Complexity{}, ScalarComplexity(2), ScalarComplexity(2)},
		{"pair beats scalar", ScalarComplexity(9), PairComplexity(1, 2), PairComplexity(1, 2)},
		{"larger scalar", ScalarComplexity(2), ScalarComplexity(5), ScalarComplexity(5)},
		{"larger covered", PairComplexity(1, 4), PairComplexity(2, 3), PairComplexity(2, 3)},
		{"larger total on tie", PairComplexity(2, 3), PairComplexity(2, 4), PairComplexity(2, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeComplexity(tt.a, tt.b)
			if got != tt.want {
				t.Fatalf("MergeComplexity = %+v, want %+v", got, tt.want)
			}
		})
	}
}
