package domain

import "sort"

// MergeCoverage combines two coverage values for the same line.
//
// missing is the set of branches missed across the contributing sessions; a
// nil set means the missing branches are unknown. Absent values are the
// identity, skipped values absorb everything, counts keep the maximum and
// branch fractions prefer the more complete side.
func MergeCoverage(a, b Coverage, missing Branches) Coverage {
	switch {
	case a.IsNone():
		return b
	case b.IsNone():
		return a
	case a.kind == KindSkipped || b.kind == KindSkipped:
		return Skipped()
	case a.kind == KindHit && b.kind == KindHit:
		if b.hits > a.hits {
			return b
		}
		return a
	case a.kind == KindPartial && b.kind == KindPartial:
		return MergePartialLine(a, b)
	case a.kind == KindBool:
		if b.truthy() {
			return b
		}
		return a
	case b.kind == KindBool:
		if a.truthy() {
			return a
		}
		return b
	}

	// What remains involves a branch fraction, or a count against partial ranges.
	a, b = partialToBranch(a), partialToBranch(b)
	if a.kind == KindBranch && b.kind == KindBranch {
		return mergeFractions(a, b, missing)
	}
	br := a
	if b.kind == KindBranch {
		br = b
	}
	if missing != nil {
		return branchFromMissing(br.total, missing)
	}
	return MergeBranch(a, b)
}

// MergeBranch is the tie-break used when the missing branches are unknown:
// equal values are kept, a positive count wins, an empty side yields the
// other, a complete fraction wins, and otherwise the larger numerator and
// denominator are combined.
func MergeBranch(a, b Coverage) Coverage {
	switch {
	case a.Equal(b):
		return a
	case a.kind == KindSkipped || b.kind == KindSkipped:
		return Skipped()
	case a.kind == KindHit && a.hits > 0:
		return a
	case b.kind == KindHit && b.hits > 0:
		return b
	case isEmptyish(a):
		return b
	case isEmptyish(b):
		return a
	case a.kind == KindPartial:
		return a
	case b.kind == KindPartial:
		return b
	}
	if a.covered == a.total {
		return a
	}
	if b.covered == b.total {
		return b
	}
	return Branch(max(a.covered, b.covered), max(a.total, b.total))
}

// isEmptyish matches the values that never win a branch tie-break: no value,
// a zero count or a presence marker.
func isEmptyish(c Coverage) bool {
	switch c.kind {
	case KindNone, KindBool:
		return true
	case KindHit:
		return c.hits == 0
	}
	return false
}

func mergeFractions(a, b Coverage, missing Branches) Coverage {
	if a.Equal(b) {
		return a
	}
	if a.total > 0 && a.covered == a.total {
		return a
	}
	if b.total > 0 && b.covered == b.total {
		return b
	}
	if missing != nil {
		return branchFromMissing(max(a.total, b.total), missing)
	}
	return MergeBranch(a, b)
}

func branchFromMissing(total int, missing Branches) Coverage {
	covered := total - len(missing)
	if covered < 0 {
		covered = 0
	}
	return Branch(covered, total)
}

func partialToBranch(c Coverage) Coverage {
	if c.kind != KindPartial {
		return c
	}
	covered, total := c.Fraction()
	return Branch(covered, total)
}

// MergePartialLine unions two partial-range values column by column, keeping
// the highest hit count per column and collapsing equal neighbours back into
// ranges. Ranges are half open: [Start, End). An open range runs to the last
// column known to either operand.
func MergePartialLine(a, b Coverage) Coverage {
	if len(a.ranges) == 0 {
		return b
	}
	if len(b.ranges) == 0 {
		return a
	}
	if a.Equal(b) {
		return a
	}
	all := make([]PartialRange, 0, len(a.ranges)+len(b.ranges))
	all = append(all, a.ranges...)
	all = append(all, b.ranges...)

	limit := 0
	for _, r := range all {
		if r.End != nil && *r.End > limit {
			limit = *r.End
		}
		if r.Start+1 > limit {
			limit = r.Start + 1
		}
	}

	columns := make(map[int]int64, limit)
	for _, r := range all {
		end := limit
		if r.End != nil {
			end = *r.End
		}
		for col := r.Start; col < end; col++ {
			if cur, ok := columns[col]; !ok || r.Hits > cur {
				columns[col] = r.Hits
			}
		}
	}
	if len(columns) == 0 {
		return a
	}

	keys := make([]int, 0, len(columns))
	for col := range columns {
		keys = append(keys, col)
	}
	sort.Ints(keys)

	merged := make([]PartialRange, 0, 4)
	start, prev := keys[0], keys[0]
	hits := columns[start]
	for _, col := range keys[1:] {
		if col == prev+1 && columns[col] == hits {
			prev = col
			continue
		}
		merged = append(merged, Bounded(start, prev+1, hits))
		start, prev, hits = col, col, columns[col]
	}
	merged = append(merged, Bounded(start, prev+1, hits))
	return Coverage{kind: KindPartial, ranges: merged}
}

// MergeAll folds MergeCoverage over a list of values.
func MergeAll(values []Coverage, missing Branches) Coverage {
	var out Coverage
	for i, v := range values {
		if i == 0 {
			out = v
			continue
		}
		out = MergeCoverage(out, v, missing)
	}
	return out
}

// MergeMissedBranches returns the branches missed by every session that
// carries branch data. A session without branch data that fully hit the line
// means nothing is missing. It returns nil when no session has branch data.
func MergeMissedBranches(sessions []LineSession) Branches {
	var missed Branches
	known := false
	fullHit := false
	for _, s := range sessions {
		if s.Branches == nil {
			if s.Coverage.State() == StateHit {
				fullHit = true
			}
			continue
		}
		if !known {
			missed = s.Branches.clone()
			known = true
			continue
		}
		missed = missed.intersect(s.Branches)
	}
	if !known {
		return nil
	}
	if fullHit {
		return Branches{}
	}
	return missed
}

// MergeLineSession combines two contributions of the same session to a line.
func MergeLineSession(a, b LineSession) LineSession {
	branches := MergeMissedBranches([]LineSession{a, b})
	return LineSession{
		ID:         a.ID,
		Coverage:   MergeCoverage(a.Coverage, b.Coverage, branches),
		Branches:   branches,
		Partials:   mergePartialLists(a.Partials, b.Partials),
		Complexity: MergeComplexity(a.Complexity, b.Complexity),
	}
}

// mergePartialLists concatenates two partial lists, dropping exact duplicates,
// sorted by start column.
func mergePartialLists(a, b []PartialRange) []PartialRange {
	if a == nil && b == nil {
		return nil
	}
	out := make([]PartialRange, 0, len(a)+len(b))
	out = append(out, a...)
	for _, r := range b {
		dup := false
		for _, existing := range a {
			if existing.equal(r) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, r)
		}
	}
	sortRanges(out)
	return out
}

func sortRanges(ranges []PartialRange) {
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
}

// mergeSessions joins two session lists keyed by session id. Sessions present
// in both are merged, the rest pass through.
func mergeSessions(a, b []LineSession) []LineSession {
	if len(b) == 0 {
		return cloneSessions(a)
	}
	if len(a) == 0 {
		return cloneSessions(b)
	}
	index := make(map[int]int, len(a))
	out := make([]LineSession, 0, len(a)+len(b))
	for _, s := range a {
		if i, ok := index[s.ID]; ok {
			out[i] = MergeLineSession(out[i], s)
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s.clone())
	}
	for _, s := range b {
		if i, ok := index[s.ID]; ok {
			out[i] = MergeLineSession(out[i], s)
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s.clone())
	}
	return out
}

func cloneSessions(in []LineSession) []LineSession {
	out := make([]LineSession, len(in))
	for i, s := range in {
		out[i] = s.clone()
	}
	return out
}

// MergeLine merges two lines for the same line number.
//
// With isDisjoint the session lists are concatenated and the aggregate is left
// pending (KindNone) for ReportFile to settle later. Otherwise sessions are
// merged by id and, when joined, the aggregate is recomputed from them; when
// not joined a's aggregate is kept verbatim.
func MergeLine(a, b *ReportLine, joined, isDisjoint bool) *ReportLine {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	typ := a.Type
	if typ == TypeLine {
		typ = b.Type
	}
	if isDisjoint {
		sessions := make([]LineSession, 0, len(a.Sessions)+len(b.Sessions))
		sessions = append(sessions, cloneSessions(a.Sessions)...)
		sessions = append(sessions, cloneSessions(b.Sessions)...)
		return &ReportLine{Type: typ, Sessions: sessions}
	}
	out := &ReportLine{Type: typ, Sessions: mergeSessions(a.Sessions, b.Sessions)}
	if joined {
		out.recompute()
	} else {
		out.Coverage = a.Coverage
		out.Complexity = a.Complexity
	}
	return out
}

// CoverageFromSessions computes a line's aggregate coverage.
func CoverageFromSessions(sessions []LineSession) Coverage {
	values := make([]Coverage, len(sessions))
	for i, s := range sessions {
		values[i] = s.Coverage
	}
	return MergeAll(values, MergeMissedBranches(sessions))
}

// ComplexityFromSessions computes a line's aggregate complexity.
func ComplexityFromSessions(sessions []LineSession) Complexity {
	var out Complexity
	for _, s := range sessions {
		out = MergeComplexity(out, s.Complexity)
	}
	return out
}

// MergeComplexity keeps the larger complexity. Pairs beat scalars and are
// compared by covered part, then by total.
func MergeComplexity(a, b Complexity) Complexity {
	switch {
	case !a.set:
		return b
	case !b.set:
		return a
	case a.pair != b.pair:
		if a.pair {
			return a
		}
		return b
	case b.covered > a.covered:
		return b
	case b.covered == a.covered && b.pair && b.total > a.total:
		return b
	}
	return a
}
