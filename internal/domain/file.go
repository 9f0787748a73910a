package domain

import (
	"fmt"
	"iter"
	"slices"
)

// Ignore lists the lines of a file excluded at construction. Lines past EOF
// are ignored when EOF is positive.
type Ignore struct {
	EOF   int
	Lines map[int]struct{}
}

// NewIgnore returns an Ignore for the given lines.
func NewIgnore(eof int, lines ...int) Ignore {
	set := make(map[int]struct{}, len(lines))
	for _, ln := range lines {
		set[ln] = struct{}{}
	}
	return Ignore{EOF: eof, Lines: set}
}

// Ignores reports whether ln is excluded.
func (i Ignore) Ignores(ln int) bool {
	if i.EOF > 0 && ln > i.EOF {
		return true
	}
	_, ok := i.Lines[ln]
	return ok
}

// IsZero reports whether nothing is ignored.
func (i Ignore) IsZero() bool { return i.EOF == 0 && len(i.Lines) == 0 }

// FileOption configures a ReportFile.
type FileOption func(*ReportFile)

// WithIgnore excludes lines from the file.
func WithIgnore(ignore Ignore) FileOption {
	return func(f *ReportFile) {
		f.ignore = ignore
	}
}

// ReportFile holds the per-line coverage of one source file.
//
// After a disjoint Merge the aggregate coverage of touched lines is pending.
// Every read settles pending lines first, so callers never observe stale
// aggregates.
type ReportFile struct {
	name    string
	lines   []*ReportLine // index ln-1, nil means no data
	ignore  Ignore
	totals  *ReportTotals
	pending bool
}

// NewReportFile returns an empty file.
func NewReportFile(name string, opts ...FileOption) *ReportFile {
	f := &ReportFile{name: name}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the file path.
func (f *ReportFile) Name() string { return f.name }

// Ignore returns the ignore rules of the file.
func (f *ReportFile) Ignore() Ignore { return f.ignore }

// EOF returns one past the last line number with data.
func (f *ReportFile) EOF() int { return len(f.lines) + 1 }

// Len returns the number of lines with data.
func (f *ReportFile) Len() int {
	n := 0
	for _, l := range f.lines {
		if l != nil {
			n++
		}
	}
	return n
}

// IsEmpty reports whether no line has data.
func (f *ReportFile) IsEmpty() bool {
	for _, l := range f.lines {
		if l != nil {
			return false
		}
	}
	return true
}

// markDirty is the single invalidation point for cached totals.
func (f *ReportFile) markDirty() { f.totals = nil }

// settle computes the aggregates left pending by disjoint merges.
func (f *ReportFile) settle() {
	if !f.pending {
		return
	}
	for _, l := range f.lines {
		if l != nil && l.Coverage.IsNone() {
			l.recompute()
		}
	}
	f.pending = false
	f.markDirty()
}

// Get returns the line at ln.
func (f *ReportFile) Get(ln int) (ReportLine, bool) {
	f.settle()
	if ln < 1 || ln > len(f.lines) || f.lines[ln-1] == nil {
		return ReportLine{}, false
	}
	return *f.lines[ln-1], true
}

// Lines yields the lines with data in line-number order.
func (f *ReportFile) Lines() iter.Seq2[int, ReportLine] {
	f.settle()
	return func(yield func(int, ReportLine) bool) {
		for i, l := range f.lines {
			if l == nil {
				continue
			}
			if !yield(i+1, *l) {
				return
			}
		}
	}
}

// Append merges line into the file at ln. It returns false when ln is ignored.
func (f *ReportFile) Append(ln int, line ReportLine) (bool, error) {
	if ln < 1 {
		return false, fmt.Errorf("%w: line number %d", ErrInvalidLine, ln)
	}
	if len(line.Sessions) == 0 {
		return false, fmt.Errorf("%w: line %d has no sessions", ErrInvalidLine, ln)
	}
	if f.ignore.Ignores(ln) {
		return false, nil
	}
	f.settle()
	f.grow(ln)
	l := line.clone()
	f.lines[ln-1] = MergeLine(f.lines[ln-1], &l, true, false)
	f.markDirty()
	return true, nil
}

func (f *ReportFile) grow(ln int) {
	if ln > len(f.lines) {
		f.lines = append(f.lines, make([]*ReportLine, ln-len(f.lines))...)
	}
}

// Merge merges other into f line by line. Lines only in other are copied.
// With isDisjoint the session sets must not overlap and aggregates are
// recomputed lazily.
func (f *ReportFile) Merge(other *ReportFile, joined, isDisjoint bool) bool {
	if other == nil || other.IsEmpty() {
		return false
	}
	other.settle()
	if !isDisjoint {
		f.settle()
	}
	f.grow(len(other.lines))
	for i, l := range other.lines {
		if l == nil {
			continue
		}
		if f.ignore.Ignores(i + 1) {
			continue
		}
		c := l.clone()
		if f.lines[i] == nil {
			f.lines[i] = &c
			continue
		}
		f.lines[i] = MergeLine(f.lines[i], &c, joined, isDisjoint)
	}
	f.trim()
	if isDisjoint {
		f.pending = true
	}
	f.markDirty()
	return true
}

// Totals returns the cached per-file totals.
func (f *ReportFile) Totals() ReportTotals {
	f.settle()
	if f.totals == nil {
		t := f.computeTotals()
		f.totals = &t
	}
	return *f.totals
}

func (f *ReportFile) computeTotals() ReportTotals {
	var t ReportTotals
	for _, l := range f.lines {
		if l != nil {
			t.add(*l)
		}
	}
	t.Lines = t.Hits + t.Misses + t.Partials
	t.Coverage = Ratio(t.Hits, t.Lines)
	return t
}

// setTotals replaces the cached totals, used when loading a serialized report.
func (f *ReportFile) setTotals(t ReportTotals) {
	f.totals = &t
}

// DeleteMultipleSessions removes the given sessions from every line. Lines
// left without sessions are dropped, the rest are recomputed.
func (f *ReportFile) DeleteMultipleSessions(ids map[int]struct{}) {
	if len(ids) == 0 {
		return
	}
	f.settle()
	changed := false
	for i, l := range f.lines {
		if l == nil {
			continue
		}
		kept := l.Sessions[:0:0]
		for _, s := range l.Sessions {
			if _, drop := ids[s.ID]; !drop {
				kept = append(kept, s)
			}
		}
		if len(kept) == len(l.Sessions) {
			continue
		}
		changed = true
		if len(kept) == 0 {
			f.lines[i] = nil
			continue
		}
		f.lines[i] = &ReportLine{Type: l.Type, Sessions: kept}
		f.lines[i].recompute()
	}
	if changed {
		f.trim()
		f.markDirty()
	}
}

// remapSessions rewrites session ids through mapping. Ids absent from the
// mapping are kept.
func (f *ReportFile) remapSessions(mapping map[int]int) {
	for _, l := range f.lines {
		if l == nil {
			continue
		}
		for i := range l.Sessions {
			if to, ok := mapping[l.Sessions[i].ID]; ok {
				l.Sessions[i].ID = to
			}
		}
	}
}

func (f *ReportFile) hasSession(id int) bool {
	for _, l := range f.lines {
		if l == nil {
			continue
		}
		for _, s := range l.Sessions {
			if s.ID == id {
				return true
			}
		}
	}
	return false
}

// ChangeSessionID renumbers a session on every line.
func (f *ReportFile) ChangeSessionID(from, to int) {
	f.remapSessions(map[int]int{from: to})
}

// ShiftLinesByDiff moves lines to the numbering on the other side of diff.
// Forward maps old line numbers to new ones. Hunks must be in file order.
func (f *ReportFile) ShiftLinesByDiff(diff *FileDiff, forward bool) {
	if diff == nil || len(diff.Segments) == 0 {
		return
	}
	f.settle()
	remove, add := byte('-'), byte('+')
	if !forward {
		remove, add = add, remove
	}
	lines := f.lines
	for _, seg := range diff.Segments {
		start, length := seg.Header.NewStart, seg.Header.NewLength
		if !forward {
			start, length = seg.Header.OldStart, seg.Header.OldLength
		}
		idx := start - 1
		if length == 0 {
			idx = start
		}
		if idx < 0 {
			idx = 0
		}
		for _, raw := range seg.Lines {
			op := lineOp(raw)
			switch op {
			case remove:
				if idx < len(lines) {
					lines = slices.Delete(lines, idx, idx+1)
				}
			case add:
				if idx <= len(lines) {
					lines = slices.Insert(lines, idx, (*ReportLine)(nil))
				}
				idx++
			default:
				idx++
			}
		}
	}
	f.lines = lines
	f.trim()
	f.markDirty()
}

func lineOp(raw string) byte {
	if raw == "" {
		return ' '
	}
	return raw[0]
}

// CalculateDiff returns the totals of the lines added by segments.
func (f *ReportFile) CalculateDiff(segments []Segment) ReportTotals {
	lines := make([]ReportLine, 0)
	for _, ln := range AddedLines(segments) {
		if l, ok := f.Get(ln); ok {
			lines = append(lines, l)
		}
	}
	return LineTotals(lines)
}

// Copy returns a deep copy of the file.
func (f *ReportFile) Copy() *ReportFile {
	f.settle()
	out := &ReportFile{name: f.name, ignore: f.ignore, lines: make([]*ReportLine, len(f.lines))}
	for i, l := range f.lines {
		if l != nil {
			c := l.clone()
			out.lines[i] = &c
		}
	}
	return out
}

// trim drops trailing lines without data.
func (f *ReportFile) trim() {
	n := len(f.lines)
	for n > 0 && f.lines[n-1] == nil {
		n--
	}
	f.lines = f.lines[:n]
}
