package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrInvalidLine is returned for lines that violate the report line invariants.
var ErrInvalidLine = errors.New("invalid report line")

// Branches is a set of missing branch identifiers kept sorted.
// A nil Branches carries no branch data; an empty non-nil Branches means
// every branch was taken.
type Branches []string

// NewBranches builds a sorted, de-duplicated set. It never returns nil.
func NewBranches(ids ...string) Branches {
	out := make(Branches, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Known reports whether branch data is present.
func (b Branches) Known() bool { return b != nil }

func (b Branches) contains(id string) bool {
	i := sort.SearchStrings(b, id)
	return i < len(b) && b[i] == id
}

func (b Branches) clone() Branches {
	if b == nil {
		return nil
	}
	out := make(Branches, len(b))
	copy(out, b)
	return out
}

func (b Branches) intersect(o Branches) Branches {
	out := make(Branches, 0, len(b))
	for _, id := range b {
		if o.contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// UnmarshalJSON accepts identifiers encoded as strings or numbers.
func (b *Branches) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*b = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("%w: branches %s", ErrInvalidCoverage, trimmed)
	}
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			ids = append(ids, s)
			continue
		}
		ids = append(ids, string(bytes.TrimSpace(r)))
	}
	*b = NewBranches(ids...)
	return nil
}

// LineSession is one session's contribution to a line.
type LineSession struct {
	ID         int
	Coverage   Coverage
	Branches   Branches
	Partials   []PartialRange
	Complexity Complexity
}

func (s LineSession) clone() LineSession {
	out := s
	out.Branches = s.Branches.clone()
	if s.Partials != nil {
		out.Partials = append([]PartialRange(nil), s.Partials...)
	}
	return out
}

// MarshalJSON encodes [id, coverage, branches, partials, complexity] with
// trailing empty elements trimmed.
func (s LineSession) MarshalJSON() ([]byte, error) {
	elems := []any{s.ID, s.Coverage, nil, nil, nil}
	if s.Branches != nil {
		elems[2] = []string(s.Branches)
	}
	if s.Partials != nil {
		elems[3] = s.Partials
	}
	if s.Complexity.IsSet() {
		elems[4] = s.Complexity
	}
	n := len(elems)
	for n > 2 && elems[n-1] == nil {
		n--
	}
	return json.Marshal(elems[:n])
}

func (s *LineSession) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: line session %s", ErrInvalidLine, data)
	}
	if len(raw) < 2 {
		return fmt.Errorf("%w: line session needs id and coverage", ErrInvalidLine)
	}
	var out LineSession
	id, err := strconv.Atoi(string(bytes.TrimSpace(raw[0])))
	if err != nil {
		return fmt.Errorf("%w: session id %s", ErrInvalidLine, raw[0])
	}
	out.ID = id
	if out.Coverage, err = ParseCoverage(raw[1]); err != nil {
		return err
	}
	if len(raw) > 2 {
		if err := json.Unmarshal(raw[2], &out.Branches); err != nil {
			return err
		}
	}
	if len(raw) > 3 && !bytes.Equal(bytes.TrimSpace(raw[3]), []byte("null")) {
		if err := json.Unmarshal(raw[3], &out.Partials); err != nil {
			return err
		}
	}
	if len(raw) > 4 {
		if err := json.Unmarshal(raw[4], &out.Complexity); err != nil {
			return err
		}
	}
	*s = out
	return nil
}

// ReportLine is the aggregate coverage of one source line across sessions.
type ReportLine struct {
	Coverage   Coverage
	Type       LineType
	Sessions   []LineSession
	Complexity Complexity
}

// NewReportLine builds a line from its sessions, computing the aggregate
// coverage and complexity. At least one session is required.
func NewReportLine(typ LineType, sessions ...LineSession) (ReportLine, error) {
	if len(sessions) == 0 {
		return ReportLine{}, fmt.Errorf("%w: no sessions", ErrInvalidLine)
	}
	for _, s := range sessions {
		if s.Coverage.IsNone() {
			return ReportLine{}, fmt.Errorf("%w: session %d has no coverage", ErrInvalidLine, s.ID)
		}
	}
	line := ReportLine{Type: typ, Sessions: append([]LineSession(nil), sessions...)}
	line.recompute()
	return line, nil
}

// SessionIDs returns the ids of the contributing sessions in order.
func (l ReportLine) SessionIDs() []int {
	ids := make([]int, len(l.Sessions))
	for i, s := range l.Sessions {
		ids[i] = s.ID
	}
	return ids
}

func (l *ReportLine) recompute() {
	l.Coverage = CoverageFromSessions(l.Sessions)
	l.Complexity = ComplexityFromSessions(l.Sessions)
}

func (l ReportLine) clone() ReportLine {
	out := l
	out.Sessions = make([]LineSession, len(l.Sessions))
	for i, s := range l.Sessions {
		out.Sessions[i] = s.clone()
	}
	return out
}

// MarshalJSON encodes [coverage, type, sessions, complexity].
func (l ReportLine) MarshalJSON() ([]byte, error) {
	var typ any
	if l.Type != TypeLine {
		typ = string(l.Type)
	}
	sessions := l.Sessions
	if sessions == nil {
		sessions = []LineSession{}
	}
	elems := []any{l.Coverage, typ, sessions}
	if l.Complexity.IsSet() {
		elems = append(elems, l.Complexity)
	}
	return json.Marshal(elems)
}

// UnmarshalJSON accepts the 4-element form and the legacy 5-element form
// [coverage, type, sessions, messages, complexity].
func (l *ReportLine) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidLine, data)
	}
	if len(raw) < 3 {
		return fmt.Errorf("%w: need coverage, type and sessions", ErrInvalidLine)
	}
	var out ReportLine
	var err error
	if out.Coverage, err = ParseCoverage(raw[0]); err != nil {
		return err
	}
	var typ *string
	if err := json.Unmarshal(raw[1], &typ); err != nil {
		return fmt.Errorf("%w: line type %s", ErrInvalidLine, raw[1])
	}
	if typ != nil {
		out.Type = LineType(*typ)
	}
	if err := json.Unmarshal(raw[2], &out.Sessions); err != nil {
		return err
	}
	complexityAt := 3
	if len(raw) >= 5 {
		complexityAt = 4
	}
	if len(raw) > complexityAt {
		if err := json.Unmarshal(raw[complexityAt], &out.Complexity); err != nil {
			return err
		}
	}
	if len(out.Sessions) == 0 {
		return fmt.Errorf("%w: no sessions", ErrInvalidLine)
	}
	*l = out
	return nil
}
