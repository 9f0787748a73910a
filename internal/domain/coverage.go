package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCoverage is returned when a coverage value cannot be parsed or is inconsistent.
var ErrInvalidCoverage = errors.New("invalid coverage value")

// CoverageKind identifies which representation a Coverage value carries.
type CoverageKind uint8

const (
	// KindNone is the zero value: no coverage, or an aggregate still pending recomputation.
	KindNone CoverageKind = iota
	// KindHit is an execution count. Zero is a miss.
	KindHit
	// KindBranch is a covered/total branch fraction.
	KindBranch
	// KindPartial is a list of column ranges with their own hit counts.
	KindPartial
	// KindSkipped marks a line explicitly excluded from coverage.
	KindSkipped
	// KindBool is a presence marker. True reads as partial coverage.
	KindBool
)

func (k CoverageKind) String() string {
	switch k {
	case KindHit:
		return "hit"
	case KindBranch:
		return "branch"
	case KindPartial:
		return "partial"
	case KindSkipped:
		return "skipped"
	case KindBool:
		return "bool"
	default:
		return "none"
	}
}

// LineState classifies a coverage value for totals.
type LineState int

const (
	StateIgnore LineState = iota
	StateHit
	StateMiss
	StatePartial
	StateSkip
)

// PartialRange is a column span of a line with its hit count.
// A nil End extends the range to the last known column of the line.
type PartialRange struct {
	Start int
	End   *int
	Hits  int64
}

// Bounded returns a range whose end is set.
func Bounded(start, end int, hits int64) PartialRange {
	e := end
	return PartialRange{Start: start, End: &e, Hits: hits}
}

// Open returns a range running to the end of the line.
func Open(start int, hits int64) PartialRange {
	return PartialRange{Start: start, Hits: hits}
}

func (p PartialRange) equal(o PartialRange) bool {
	if p.Start != o.Start || p.Hits != o.Hits {
		return false
	}
	switch {
	case p.End == nil && o.End == nil:
		return true
	case p.End == nil || o.End == nil:
		return false
	default:
		return *p.End == *o.End
	}
}

// MarshalJSON encodes the range as [start, end|null, hits].
func (p PartialRange) MarshalJSON() ([]byte, error) {
	end := "null"
	if p.End != nil {
		end = strconv.Itoa(*p.End)
	}
	return []byte("[" + strconv.Itoa(p.Start) + "," + end + "," + strconv.FormatInt(p.Hits, 10) + "]"), nil
}

// UnmarshalJSON decodes [start|null, end|null, hits].
func (p *PartialRange) UnmarshalJSON(data []byte) error {
	var raw []*json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: partial range %s", ErrInvalidCoverage, data)
	}
	if len(raw) != 3 {
		return fmt.Errorf("%w: partial range needs 3 elements, got %d", ErrInvalidCoverage, len(raw))
	}
	var out PartialRange
	if raw[0] != nil {
		v, err := strconv.Atoi(raw[0].String())
		if err != nil {
			return fmt.Errorf("%w: partial start %q", ErrInvalidCoverage, raw[0].String())
		}
		out.Start = v
	}
	if raw[1] != nil {
		v, err := strconv.Atoi(raw[1].String())
		if err != nil {
			return fmt.Errorf("%w: partial end %q", ErrInvalidCoverage, raw[1].String())
		}
		out.End = &v
	}
	if raw[2] == nil {
		return fmt.Errorf("%w: partial hits missing", ErrInvalidCoverage)
	}
	hits, err := strconv.ParseInt(raw[2].String(), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: partial hits %q", ErrInvalidCoverage, raw[2].String())
	}
	out.Hits = hits
	*p = out
	return nil
}

// Coverage is the coverage value of a line or of one session's contribution to it.
// Exactly one representation is active, selected by Kind.
type Coverage struct {
	kind    CoverageKind
	hits    int64
	covered int
	total   int
	ranges  []PartialRange
	truth   bool
}

// Hit returns an execution count value. It panics if n is negative.
func Hit(n int64) Coverage {
	if n < 0 {
		panic(fmt.Sprintf("domain: negative hit count %d", n))
	}
	return Coverage{kind: KindHit, hits: n}
}

// NewBranch returns a branch fraction, validating 0 <= covered <= total.
func NewBranch(covered, total int) (Coverage, error) {
	if covered < 0 || total < 0 || covered > total {
		return Coverage{}, fmt.Errorf("%w: branch %d/%d", ErrInvalidCoverage, covered, total)
	}
	return Coverage{kind: KindBranch, covered: covered, total: total}, nil
}

// Branch is NewBranch that panics on invalid input.
func Branch(covered, total int) Coverage {
	c, err := NewBranch(covered, total)
	if err != nil {
		panic(err)
	}
	return c
}

// NewPartial returns a partial-range value. Ranges are kept sorted by start column.
func NewPartial(ranges ...PartialRange) (Coverage, error) {
	if len(ranges) == 0 {
		return Coverage{}, fmt.Errorf("%w: empty partial ranges", ErrInvalidCoverage)
	}
	for _, r := range ranges {
		if r.Start < 0 || r.Hits < 0 || (r.End != nil && *r.End < r.Start) {
			return Coverage{}, fmt.Errorf("%w: partial range %v", ErrInvalidCoverage, r)
		}
	}
	out := make([]PartialRange, len(ranges))
	copy(out, ranges)
	sortRanges(out)
	return Coverage{kind: KindPartial, ranges: out}, nil
}

// Partial is NewPartial that panics on invalid input.
func Partial(ranges ...PartialRange) Coverage {
	c, err := NewPartial(ranges...)
	if err != nil {
		panic(err)
	}
	return c
}

// Skipped returns the skip sentinel.
func Skipped() Coverage {
	return Coverage{kind: KindSkipped}
}

// Bool returns a presence marker.
func Bool(v bool) Coverage {
	return Coverage{kind: KindBool, truth: v}
}

// Kind reports the active representation.
func (c Coverage) Kind() CoverageKind { return c.kind }

// IsNone reports whether the value is absent.
func (c Coverage) IsNone() bool { return c.kind == KindNone }

// Hits returns the execution count of a KindHit value.
func (c Coverage) Hits() int64 { return c.hits }

// Fraction returns covered/total for branch and partial values.
// Partial values collapse to (ranges with hits, total ranges).
func (c Coverage) Fraction() (covered, total int) {
	switch c.kind {
	case KindBranch:
		return c.covered, c.total
	case KindPartial:
		for _, r := range c.ranges {
			if r.Hits > 0 {
				covered++
			}
		}
		return covered, len(c.ranges)
	}
	return 0, 0
}

// Ranges returns a copy of the partial ranges.
func (c Coverage) Ranges() []PartialRange {
	if c.kind != KindPartial {
		return nil
	}
	out := make([]PartialRange, len(c.ranges))
	copy(out, c.ranges)
	return out
}

// Truth returns the value of a KindBool marker.
func (c Coverage) Truth() bool { return c.truth }

// Equal reports whether two values carry the same representation and content.
func (c Coverage) Equal(o Coverage) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case KindHit:
		return c.hits == o.hits
	case KindBranch:
		return c.covered == o.covered && c.total == o.total
	case KindPartial:
		if len(c.ranges) != len(o.ranges) {
			return false
		}
		for i := range c.ranges {
			if !c.ranges[i].equal(o.ranges[i]) {
				return false
			}
		}
		return true
	case KindBool:
		return c.truth == o.truth
	}
	return true
}

// State classifies the value as hit, miss, partial, skip, or ignore.
func (c Coverage) State() LineState {
	switch c.kind {
	case KindHit:
		if c.hits > 0 {
			return StateHit
		}
		return StateMiss
	case KindBranch, KindPartial:
		covered, total := c.Fraction()
		return fractionState(covered, total)
	case KindSkipped:
		return StateSkip
	case KindBool:
		if c.truth {
			return StatePartial
		}
		return StateMiss
	}
	return StateIgnore
}

func fractionState(covered, total int) LineState {
	switch {
	case covered == 0:
		return StateMiss
	case covered == total:
		return StateHit
	default:
		return StatePartial
	}
}

// truthy mirrors the boolean reading of a value: non-zero hits, any fraction,
// non-empty ranges, or a true marker.
func (c Coverage) truthy() bool {
	switch c.kind {
	case KindHit:
		return c.hits > 0
	case KindBranch, KindPartial, KindSkipped:
		return true
	case KindBool:
		return c.truth
	}
	return false
}

// String returns the display form: the count, "k/n", "-1" for skipped.
func (c Coverage) String() string {
	switch c.kind {
	case KindHit:
		return strconv.FormatInt(c.hits, 10)
	case KindBranch, KindPartial:
		covered, total := c.Fraction()
		return strconv.Itoa(covered) + "/" + strconv.Itoa(total)
	case KindSkipped:
		return "-1"
	case KindBool:
		return strconv.FormatBool(c.truth)
	}
	return ""
}

// MarshalJSON encodes hits as numbers, branches as "k/n", partials as range lists,
// skipped as -1 and absent values as null.
func (c Coverage) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case KindHit:
		return []byte(strconv.FormatInt(c.hits, 10)), nil
	case KindBranch:
		return json.Marshal(c.String())
	case KindPartial:
		return json.Marshal(c.ranges)
	case KindSkipped:
		return []byte("-1"), nil
	case KindBool:
		return []byte(strconv.FormatBool(c.truth)), nil
	}
	return []byte("null"), nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Coverage) UnmarshalJSON(data []byte) error {
	v, err := ParseCoverage(data)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseCoverage decodes a JSON-encoded coverage value.
func ParseCoverage(data []byte) (Coverage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Coverage{}, nil
	}
	switch trimmed[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return Coverage{}, fmt.Errorf("%w: %s", ErrInvalidCoverage, trimmed)
		}
		return Bool(b), nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Coverage{}, fmt.Errorf("%w: %s", ErrInvalidCoverage, trimmed)
		}
		return ParseCoverageString(s)
	case '[':
		var ranges []PartialRange
		if err := json.Unmarshal(trimmed, &ranges); err != nil {
			return Coverage{}, err
		}
		return NewPartial(ranges...)
	}
	return parseCount(string(trimmed))
}

// ParseCoverageString parses the display form: "k/n", a count, or "-1".
func ParseCoverageString(s string) (Coverage, error) {
	s = strings.TrimSpace(s)
	if covered, total, ok := strings.Cut(s, "/"); ok {
		k, err := strconv.Atoi(strings.TrimSpace(covered))
		if err != nil {
			return Coverage{}, fmt.Errorf("%w: branch %q", ErrInvalidCoverage, s)
		}
		n, err := strconv.Atoi(strings.TrimSpace(total))
		if err != nil {
			return Coverage{}, fmt.Errorf("%w: branch %q", ErrInvalidCoverage, s)
		}
		return NewBranch(k, n)
	}
	return parseCount(s)
}

func parseCount(s string) (Coverage, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return countCoverage(n)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return Coverage{}, fmt.Errorf("%w: count %q", ErrInvalidCoverage, s)
	}
	return countCoverage(int64(f))
}

func countCoverage(n int64) (Coverage, error) {
	switch {
	case n == -1:
		return Skipped(), nil
	case n < 0:
		return Coverage{}, fmt.Errorf("%w: negative count %d", ErrInvalidCoverage, n)
	}
	return Hit(n), nil
}

// LineType is the optional kind of a source line.
type LineType string

const (
	TypeLine   LineType = ""
	TypeBranch LineType = "b"
	TypeMethod LineType = "m"
)

// Complexity is either a scalar complexity or a (covered, total) pair.
// The zero value is unset.
type Complexity struct {
	set     bool
	pair    bool
	covered int
	total   int
}

// ScalarComplexity returns a single complexity value.
func ScalarComplexity(n int) Complexity {
	return Complexity{set: true, covered: n}
}

// PairComplexity returns a (covered, total) complexity pair.
func PairComplexity(covered, total int) Complexity {
	return Complexity{set: true, pair: true, covered: covered, total: total}
}

// IsSet reports whether a complexity value is present.
func (c Complexity) IsSet() bool { return c.set }

// IsPair reports whether the value is a (covered, total) pair.
func (c Complexity) IsPair() bool { return c.pair }

// Values returns the covered and total parts. For a scalar both are the scalar.
func (c Complexity) Values() (covered, total int) {
	if !c.pair {
		return c.covered, c.covered
	}
	return c.covered, c.total
}

func (c Complexity) MarshalJSON() ([]byte, error) {
	switch {
	case !c.set:
		return []byte("null"), nil
	case c.pair:
		return []byte("[" + strconv.Itoa(c.covered) + "," + strconv.Itoa(c.total) + "]"), nil
	}
	return []byte(strconv.Itoa(c.covered)), nil
}

func (c *Complexity) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = Complexity{}
		return nil
	}
	if trimmed[0] == '[' {
		var pair []int
		if err := json.Unmarshal(trimmed, &pair); err != nil || len(pair) != 2 {
			return fmt.Errorf("%w: complexity %s", ErrInvalidCoverage, trimmed)
		}
		*c = PairComplexity(pair[0], pair[1])
		return nil
	}
	var n int
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("%w: complexity %s", ErrInvalidCoverage, trimmed)
	}
	*c = ScalarComplexity(n)
	return nil
}
