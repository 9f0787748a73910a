package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ReportTotals are aggregate statistics over a file, a report, or a diff.
// Coverage is a percentage with five decimals, empty when there are no lines.
type ReportTotals struct {
	Files           int
	Lines           int
	Hits            int
	Misses          int
	Partials        int
	Coverage        string
	Branches        int
	Methods         int
	Messages        int
	Sessions        int
	Complexity      int
	ComplexityTotal int
	Diff            *ReportTotals
}

// Percent returns Coverage as a float, 0 when unset.
func (t ReportTotals) Percent() float64 {
	if t.Coverage == "" {
		return 0
	}
	v, err := strconv.ParseFloat(t.Coverage, 64)
	if err != nil {
		return 0
	}
	return v
}

// HasCoverage reports whether Coverage is set.
func (t ReportTotals) HasCoverage() bool { return t.Coverage != "" }

// Ratio formats x/y as a percentage with five decimals. It returns "" when y is 0.
func Ratio(x, y int) string {
	if y == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(x)/float64(y)*100, 'f', 5, 64)
}

// SumTotals aggregates a list of totals: counters are summed, Files becomes
// the number of entries and Coverage is recomputed from hits and lines.
func SumTotals(list []ReportTotals) ReportTotals {
	var out ReportTotals
	for _, t := range list {
		out.Lines += t.Lines
		out.Hits += t.Hits
		out.Misses += t.Misses
		out.Partials += t.Partials
		out.Branches += t.Branches
		out.Methods += t.Methods
		out.Messages += t.Messages
		out.Sessions += t.Sessions
		out.Complexity += t.Complexity
		out.ComplexityTotal += t.ComplexityTotal
	}
	out.Files = len(list)
	out.Coverage = Ratio(out.Hits, out.Lines)
	return out
}

// LineTotals computes totals over a set of lines. Skipped and ignored lines
// are not counted as lines but still contribute types and complexity.
func LineTotals(lines []ReportLine) ReportTotals {
	var out ReportTotals
	for _, l := range lines {
		out.add(l)
	}
	out.Lines = out.Hits + out.Misses + out.Partials
	out.Coverage = Ratio(out.Hits, out.Lines)
	return out
}

func (t *ReportTotals) add(l ReportLine) {
	switch l.Coverage.State() {
	case StateHit:
		t.Hits++
	case StateMiss:
		t.Misses++
	case StatePartial:
		t.Partials++
	}
	switch l.Type {
	case TypeBranch:
		t.Branches++
	case TypeMethod:
		t.Methods++
	}
	if l.Complexity.IsSet() {
		covered, total := l.Complexity.Values()
		t.Complexity += covered
		t.ComplexityTotal += total
	}
}

// MarshalJSON encodes the positional 13-element array
// [files, lines, hits, misses, partials, coverage, branches, methods,
// messages, sessions, complexity, complexity_total, diff].
func (t ReportTotals) MarshalJSON() ([]byte, error) {
	var coverage any
	if t.Coverage != "" {
		coverage = t.Coverage
	}
	var diff any
	if t.Diff != nil {
		diff = *t.Diff
	}
	return json.Marshal([]any{
		t.Files, t.Lines, t.Hits, t.Misses, t.Partials, coverage,
		t.Branches, t.Methods, t.Messages, t.Sessions,
		t.Complexity, t.ComplexityTotal, diff,
	})
}

// UnmarshalJSON accepts arrays shorter than 13 elements; missing trailing
// counters are zero. A numeric coverage is reformatted to five decimals.
func (t *ReportTotals) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*t = ReportTotals{}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("%w: totals %s", ErrMalformedReport, trimmed)
	}
	if len(raw) > 13 {
		return fmt.Errorf("%w: totals have %d elements", ErrMalformedReport, len(raw))
	}
	ints := []*int{
		&t.Files, &t.Lines, &t.Hits, &t.Misses, &t.Partials, nil,
		&t.Branches, &t.Methods, &t.Messages, &t.Sessions,
		&t.Complexity, &t.ComplexityTotal,
	}
	*t = ReportTotals{}
	for i, elem := range raw {
		elem = bytes.TrimSpace(elem)
		switch {
		case i == 5:
			cov, err := decodeRatio(elem)
			if err != nil {
				return err
			}
			t.Coverage = cov
		case i == 12:
			if bytes.Equal(elem, []byte("null")) || bytes.Equal(elem, []byte("0")) {
				continue
			}
			var diff ReportTotals
			if err := json.Unmarshal(elem, &diff); err != nil {
				return err
			}
			t.Diff = &diff
		default:
			if bytes.Equal(elem, []byte("null")) {
				continue
			}
			var n json.Number
			if err := json.Unmarshal(elem, &n); err != nil {
				return fmt.Errorf("%w: totals element %d: %s", ErrMalformedReport, i, elem)
			}
			f, err := n.Float64()
			if err != nil {
				return fmt.Errorf("%w: totals element %d: %s", ErrMalformedReport, i, elem)
			}
			*ints[i] = int(f)
		}
	}
	return nil
}

func decodeRatio(elem []byte) (string, error) {
	if bytes.Equal(elem, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(elem, &s); err == nil {
		if s == "" {
			return "", nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return "", fmt.Errorf("%w: coverage %q", ErrMalformedReport, s)
		}
		return strconv.FormatFloat(v, 'f', 5, 64), nil
	}
	var f float64
	if err := json.Unmarshal(elem, &f); err != nil {
		return "", fmt.Errorf("%w: coverage %s", ErrMalformedReport, elem)
	}
	return strconv.FormatFloat(f, 'f', 5, 64), nil
}
