package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DiffType is the kind of change a diff applies to a file.
type DiffType string

const (
	DiffModified DiffType = "modified"
	DiffNew      DiffType = "new"
	DiffDeleted  DiffType = "deleted"
	DiffBinary   DiffType = "binary"
)

// SegmentHeader is a hunk header: -OldStart,OldLength +NewStart,NewLength.
type SegmentHeader struct {
	OldStart  int
	OldLength int
	NewStart  int
	NewLength int
}

// MarshalJSON encodes the header as four numbers.
func (h SegmentHeader) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{h.OldStart, h.OldLength, h.NewStart, h.NewLength})
}

// UnmarshalJSON accepts four numbers or four strings. An empty length means 1,
// as in a unified diff header without a count.
func (h *SegmentHeader) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) != 4 {
		return fmt.Errorf("%w: segment header %s", ErrMalformedReport, data)
	}
	vals := make([]int, 4)
	for i, r := range raw {
		r = bytes.TrimSpace(r)
		text := string(r)
		if len(r) > 0 && r[0] == '"' {
			if err := json.Unmarshal(r, &text); err != nil {
				return fmt.Errorf("%w: segment header %s", ErrMalformedReport, data)
			}
		}
		if text == "" || text == "null" {
			vals[i] = 1
			if i%2 == 0 {
				vals[i] = 0
			}
			continue
		}
		v, err := strconv.Atoi(text)
		if err != nil {
			return fmt.Errorf("%w: segment header %s", ErrMalformedReport, data)
		}
		vals[i] = v
	}
	*h = SegmentHeader{OldStart: vals[0], OldLength: vals[1], NewStart: vals[2], NewLength: vals[3]}
	return nil
}

// Segment is one hunk. Lines keep their leading "+", "-" or " " marker.
type Segment struct {
	Header SegmentHeader `json:"header"`
	Lines  []string      `json:"lines"`
}

// FileDiff describes the change to one file. Totals is written by ApplyDiff.
type FileDiff struct {
	Type     DiffType      `json:"type"`
	Before   string        `json:"before,omitempty"`
	Segments []Segment     `json:"segments,omitempty"`
	Totals   *ReportTotals `json:"totals,omitempty"`
}

// Diff is a patch keyed by post-change path. Totals is written by ApplyDiff.
type Diff struct {
	Files  map[string]*FileDiff `json:"files,omitempty"`
	Totals *ReportTotals        `json:"totals,omitempty"`
}

// Paths returns the changed paths sorted.
func (d *Diff) Paths() []string {
	if d == nil {
		return nil
	}
	paths := make([]string, 0, len(d.Files))
	for p := range d.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// AddedLines returns the new-file line numbers added by segments. A segment
// without line bodies counts its whole new range.
func AddedLines(segments []Segment) []int {
	var out []int
	for _, seg := range segments {
		if len(seg.Lines) == 0 {
			for ln := seg.Header.NewStart; ln < seg.Header.NewStart+seg.Header.NewLength; ln++ {
				out = append(out, ln)
			}
			continue
		}
		ln := seg.Header.NewStart
		for _, raw := range seg.Lines {
			switch lineOp(raw) {
			case '-':
			case '+':
				out = append(out, ln)
				ln++
			default:
				ln++
			}
		}
	}
	return out
}

// RemovedLines returns the old-file line numbers removed by segments.
func RemovedLines(segments []Segment) []int {
	var out []int
	for _, seg := range segments {
		ln := seg.Header.OldStart
		for _, raw := range seg.Lines {
			switch lineOp(raw) {
			case '+':
			case '-':
				out = append(out, ln)
				ln++
			default:
				ln++
			}
		}
	}
	return out
}

// ShiftLine maps an old line number through segments. It returns false when
// the line was removed.
func ShiftLine(ln int, segments []Segment) (int, bool) {
	offset := 0
	for _, seg := range segments {
		cur, next := seg.Header.OldStart, seg.Header.NewStart
		// A zero length start names the line before the hunk.
		if seg.Header.OldLength == 0 {
			cur++
		}
		if seg.Header.NewLength == 0 {
			next++
		}
		if ln < cur {
			break
		}
		if len(seg.Lines) == 0 {
			if ln < cur+seg.Header.OldLength {
				return 0, false
			}
			offset = next + seg.Header.NewLength - (cur + seg.Header.OldLength)
			continue
		}
		for _, raw := range seg.Lines {
			switch lineOp(raw) {
			case '+':
				next++
			case '-':
				if cur == ln {
					return 0, false
				}
				cur++
			default:
				if cur == ln {
					return next, true
				}
				cur++
				next++
			}
		}
		if ln < cur {
			return 0, false
		}
		offset = next - cur
	}
	return ln + offset, true
}

// DiffTotals are the coverage totals restricted to a diff.
type DiffTotals struct {
	Files   map[string]ReportTotals `json:"files"`
	General ReportTotals            `json:"general"`
}

// CalculateReportDiff computes totals over the lines each new or modified file
// adds. Deleted files contribute nothing; files the report does not track are
// skipped.
func CalculateReportDiff(view View, diff *Diff) DiffTotals {
	out := DiffTotals{Files: make(map[string]ReportTotals)}
	if diff == nil {
		return out
	}
	list := make([]ReportTotals, 0, len(diff.Files))
	for _, path := range diff.Paths() {
		fd := diff.Files[path]
		if fd == nil || (fd.Type != DiffNew && fd.Type != DiffModified) {
			continue
		}
		file, ok := view.File(path)
		if !ok {
			continue
		}
		t := file.CalculateDiff(fd.Segments)
		if t.Lines == 0 {
			t.Coverage = ""
		}
		out.Files[path] = t
		list = append(list, t)
	}
	out.General = SumTotals(list)
	return out
}

// ApplyDiff computes diff totals for view. It returns nil when diff has no
// files. With save the totals are written back onto diff: each file entry's
// Totals and the top-level Totals. This mutation is how renderers receive the
// numbers.
func ApplyDiff(view View, diff *Diff, save bool) *ReportTotals {
	if diff == nil || len(diff.Files) == 0 {
		return nil
	}
	totals := CalculateReportDiff(view, diff)
	if save {
		for path, t := range totals.Files {
			t := t
			diff.Files[path].Totals = &t
		}
		general := totals.General
		diff.Totals = &general
	}
	general := totals.General
	return &general
}

// isRename reports whether a file diff moves a file.
func (fd *FileDiff) isRename(path string) bool {
	return fd.Before != "" && fd.Before != path && !strings.HasPrefix(fd.Before, "/dev/null")
}
