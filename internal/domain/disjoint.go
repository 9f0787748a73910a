package domain

import "fmt"

// DisjointMerge accumulates reports whose session ids do not overlap. Line
// aggregates are recomputed once, in Finish, instead of after every merge.
//
// The base report is owned by the builder until Finish returns it; reading it
// in between sees the same values Finish would produce, at the cost of
// settling early.
type DisjointMerge struct {
	report *Report
	done   bool
}

// NewDisjointMerge starts a merge into base. A nil base starts from an empty
// report.
func NewDisjointMerge(base *Report) *DisjointMerge {
	if base == nil {
		base = NewReport()
	}
	return &DisjointMerge{report: base}
}

// Add merges other. It fails when other shares a session id with the reports
// merged so far.
func (m *DisjointMerge) Add(other *Report) error {
	if m.done {
		return ErrMergeFinished
	}
	if other == nil {
		return nil
	}
	for id := range other.sessions {
		if _, ok := m.report.sessions[id]; ok {
			return fmt.Errorf("%w: session %d", ErrSessionsOverlap, id)
		}
	}
	m.report.merge(other, true, true)
	return nil
}

// Finish settles every pending aggregate and returns the merged report.
func (m *DisjointMerge) Finish() *Report {
	if !m.done {
		m.report.FinishMerge()
		m.done = true
	}
	return m.report
}
