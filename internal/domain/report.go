package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Report errors.
var (
	ErrMalformedReport = errors.New("malformed report")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionsOverlap = errors.New("session ids overlap")
	ErrMergeFinished   = errors.New("merge already finished")
	ErrReportNotFound  = errors.New("report not found")
)

// PathFixer normalizes a raw source path. An empty result excludes the file.
type PathFixer interface {
	Fix(path string) string
}

// PathFixerFunc adapts a function to PathFixer.
type PathFixerFunc func(path string) string

// Fix calls f.
func (f PathFixerFunc) Fix(path string) string { return f(path) }

// Report is the coverage of one commit: files keyed by path and the session
// table that line sessions refer to by id.
type Report struct {
	files    map[string]*ReportFile
	sessions map[int]*Session
	totals   *ReportTotals
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{
		files:    make(map[string]*ReportFile),
		sessions: make(map[int]*Session),
	}
}

func (r *Report) markDirty() { r.totals = nil }

// Len returns the number of files.
func (r *Report) Len() int { return len(r.files) }

// IsEmpty reports whether the report tracks no file.
func (r *Report) IsEmpty() bool { return len(r.files) == 0 }

// Append merges file into the report. It returns false for nil or empty files.
func (r *Report) Append(file *ReportFile) bool {
	return r.appendFile(file, true, false)
}

func (r *Report) appendFile(file *ReportFile, joined, isDisjoint bool) bool {
	if file == nil || file.IsEmpty() {
		return false
	}
	if existing, ok := r.files[file.name]; ok {
		existing.Merge(file, joined, isDisjoint)
	} else {
		r.files[file.name] = file
	}
	r.markDirty()
	return true
}

// Merge merges other into r. Sessions unknown to r are added under their own
// ids; when an id already exists the session of r keeps its metadata.
func (r *Report) Merge(other *Report, joined bool) {
	r.merge(other, joined, false)
}

func (r *Report) merge(other *Report, joined, isDisjoint bool) {
	if other == nil {
		return
	}
	for id, s := range other.sessions {
		if _, ok := r.sessions[id]; !ok {
			c := s.Copy()
			r.sessions[id] = &c
		}
	}
	for _, name := range other.FileNames() {
		r.appendFile(other.files[name].Copy(), joined, isDisjoint)
	}
	r.markDirty()
}

// Get returns the file stored under name.
func (r *Report) Get(name string) (*ReportFile, bool) {
	f, ok := r.files[name]
	return f, ok
}

// File returns the file stored under name as a read view.
func (r *Report) File(name string) (FileView, bool) {
	f, ok := r.files[name]
	if !ok {
		return nil, false
	}
	return f, true
}

// FileNames returns the tracked paths sorted.
func (r *Report) FileNames() []string {
	names := slices.Collect(maps.Keys(r.files))
	sort.Strings(names)
	return names
}

// Remove drops a file. It returns false when the file is not tracked.
func (r *Report) Remove(name string) bool {
	if _, ok := r.files[name]; !ok {
		return false
	}
	delete(r.files, name)
	r.markDirty()
	return true
}

// Rename moves a file to a new path, merging into a file already stored there.
func (r *Report) Rename(from, to string) bool {
	f, ok := r.files[from]
	if !ok {
		return false
	}
	if from == to {
		return true
	}
	delete(r.files, from)
	f.name = to
	if existing, ok := r.files[to]; ok {
		existing.Merge(f, true, false)
	} else {
		r.files[to] = f
	}
	r.markDirty()
	return true
}

// ResolvePaths runs every path through fixer. Files fixed to "" are removed.
func (r *Report) ResolvePaths(fixer PathFixer) {
	for _, name := range r.FileNames() {
		fixed := fixer.Fix(name)
		switch {
		case fixed == "":
			r.Remove(name)
		case fixed != name:
			r.Rename(name, fixed)
		}
	}
}

// AddSession stores a session. Unless useID is set the session receives the
// smallest id not yet in use. The cached totals are updated in place.
func (r *Report) AddSession(s Session, useID bool) (int, *Session) {
	if !useID {
		s.ID = r.NextSessionID()
	}
	if s.Type == "" {
		s.Type = SessionUploaded
	}
	_, replaced := r.sessions[s.ID]
	stored := s.Copy()
	r.sessions[s.ID] = &stored
	if r.totals != nil && !replaced {
		t := *r.totals
		t.Sessions++
		r.totals = &t
	}
	return s.ID, &stored
}

// NextSessionID returns the smallest id not yet in use.
func (r *Report) NextSessionID() int {
	id := 0
	for {
		if _, taken := r.sessions[id]; !taken {
			return id
		}
		id++
	}
}

// Session returns a session by id.
func (r *Report) Session(id int) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// Sessions returns the session table ordered by id.
func (r *Report) Sessions() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, id := range r.SessionIDs() {
		out = append(out, r.sessions[id])
	}
	return out
}

// SessionIDs returns the session ids sorted.
func (r *Report) SessionIDs() []int {
	ids := slices.Collect(maps.Keys(r.sessions))
	sort.Ints(ids)
	return ids
}

// SessionIDsWithFlags returns the ids of sessions carrying any of flags.
func (r *Report) SessionIDsWithFlags(flags []string) []int {
	var ids []int
	for _, id := range r.SessionIDs() {
		if r.sessions[id].HasAnyFlag(flags) {
			ids = append(ids, id)
		}
	}
	return ids
}

// GetFlagNames returns every flag used by a session, sorted.
func (r *Report) GetFlagNames() []string {
	set := make(map[string]struct{})
	for _, s := range r.sessions {
		for _, f := range s.Flags {
			set[f] = struct{}{}
		}
	}
	names := slices.Collect(maps.Keys(set))
	sort.Strings(names)
	return names
}

// DeleteMultipleSessions removes sessions from the table and from every line.
// Lines left without sessions and files left without lines are dropped.
func (r *Report) DeleteMultipleSessions(ids []int) {
	if len(ids) == 0 {
		return
	}
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
		delete(r.sessions, id)
	}
	for name, f := range r.files {
		f.DeleteMultipleSessions(set)
		if f.IsEmpty() {
			delete(r.files, name)
		}
	}
	r.markDirty()
}

// ChangeSessionID renumbers a session in the table and on every line. The
// report is left untouched when it returns an error.
func (r *Report) ChangeSessionID(from, to int) error {
	s, ok := r.sessions[from]
	if !ok {
		return fmt.Errorf("%w: %d", ErrSessionNotFound, from)
	}
	if from == to {
		return nil
	}
	if _, taken := r.sessions[to]; taken {
		return fmt.Errorf("%w: %d", ErrSessionExists, to)
	}
	for name, f := range r.files {
		if f.hasSession(to) {
			return fmt.Errorf("%w: %d on lines of %s", ErrSessionExists, to, name)
		}
	}
	delete(r.sessions, from)
	s.ID = to
	r.sessions[to] = s
	for _, f := range r.files {
		f.ChangeSessionID(from, to)
	}
	r.markDirty()
	return nil
}

// Adopt merges other into r after moving each of its sessions to a fresh id.
// It returns the old to new id mapping.
func (r *Report) Adopt(other *Report) map[int]int {
	mapping := make(map[int]int, len(other.sessions))
	for _, id := range other.SessionIDs() {
		newID, _ := r.AddSession(*other.sessions[id], false)
		mapping[id] = newID
	}
	for _, name := range other.FileNames() {
		f := other.files[name].Copy()
		f.remapSessions(mapping)
		r.appendFile(f, true, false)
	}
	r.markDirty()
	return mapping
}

// ShiftLinesByDiff renumbers the lines of every modified file to the other
// side of diff. Forward maps the report onto the post-change numbering and
// follows renames.
func (r *Report) ShiftLinesByDiff(diff *Diff, forward bool) {
	if diff == nil {
		return
	}
	for _, path := range diff.Paths() {
		fd := diff.Files[path]
		if fd == nil || fd.Type != DiffModified {
			continue
		}
		name := path
		if forward && fd.isRename(path) {
			if _, ok := r.files[path]; !ok {
				name = fd.Before
			}
		}
		f, ok := r.files[name]
		if !ok {
			continue
		}
		f.ShiftLinesByDiff(fd, forward)
		if f.IsEmpty() {
			delete(r.files, name)
		} else if name != path {
			r.Rename(name, path)
		}
	}
	r.markDirty()
}

// DoesDiffAdjustTrackedLines reports whether diff touches a line tracked by r
// or by future, the report of the commit after futureDiff is applied.
func (r *Report) DoesDiffAdjustTrackedLines(diff *Diff, future *Report, futureDiff *Diff) bool {
	if diff == nil {
		return false
	}
	for _, path := range diff.Paths() {
		fd := diff.Files[path]
		var futureType DiffType
		if futureDiff != nil {
			if ffd, ok := futureDiff.Files[path]; ok && ffd != nil {
				futureType = ffd.Type
			}
		}
		_, inPast := r.files[path]
		var futureFile *ReportFile
		if future != nil {
			futureFile = future.files[path]
		}
		switch fd.Type {
		case DiffDeleted:
			if inPast {
				return true
			}
		case DiffNew:
			if futureType == DiffNew && futureFile != nil {
				return true
			}
		case DiffModified:
			inFuture := futureType != DiffDeleted && futureFile != nil
			if inPast != inFuture {
				return true
			}
			if !inPast {
				continue
			}
			if futureType == DiffModified {
				futureFile = futureFile.Copy()
				futureFile.ShiftLinesByDiff(futureDiff.Files[path], false)
			}
			if r.files[path].adjustsTrackedLines(fd.Segments, futureFile) {
				return true
			}
		}
	}
	return false
}

func (f *ReportFile) adjustsTrackedLines(segments []Segment, future *ReportFile) bool {
	for _, ln := range RemovedLines(segments) {
		if _, ok := f.Get(ln); ok {
			return true
		}
	}
	for _, ln := range AddedLines(segments) {
		if _, ok := future.Get(ln); ok {
			return true
		}
	}
	return false
}

// Filter returns a view restricted to paths and flags. With neither it
// returns r itself.
func (r *Report) Filter(paths, flags []string) (View, error) {
	if len(paths) == 0 && len(flags) == 0 {
		return r, nil
	}
	return NewFilteredReport(r, paths, flags)
}

// Totals returns the cached report totals.
func (r *Report) Totals() ReportTotals {
	if r.totals == nil {
		list := make([]ReportTotals, 0, len(r.files))
		for _, name := range r.FileNames() {
			list = append(list, r.files[name].Totals())
		}
		t := SumTotals(list)
		t.Sessions = len(r.sessions)
		r.totals = &t
	}
	return *r.totals
}

// GetFileTotals returns the totals of one file. It returns false when the
// file is not tracked.
func (r *Report) GetFileTotals(name string) (ReportTotals, bool) {
	f, ok := r.files[name]
	if !ok {
		return ReportTotals{}, false
	}
	return f.Totals(), true
}

// FinishMerge settles every aggregate left pending by disjoint merges.
func (r *Report) FinishMerge() {
	for _, f := range r.files {
		f.settle()
	}
	r.markDirty()
}

// CalculateDiff returns the totals of the lines diff adds.
func (r *Report) CalculateDiff(diff *Diff) DiffTotals {
	return CalculateReportDiff(r, diff)
}

// ApplyDiff computes patch totals and, with save, writes them onto diff.
func (r *Report) ApplyDiff(diff *Diff, save bool) *ReportTotals {
	return ApplyDiff(r, diff, save)
}

// Copy returns a deep copy.
func (r *Report) Copy() *Report {
	out := NewReport()
	for id, s := range r.sessions {
		c := s.Copy()
		out.sessions[id] = &c
	}
	for name, f := range r.files {
		out.files[name] = f.Copy()
	}
	return out
}
