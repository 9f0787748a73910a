package domain

// CarryForward builds the carried forward part of parent: only sessions
// carrying one of flags survive, each marked as carried forward from
// fromCommit, and files outside paths are dropped. A nil paths keeps every
// file. Without flags the result is empty.
func CarryForward(parent *Report, flags []string, paths *PathMatcher, fromCommit string) *Report {
	if parent == nil || len(flags) == 0 {
		return NewReport()
	}
	out := parent.Copy()
	keep := make(map[int]struct{})
	for _, id := range out.SessionIDsWithFlags(flags) {
		keep[id] = struct{}{}
	}
	var drop []int
	for _, id := range out.SessionIDs() {
		if _, ok := keep[id]; !ok {
			drop = append(drop, id)
		}
	}
	out.DeleteMultipleSessions(drop)

	for _, name := range out.FileNames() {
		if !paths.Match(name) {
			out.Remove(name)
		}
	}
	for _, s := range out.sessions {
		s.Type = SessionCarriedForward
		if s.Extras == nil {
			s.Extras = make(map[string]any, 1)
		}
		s.Extras[ExtraCarriedForwardFrom] = fromCommit
		if s.Name != "" {
			s.Name = "CF[" + s.Name + "]"
		}
	}
	out.markDirty()
	return out
}
