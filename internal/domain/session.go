package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// SessionType distinguishes fresh uploads from sessions copied from a parent commit.
type SessionType string

const (
	SessionUploaded       SessionType = "uploaded"
	SessionCarriedForward SessionType = "carriedforward"
)

// ExtraCarriedForwardFrom is the session extra naming the commit a carried
// forward session was copied from.
const ExtraCarriedForwardFrom = "carriedforward_from"

// Session is one coverage contribution: a CI job, an upload, a flag run.
type Session struct {
	ID       int
	Totals   *ReportTotals
	Time     int64
	Archive  string
	Flags    []string
	Provider string
	Build    string
	Name     string
	Job      string
	URL      string
	Pull     string
	Env      map[string]string
	Type     SessionType
	Extras   map[string]any
}

// HasAnyFlag reports whether the session carries one of flags.
func (s Session) HasAnyFlag(flags []string) bool {
	for _, f := range s.Flags {
		if slices.Contains(flags, f) {
			return true
		}
	}
	return false
}

// CarriedForwardFrom returns the commit a carried forward session came from.
func (s Session) CarriedForwardFrom() string {
	v, _ := s.Extras[ExtraCarriedForwardFrom].(string)
	return v
}

// Copy returns a deep copy.
func (s Session) Copy() Session {
	out := s
	if s.Totals != nil {
		t := *s.Totals
		out.Totals = &t
	}
	out.Flags = slices.Clone(s.Flags)
	out.Env = maps.Clone(s.Env)
	out.Extras = maps.Clone(s.Extras)
	return out
}

type sessionWire struct {
	Totals   *ReportTotals     `json:"t,omitempty"`
	Time     int64             `json:"d,omitempty"`
	Archive  string            `json:"a,omitempty"`
	Flags    []string          `json:"f,omitempty"`
	Provider string            `json:"c,omitempty"`
	Build    string            `json:"n,omitempty"`
	Name     string            `json:"N,omitempty"`
	Job      string            `json:"j,omitempty"`
	URL      string            `json:"u,omitempty"`
	Pull     string            `json:"p,omitempty"`
	Env      map[string]string `json:"e,omitempty"`
	Type     SessionType       `json:"st,omitempty"`
	Extras   map[string]any    `json:"se,omitempty"`
}

// MarshalJSON uses the abbreviated keys of the session table.
func (s Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionWire{
		Totals: s.Totals, Time: s.Time, Archive: s.Archive, Flags: s.Flags,
		Provider: s.Provider, Build: s.Build, Name: s.Name, Job: s.Job,
		URL: s.URL, Pull: s.Pull, Env: s.Env, Type: s.Type, Extras: s.Extras,
	})
}

// UnmarshalJSON decodes the abbreviated keys. The id is not part of the body.
func (s *Session) UnmarshalJSON(data []byte) error {
	var w sessionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: session: %v", ErrMalformedReport, err)
	}
	typ := w.Type
	if typ == "" {
		typ = SessionUploaded
	}
	*s = Session{
		ID: s.ID, Totals: w.Totals, Time: w.Time, Archive: w.Archive, Flags: w.Flags,
		Provider: w.Provider, Build: w.Build, Name: w.Name, Job: w.Job,
		URL: w.URL, Pull: w.Pull, Env: w.Env, Type: typ, Extras: w.Extras,
	}
	return nil
}

// EncodeSessions serializes a session table keyed by string id.
func EncodeSessions(sessions map[int]*Session) ([]byte, error) {
	out := make(map[string]Session, len(sessions))
	for id, s := range sessions {
		out[strconv.Itoa(id)] = *s
	}
	return json.Marshal(out)
}

// DecodeSessions parses a session table keyed by string id.
func DecodeSessions(data []byte) (map[int]*Session, error) {
	var raw map[string]Session
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: sessions: %v", ErrMalformedReport, err)
	}
	out := make(map[int]*Session, len(raw))
	for key, s := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: session id %q", ErrMalformedReport, key)
		}
		s.ID = id
		sess := s
		out[id] = &sess
	}
	return out, nil
}
