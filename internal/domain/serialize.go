package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ChunkSeparator separates file bodies in the chunks blob.
const ChunkSeparator = "\n<<<<< end_of_chunk >>>>>\n"

const headerSeparator = "<<<<< end_of_header >>>>>"

// SerializedReport is the storage form of a Report: a files header, the
// chunks blob and the session table.
type SerializedReport struct {
	Files    []byte
	Chunks   []byte
	Sessions []byte
	Totals   ReportTotals
}

type chunkHeader struct {
	PresentSessions []int `json:"present_sessions"`
}

// Serialize encodes the report. Files are written in path order; the files
// header maps each path to [chunk index, totals].
func (r *Report) Serialize() (SerializedReport, error) {
	r.FinishMerge()
	header := make(map[string][]any, len(r.files))
	var chunks bytes.Buffer
	for i, name := range r.FileNames() {
		f := r.files[name]
		if i > 0 {
			chunks.WriteString(ChunkSeparator)
		}
		if err := writeChunk(&chunks, f); err != nil {
			return SerializedReport{}, fmt.Errorf("serialize %s: %w", name, err)
		}
		header[name] = []any{i, f.Totals()}
	}
	files, err := json.Marshal(header)
	if err != nil {
		return SerializedReport{}, fmt.Errorf("serialize files header: %w", err)
	}
	sessions, err := EncodeSessions(r.sessions)
	if err != nil {
		return SerializedReport{}, fmt.Errorf("serialize sessions: %w", err)
	}
	return SerializedReport{Files: files, Chunks: chunks.Bytes(), Sessions: sessions, Totals: r.Totals()}, nil
}

func writeChunk(buf *bytes.Buffer, f *ReportFile) error {
	present := make(map[int]struct{})
	for _, l := range f.lines {
		if l == nil {
			continue
		}
		for _, s := range l.Sessions {
			present[s.ID] = struct{}{}
		}
	}
	ids := make([]int, 0, len(present))
	for id := range present {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	head, err := json.Marshal(chunkHeader{PresentSessions: ids})
	if err != nil {
		return err
	}
	buf.Write(head)
	for _, l := range f.lines {
		buf.WriteByte('\n')
		if l == nil {
			buf.WriteString("null")
			continue
		}
		enc, err := json.Marshal(l)
		if err != nil {
			return err
		}
		buf.Write(enc)
	}
	return nil
}

// LoadReport hydrates a report from its storage form. The header totals are
// trusted as each file's cached totals.
func LoadReport(files, chunks, sessions []byte) (*Report, error) {
	r := NewReport()
	if len(bytes.TrimSpace(sessions)) > 0 {
		table, err := DecodeSessions(sessions)
		if err != nil {
			return nil, err
		}
		r.sessions = table
	}
	if len(bytes.TrimSpace(files)) == 0 {
		return r, nil
	}
	var header map[string][]json.RawMessage
	if err := json.Unmarshal(files, &header); err != nil {
		return nil, fmt.Errorf("%w: files header: %v", ErrMalformedReport, err)
	}
	if i := bytes.Index(chunks, []byte(headerSeparator)); i >= 0 {
		chunks = chunks[i+len(headerSeparator):]
		chunks = bytes.TrimPrefix(chunks, []byte("\n"))
	}
	bodies := bytes.Split(chunks, []byte(ChunkSeparator))
	for name, entry := range header {
		if len(entry) == 0 {
			return nil, fmt.Errorf("%w: file %s has no chunk index", ErrMalformedReport, name)
		}
		idx, err := strconv.Atoi(string(bytes.TrimSpace(entry[0])))
		if err != nil || idx < 0 || idx >= len(bodies) {
			return nil, fmt.Errorf("%w: file %s chunk %s", ErrMalformedReport, name, entry[0])
		}
		f, err := parseChunk(name, bodies[idx])
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		if f.IsEmpty() {
			continue
		}
		if len(entry) > 1 {
			var t ReportTotals
			if err := json.Unmarshal(entry[1], &t); err != nil {
				return nil, fmt.Errorf("load %s: %w", name, err)
			}
			f.setTotals(t)
		}
		r.files[name] = f
	}
	return r, nil
}

func parseChunk(name string, body []byte) (*ReportFile, error) {
	f := NewReportFile(name)
	lines := bytes.Split(body, []byte("\n"))
	if len(lines) > 0 && bytes.HasPrefix(bytes.TrimSpace(lines[0]), []byte("{")) {
		lines = lines[1:]
	}
	f.lines = make([]*ReportLine, len(lines))
	for i, raw := range lines {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		var l ReportLine
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		f.lines[i] = &l
	}
	f.trim()
	return f, nil
}
