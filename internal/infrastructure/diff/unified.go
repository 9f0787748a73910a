package diff

import (
	"fmt"
	"io"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/felixgeelhaar/covreport/internal/domain"
)

// Parse converts a unified git diff into a domain diff keyed by the
// post-change path. Deleted files are keyed by their old path.
func Parse(r io.Reader) (*domain.Diff, error) {
	files, _, err := gitdiff.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	out := &domain.Diff{Files: make(map[string]*domain.FileDiff, len(files))}
	for _, f := range files {
		name := f.NewName
		fd := &domain.FileDiff{Type: domain.DiffModified}
		switch {
		case f.IsBinary:
			fd.Type = domain.DiffBinary
		case f.IsNew:
			fd.Type = domain.DiffNew
		case f.IsDelete:
			fd.Type = domain.DiffDeleted
			name = f.OldName
		}
		if f.IsRename && f.OldName != f.NewName {
			fd.Before = f.OldName
		}
		if name == "" {
			name = f.OldName
		}
		if name == "" {
			continue
		}
		if !f.IsBinary {
			for _, frag := range f.TextFragments {
				fd.Segments = append(fd.Segments, segment(frag))
			}
		}
		out.Files[name] = fd
	}
	return out, nil
}

func segment(frag *gitdiff.TextFragment) domain.Segment {
	seg := domain.Segment{
		Header: domain.SegmentHeader{
			OldStart:  int(frag.OldPosition),
			OldLength: int(frag.OldLines),
			NewStart:  int(frag.NewPosition),
			NewLength: int(frag.NewLines),
		},
		Lines: make([]string, 0, len(frag.Lines)),
	}
	for _, l := range frag.Lines {
		marker := " "
		switch l.Op {
		case gitdiff.OpAdd:
			marker = "+"
		case gitdiff.OpDelete:
			marker = "-"
		}
		seg.Lines = append(seg.Lines, marker+strings.TrimSuffix(l.Line, "\n"))
	}
	return seg
}
