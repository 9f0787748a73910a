package paths

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyPath = errors.New("empty path")
	ErrNullBytes = errors.New("path contains null bytes")
)

// ValidateInput checks an uploaded file path and returns it cleaned, with
// symlinks resolved when the file exists.
func ValidateInput(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "\x00") {
		return "", ErrNullBytes
	}
	real, err := filepath.EvalSymlinks(cleaned)
	if err != nil {
		// Not there yet; the open that follows reports it.
		return cleaned, nil
	}
	return real, nil
}
