// Package detector sniffs the format of an uploaded coverage file.
package detector

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/paths"
)

// sniffBytes is how much of a file is read for content detection.
const sniffBytes = 4096

// Detector detects coverage upload formats from file content.
type Detector struct{}

// New creates a new format detector.
func New() *Detector {
	return &Detector{}
}

// DetectFormat examines the head of the file, then its name. It returns
// FormatAuto when neither is conclusive.
func (d *Detector) DetectFormat(path string) (application.Format, error) {
	cleanPath, err := paths.ValidateInput(path)
	if err != nil {
		return application.FormatAuto, err
	}
	content, err := readHead(cleanPath, sniffBytes)
	if err != nil {
		return application.FormatAuto, err
	}
	if format := d.DetectContent(content); format != application.FormatAuto {
		return format, nil
	}
	return d.detectFromExtension(path), nil
}

// DetectContent classifies the head of an upload.
func (d *Detector) DetectContent(content []byte) application.Format {
	trimmed := bytes.TrimSpace(content)
	switch {
	case bytes.HasPrefix(trimmed, []byte("mode:")):
		return application.FormatGo
	case isXML(trimmed) && containsCoberturaMarkers(trimmed):
		return application.FormatCobertura
	case isLCOV(trimmed):
		return application.FormatLCOV
	}
	return application.FormatAuto
}

func (d *Detector) detectFromExtension(path string) application.Format {
	ext := strings.ToLower(filepath.Ext(path))
	base := strings.ToLower(filepath.Base(path))

	switch {
	case ext == ".out" || base == "coverage.txt":
		return application.FormatGo
	case ext == ".info" || ext == ".lcov":
		return application.FormatLCOV
	case base == "cobertura.xml" || base == "coverage.xml":
		return application.FormatCobertura
	}
	return application.FormatAuto
}

func isXML(content []byte) bool {
	return bytes.HasPrefix(content, []byte("<?xml")) || bytes.HasPrefix(content, []byte("<"))
}

func containsCoberturaMarkers(content []byte) bool {
	return bytes.Contains(content, []byte("<coverage")) ||
		bytes.Contains(content, []byte("cobertura"))
}

// isLCOV looks for a source file record followed by line or branch data.
func isLCOV(content []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	var hasSF, hasData bool
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "SF:"):
			hasSF = true
		case strings.HasPrefix(line, "DA:"), strings.HasPrefix(line, "BRDA:"), strings.HasPrefix(line, "FNDA:"):
			hasData = true
		}
		if hasSF && hasData {
			return true
		}
	}
	return false
}

func readHead(path string, n int) ([]byte, error) {
	file, err := os.Open(path) // #nosec G304 - path is validated by caller
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, n)
	nRead, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:nRead], nil
}
