package detector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/covreport/internal/application"
)

func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDetector_DetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		expected application.Format
	}{
		{
			name:     "go profile",
			file:     "profile.txt",
			content:  "mode: set\ngithub.com/example/pkg/main.go:1.1,5.2 1 1\n",
			expected: application.FormatGo,
		},
		{
			name:     "lcov",
			file:     "report.txt",
			content:  "TN:\nSF:src/main.py\nDA:1,1\nend_of_record\n",
			expected: application.FormatLCOV,
		},
		{
			name:     "lcov branches only",
			file:     "report.txt",
			content:  "SF:src/main.c\nBRDA:3,0,0,1\nend_of_record\n",
			expected: application.FormatLCOV,
		},
		{
			name:     "cobertura",
			file:     "report.xml",
			content:  `<?xml version="1.0"?><coverage line-rate="0.5"><packages/></coverage>`,
			expected: application.FormatCobertura,
		},
		{
			name:     "cobertura dtd",
			file:     "report.xml",
			content:  `<?xml version="1.0"?><!DOCTYPE coverage SYSTEM "http://cobertura.sourceforge.net/xml/coverage-04.dtd">`,
			expected: application.FormatCobertura,
		},
		{
			name:     "extension fallback out",
			file:     "cover.out",
			content:  "",
			expected: application.FormatGo,
		},
		{
			name:     "extension fallback info",
			file:     "lcov.info",
			content:  "",
			expected: application.FormatLCOV,
		},
		{
			name:     "unknown",
			file:     "notes.txt",
			content:  "hello",
			expected: application.FormatAuto,
		},
		{
			name:     "content wins over extension",
			file:     "coverage.out",
			content:  "SF:a.js\nDA:1,1\n",
			expected: application.FormatLCOV,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTempFile(t, tt.file, tt.content)
			format, err := New().DetectFormat(path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, format)
		})
	}
}

func TestDetector_DetectFormat_FileNotFound(t *testing.T) {
	_, err := New().DetectFormat(filepath.Join(t.TempDir(), "missing.out"))
	assert.Error(t, err)
}
