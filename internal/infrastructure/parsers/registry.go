// Package parsers provides a unified registry for coverage profile parsers.
//
// The registry automatically detects profile formats and selects the appropriate parser.
package parsers

import (
	"fmt"
	"sort"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/coverprofile"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/parsers/cobertura"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/parsers/detector"
	"github.com/felixgeelhaar/covreport/internal/infrastructure/parsers/lcov"
)

// Registry manages multiple profile parsers and auto-detects formats.
type Registry struct {
	detector *detector.Detector
	parsers  map[application.Format]application.ProfileParser
}

// NewRegistry creates a new parser registry with all supported parsers.
func NewRegistry() *Registry {
	return &Registry{
		detector: detector.New(),
		parsers: map[application.Format]application.ProfileParser{
			application.FormatGo:        coverprofile.Parser{},
			application.FormatLCOV:      lcov.New(),
			application.FormatCobertura: cobertura.New(),
		},
	}
}

// Format returns the auto format, since the registry handles all formats.
func (r *Registry) Format() application.Format {
	return application.FormatAuto
}

// Parse parses a coverage upload into session, auto-detecting the format.
func (r *Registry) Parse(path string, session *domain.ReportBuilderSession) error {
	return r.ParseWithFormat(path, application.FormatAuto, session)
}

// ParseWithFormat parses an upload with a specific format. FormatAuto
// detects the format first, falling back to the Go profile format.
func (r *Registry) ParseWithFormat(path string, format application.Format, session *domain.ReportBuilderSession) error {
	if format == "" {
		format = application.FormatAuto
	}
	if format == application.FormatAuto {
		detected, err := r.detector.DetectFormat(path)
		if err != nil {
			return fmt.Errorf("detect format: %w", err)
		}
		format = detected
	}
	// If format couldn't be detected, try Go profile as default
	if format == application.FormatAuto {
		format = application.FormatGo
	}
	parser, err := r.getParser(format)
	if err != nil {
		return err
	}
	if err := parser.Parse(path, session); err != nil {
		return fmt.Errorf("parse %s as %s: %w", path, format, err)
	}
	return nil
}

// getParser returns the parser registered for format.
func (r *Registry) getParser(format application.Format) (application.ProfileParser, error) {
	parser, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	return parser, nil
}

// SupportedFormats returns the formats with a parser, sorted.
func (r *Registry) SupportedFormats() []application.Format {
	formats := make([]application.Format, 0, len(r.parsers))
	for format := range r.parsers {
		formats = append(formats, format)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	return formats
}
