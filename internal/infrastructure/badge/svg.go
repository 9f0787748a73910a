// Package badge renders a shields-style SVG badge for a report's coverage.
package badge

import (
	"fmt"
	"html/template"
	"io"

	"github.com/felixgeelhaar/covreport/internal/domain"
)

type Style string

const (
	StyleFlat       Style = "flat"
	StyleFlatSquare Style = "flat-square"
)

// DefaultLabel is the left hand text when no label is given.
const DefaultLabel = "coverage"

// Options describes one badge. An empty Color is derived from Percent
// with the default color range.
type Options struct {
	Label   string
	Percent float64
	Color   string
	Style   Style
}

// FromFlare takes the coverage and color of the root of a flare tree.
func FromFlare(root *domain.FlareNode, label string, style Style) Options {
	opts := Options{Label: label, Style: style}
	if root != nil {
		opts.Percent = root.Coverage
		opts.Color = root.Color
	}
	return opts
}

var badgeTemplate = template.Must(template.New("badge").Parse(`<svg xmlns="http://www.w3.org/2000/svg" width="{{.Width}}" height="20" role="img" aria-label="{{.Label}}: {{.Value}}">
  <title>{{.Label}}: {{.Value}}</title>
  <linearGradient id="s" x2="0" y2="100%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <clipPath id="r">
    <rect width="{{.Width}}" height="20" rx="{{.Radius}}" fill="#fff"/>
  </clipPath>
  <g clip-path="url(#r)">
    <rect width="{{.LabelWidth}}" height="20" fill="#555"/>
    <rect x="{{.LabelWidth}}" width="{{.ValueWidth}}" height="20" fill="{{.Color}}"/>
    <rect width="{{.Width}}" height="20" fill="url(#s)"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="Verdana,Geneva,DejaVu Sans,sans-serif" font-size="110">
    <text aria-hidden="true" x="{{.LabelX}}" y="150" fill="#010101" fill-opacity=".3" transform="scale(.1)">{{.Label}}</text>
    <text x="{{.LabelX}}" y="140" transform="scale(.1)">{{.Label}}</text>
    <text aria-hidden="true" x="{{.ValueX}}" y="150" fill="#010101" fill-opacity=".3" transform="scale(.1)">{{.Value}}</text>
    <text x="{{.ValueX}}" y="140" transform="scale(.1)">{{.Value}}</text>
  </g>
</svg>
`))

// layout holds the computed geometry of a badge. Text coordinates are in
// tenths of a pixel because the text group is scaled by .1.
type layout struct {
	Label      string
	Value      string
	Color      string
	Width      int
	LabelWidth int
	ValueWidth int
	LabelX     int
	ValueX     int
	Radius     int
}

// charWidth approximates Verdana at 11px.
const charWidth = 7

func Generate(w io.Writer, opts Options) error {
	switch opts.Style {
	case "":
		opts.Style = StyleFlat
	case StyleFlat, StyleFlatSquare:
	default:
		return fmt.Errorf("unknown badge style %q", opts.Style)
	}
	if opts.Label == "" {
		opts.Label = DefaultLabel
	}
	if opts.Color == "" {
		opts.Color = domain.DefaultColorRange.Color(opts.Percent)
	}

	value := formatPercent(opts.Percent)
	l := layout{
		Label:      opts.Label,
		Value:      value,
		Color:      opts.Color,
		LabelWidth: len(opts.Label)*charWidth + 10,
		ValueWidth: len(value)*charWidth + 10,
		Radius:     3,
	}
	if opts.Style == StyleFlatSquare {
		l.Radius = 0
	}
	l.Width = l.LabelWidth + l.ValueWidth
	l.LabelX = l.LabelWidth * 5
	l.ValueX = (l.LabelWidth*2 + l.ValueWidth) * 5

	if err := badgeTemplate.Execute(w, l); err != nil {
		return fmt.Errorf("render badge: %w", err)
	}
	return nil
}

func formatPercent(p float64) string {
	if p == float64(int(p)) {
		return fmt.Sprintf("%.0f%%", p)
	}
	return fmt.Sprintf("%.1f%%", p)
}
