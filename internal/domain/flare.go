package domain

import (
	"slices"
	"strings"
)

// Flare colors.
const (
	ColorLow    = "#e05d44"
	ColorMedium = "#dfb317"
	ColorHigh   = "#4c1"
)

// ColorRange splits coverage percentages into low, medium and high bands.
type ColorRange struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

// DefaultColorRange is used when no range is configured.
var DefaultColorRange = ColorRange{Low: 70, High: 100}

// Color returns the band color of a percentage.
func (c ColorRange) Color(percent float64) string {
	switch {
	case percent >= c.High:
		return ColorHigh
	case percent < c.Low:
		return ColorLow
	}
	return ColorMedium
}

// FlareNode is one directory or file of the coverage sunburst tree.
type FlareNode struct {
	Name     string       `json:"name"`
	Coverage float64      `json:"coverage"`
	Color    string       `json:"color"`
	Lines    int          `json:"lines"`
	Class    string       `json:"_class,omitempty"`
	Children []*FlareNode `json:"children,omitempty"`

	hits int
}

// Flare builds the directory tree of view with per-node coverage. Files in
// changes, and their parent directories, are marked with class "changed".
func Flare(view View, changes []string, colors ColorRange) *FlareNode {
	if colors == (ColorRange{}) {
		colors = DefaultColorRange
	}
	root := &FlareNode{}
	for _, name := range view.FileNames() {
		f, ok := view.File(name)
		if !ok {
			continue
		}
		t := f.Totals()
		changed := slices.Contains(changes, name)
		node := root
		parts := strings.Split(name, "/")
		for i, part := range parts {
			node.Lines += t.Lines
			node.hits += t.Hits
			if changed {
				node.Class = "changed"
			}
			child := node.child(part)
			if i == len(parts)-1 {
				child.Lines += t.Lines
				child.hits += t.Hits
				if changed {
					child.Class = "changed"
				}
			}
			node = child
		}
	}
	root.finish(colors)
	return root
}

// Flare builds the coverage tree of the report.
func (r *Report) Flare(changes []string, colors ColorRange) *FlareNode {
	return Flare(r, changes, colors)
}

func (n *FlareNode) child(name string) *FlareNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	c := &FlareNode{Name: name}
	n.Children = append(n.Children, c)
	return c
}

func (n *FlareNode) finish(colors ColorRange) {
	if n.Lines > 0 {
		n.Coverage = float64(n.hits) / float64(n.Lines) * 100
	}
	n.Color = colors.Color(n.Coverage)
	for _, c := range n.Children {
		c.finish(colors)
	}
}
