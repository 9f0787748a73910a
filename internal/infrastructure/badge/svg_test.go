package badge

import (
	"bytes"
	"strings"
	"testing"

	"github.com/felixgeelhaar/covreport/internal/domain"
)

func render(t *testing.T, opts Options) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Generate(&buf, opts); err != nil {
		t.Fatalf("generate: %v", err)
	}
	return buf.String()
}

func TestGenerate(t *testing.T) {
	out := render(t, Options{Label: "unit", Percent: 85.5})
	for _, want := range []string{"<svg", "unit: 85.5%", `rx="3"`, domain.ColorMedium} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}

func TestGenerateDefaults(t *testing.T) {
	out := render(t, Options{Percent: 100})
	if !strings.Contains(out, "coverage: 100%") {
		t.Fatalf("expected default label:\n%s", out)
	}
	if !strings.Contains(out, domain.ColorHigh) {
		t.Fatalf("expected high color:\n%s", out)
	}
}

func TestGenerateColorOverride(t *testing.T) {
	out := render(t, Options{Percent: 10, Color: "#123456"})
	if !strings.Contains(out, "#123456") || strings.Contains(out, domain.ColorLow) {
		t.Fatalf("expected explicit color:\n%s", out)
	}
}

func TestGenerateFlatSquare(t *testing.T) {
	out := render(t, Options{Percent: 50, Style: StyleFlatSquare})
	if !strings.Contains(out, `rx="0"`) {
		t.Fatalf("expected square corners:\n%s", out)
	}
}

func TestGenerateUnknownStyle(t *testing.T) {
	if err := Generate(&bytes.Buffer{}, Options{Style: "plastic"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGenerateEscapesLabel(t *testing.T) {
	out := render(t, Options{Label: "<b>", Percent: 1})
	if strings.Contains(out, "<b>") {
		t.Fatalf("label should be escaped:\n%s", out)
	}
}

func TestFromFlare(t *testing.T) {
	root := &domain.FlareNode{Coverage: 72.5, Color: domain.ColorMedium}
	opts := FromFlare(root, "api", StyleFlat)
	if opts.Percent != 72.5 || opts.Color != domain.ColorMedium || opts.Label != "api" {
		t.Fatalf("unexpected options: %+v", opts)
	}
	if got := FromFlare(nil, "", ""); got.Percent != 0 || got.Color != "" {
		t.Fatalf("nil root should give zero options: %+v", got)
	}
}
