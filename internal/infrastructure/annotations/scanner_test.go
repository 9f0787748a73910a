package annotations

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScannerDetectsAnnotations(t *testing.T) {
	tmp := t.TempDir()
	writeSource(t, tmp, "pkg/main.go", `package main

func main() {
	debug() // covreport:ignore
	// covreport:ignore-start
	a()
	b()
	// covreport:ignore-end
	c() // LCOV_EXCL_LINE
}
`)
	out, err := (Scanner{}).Scan(context.Background(), tmp, []string{"pkg/main.go"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	ig, ok := out["pkg/main.go"]
	if !ok {
		t.Fatalf("expected ignore entry")
	}
	for _, ln := range []int{4, 5, 6, 7, 8, 9} {
		if !ig.Ignores(ln) {
			t.Errorf("line %d should be ignored", ln)
		}
	}
	for _, ln := range []int{1, 3, 10} {
		if ig.Ignores(ln) {
			t.Errorf("line %d should be kept", ln)
		}
	}
	if ig.EOF != 10 || !ig.Ignores(11) {
		t.Fatalf("lines past EOF should be ignored, EOF=%d", ig.EOF)
	}
}

func TestScannerIgnoreFile(t *testing.T) {
	tmp := t.TempDir()
	writeSource(t, tmp, "gen.go", "// Code generated. covreport:ignore-file\npackage gen\nvar x = 1\n")
	out, err := (Scanner{}).Scan(context.Background(), tmp, []string{"gen.go"})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	for ln := 1; ln <= 3; ln++ {
		if !out["gen.go"].Ignores(ln) {
			t.Errorf("line %d should be ignored", ln)
		}
	}
}

func TestScannerIgnoresMissingFile(t *testing.T) {
	tmp := t.TempDir()
	out, err := (Scanner{}).Scan(context.Background(), tmp, []string{"missing.go"})
	if err != nil {
		t.Fatalf("expected missing file to be skipped: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no entries, got %v", out)
	}
}

func TestScannerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Scanner{}).Scan(ctx, t.TempDir(), []string{"a.go"}); err == nil {
		t.Fatal("expected context error")
	}
}
