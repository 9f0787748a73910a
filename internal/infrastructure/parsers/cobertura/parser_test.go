package cobertura

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/covreport/internal/application"
	"github.com/felixgeelhaar/covreport/internal/domain"
)

func createTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coverage.xml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func parse(t *testing.T, content string, fixer domain.PathFixer) *domain.Report {
	t.Helper()
	path := createTempFile(t, content)
	session := domain.NewReportBuilder(1, fixer, nil).NewSession(path)
	require.NoError(t, New().Parse(path, session))
	return session.Output()
}

func TestParser_Format(t *testing.T) {
	assert.Equal(t, application.FormatCobertura, New().Format())
}

func TestParser_Parse_ValidCobertura(t *testing.T) {
	report := parse(t, `<?xml version="1.0" ?>
<coverage line-rate="0.75">
    <packages>
        <package name="pkg">
            <classes>
                <class name="main" filename="src/main.go">
                    <lines>
                        <line number="1" hits="1"/>
                        <line number="2" hits="5"/>
                        <line number="3" hits="0"/>
                    </lines>
                </class>
            </classes>
        </package>
    </packages>
</coverage>`, nil)

	require.Equal(t, []string{"src/main.go"}, report.FileNames())
	totals, _ := report.GetFileTotals("src/main.go")
	assert.Equal(t, 3, totals.Lines)
	assert.Equal(t, 2, totals.Hits)
	assert.Equal(t, 1, totals.Misses)

	f, _ := report.Get("src/main.go")
	line, ok := f.Get(2)
	require.True(t, ok)
	assert.True(t, line.Coverage.Equal(domain.Hit(5)))
	assert.Equal(t, domain.TypeLine, line.Type)
}

func TestParser_Parse_BranchLines(t *testing.T) {
	report := parse(t, `<coverage>
    <packages>
        <package name="app">
            <classes>
                <class name="app" filename="app.py">
                    <lines>
                        <line number="1" hits="1"/>
                        <line number="2" hits="1" branch="true" condition-coverage="50% (1/2)"/>
                        <line number="3" hits="4" branch="true" condition-coverage="100% (2/2)"/>
                        <line number="4" hits="1" branch="false"/>
                    </lines>
                </class>
            </classes>
        </package>
    </packages>
</coverage>`, nil)

	f, ok := report.Get("app.py")
	require.True(t, ok)

	partial, _ := f.Get(2)
	assert.Equal(t, domain.TypeBranch, partial.Type)
	assert.True(t, partial.Coverage.Equal(domain.Branch(1, 2)))

	full, _ := f.Get(3)
	assert.True(t, full.Coverage.Equal(domain.Branch(2, 2)))

	plain, _ := f.Get(4)
	assert.Equal(t, domain.TypeLine, plain.Type)

	totals := f.Totals()
	assert.Equal(t, 4, totals.Lines)
	assert.Equal(t, 3, totals.Hits)
	assert.Equal(t, 1, totals.Partials)
	assert.Equal(t, 2, totals.Branches)
}

func TestParser_Parse_MethodLines(t *testing.T) {
	report := parse(t, `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE coverage SYSTEM "http://cobertura.sourceforge.net/xml/coverage-04.dtd">
<coverage line-rate="0.85" branch-rate="0.75">
    <sources>
        <source>/home/user/project/src/main/java</source>
    </sources>
    <packages>
        <package name="com.example.service">
            <classes>
                <class name="com.example.service.UserService" filename="com/example/service/UserService.java">
                    <methods>
                        <method name="findUser" signature="()V" complexity="1">
                            <lines>
                                <line number="15" hits="10"/>
                                <line number="16" hits="10"/>
                                <line number="17" hits="10"/>
                            </lines>
                        </method>
                        <method name="deleteUser" signature="()V" complexity="2">
                            <lines>
                                <line number="25" hits="5"/>
                                <line number="26" hits="0"/>
                            </lines>
                        </method>
                    </methods>
                    <lines>
                        <line number="10" hits="1"/>
                        <line number="15" hits="10"/>
                        <line number="16" hits="10"/>
                    </lines>
                </class>
            </classes>
        </package>
    </packages>
</coverage>`, nil)

	name := "com/example/service/UserService.java"
	f, ok := report.Get(name)
	require.True(t, ok)

	// Lines repeated under a method and the class are counted once.
	totals := f.Totals()
	assert.Equal(t, 6, totals.Lines)
	assert.Equal(t, 5, totals.Hits)
	assert.Equal(t, 1, totals.Misses)
	assert.Equal(t, 2, totals.Methods)
	assert.Equal(t, 3, totals.Complexity)

	first, _ := f.Get(15)
	assert.Equal(t, domain.TypeMethod, first.Type)
	assert.True(t, first.Coverage.Equal(domain.Hit(10)))
	body, _ := f.Get(16)
	assert.Equal(t, domain.TypeLine, body.Type)
}

func TestParser_Parse_ClassesShareFile(t *testing.T) {
	report := parse(t, `<coverage>
    <packages>
        <package name="p">
            <classes>
                <class name="Outer" filename="Outer.java">
                    <lines><line number="1" hits="0"/></lines>
                </class>
                <class name="Outer$Inner" filename="Outer.java">
                    <lines>
                        <line number="1" hits="2"/>
                        <line number="5" hits="1"/>
                    </lines>
                </class>
            </classes>
        </package>
    </packages>
</coverage>`, nil)

	require.Equal(t, []string{"Outer.java"}, report.FileNames())
	f, _ := report.Get("Outer.java")
	assert.Equal(t, 2, f.Len())
	line, _ := f.Get(1)
	assert.True(t, line.Coverage.Equal(domain.Hit(2)))
}

func TestParser_Parse_PathFixer(t *testing.T) {
	fixer := domain.PathFixerFunc(func(p string) string {
		if p == "vendor/lib.go" {
			return ""
		}
		return "src/" + p
	})
	report := parse(t, `<coverage><packages><package name="p"><classes>
<class name="a" filename="a.go"><lines><line number="1" hits="1"/></lines></class>
<class name="lib" filename="vendor/lib.go"><lines><line number="1" hits="1"/></lines></class>
</classes></package></packages></coverage>`, fixer)

	assert.Equal(t, []string{"src/a.go"}, report.FileNames())
}

func TestParser_Parse_FloatHits(t *testing.T) {
	report := parse(t, `<coverage><packages><package name="p"><classes>
<class name="a" filename="a.cs"><lines>
<line number="1" hits="1.0E10"/>
<line number="2" hits="-1"/>
</lines></class>
</classes></package></packages></coverage>`, nil)

	f, _ := report.Get("a.cs")
	big, _ := f.Get(1)
	assert.True(t, big.Coverage.Equal(domain.Hit(10000000000)))
	clamped, _ := f.Get(2)
	assert.True(t, clamped.Coverage.Equal(domain.Hit(0)))
}

func TestParser_Parse_EmptyClassesSkipped(t *testing.T) {
	report := parse(t, `<coverage><packages><package name="p"><classes>
<class name="empty" filename="empty.py"><lines/></class>
<class name="nameless"><lines><line number="1" hits="1"/></lines></class>
</classes></package></packages></coverage>`, nil)

	assert.True(t, report.IsEmpty())
}

func TestParser_Parse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid xml", "<coverage><packages>"},
		{"wrong root", "<report></report>"},
		{"bad hits", `<coverage><packages><package><classes><class filename="a"><lines><line number="1" hits="x"/></lines></class></classes></package></packages></coverage>`},
		{"bad line number", `<coverage><packages><package><classes><class filename="a"><lines><line number="0" hits="1"/></lines></class></classes></package></packages></coverage>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := createTempFile(t, tt.content)
			session := domain.NewReportBuilder(0, nil, nil).NewSession(path)
			assert.Error(t, New().Parse(path, session))
		})
	}
}

func TestParser_Parse_FileNotFound(t *testing.T) {
	session := domain.NewReportBuilder(0, nil, nil).NewSession("missing.xml")
	err := New().Parse(filepath.Join(t.TempDir(), "missing.xml"), session)
	assert.Error(t, err)
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in      string
		covered int
		total   int
		ok      bool
	}{
		{"50% (1/2)", 1, 2, true},
		{"100% (4/4)", 4, 4, true},
		{"0% (0/3)", 0, 3, true},
		{"50%", 0, 0, false},
		{"(3/2)", 0, 0, false},
		{"(a/b)", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		covered, total, ok := parseCondition(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.covered, covered, tt.in)
		assert.Equal(t, tt.total, total, tt.in)
	}
}
