package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNonStandardLibrary(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"fmt", false},
		{"encoding/json", false},
		{"go.uber.org/zap", true},
		{"github.com/spf13/cobra", true},
		{"immobilog/internal/core", true},
		{"immobilog", true},
		{"immobilogx/foo", false},
	}
	for _, c := range cases {
		if got := NonStandardLibrary(c.in); got != c.want {
			t.Fatalf("NonStandardLibrary(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestImportsUnder(t *testing.T) {
	match := ImportsUnder("immobilog/internal/core", "immobilog/internal/infra")
	cases := map[string]bool{
		"immobilog/internal/core":                     true,
		"immobilog/internal/infra/persistence/sqlite": true,
		"immobilog/internal/corex":                    false,
		"immobilog/internal/export":                   false,
	}
	for in, want := range cases {
		if got := match(in); got != want {
			t.Fatalf("ImportsUnder(%q)=%v want %v", in, got, want)
		}
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.go", "package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	writeFile(t, dir, "x_test.go", "package tmp\nimport \"immobilog/internal/core\"\n")
	AssertNoDirectImports(t, dir, NonStandardLibrary, "test files are skipped")
}

type recorder struct{ msg string }

func (r *recorder) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestDirectViolationsReported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"go.uber.org/zap\"\n)\n")
	viols, err := directImportViolations(dir, NonStandardLibrary)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "go.uber.org/zap (in x.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
	var r recorder
	failIfDirectViolations(&r, "stdlib only", viols)
	if !strings.Contains(r.msg, "stdlib only") || !strings.Contains(r.msg, "go.uber.org/zap") {
		t.Fatalf("unexpected message %q", r.msg)
	}
}
