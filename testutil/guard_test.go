package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred Predicate
		in   string
		want bool
	}{
		{"domain", DomainImportForbidden, "romekv/pkg/domain", true},
		{"domain versioned", DomainImportForbidden, "example.com/mod/pkg/domain@v1", true},
		{"domain lookalike", DomainImportForbidden, "example.com/mod/pkg/domainutil", false},
		{"domain subpackage", DomainImportForbidden, "example.com/pkg/domain/sub", false},
		{"domain empty", DomainImportForbidden, "", false},
		{"internal", InternalImportForbidden, "romekv/internal/core", true},
		{"internal root", InternalImportForbidden, "example.com/internal", false},
		{"internal lookalike", InternalImportForbidden, "notinternal", false},
		{"sql", BackendImportForbidden, "database/sql", true},
		{"sql driver", BackendImportForbidden, "database/sql/driver", true},
		{"pgx", BackendImportForbidden, "github.com/jackc/pgx/v5/stdlib", true},
		{"sqlite", BackendImportForbidden, "modernc.org/sqlite", true},
		{"leveldb", BackendImportForbidden, "github.com/syndtr/goleveldb/leveldb", true},
		{"s3", BackendImportForbidden, "github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"sql lookalike", BackendImportForbidden, "database/sqlx", false},
		{"json", BackendImportForbidden, "encoding/json", false},
	}
	for _, tc := range cases {
		if got := tc.pred(tc.in); got != tc.want {
			t.Fatalf("%s: predicate(%q)=%v want %v", tc.name, tc.in, got, tc.want)
		}
	}
}

func writeSource(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportsSkipTestFilesAndSubdirectories(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "main.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n")
	writeSource(t, dir, "main_test.go", "package tmp\nimport \"forbidden/package\"\n")
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeSource(t, sub, "sub.go", "package sub\nimport \"forbidden/package\"\n")

	AssertNoDirectImports(t, dir, func(p string) bool { return p == "forbidden/package" }, "test files and subdirectories are out of scope")
	AssertNoDirectImports(t, t.TempDir(), func(string) bool { return true }, "empty directory")
}

func TestDirectImportsNameTheFile(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "b_store.go", "package tmp\nimport \"database/sql\"\nvar _ sql.DB\n")
	writeSource(t, dir, "a_store.go", "package tmp\nimport (\n\t\"fmt\"\n\tpg \"github.com/jackc/pgx/v5/stdlib\"\n)\n")
	found, err := directImports(dir, BackendImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{"github.com/jackc/pgx/v5/stdlib (in a_store.go)", "database/sql (in b_store.go)"}
	if strings.Join(found, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected findings: %v", found)
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = format }

func TestReportFiresOnlyOnFindings(t *testing.T) {
	var r recordingFatal
	report(&r, "direct import", "reason", nil)
	if r.msg != "" {
		t.Fatalf("unexpected failure: %s", r.msg)
	}
	report(&r, "direct import", "reason", []string{"x"})
	if r.msg == "" {
		t.Fatalf("expected failure on findings")
	}
}

func TestTransitiveDependencyUsesDepsListing(t *testing.T) {
	prev := listDeps
	t.Cleanup(func() { listDeps = prev })
	listDeps = func(pattern string) ([]string, error) {
		if pattern != "./fake/..." {
			return nil, errors.New("unexpected pattern " + pattern)
		}
		return []string{"fmt", "romekv/internal/blob"}, nil
	}
	AssertNoTransitiveDependency(t, "./fake/...", DomainImportForbidden, "fake listing has no domain package")
}

func TestAssertNoTransitiveDependency(t *testing.T) {
	AssertNoTransitiveDependency(t, ".", func(path string) bool {
		return path == "github.com/some/nonexistent/package"
	}, "none")
}
