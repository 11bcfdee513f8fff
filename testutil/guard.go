// Package testutil holds the import guards behind the architecture tests:
// record types stay free of storage backends and internal packages, and the
// blob layer stays free of record semantics.
package testutil

import (
	"bufio"
	"bytes"
	"fmt"
	"go/parser"
	"go/token"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
)

// Predicate reports whether an import path is forbidden.
type Predicate func(importPath string) bool

// DomainImportForbidden matches the record domain package itself, also when
// listed with a module version suffix.
func DomainImportForbidden(path string) bool {
	return strings.HasSuffix(path, "/pkg/domain") || strings.Contains(path, "/pkg/domain@")
}

// InternalImportForbidden matches packages below an internal/ directory.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// backendRoots are the import roots only storage drivers may use.
var backendRoots = []string{
	"database/sql",
	"github.com/aws/aws-sdk-go-v2",
	"github.com/jackc/pgx",
	"github.com/syndtr/goleveldb",
	"modernc.org/sqlite",
}

// BackendImportForbidden matches a storage backend root or any package below it.
func BackendImportForbidden(path string) bool {
	for _, root := range backendRoots {
		if path == root || strings.HasPrefix(path, root+"/") {
			return true
		}
	}
	return false
}

// AssertNoDirectImports fails t when a non-test Go file directly inside dir
// imports a forbidden path. Subdirectories and build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden Predicate, reason string) {
	t.Helper()
	found, err := directImports(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	report(t, "direct import", reason, found)
}

// AssertNoTransitiveDependency fails t when any package in the dependency
// closure of pattern, as printed by `go list -deps`, is forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden Predicate, reason string) {
	t.Helper()
	deps, err := listDeps(pattern)
	if err != nil {
		t.Fatalf("list deps of %s: %v", pattern, err)
	}
	var found []string
	for _, dep := range deps {
		if forbidden(dep) {
			found = append(found, dep)
		}
	}
	report(t, "transitive dependency", reason, found)
}

var listDeps = func(pattern string) ([]string, error) {
	out, err := exec.Command("go", "list", "-deps", pattern).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w\n%s", err, out)
	}
	var deps []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			deps = append(deps, line)
		}
	}
	return deps, sc.Err()
}

// directImports returns "<path> (in <file>)" for every forbidden import,
// ordered by file.
func directImports(dir string, forbidden Predicate) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	fset := token.NewFileSet()
	var found []string
	for _, file := range files {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, file, nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, spec := range f.Imports {
			path, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				return nil, err
			}
			if forbidden(path) {
				found = append(found, fmt.Sprintf("%s (in %s)", path, filepath.Base(file)))
			}
		}
	}
	return found, nil
}

type fatalf interface {
	Fatalf(format string, args ...any)
}

func report(t fatalf, kind, reason string, found []string) {
	if len(found) == 0 {
		return
	}
	t.Fatalf("forbidden %s (%s):\n%s", kind, reason, strings.Join(found, "\n"))
}
