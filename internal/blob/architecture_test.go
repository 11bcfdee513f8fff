package blob

import (
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"

	"romekv/testutil"
)

// TestOnlyBlobPackageImportsInfra ensures that only the top-level blob
// package wraps the infra-backed implementations. Other packages must depend
// on the blob.Store interface instead of importing infra packages directly.
func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	infraPrefix := "romekv/internal/infra/blob"
	allowedPrefix := "romekv/internal/blob"

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "romekv/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	seen := make(map[string]struct{})

	for _, pkg := range pkgs {
		if strings.HasPrefix(pkg.PkgPath, allowedPrefix) {
			continue
		}
		if strings.HasPrefix(pkg.PkgPath, infraPrefix) {
			continue
		}
		for importPath := range pkg.Imports {
			if isPrefixed(importPath, infraPrefix) {
				pos := filepath.Join(pkg.PkgPath, "...")
				seen[pos+": "+importPath] = struct{}{}
			}
		}
	}

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden import of infra blob package: %s", v)
		}
		t.Fatalf("found %d forbidden imports of infra blob packages", len(violations))
	}
}

// TestBlobLayerIsDomainFree keeps the blob layer independent of record
// semantics; only the objectstore driver bridges the two.
func TestBlobLayerIsDomainFree(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, "romekv/internal/blob/...", "romekv/internal/infra/blob/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	for _, pkg := range pkgs {
		for importPath := range pkg.Imports {
			if isPrefixed(importPath, "romekv/pkg/domain") || isPrefixed(importPath, "romekv/internal/core") {
				t.Errorf("%s imports %s", pkg.PkgPath, importPath)
			}
		}
	}
}

func isPrefixed(importPath, prefix string) bool {
	return importPath == prefix || strings.HasPrefix(importPath, prefix+"/")
}

// TestBlobLayerHasNoTransitiveDomainDependency extends the direct check to
// the full dependency closure of the blob facade.
func TestBlobLayerHasNoTransitiveDomainDependency(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, "romekv/internal/blob/...", testutil.DomainImportForbidden, "blob storage must stay independent of record semantics")
}
