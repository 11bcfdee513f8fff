package domain

import (
	"testing"

	"romekv/testutil"
)

// TestDomainDoesNotImportInternal keeps the domain layer free of the core
// engine and adapters so drivers and registries can depend on it.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "domain must not depend on internal packages")
}

// TestDomainDoesNotImportBackends keeps storage clients out of the shared types.
func TestDomainDoesNotImportBackends(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.BackendImportForbidden, "domain must not depend on storage backends")
}
