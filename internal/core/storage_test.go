package core

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"romekv/internal/infra/persistence/leveldb"
	"romekv/internal/infra/persistence/memory"
	"romekv/internal/infra/persistence/objectstore"
	"romekv/internal/infra/persistence/postgres"
	"romekv/internal/infra/persistence/postgres/testutil"
	"romekv/internal/infra/persistence/sqlite"
	"romekv/pkg/domain"
)

func TestOpenDriverSelectsBackendFromEnv(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		env  map[string]string
		want any
	}{
		{"default sqlite", map[string]string{"ROMEKV_STORAGE_DRIVER": "", "ROMEKV_SQLITE_PATH": filepath.Join(dir, "default.db")}, &sqlite.Store{}},
		{"memory", map[string]string{"ROMEKV_STORAGE_DRIVER": "memory"}, &memory.Store{}},
		{"leveldb", map[string]string{"ROMEKV_STORAGE_DRIVER": "leveldb", "ROMEKV_LEVELDB_PATH": filepath.Join(dir, "kv.ldb")}, &leveldb.Store{}},
		{"blob", map[string]string{"ROMEKV_STORAGE_DRIVER": "blob", "ROMEKV_BLOB_DRIVER": "memory"}, &objectstore.Store{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			driver, err := OpenDriver(context.Background())
			require.NoError(t, err)
			t.Cleanup(func() { _ = driver.Close() })
			require.IsType(t, tc.want, driver)
			exerciseDriver(t, driver)
		})
	}
}

func TestOpenDriverPostgres(t *testing.T) {
	db, _ := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	t.Setenv("ROMEKV_STORAGE_DRIVER", "postgres")
	t.Setenv("ROMEKV_POSTGRES_DSN", "postgres://stub/romekv")

	driver, err := OpenDriver(context.Background())
	require.NoError(t, err)
	defer func() { _ = driver.Close() }()
	require.IsType(t, &postgres.Store{}, driver)
	exerciseDriver(t, driver)
}

func TestOpenDriverRejectsUnknownBackend(t *testing.T) {
	t.Setenv("ROMEKV_STORAGE_DRIVER", "gibberish")
	_, err := OpenDriver(context.Background())
	require.ErrorContains(t, err, "unknown storage driver gibberish")

	t.Setenv("ROMEKV_STORAGE_DRIVER", "blob")
	t.Setenv("ROMEKV_BLOB_DRIVER", "tape")
	_, err = OpenDriver(context.Background())
	require.Error(t, err)
}

func TestEnvOptionsScopeLimit(t *testing.T) {
	t.Setenv("ROMEKV_SCOPE_LIMIT", "")
	opts, err := EnvOptions()
	require.NoError(t, err)
	require.Empty(t, opts)

	t.Setenv("ROMEKV_SCOPE_LIMIT", "1")
	opts, err = EnvOptions()
	require.NoError(t, err)
	svc, err := NewService(memory.NewStore(), testRegistry(t), append(opts, WithLogger(nil))...)
	require.NoError(t, err)
	ctx := context.Background()
	first := svc.OpenScope(ctx)
	svc.OpenScope(ctx)
	_, ok := svc.Scope(first.ID())
	require.False(t, ok, "limit of one scope should evict the older scope")

	for _, bad := range []string{"zero", "0", "-4"} {
		t.Setenv("ROMEKV_SCOPE_LIMIT", bad)
		_, err := EnvOptions()
		require.Error(t, err, bad)
	}
}

// exerciseDriver saves and reloads one entity through a service on driver.
func exerciseDriver(t *testing.T, driver domain.Driver) {
	t.Helper()
	ctx := context.Background()
	svc, err := NewService(driver, testRegistry(t), WithLogger(nil))
	require.NoError(t, err)
	scope := svc.OpenScope(ctx)
	network, err := svc.New(scope, "networks")
	require.NoError(t, err)
	require.NoError(t, network.Set("label", "public"))
	_, err = svc.Save(ctx, scope, network)
	require.NoError(t, err)

	reloaded, err := svc.Get(ctx, svc.OpenScope(ctx), "networks", network.ID())
	require.NoError(t, err)
	label, err := reloaded.Get("label")
	require.NoError(t, err)
	require.Equal(t, "public", label)
}
