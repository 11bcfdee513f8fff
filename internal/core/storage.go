package core

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"romekv/internal/blob"
	"romekv/internal/infra/persistence/leveldb"
	"romekv/internal/infra/persistence/memory"
	"romekv/internal/infra/persistence/objectstore"
	"romekv/internal/infra/persistence/postgres"
	"romekv/internal/infra/persistence/sqlite"
	"romekv/pkg/domain"
)

// StorageDriver identifies a concrete key-value driver implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageLevelDB  StorageDriver = "leveldb"  // embedded leveldb directory
	StorageBlob     StorageDriver = "blob"     // JSON objects in a blob store
)

// OpenDriver selects a driver using environment variables.
// Defaults to sqlite when unset.
//
//	ROMEKV_STORAGE_DRIVER: memory|sqlite|postgres|leveldb|blob (default sqlite)
//	ROMEKV_SQLITE_PATH: path to sqlite file (default ./romekv.db)
//	ROMEKV_POSTGRES_DSN: postgres DSN when driver=postgres
//	ROMEKV_LEVELDB_PATH: leveldb directory (default ./romekv.ldb)
//
// The blob driver opens its blob store through blob.Open and the
// ROMEKV_BLOB_* variables.
func OpenDriver(ctx context.Context) (domain.Driver, error) {
	driver := os.Getenv("ROMEKV_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(os.Getenv("ROMEKV_SQLITE_PATH"))
	case StoragePostgres:
		return postgres.NewStore(ctx, os.Getenv("ROMEKV_POSTGRES_DSN"))
	case StorageLevelDB:
		return leveldb.NewStore(os.Getenv("ROMEKV_LEVELDB_PATH"))
	case StorageBlob:
		blobs, err := blob.Open(ctx)
		if err != nil {
			return nil, fmt.Errorf("open blob store: %w", err)
		}
		return objectstore.New(blobs), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// EnvOptions returns the service options configured through the environment.
//
//	ROMEKV_SCOPE_LIMIT: maximum number of open request scopes (default 1024)
func EnvOptions() ([]Option, error) {
	var opts []Option
	if raw := os.Getenv("ROMEKV_SCOPE_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid ROMEKV_SCOPE_LIMIT %q", raw)
		}
		opts = append(opts, WithScopeLimit(n))
	}
	return opts, nil
}
