// Package postgres provides a Postgres-backed key-value driver. Reads are
// served from an in-memory copy hydrated at startup; every write goes to
// Postgres first and reaches the copy only once the database accepted it.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"romekv/internal/entitymodel/sqlbundle"
	"romekv/internal/infra/persistence/memory"
	"romekv/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the driver interface.
var _ domain.Driver = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when NewStore receives an empty DSN.
	DefaultDSN = "postgres://localhost/romekv?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store writes through to Postgres while serving reads from memory. It
// assumes it is the only writer of its tables.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to DefaultDSN).
// It applies the driver DDL and hydrates the in-memory copy from the tables.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyDDL(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applyDDL(ctx context.Context, db execer) error {
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.Postgres()) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func rowKey(typ string, id int64) string {
	return typ + "/" + strconv.FormatInt(id, 10)
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{
		Records:  make(map[string]map[int64]json.RawMessage),
		Keys:     make(map[string][]int64),
		Counters: make(map[string]int64),
	}
	err := scanAll(ctx, db, `SELECT rkey, type, id, payload FROM records`, func(rows *sql.Rows) error {
		var rkey, typ string
		var id int64
		var payload []byte
		if err := rows.Scan(&rkey, &typ, &id, &payload); err != nil {
			return err
		}
		if snapshot.Records[typ] == nil {
			snapshot.Records[typ] = make(map[int64]json.RawMessage)
		}
		snapshot.Records[typ][id] = json.RawMessage(payload)
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load records: %w", err)
	}
	err = scanAll(ctx, db, `SELECT rkey, type, id FROM record_keys`, func(rows *sql.Rows) error {
		var rkey, typ string
		var id int64
		if err := rows.Scan(&rkey, &typ, &id); err != nil {
			return err
		}
		snapshot.Keys[typ] = append(snapshot.Keys[typ], id)
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load keys: %w", err)
	}
	err = scanAll(ctx, db, `SELECT type, last_id FROM key_counters`, func(rows *sql.Rows) error {
		var typ string
		var last int64
		if err := rows.Scan(&typ, &last); err != nil {
			return err
		}
		snapshot.Counters[typ] = last
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load counters: %w", err)
	}
	return snapshot, nil
}

func scanAll(ctx context.Context, db *sql.DB, query string, fn func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Put implements domain.Driver.
func (s *Store) Put(ctx context.Context, typ string, id int64, rec domain.Record) error {
	payload, err := domain.EncodeRecord(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO records(rkey,type,id,payload) VALUES($1,$2,$3,$4) ON CONFLICT(rkey) DO UPDATE SET payload=EXCLUDED.payload`,
		rowKey(typ, id), typ, id, string(payload)); err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return s.Store.Put(ctx, typ, id, rec)
}

// NextKey implements domain.Driver. The booked id is persisted before it is
// returned; an id whose write failed is never handed out again.
func (s *Store) NextKey(ctx context.Context, typ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.Store.NextKey(ctx, typ)
	if err != nil {
		return 0, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO key_counters(type,last_id) VALUES($1,$2) ON CONFLICT(type) DO UPDATE SET last_id=EXCLUDED.last_id`,
		typ, id); err != nil {
		return 0, fmt.Errorf("upsert counter: %w", err)
	}
	return id, nil
}

// AddKey implements domain.Driver.
func (s *Store) AddKey(ctx context.Context, typ string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO record_keys(rkey,type,id) VALUES($1,$2,$3) ON CONFLICT(rkey) DO NOTHING`,
		rowKey(typ, id), typ, id); err != nil {
		return fmt.Errorf("insert key: %w", err)
	}
	return s.Store.AddKey(ctx, typ, id)
}

// RemoveKey implements domain.Driver.
func (s *Store) RemoveKey(ctx context.Context, typ string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM record_keys WHERE rkey = $1`, rowKey(typ, id)); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return s.Store.RemoveKey(ctx, typ, id)
}

// Close implements domain.Driver.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
