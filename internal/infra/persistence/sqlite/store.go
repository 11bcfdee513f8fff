// Package sqlite provides a SQLite-backed key-value driver. Every call goes
// straight to the database; nothing is cached in process.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"romekv/internal/entitymodel/sqlbundle"
	"romekv/pkg/domain"
)

var _ domain.Driver = (*Store)(nil)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "romekv.db"

// Store keeps records, key indexes and counters in three SQLite tables.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating when needed) the database at path and applies the
// driver DDL.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps counter upserts atomic.
	db.SetMaxOpenConns(1)
	for _, stmt := range sqlbundle.SplitStatements(sqlbundle.SQLite()) {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute ddl: %w", err)
		}
	}
	return &Store{db: db, path: path}, nil
}

func rowKey(typ string, id int64) string {
	return typ + "/" + strconv.FormatInt(id, 10)
}

// Get implements domain.Driver.
func (s *Store) Get(ctx context.Context, typ string, id int64) (domain.Record, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM records WHERE rkey = ?`, rowKey(typ, id)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError{Key: domain.NewKey(typ, id)}
	}
	if err != nil {
		return nil, fmt.Errorf("select record: %w", err)
	}
	rec, err := domain.DecodeRecord([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decode %s %d: %w", typ, id, err)
	}
	return rec, nil
}

// Put implements domain.Driver.
func (s *Store) Put(ctx context.Context, typ string, id int64, rec domain.Record) error {
	payload, err := domain.EncodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records(rkey,type,id,payload) VALUES(?,?,?,?) ON CONFLICT(rkey) DO UPDATE SET payload=excluded.payload`,
		rowKey(typ, id), typ, id, string(payload))
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

// NextKey implements domain.Driver with a single upsert, so concurrent
// processes sharing the file never receive the same id.
func (s *Store) NextKey(ctx context.Context, typ string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO key_counters(type,last_id) VALUES(?,1) ON CONFLICT(type) DO UPDATE SET last_id=key_counters.last_id+1 RETURNING last_id`,
		typ).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next key: %w", err)
	}
	return id, nil
}

// AddKey implements domain.Driver.
func (s *Store) AddKey(ctx context.Context, typ string, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO record_keys(rkey,type,id) VALUES(?,?,?) ON CONFLICT(rkey) DO NOTHING`,
		rowKey(typ, id), typ, id); err != nil {
		return fmt.Errorf("add key: %w", err)
	}
	return nil
}

// RemoveKey implements domain.Driver.
func (s *Store) RemoveKey(ctx context.Context, typ string, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM record_keys WHERE rkey = ?`, rowKey(typ, id)); err != nil {
		return fmt.Errorf("remove key: %w", err)
	}
	return nil
}

// Keys implements domain.Driver.
func (s *Store) Keys(ctx context.Context, typ string) (ids []int64, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM record_keys WHERE type = ? ORDER BY id`, typ)
	if err != nil {
		return nil, fmt.Errorf("select keys: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return ids, nil
}

// Close implements domain.Driver.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
