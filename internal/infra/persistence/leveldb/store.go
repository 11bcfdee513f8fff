// Package leveldb provides a key-value driver on an embedded LevelDB
// database. Keys are prefix encoded so that per-type key indexes iterate in
// ascending id order:
//
//	/record/<type>/<id:020d>  canonical JSON record
//	/key/<type>/<id:020d>     empty marker, present while indexed
//	/counter/<type>           last booked id, decimal
package leveldb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"romekv/pkg/domain"
)

var _ domain.Driver = (*Store)(nil)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "romekv.ldb"

// Store is a LevelDB-backed driver. Counter updates are serialized by a
// process mutex; LevelDB itself allows a single process per directory.
type Store struct {
	db *leveldb.DB
	mu sync.Mutex
}

// NewStore opens (creating when needed) the database directory at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := leveldb.OpenFile(path, &opt.Options{
		Filter: filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &Store{db: db}, nil
}

// NewMemoryStore opens a LevelDB instance on in-memory storage.
func NewMemoryStore() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &Store{db: db}, nil
}

func recordKey(typ string, id int64) []byte {
	return []byte(fmt.Sprintf("/record/%s/%020d", typ, id))
}

func indexPrefix(typ string) []byte {
	return []byte("/key/" + typ + "/")
}

func indexKey(typ string, id int64) []byte {
	return append(indexPrefix(typ), fmt.Sprintf("%020d", id)...)
}

func counterKey(typ string) []byte {
	return []byte("/counter/" + typ)
}

// Get implements domain.Driver.
func (s *Store) Get(_ context.Context, typ string, id int64) (domain.Record, error) {
	b, err := s.db.Get(recordKey(typ, id), nil)
	if errors.Is(err, lerrors.ErrNotFound) {
		return nil, domain.NotFoundError{Key: domain.NewKey(typ, id)}
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", typ, id, err)
	}
	rec, err := domain.DecodeRecord(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s %d: %w", typ, id, err)
	}
	return rec, nil
}

// Put implements domain.Driver.
func (s *Store) Put(_ context.Context, typ string, id int64, rec domain.Record) error {
	b, err := domain.EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.db.Put(recordKey(typ, id), b, nil); err != nil {
		return fmt.Errorf("put %s %d: %w", typ, id, err)
	}
	return nil
}

// NextKey implements domain.Driver. The new counter value is written with
// fsync before it is returned.
func (s *Store) NextKey(_ context.Context, typ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last int64
	b, err := s.db.Get(counterKey(typ), nil)
	switch {
	case errors.Is(err, lerrors.ErrNotFound):
	case err != nil:
		return 0, fmt.Errorf("read counter %s: %w", typ, err)
	default:
		last, err = strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse counter %s: %w", typ, err)
		}
	}
	next := last + 1
	if err := s.db.Put(counterKey(typ), []byte(strconv.FormatInt(next, 10)), &opt.WriteOptions{Sync: true}); err != nil {
		return 0, fmt.Errorf("write counter %s: %w", typ, err)
	}
	return next, nil
}

// AddKey implements domain.Driver.
func (s *Store) AddKey(_ context.Context, typ string, id int64) error {
	if err := s.db.Put(indexKey(typ, id), nil, nil); err != nil {
		return fmt.Errorf("add key %s %d: %w", typ, id, err)
	}
	return nil
}

// RemoveKey implements domain.Driver.
func (s *Store) RemoveKey(_ context.Context, typ string, id int64) error {
	if err := s.db.Delete(indexKey(typ, id), nil); err != nil {
		return fmt.Errorf("remove key %s %d: %w", typ, id, err)
	}
	return nil
}

// Keys implements domain.Driver. Negative ids are never indexed, so the
// zero-padded suffix sorts numerically.
func (s *Store) Keys(_ context.Context, typ string) ([]int64, error) {
	prefix := indexPrefix(typ)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var ids []int64
	for iter.Next() {
		suffix := strings.TrimPrefix(string(iter.Key()), string(prefix))
		id, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse key %q: %w", iter.Key(), err)
		}
		ids = append(ids, id)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate keys %s: %w", typ, err)
	}
	return ids, nil
}

// Close implements domain.Driver.
func (s *Store) Close() error { return s.db.Close() }
