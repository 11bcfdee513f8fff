// Package objectstore provides a key-value driver on top of a blob store.
// Each record is one JSON object; the key index and counters are small
// objects next to it:
//
//	<type>/records/<id:020d>.json
//	<type>/keys/<id:020d>
//	<type>/counter
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"romekv/internal/blob"
	"romekv/pkg/domain"
)

var _ domain.Driver = (*Store)(nil)

const contentTypeJSON = "application/json"

// Store maps the driver contract onto blob operations. Counters are
// serialized by a process mutex; sharing a bucket between processes can
// hand out duplicate ids.
type Store struct {
	blobs blob.Store
	mu    sync.Mutex
}

// New wraps blobs.
func New(blobs blob.Store) *Store {
	return &Store{blobs: blobs}
}

// Blobs returns the underlying blob store.
func (s *Store) Blobs() blob.Store { return s.blobs }

func recordKey(typ string, id int64) string {
	return fmt.Sprintf("%s/records/%020d.json", typ, id)
}

func indexPrefix(typ string) string { return typ + "/keys/" }

func indexKey(typ string, id int64) string {
	return fmt.Sprintf("%s%020d", indexPrefix(typ), id)
}

func counterKey(typ string) string { return typ + "/counter" }

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	_, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// Get implements domain.Driver.
func (s *Store) Get(ctx context.Context, typ string, id int64) (domain.Record, error) {
	b, err := s.read(ctx, recordKey(typ, id))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, domain.NotFoundError{Key: domain.NewKey(typ, id)}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s %d: %w", typ, id, err)
	}
	rec, err := domain.DecodeRecord(b)
	if err != nil {
		return nil, fmt.Errorf("decode %s %d: %w", typ, id, err)
	}
	return rec, nil
}

// Put implements domain.Driver.
func (s *Store) Put(ctx context.Context, typ string, id int64, rec domain.Record) error {
	b, err := domain.EncodeRecord(rec)
	if err != nil {
		return err
	}
	if _, err := s.blobs.Put(ctx, recordKey(typ, id), bytes.NewReader(b), blob.PutOptions{ContentType: contentTypeJSON}); err != nil {
		return fmt.Errorf("write %s %d: %w", typ, id, err)
	}
	return nil
}

// NextKey implements domain.Driver.
func (s *Store) NextKey(ctx context.Context, typ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last int64
	b, err := s.read(ctx, counterKey(typ))
	switch {
	case errors.Is(err, blob.ErrNotFound):
	case err != nil:
		return 0, fmt.Errorf("read counter %s: %w", typ, err)
	default:
		last, err = strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse counter %s: %w", typ, err)
		}
	}
	next := last + 1
	if _, err := s.blobs.Put(ctx, counterKey(typ), strings.NewReader(strconv.FormatInt(next, 10)), blob.PutOptions{ContentType: "text/plain"}); err != nil {
		return 0, fmt.Errorf("write counter %s: %w", typ, err)
	}
	return next, nil
}

// AddKey implements domain.Driver.
func (s *Store) AddKey(ctx context.Context, typ string, id int64) error {
	if _, err := s.blobs.Put(ctx, indexKey(typ, id), bytes.NewReader(nil), blob.PutOptions{}); err != nil {
		return fmt.Errorf("add key %s %d: %w", typ, id, err)
	}
	return nil
}

// RemoveKey implements domain.Driver.
func (s *Store) RemoveKey(ctx context.Context, typ string, id int64) error {
	if _, err := s.blobs.Delete(ctx, indexKey(typ, id)); err != nil {
		return fmt.Errorf("remove key %s %d: %w", typ, id, err)
	}
	return nil
}

// Keys implements domain.Driver.
func (s *Store) Keys(ctx context.Context, typ string) ([]int64, error) {
	prefix := indexPrefix(typ)
	infos, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys %s: %w", typ, err)
	}
	ids := make([]int64, 0, len(infos))
	for _, info := range infos {
		id, err := strconv.ParseInt(strings.TrimPrefix(info.Key, prefix), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse key %q: %w", info.Key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close implements domain.Driver; blob stores hold no driver-owned resources.
func (s *Store) Close() error { return nil }
