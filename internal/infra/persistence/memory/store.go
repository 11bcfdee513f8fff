// Package memory provides an in-memory implementation of the key-value driver
// used for tests and ephemeral environments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"romekv/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the driver interface.
var _ domain.Driver = (*Store)(nil)

type memoryState struct {
	records  map[string]map[int64][]byte
	keys     map[string]map[int64]struct{}
	counters map[string]int64
}

// Snapshot captures a point-in-time copy of the store state. Records are kept
// in their encoded JSON form.
type Snapshot struct {
	Records  map[string]map[int64]json.RawMessage `json:"records"`
	Keys     map[string][]int64                   `json:"keys"`
	Counters map[string]int64                     `json:"counters"`
}

func newMemoryState() memoryState {
	return memoryState{
		records:  make(map[string]map[int64][]byte),
		keys:     make(map[string]map[int64]struct{}),
		counters: make(map[string]int64),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Records:  make(map[string]map[int64]json.RawMessage, len(state.records)),
		Keys:     make(map[string][]int64, len(state.keys)),
		Counters: make(map[string]int64, len(state.counters)),
	}
	for typ, recs := range state.records {
		out := make(map[int64]json.RawMessage, len(recs))
		for id, b := range recs {
			out[id] = append(json.RawMessage(nil), b...)
		}
		s.Records[typ] = out
	}
	for typ, ids := range state.keys {
		s.Keys[typ] = sortedIDs(ids)
	}
	for typ, n := range state.counters {
		s.Counters[typ] = n
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for typ, recs := range s.Records {
		m := make(map[int64][]byte, len(recs))
		for id, b := range recs {
			m[id] = append([]byte(nil), b...)
		}
		state.records[typ] = m
	}
	for typ, ids := range s.Keys {
		set := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		state.keys[typ] = set
	}
	for typ, n := range s.Counters {
		state.counters[typ] = n
	}
	return state
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Store keeps encoded records, key indexes and counters in process memory.
// Every read decodes a fresh copy, so callers never share state with the store.
type Store struct {
	mu    sync.RWMutex
	state memoryState
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newMemoryState()}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	s.state = memoryStateFromSnapshot(snapshot)
	s.mu.Unlock()
}

// Get implements domain.Driver.
func (s *Store) Get(_ context.Context, typ string, id int64) (domain.Record, error) {
	s.mu.RLock()
	b, ok := s.state.records[typ][id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NotFoundError{Key: domain.NewKey(typ, id)}
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
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, ok := s.state.records[typ]
	if !ok {
		recs = make(map[int64][]byte)
		s.state.records[typ] = recs
	}
	recs[id] = b
	return nil
}

// NextKey implements domain.Driver.
func (s *Store) NextKey(_ context.Context, typ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.counters[typ]++
	return s.state.counters[typ], nil
}

// AddKey implements domain.Driver.
func (s *Store) AddKey(_ context.Context, typ string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.state.keys[typ]
	if !ok {
		set = make(map[int64]struct{})
		s.state.keys[typ] = set
	}
	set[id] = struct{}{}
	return nil
}

// RemoveKey implements domain.Driver.
func (s *Store) RemoveKey(_ context.Context, typ string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.keys[typ], id)
	return nil
}

// Keys implements domain.Driver.
func (s *Store) Keys(_ context.Context, typ string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedIDs(s.state.keys[typ]), nil
}

// Types lists every type tag with stored records or indexed keys.
func (s *Store) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for typ := range s.state.records {
		seen[typ] = struct{}{}
	}
	for typ := range s.state.keys {
		seen[typ] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for typ := range seen {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Close implements domain.Driver; the memory store holds no resources.
func (s *Store) Close() error { return nil }
