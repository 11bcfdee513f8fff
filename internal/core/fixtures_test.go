package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"romekv/internal/entitymodel"
	"romekv/internal/infra/persistence/memory"
	"romekv/internal/registry"
	"romekv/pkg/domain"
)

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

// testRegistry returns the reference models plus a self-referencing Foo
// type used by graph tests.
func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := entitymodel.Default()
	require.NoError(t, err)
	foo, err := domain.NewSchema("Foo", "foos", []domain.FieldSpec{
		{Name: "name", Kind: domain.KindString},
		{Name: "parent_id", Kind: domain.KindInt},
		{Name: "peer", Kind: domain.KindRef, RefType: "foos"},
		{Name: "tags", Kind: domain.KindList},
	}, []domain.RelationshipDescriptor{
		{Name: "children", LocalKey: "id", RemoteType: "foos", RemoteKey: "parent_id", Cardinality: domain.CardinalityMany},
		{Name: "parent", LocalKey: "parent_id", RemoteType: "foos", RemoteKey: "id", Cardinality: domain.CardinalityOne},
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(foo))
	return reg
}

type fixture struct {
	svc    *Service
	driver *countingDriver
	store  *memory.Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memory.NewStore()
	driver := &countingDriver{Driver: store}
	base := []Option{WithLogger(nil), WithClock(ClockFunc(func() time.Time { return fixedNow }))}
	svc, err := NewService(driver, testRegistry(t), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return &fixture{svc: svc, driver: driver, store: store}
}

// build returns an unsaved entity with the given fields.
func (f *fixture) build(t *testing.T, scope *Scope, typ string, fields map[string]any) *Entity {
	t.Helper()
	e, err := f.svc.New(scope, typ)
	require.NoError(t, err)
	for name, v := range fields {
		require.NoError(t, e.Set(name, v))
	}
	return e
}

// stored reads a record straight from the backing store.
func (f *fixture) stored(t *testing.T, typ string, id int64) domain.Record {
	t.Helper()
	rec, err := f.store.Get(context.Background(), typ, id)
	require.NoError(t, err)
	return rec
}

// countingDriver counts reads and can be told to fail writes.
type countingDriver struct {
	domain.Driver

	mu       sync.Mutex
	gets     int
	puts     int
	failPuts map[domain.EntityKey]error
}

func (d *countingDriver) Get(ctx context.Context, typ string, id int64) (domain.Record, error) {
	d.mu.Lock()
	d.gets++
	d.mu.Unlock()
	return d.Driver.Get(ctx, typ, id)
}

func (d *countingDriver) Put(ctx context.Context, typ string, id int64, rec domain.Record) error {
	d.mu.Lock()
	d.puts++
	err := d.failPuts[domain.NewKey(typ, id)]
	d.mu.Unlock()
	if err != nil {
		return err
	}
	return d.Driver.Put(ctx, typ, id, rec)
}

func (d *countingDriver) failPut(typ string, id int64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failPuts == nil {
		d.failPuts = make(map[domain.EntityKey]error)
	}
	d.failPuts[domain.NewKey(typ, id)] = err
}

func (d *countingDriver) counts() (gets, puts int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gets, d.puts
}

var errInjected = errors.New("injected write failure")

// failingQuerier fails every lookup.
type failingQuerier struct{ calls int }

func (q *failingQuerier) Find(context.Context, *Scope, string, ...Filter) ([]*Entity, error) {
	q.calls++
	return nil, errors.New("query backend unavailable")
}
