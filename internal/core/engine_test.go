package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"romekv/pkg/domain"
)

func TestSaveReportsPartialFailureAndWritesSiblings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := f.svc.OpenScope(ctx)

	network := f.build(t, scope, "networks", map[string]any{"label": "public"})
	ips := []*Entity{
		f.build(t, scope, "fixed_ips", map[string]any{"address": "10.0.0.2"}),
		f.build(t, scope, "fixed_ips", map[string]any{"address": "10.0.0.3"}),
		f.build(t, scope, "fixed_ips", map[string]any{"address": "10.0.0.4"}),
	}
	require.NoError(t, network.Set("fixed_ips", ips))
	f.driver.failPut("fixed_ips", 2, errInjected)

	report, err := f.svc.Save(ctx, scope, network)
	var partial *domain.PersistPartialFailureError
	require.ErrorAs(t, err, &partial)
	require.ErrorIs(t, err, errInjected)
	require.Len(t, partial.Failed, 1)
	require.Equal(t, domain.NewKey("fixed_ips", 2), partial.Failed[0].Key)
	require.Equal(t, network.Key(), partial.Root)
	require.Equal(t, 3, report.Count(domain.StatePersisted))
	require.Equal(t, 1, report.Count(domain.StateFailed))

	for _, id := range []int64{1, 3} {
		rec := f.stored(t, "fixed_ips", id)
		require.Equal(t, network.ID(), rec["network_id"])
	}
	_, err = f.store.Get(ctx, "fixed_ips", 2)
	require.ErrorIs(t, err, domain.ErrNotFound)
	keys, err := f.store.Keys(ctx, "fixed_ips")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, keys)
	_, cached := scope.Lookup(domain.NewKey("fixed_ips", 2))
	require.False(t, cached)
}

func TestSaveRootKeyBookingFailureAborts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	broken, err := NewService(bookingFailsDriver{f.store}, testRegistry(t), WithLogger(nil))
	require.NoError(t, err)
	scope := broken.OpenScope(ctx)

	svc, err := broken.New(scope, "services")
	require.NoError(t, err)
	require.NoError(t, svc.Set("host", "orion-1"))
	report, err := broken.Save(ctx, scope, svc)
	require.ErrorContains(t, err, "counter unavailable")
	require.Empty(t, report.Records)
	require.Equal(t, int64(0), svc.ID())
	require.Zero(t, scope.Cache().Len())
}

func TestNestedBookingFailureLeavesNoDanglingReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	flaky := &flakyBookingDriver{Driver: f.store, failType: "foos", allowed: 1}
	svc, err := NewService(flaky, testRegistry(t), WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	scope := svc.OpenScope(ctx)

	root, err := svc.New(scope, "foos")
	require.NoError(t, err)
	require.NoError(t, root.Set("name", "root"))
	peer, err := svc.New(scope, "foos")
	require.NoError(t, err)
	require.NoError(t, peer.Set("name", "peer"))
	require.NoError(t, root.Set("peer", peer))

	report, err := svc.Save(ctx, scope, root)
	var partial *domain.PersistPartialFailureError
	require.ErrorAs(t, err, &partial)
	require.ErrorContains(t, err, "counter unavailable")
	require.Equal(t, 1, report.Count(domain.StatePersisted))
	require.Equal(t, 1, report.Count(domain.StateFailed))
	require.Equal(t, int64(1), root.ID())
	require.Equal(t, int64(0), peer.ID())

	stored := f.stored(t, "foos", 1)
	require.Equal(t, "root", stored["name"])
	_, hasPeer := stored["peer"]
	require.False(t, hasPeer, "stored record must not reference an unbooked id: %v", stored)
	keys, err := f.store.Keys(ctx, "foos")
	require.NoError(t, err)
	require.Equal(t, []int64{1}, keys)

	fresh := f.svc.OpenScope(ctx)
	reloaded, err := f.svc.Get(ctx, fresh, "foos", 1)
	require.NoError(t, err)
	v, err := reloaded.Get("peer")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestWithoutUnbookedStripsProvisionalTokens(t *testing.T) {
	booked := domain.Token(domain.NewKey("foos", 4))
	unbooked := domain.Token(domain.NewKey("foos", -2))
	rec := domain.Record{
		"id":    int64(1),
		"peer":  unbooked,
		"other": booked,
		"tags":  []any{"a", unbooked, booked},
		"meta":  map[string]any{"left": unbooked, "right": "x"},
	}

	out, dropped := withoutUnbooked(rec)
	require.Equal(t, []string{"meta", "peer", "tags"}, dropped)
	_, hasPeer := out["peer"]
	require.False(t, hasPeer)
	require.Equal(t, booked, out["other"])
	require.Equal(t, []any{"a", booked}, out["tags"])
	require.Equal(t, map[string]any{"right": "x"}, out["meta"])
	require.Equal(t, unbooked, rec["peer"], "input record must not change")

	clean, dropped := withoutUnbooked(domain.Record{"id": int64(2), "other": booked})
	require.Empty(t, dropped)
	require.Equal(t, domain.Record{"id": int64(2), "other": booked}, clean)
}

type bookingFailsDriver struct{ domain.Driver }

func (bookingFailsDriver) NextKey(context.Context, string) (int64, error) {
	return 0, errors.New("counter unavailable")
}

func TestLoadMissingRootPropagatesNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := f.svc.OpenScope(ctx)

	_, err := f.svc.Get(ctx, scope, "networks", 99)
	require.ErrorIs(t, err, domain.ErrNotFound)
	var nf domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, domain.NewKey("networks", 99), nf.Key)

	_, err = scope.Ref("networks", 99).Get("label")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Zero(t, scope.Cache().Len())
}

func TestLoadUnresolvedTypeReturnsPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Put(ctx, "ghosts", 1, domain.Record{"id": int64(1), "name": "boo"}))
	scope := f.svc.OpenScope(ctx)

	placeholder, err := scope.Ref("ghosts", 1).Load(ctx, nil)
	var unresolved domain.UnresolvedTypeError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, "ghosts", unresolved.Type)
	require.NotNil(t, placeholder)
	require.True(t, placeholder.Placeholder())
	require.Equal(t, int64(1), placeholder.ID())
	v, err := placeholder.Get("name")
	require.NoError(t, err)
	require.Nil(t, v)
	require.ErrorAs(t, placeholder.Set("name", "x"), &unresolved)

	_, err = f.svc.Save(ctx, scope, placeholder)
	require.ErrorAs(t, err, &unresolved)
	_, err = f.svc.New(scope, "ghosts")
	require.ErrorAs(t, err, &unresolved)
}

func TestUnreadableNestedFieldDegradesToAbsent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.Put(ctx, "services", 1, domain.Record{
		"id":         int64(1),
		"host":       "orion-1",
		"topic":      int64(12),
		"deleted_at": map[string]any{"$time": "yesterday"},
	}))
	scope := f.svc.OpenScope(ctx)

	svc, err := f.svc.Get(ctx, scope, "services", 1)
	require.NoError(t, err)
	require.True(t, svc.Has("host"))
	require.False(t, svc.Has("topic"))
	require.False(t, svc.Has("deleted_at"))
	v, err := svc.Get("topic")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestRelationshipLookupFailureDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	querier := &failingQuerier{}
	f := newFixture(t, WithQuerier(querier))
	require.NoError(t, f.store.Put(ctx, "networks", 1, domain.Record{"id": int64(1)}))
	scope := f.svc.OpenScope(ctx)

	network, err := f.svc.Get(ctx, scope, "networks", 1)
	require.NoError(t, err)
	ips, err := network.Related(ctx, "fixed_ips")
	require.NoError(t, err)
	require.Empty(t, ips)

	slot, err := network.Get("fixed_ips")
	require.NoError(t, err)
	proxy, ok := slot.(*LazyCollection)
	require.True(t, ok)
	require.False(t, proxy.Resolved())
	require.Equal(t, 0, proxy.Len(ctx))
	require.Equal(t, 2, querier.calls)
}

func TestRelationshipWithoutLocalKeySkipsQuery(t *testing.T) {
	ctx := context.Background()
	querier := &failingQuerier{}
	f := newFixture(t, WithQuerier(querier))
	require.NoError(t, f.store.Put(ctx, "fixed_ips", 1, domain.Record{"id": int64(1), "address": "10.0.0.2"}))
	scope := f.svc.OpenScope(ctx)

	ip, err := f.svc.Get(ctx, scope, "fixed_ips", 1)
	require.NoError(t, err)
	instance, err := ip.Related(ctx, "instance")
	require.NoError(t, err)
	require.Empty(t, instance)
	network, err := ip.Related(ctx, "network")
	require.NoError(t, err)
	require.Empty(t, network)
	require.Zero(t, querier.calls)
}

func TestCollectionCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := f.svc.OpenScope(ctx)
	network := f.build(t, scope, "networks", map[string]any{"label": "public"})
	_, err := f.svc.Save(ctx, scope, network)
	require.NoError(t, err)

	slot, err := network.Get("fixed_ips")
	require.NoError(t, err)
	proxy, ok := slot.(*LazyCollection)
	require.True(t, ok)
	require.Equal(t, "network_id", proxy.Descriptor().RemoteKey)
	require.Equal(t, 0, proxy.Len(ctx))
	require.True(t, proxy.Resolved())

	ip := f.build(t, scope, "fixed_ips", map[string]any{"network_id": network.ID(), "address": "10.0.0.9"})
	_, err = f.svc.Save(ctx, scope, ip)
	require.NoError(t, err)
	require.Equal(t, 0, proxy.Len(ctx), "a resolved collection keeps its cached result")

	proxy.Invalidate()
	items := proxy.Entities(ctx)
	require.Len(t, items, 1)
	require.Same(t, ip, items[0])
}

// flakyBookingDriver books the first allowed keys of failType, then fails.
type flakyBookingDriver struct {
	domain.Driver

	mu       sync.Mutex
	failType string
	allowed  int
	booked   int
}

func (d *flakyBookingDriver) NextKey(ctx context.Context, typ string) (int64, error) {
	if typ == d.failType {
		d.mu.Lock()
		d.booked++
		over := d.booked > d.allowed
		d.mu.Unlock()
		if over {
			return 0, errors.New("counter unavailable")
		}
	}
	return d.Driver.NextKey(ctx, typ)
}
