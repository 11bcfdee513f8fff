package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"romekv/pkg/domain"
)

func TestNetworkFixedIpsResolveThroughIdentityCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	writer := f.svc.OpenScope(ctx)
	network := f.build(t, writer, "networks", map[string]any{"id": 1, "label": "public"})
	_, err := f.svc.Save(ctx, writer, network)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		ip := f.build(t, writer, "fixed_ips", map[string]any{"network_id": 1, "address": fmt.Sprintf("10.0.0.%d", i+2)})
		_, err := f.svc.Save(ctx, writer, ip)
		require.NoError(t, err)
	}
	f.svc.CloseScope(writer)

	reader := f.svc.OpenScope(ctx)
	defer f.svc.CloseScope(reader)
	loaded, err := f.svc.Get(ctx, reader, "networks", 1)
	require.NoError(t, err)

	ips, err := loaded.Related(ctx, "fixed_ips")
	require.NoError(t, err)
	require.Len(t, ips, 4)
	for _, ip := range ips {
		v, err := ip.Get("network_id")
		require.NoError(t, err)
		require.Equal(t, int64(1), v)

		back, err := ip.Related(ctx, "network")
		require.NoError(t, err)
		require.Len(t, back, 1)
		require.Same(t, loaded, back[0])
	}
	direct, err := f.svc.Get(ctx, reader, "fixed_ips", ips[0].ID())
	require.NoError(t, err)
	require.Same(t, ips[0], direct)
}

func TestNestedNewRecordsReceiveDistinctIncreasingIds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := f.svc.OpenScope(ctx)

	root := f.build(t, scope, "foos", map[string]any{"name": "root"})
	children := []*Entity{
		f.build(t, scope, "foos", map[string]any{"name": "a"}),
		f.build(t, scope, "foos", map[string]any{"name": "b"}),
		f.build(t, scope, "foos", map[string]any{"name": "c"}),
	}
	require.NoError(t, root.Set("children", children))

	report, err := f.svc.Save(ctx, scope, root)
	require.NoError(t, err)
	require.Len(t, report.Records, 4)
	require.Equal(t, 4, report.Count(domain.StateNewWrite))

	seen := map[int64]bool{root.ID(): true}
	last := int64(0)
	for _, child := range children {
		id := child.ID()
		require.Greater(t, id, last)
		require.False(t, seen[id], "id %d issued twice", id)
		seen[id] = true
		last = id

		rec := f.stored(t, "foos", id)
		require.Equal(t, root.ID(), rec["parent_id"])
		cached, ok := scope.Lookup(child.Key())
		require.True(t, ok)
		require.Same(t, child, cached)
	}
	keys, err := f.store.Keys(ctx, "foos")
	require.NoError(t, err)
	require.Len(t, keys, 4)
}

func TestPartialUpdateKeepsUntouchedFields(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.svc.OpenScope(ctx)
	svc := f.build(t, first, "services", map[string]any{
		"id": 5, "host": "orion-3", "topic": "compute", "binary": "nova-compute", "report_count": 0,
	})
	_, err := f.svc.Save(ctx, first, svc)
	require.NoError(t, err)
	before := f.stored(t, "services", 5)

	second := f.svc.OpenScope(ctx)
	partial := f.build(t, second, "services", map[string]any{"id": 5, "report_count": 1})
	report, err := f.svc.Save(ctx, second, partial)
	require.NoError(t, err)
	res, ok := report.Result(domain.NewKey("services", 5))
	require.True(t, ok)
	require.Equal(t, domain.StateMerged, res.Resolution)
	require.Equal(t, domain.StatePersisted, res.State)

	after := f.stored(t, "services", 5)
	require.Equal(t, int64(1), after["report_count"])
	for _, field := range []string{"host", "topic", "binary", "created_at", "disabled"} {
		require.True(t, domain.ValuesEqual(before[field], after[field]), "field %s changed", field)
	}
}
