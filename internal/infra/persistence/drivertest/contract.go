// Package drivertest holds the behavioural contract every key-value driver
// must satisfy. Driver packages call Run from their own tests.
package drivertest

import (
	"context"
	"errors"
	"testing"
	"time"

	"romekv/pkg/domain"
)

// Opener returns a fresh, empty driver. Run closes it.
type Opener func(t *testing.T) domain.Driver

// Run exercises the driver contract against drivers produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(t *testing.T, d domain.Driver)
	}{
		{"GetMissing", testGetMissing},
		{"PutGetRoundTrip", testPutGetRoundTrip},
		{"PutReplaces", testPutReplaces},
		{"NextKeyIncreases", testNextKeyIncreases},
		{"KeyIndex", testKeyIndex},
		{"ReturnedRecordsAreCopies", testReturnedRecordsAreCopies},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := open(t)
			t.Cleanup(func() {
				if err := d.Close(); err != nil {
					t.Errorf("close: %v", err)
				}
			})
			tc.fn(t, d)
		})
	}
}

func testGetMissing(t *testing.T, d domain.Driver) {
	_, err := d.Get(context.Background(), "services", 42)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Key != domain.NewKey("services", 42) {
		t.Fatalf("expected NotFoundError for services 42, got %#v", err)
	}
}

func testPutGetRoundTrip(t *testing.T, d domain.Driver) {
	ctx := context.Background()
	when := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	rec := domain.Record{
		"id":           int64(5),
		"host":         "orion-3",
		"report_count": int64(7),
		"load":         0.25,
		"disabled":     false,
		"deleted_at":   nil,
		"created_at":   domain.EncodeTime(when),
		"network":      domain.Token(domain.NewKey("networks", 1)),
		"tags":         []any{"a", int64(1)},
	}
	if err := d.Put(ctx, "services", 5, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := d.Get(ctx, "services", 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for k, want := range rec {
		if !domain.ValuesEqual(got[k], want) {
			t.Fatalf("field %s: want %#v got %#v", k, want, got[k])
		}
	}
	if _, ok := got["report_count"].(int64); !ok {
		t.Fatalf("expected integral values to decode as int64, got %T", got["report_count"])
	}
	if key, ok := domain.AsToken(got["network"]); !ok || key != domain.NewKey("networks", 1) {
		t.Fatalf("expected reference token, got %#v", got["network"])
	}
	decoded, ok, err := domain.DecodeTime(got["created_at"])
	if err != nil || !ok || !decoded.Equal(when) {
		t.Fatalf("expected time marker round trip, got %v %v %v", decoded, ok, err)
	}
}

func testPutReplaces(t *testing.T, d domain.Driver) {
	ctx := context.Background()
	if err := d.Put(ctx, "services", 1, domain.Record{"id": int64(1), "host": "a", "topic": "t"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := d.Put(ctx, "services", 1, domain.Record{"id": int64(1), "host": "b"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := d.Get(ctx, "services", 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["host"] != "b" {
		t.Fatalf("expected replaced host, got %v", got["host"])
	}
	if _, ok := got["topic"]; ok {
		t.Fatalf("expected put to replace the whole record, got %v", got)
	}
}

func testNextKeyIncreases(t *testing.T, d domain.Driver) {
	ctx := context.Background()
	var last int64
	for i := 0; i < 5; i++ {
		id, err := d.NextKey(ctx, "fixed_ips")
		if err != nil {
			t.Fatalf("next key: %v", err)
		}
		if id <= last {
			t.Fatalf("expected increasing keys, got %d after %d", id, last)
		}
		last = id
	}
	other, err := d.NextKey(ctx, "networks")
	if err != nil {
		t.Fatalf("next key: %v", err)
	}
	if other != 1 {
		t.Fatalf("expected independent counter per type starting at 1, got %d", other)
	}
}

func testKeyIndex(t *testing.T, d domain.Driver) {
	ctx := context.Background()
	for _, id := range []int64{12, 3, 7} {
		if err := d.AddKey(ctx, "networks", id); err != nil {
			t.Fatalf("add key: %v", err)
		}
	}
	if err := d.AddKey(ctx, "networks", 7); err != nil {
		t.Fatalf("add duplicate key: %v", err)
	}
	keys, err := d.Keys(ctx, "networks")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if !equalIDs(keys, []int64{3, 7, 12}) {
		t.Fatalf("expected ascending unique keys, got %v", keys)
	}
	if err := d.RemoveKey(ctx, "networks", 7); err != nil {
		t.Fatalf("remove key: %v", err)
	}
	if err := d.RemoveKey(ctx, "networks", 99); err != nil {
		t.Fatalf("remove absent key: %v", err)
	}
	keys, err = d.Keys(ctx, "networks")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if !equalIDs(keys, []int64{3, 12}) {
		t.Fatalf("expected 7 removed, got %v", keys)
	}
	empty, err := d.Keys(ctx, "unknown")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected no keys for unknown type, got %v %v", empty, err)
	}
}

func testReturnedRecordsAreCopies(t *testing.T, d domain.Driver) {
	ctx := context.Background()
	rec := domain.Record{"id": int64(2), "tags": []any{"x"}}
	if err := d.Put(ctx, "networks", 2, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	rec["tags"].([]any)[0] = "mutated"
	got, err := d.Get(ctx, "networks", 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got["label"] = "local"
	again, err := d.Get(ctx, "networks", 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := again["label"]; ok {
		t.Fatalf("expected driver state isolated from returned records")
	}
	if tags := again["tags"].([]any); tags[0] != "x" {
		t.Fatalf("expected driver state isolated from the caller's record, got %v", tags)
	}
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
