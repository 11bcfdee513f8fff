package objectstore

import (
	"context"
	"io"
	"testing"

	"romekv/internal/blob"
	"romekv/internal/infra/persistence/drivertest"
	"romekv/pkg/domain"
)

func TestStoreContractOnMemoryBlobs(t *testing.T) {
	drivertest.Run(t, func(*testing.T) domain.Driver { return New(blob.NewMemory()) })
}

func TestStoreContractOnFilesystemBlobs(t *testing.T) {
	drivertest.Run(t, func(t *testing.T) domain.Driver {
		fs, err := blob.NewFilesystem(t.TempDir())
		if err != nil {
			t.Fatalf("filesystem: %v", err)
		}
		return New(fs)
	})
}

func TestStoreContractOnS3Blobs(t *testing.T) {
	drivertest.Run(t, func(*testing.T) domain.Driver { return New(blob.NewMockS3ForTests()) })
}

func TestObjectLayout(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	store := New(blobs)
	id, err := store.NextKey(ctx, "services")
	if err != nil {
		t.Fatalf("next key: %v", err)
	}
	if err := store.Put(ctx, "services", id, domain.Record{"id": id}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.AddKey(ctx, "services", id); err != nil {
		t.Fatalf("add key: %v", err)
	}
	infos, err := blobs.List(ctx, "services/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{
		"services/counter",
		"services/keys/00000000000000000001",
		"services/records/00000000000000000001.json",
	}
	if len(infos) != len(want) {
		t.Fatalf("unexpected objects %+v", infos)
	}
	for i, key := range want {
		if infos[i].Key != key {
			t.Fatalf("object %d: want %s got %s", i, key, infos[i].Key)
		}
	}
	_, rc, err := blobs.Get(ctx, "services/counter")
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	defer func() { _ = rc.Close() }()
	b, _ := io.ReadAll(rc)
	if string(b) != "1" {
		t.Fatalf("unexpected counter body %q", b)
	}
	if store.Blobs() != blobs {
		t.Fatalf("expected wrapped blob store")
	}
}
