package fs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"romekv/internal/blob/core"
)

func TestSanitizeKey(t *testing.T) {
	cases := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "a/b.json", want: "a/b.json"},
		{key: "a//b", want: "a/b"},
		{key: "", wantErr: true},
		{key: "   ", wantErr: true},
		{key: "../escape", wantErr: true},
		{key: "/abs", wantErr: true},
		{key: "x.meta", wantErr: true},
	}
	for _, tc := range cases {
		got, err := sanitizeKey(tc.key)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("sanitizeKey(%q): expected error", tc.key)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("sanitizeKey(%q) = %q, %v; want %q", tc.key, got, err, tc.want)
		}
	}
}

func TestPutWritesSidecarAndLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	info, err := store.Put(context.Background(), "services/records/5.json", bytes.NewReader([]byte(`{"id":5}`)), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 8 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	dir := filepath.Join(root, "services", "records")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected blob and sidecar only, got %d entries", len(entries))
	}
	if store.Root() != root {
		t.Fatalf("unexpected root %s", store.Root())
	}
}
