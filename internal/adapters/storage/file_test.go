package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clinicdesk/session-gateway/internal/ports"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ports.ErrKeyNotFound) {
		t.Fatalf("missing key must return ErrKeyNotFound, got %v", err)
	}

	if err := store.Set(ctx, "clinic:user-record", []byte(`{"loginId":"dr.patel"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, "clinic:user-record")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"loginId":"dr.patel"}` {
		t.Fatalf("value lost in round trip: %s", got)
	}

	if err := store.Remove(ctx, "clinic:user-record"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.Get(ctx, "clinic:user-record"); !errors.Is(err, ports.ErrKeyNotFound) {
		t.Fatalf("removed key must be gone, got %v", err)
	}

	// Removing an absent key is a no-op.
	if err := store.Remove(ctx, "clinic:user-record"); err != nil {
		t.Fatalf("idempotent remove: %v", err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	first, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := first.Set(ctx, "clinic:session-id", []byte("sid-42")); err != nil {
		t.Fatalf("set: %v", err)
	}

	second, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}
	got, err := second.Get(ctx, "clinic:session-id")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(got) != "sid-42" {
		t.Fatalf("value did not survive reopen: %s", got)
	}
}

func TestFileStoreCorruptDocumentStartsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{this is not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("corrupt document must not fail open: %v", err)
	}
	if _, err := store.Get(context.Background(), "anything"); !errors.Is(err, ports.ErrKeyNotFound) {
		t.Fatalf("corrupt document must read as empty, got %v", err)
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	value := []byte("original")
	if err := store.Set(ctx, "k", value); err != nil {
		t.Fatalf("set: %v", err)
	}
	value[0] = 'X'

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "original" {
		t.Fatalf("store must copy values, got %s", got)
	}

	got[0] = 'Y'
	again, _ := store.Get(ctx, "k")
	if string(again) != "original" {
		t.Fatalf("returned slice must not alias the stored one")
	}
	if store.Len() != 1 {
		t.Fatalf("expected one key, got %d", store.Len())
	}
}
