package storage

import (
	"context"
	"errors"
	"sort"
	"testing"
)

func TestLocalStorage_PutGetDelete(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	ctx := context.Background()
	key := "snapshots/main.snap"
	content := []byte("hello world")

	etag, err := storage.Put(ctx, key, content)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if etag == "" {
		t.Error("expected non-empty ETag")
	}

	exists, err := storage.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	got, gotETag, err := storage.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}
	if gotETag != etag {
		t.Errorf("ETag mismatch: got %q, want %q", gotETag, etag)
	}

	if err := storage.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = storage.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists after delete failed: %v", err)
	}
	if exists {
		t.Error("expected object to not exist after delete")
	}

	if err := storage.Delete(ctx, key); err != nil {
		t.Errorf("deleting a missing object should succeed, got %v", err)
	}
}

func TestLocalStorage_GetMissing(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	_, _, err = storage.Get(context.Background(), "nope")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_ConditionalPut(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	first, err := storage.ConditionalPut(ctx, "obj", []byte("v1"), "")
	if err != nil {
		t.Fatalf("create with empty etag failed: %v", err)
	}

	if _, err := storage.ConditionalPut(ctx, "obj", []byte("v1b"), ""); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("creating an existing object should fail the precondition, got %v", err)
	}

	second, err := storage.ConditionalPut(ctx, "obj", []byte("v2"), first)
	if err != nil {
		t.Fatalf("update with matching etag failed: %v", err)
	}

	if _, err := storage.ConditionalPut(ctx, "obj", []byte("v3"), first); !errors.Is(err, ErrPreconditionFailed) {
		t.Errorf("stale etag should fail the precondition, got %v", err)
	}

	data, etag, err := storage.Get(ctx, "obj")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v2" || etag != second {
		t.Errorf("got %q (%s), want v2 (%s)", data, etag, second)
	}
}

func TestLocalStorage_List(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"a/1", "a/2", "b/1"} {
		if _, err := storage.Put(ctx, key, []byte(key)); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := storage.List(ctx, "a")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a/1" || keys[1] != "a/2" {
		t.Errorf("unexpected keys %v", keys)
	}

	keys, err = storage.List(ctx, "missing")
	if err != nil || len(keys) != 0 {
		t.Errorf("missing prefix should list nothing, got %v, %v", keys, err)
	}
}
