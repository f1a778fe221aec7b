package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore("http://localhost:8080/assets")
	ctx := context.Background()

	payload := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p'}
	if err := store.Put(ctx, "videos/abc123.mp4", payload, "video/mp4"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, mime, err := store.Get(ctx, "videos/abc123.mp4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Get returned %v, want %v", got, payload)
	}
	if mime != "video/mp4" {
		t.Fatalf("mime = %q", mime)
	}

	url, err := store.URL(ctx, "videos/abc123.mp4")
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if url != "http://localhost:8080/assets/videos/abc123.mp4" {
		t.Fatalf("URL = %q", url)
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := NewMemoryStore("http://localhost:8080/assets")

	if _, _, err := store.Get(context.Background(), "videos/nope.mp4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
	if _, err := store.URL(context.Background(), "videos/nope.mp4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("URL error = %v, want ErrNotFound", err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/assets")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Put(context.Background(), "../escape.mp4", []byte("x"), "video/mp4"); err == nil {
		t.Fatalf("expected error for traversal key")
	}
}
