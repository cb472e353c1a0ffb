package datalayer_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/glizzus/voice-rooms/internal/datalayer"
	"github.com/google/go-cmp/cmp"
)

func TestMemoryStorage(t *testing.T) {
	storage := datalayer.NewMemoryStorage()
	ctx := t.Context()

	if err := storage.Put(ctx, "b/2.json", strings.NewReader(`{"n":2}`), datalayer.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := storage.Put(ctx, "a/1.json", strings.NewReader(`{"n":1}`), datalayer.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if diff := cmp.Diff([]string{"a/1.json", "b/2.json"}, storage.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}

	rc, err := storage.Get(ctx, "a/1.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != `{"n":1}` {
		t.Errorf("Get() = %s", body)
	}

	if _, err := storage.Get(ctx, "missing"); !errors.Is(err, datalayer.ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}
