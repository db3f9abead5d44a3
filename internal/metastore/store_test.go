package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/helseflora/floracache/internal/record"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t, NewMemoryBackend())
	ts := time.UnixMilli(1_700_000_000_000)
	env := Envelope{Timestamp: ts, Kind: record.KindCollection, Payload: json.RawMessage(`[{"id":39}]`)}

	if err := store.Put(context.Background(), "plantDetailsCache_39", env); err != nil {
		t.Fatalf("put error: %v", err)
	}
	got, err := store.Get(context.Background(), "plantDetailsCache_39")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if !got.Timestamp.Equal(ts) {
		t.Fatalf("timestamp mismatch: %v != %v", got.Timestamp, ts)
	}
	if got.Kind != record.KindCollection {
		t.Fatalf("kind mismatch: %s", got.Kind)
	}
	if string(got.Payload) != `[{"id":39}]` {
		t.Fatalf("payload mismatch: %s", got.Payload)
	}
}

func TestEnvelopeImagesField(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_000)
	empty, err := json.Marshal(Envelope{Timestamp: ts, Kind: record.KindCollection, Images: []string{}, Payload: json.RawMessage(`[]`)})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	var got Envelope
	if err := json.Unmarshal(empty, &got); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if got.Images == nil || len(got.Images) != 0 {
		t.Fatalf("empty image list should survive round trip: %s", empty)
	}

	var legacy Envelope
	if err := json.Unmarshal([]byte(`{"timeStamp":1,"data":[{"id":1}]}`), &legacy); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if legacy.Images != nil {
		t.Fatalf("legacy envelope should have nil images, got %v", legacy.Images)
	}

	raw, err := json.Marshal(Envelope{Timestamp: ts, Images: []string{"39"}, Payload: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if string(raw) != `{"timeStamp":1700000000000,"images":["39"],"data":{}}` {
		t.Fatalf("unexpected wire form: %s", raw)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t, NewMemoryBackend())
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreCorruptEntries(t *testing.T) {
	backend := NewMemoryBackend()
	store := newTestStore(t, backend)
	ctx := context.Background()

	for name, raw := range map[string]string{
		"not json":      `{"timeStamp":`,
		"no timestamp":  `{"data":[1]}`,
		"no data":       `{"timeStamp":1}`,
		"wrong type":    `{"timeStamp":"yesterday","data":[]}`,
		"plain string":  `"hello"`,
		"empty payload": ``,
	} {
		if err := backend.Put(ctx, "test:"+name, []byte(raw)); err != nil {
			t.Fatalf("seed error: %v", err)
		}
		if _, err := store.Get(ctx, name); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("%s: expected ErrCorrupt, got %v", name, err)
		}
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	backend := NewMemoryBackend()
	store := newTestStore(t, backend)
	ctx := context.Background()
	if err := store.Put(ctx, "cart", Envelope{Timestamp: time.Now(), Payload: json.RawMessage(`[]`)}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Delete(ctx, "cart"); err != nil {
			t.Fatalf("delete #%d error: %v", i, err)
		}
	}
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("delete of absent key error: %v", err)
	}
	if backend.Len() != 0 {
		t.Fatalf("expected empty backend, got %d", backend.Len())
	}
}

func TestStoreUsesNamespace(t *testing.T) {
	backend := NewMemoryBackend()
	store := newTestStore(t, backend)
	if err := store.Put(context.Background(), "user", Envelope{Timestamp: time.Now(), Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if _, err := backend.Get(context.Background(), "test:user"); err != nil {
		t.Fatalf("expected namespaced key, got %v", err)
	}
}

func TestNewStoreRequiresNamespace(t *testing.T) {
	if _, err := NewStore(NewMemoryBackend(), "  "); err == nil {
		t.Fatalf("expected error for empty namespace")
	}
	if _, err := NewStore(nil, "test"); err == nil {
		t.Fatalf("expected error for nil backend")
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	backend, err := NewFileBackend(filepath.Join(t.TempDir(), "metadata"))
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	exerciseBackend(t, backend)
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	backend, err := OpenSQLite(filepath.Join(t.TempDir(), "metadata.db"))
	if err != nil {
		t.Fatalf("open error: %v", err)
	}
	t.Cleanup(func() {
		if err := backend.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	exerciseBackend(t, backend)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error")
	}
}

func exerciseBackend(t *testing.T, backend Backend) {
	t.Helper()
	ctx := context.Background()
	if _, err := backend.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := backend.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := backend.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("overwrite error: %v", err)
	}
	got, err := backend.Get(ctx, "k")
	if err != nil || string(got) != "v2" {
		t.Fatalf("expected last writer to win, got %q (%v)", got, err)
	}
	if err := backend.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if err := backend.Delete(ctx, "k"); err != nil {
		t.Fatalf("second delete error: %v", err)
	}
	if _, err := backend.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func newTestStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	store, err := NewStore(backend, "test")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
