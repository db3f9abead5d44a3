package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/helseflora/floracache/internal/blobstore"
	"github.com/helseflora/floracache/internal/cache"
	"github.com/helseflora/floracache/internal/codec"
	"github.com/helseflora/floracache/internal/metastore"
	"github.com/helseflora/floracache/internal/record"
)

var thumb = codec.Encode([]byte("png-bytes"), "image/png")

type countingRecorder struct {
	mu     sync.Mutex
	errors int
	calls  int
}

func (r *countingRecorder) RecordUpstream(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err != nil {
		r.errors++
	}
}

type fixture struct {
	client   *Client
	coord    *cache.Coordinator
	blobs    *blobstore.MemoryBackend
	recorder *countingRecorder
	hits     atomic.Int32
	lastReq  atomic.Pointer[http.Request]
	lastBody atomic.Pointer[string]
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	f := &fixture{blobs: blobstore.NewMemoryBackend(), recorder: &countingRecorder{}}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		text := string(body)
		f.lastBody.Store(&text)
		f.lastReq.Store(r)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	coord, err := cache.New(cache.Options{
		Namespace: "test",
		Metadata:  metastore.NewMemoryBackend(),
		Blobs:     f.blobs,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	f.coord = coord

	client, err := New(Options{
		BaseURL:     server.URL + "/",
		APIKey:      "secret",
		HTTPClient:  NewHTTPClient(2 * time.Second),
		Coordinator: coord,
		Logger:      logger,
		Recorder:    f.recorder,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.client = client
	return f
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func TestFetchCachesResponse(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[{"id": 39, "discount": 0, "thumb": "`+thumb+`"}]`)
	})
	ctx := context.Background()

	rec, err := f.client.Fetch(ctx, cache.DetailKey(39), "/plants/39")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if rec.Items()[0]["thumb"] != thumb {
		t.Fatalf("caller should receive the original payload with images")
	}
	if got := f.lastReq.Load().URL.Query().Get(apiKeyParam); got != "secret" {
		t.Fatalf("api key parameter missing, got %q", got)
	}
	if f.lastReq.Load().URL.Path != "/plants/39" {
		t.Fatalf("unexpected path %s", f.lastReq.Load().URL.Path)
	}
	if f.blobs.Len() != 1 {
		t.Fatalf("image should be split into blob store")
	}
	if _, ok := f.coord.Load(ctx, cache.DetailKey(39)); !ok {
		t.Fatalf("response should be cached")
	}
}

func TestPostDropsMessage(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		writeJSON(w, `{"msg": "welcome back", "logindata": {"userid": 7, "name": "Ada"}}`)
	})
	ctx := context.Background()

	rec, err := f.client.Post(ctx, cache.UserCacheName, "/auth/login", map[string]string{"user": "ada"}, RequestOptions{Auth: "Bearer t"})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if _, ok := rec.Value().(map[string]any)[MessageField]; ok {
		t.Fatalf("msg should be removed")
	}
	if got := f.lastReq.Load().Header.Get("Authorization"); got != "Bearer t" {
		t.Fatalf("authorization header not forwarded: %q", got)
	}
	if body := *f.lastBody.Load(); !strings.Contains(body, `"user":"ada"`) {
		t.Fatalf("unexpected request body %s", body)
	}

	user, ok := f.coord.User(ctx)
	if !ok {
		t.Fatalf("user should be cached")
	}
	data, _ := json.Marshal(user.Value())
	if strings.Contains(string(data), "msg") || !strings.Contains(string(data), `"record"`) {
		t.Fatalf("unexpected cached user %s", data)
	}
}

func TestDeleteDropsUser(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()
	if err := f.coord.Save(ctx, cache.UserCacheName, mustRecord(t, `{"record": {"id": 1}}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := f.client.Delete(ctx, "/auth/session", RequestOptions{}, true); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := f.coord.User(ctx); ok {
		t.Fatalf("user cache should be removed")
	}
}

func TestStatusError(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})
	_, err := f.client.Fetch(context.Background(), "k", "/plants")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadGateway {
		t.Fatalf("expected StatusError 502, got %v", err)
	}
	if f.recorder.errors != 1 {
		t.Fatalf("failure should be recorded")
	}
	if _, ok := f.coord.Peek(context.Background(), "k"); ok {
		t.Fatalf("failed responses must not be cached")
	}
}

func TestLoadOrFetch(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[{"id": 1, "discount": 0, "thumb": "`+thumb+`"}]`)
	})
	ctx := context.Background()

	if _, hit, err := f.client.LoadOrFetch(ctx, cache.MainCacheName, "/plants"); err != nil || hit {
		t.Fatalf("first call should miss: hit=%v err=%v", hit, err)
	}
	if _, hit, err := f.client.LoadOrFetch(ctx, cache.MainCacheName, "/plants"); err != nil || !hit {
		t.Fatalf("second call should hit: hit=%v err=%v", hit, err)
	}
	if f.hits.Load() != 1 {
		t.Fatalf("expected one upstream request, got %d", f.hits.Load())
	}
}

func TestLoadOrFetchRefetchesMissingImages(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[{"id": 1, "discount": 0, "thumb": "`+thumb+`"}]`)
	})
	ctx := context.Background()
	if _, err := f.client.Fetch(ctx, cache.MainCacheName, "/plants"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if err := f.blobs.Delete(ctx, "1"); err != nil {
		t.Fatalf("Delete blob failed: %v", err)
	}
	before, _ := f.coord.Peek(ctx, cache.MainCacheName)

	rec, hit, err := f.client.LoadOrFetch(ctx, cache.MainCacheName, "/plants")
	if err != nil || hit {
		t.Fatalf("degraded cache should be refetched: hit=%v err=%v", hit, err)
	}
	if rec.Items()[0]["thumb"] != thumb {
		t.Fatalf("refetched record should carry the image")
	}
	after, _ := f.coord.Peek(ctx, cache.MainCacheName)
	if !after.Timestamp.Equal(before.Timestamp) || f.blobs.Len() != 0 {
		t.Fatalf("refetch must not rewrite the cache")
	}
}

func TestGrowthZone(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plants/39":
			writeJSON(w, `[{"id": 39, "discount": 0, "thumb": "`+thumb+`"}]`)
		case plantZonesPath:
			writeJSON(w, `[{"description": "Arctic"}, {"description": "Temperate"}, {"description": "Subtropical"}]`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()
	key := cache.DetailKey(39)
	if _, err := f.client.Fetch(ctx, key, "/plants/39"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	desc, err := f.client.GrowthZone(ctx, key, 2)
	if err != nil || desc != "Subtropical" {
		t.Fatalf("GrowthZone = %q, %v", desc, err)
	}
	desc, err = f.client.GrowthZone(ctx, key, 2)
	if err != nil || desc != "Subtropical" {
		t.Fatalf("cached GrowthZone = %q, %v", desc, err)
	}
	if f.hits.Load() != 2 {
		t.Fatalf("second lookup should be served from cache, upstream hits=%d", f.hits.Load())
	}
}

func TestGrowthZoneUnknownZone(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `[{"description": "Arctic"}]`)
	})
	desc, err := f.client.GrowthZone(context.Background(), cache.DetailKey(1), 5)
	if err != nil || desc != "" {
		t.Fatalf("unknown zone should yield empty description, got %q %v", desc, err)
	}
}

func TestDisabledClient(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	coord, err := cache.New(cache.Options{Namespace: "t", Metadata: metastore.NewMemoryBackend(), Logger: logger})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	client, err := New(Options{Coordinator: coord, Logger: logger})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("client without base url should be disabled")
	}
	if _, err := client.Fetch(context.Background(), "k", "/x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestNewRequiresCoordinator(t *testing.T) {
	if _, err := New(Options{BaseURL: "http://example"}); err == nil {
		t.Fatalf("missing coordinator should fail")
	}
}

func mustRecord(t *testing.T, raw string) record.Record {
	t.Helper()
	rec, err := record.DefaultSchema.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return rec
}
