package cache

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pycache/pycache/internal/config"
	"github.com/pycache/pycache/internal/metrics"
	"github.com/pycache/pycache/internal/storage"
)

func newTestCache(t *testing.T, ttl *time.Duration) *Cache {
	t.Helper()

	cfg := config.NewDefault()
	cfg.CacheDir = t.TempDir()
	cfg.TTL = ttl

	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func durationPtr(d time.Duration) *time.Duration { return &d }

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)

	payloads := map[string][]byte{
		"pkg:requests-2.28.2": bytes.Repeat([]byte{0xAB}, 10000),
		"pkg:empty":           {},
		"env:lockfile":        []byte(`{"python": "3.12.1"}`),
	}

	for key, data := range payloads {
		if err := c.Store(ctx, key, data); err != nil {
			t.Fatalf("Store(%s) failed: %v", key, err)
		}
	}
	for key, want := range payloads {
		got, hit, err := c.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", key, err)
		}
		if !hit {
			t.Fatalf("Get(%s) missed a stored key", key)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Get(%s) = %d bytes, want %d bytes", key, len(got), len(want))
		}
	}
}

func TestCache_MissForUnknownKey(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)

	data, hit, err := c.Get(ctx, "never stored")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if hit || data != nil {
		t.Errorf("Get = (%v, %v), want a clean miss", data, hit)
	}
}

func TestCache_TTLZeroExpiresImmediately(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, durationPtr(0))

	if err := c.Store(ctx, "ephemeral", []byte("gone already")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	_, hit, err := c.Get(ctx, "ephemeral")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if hit {
		t.Error("a zero TTL must expire entries immediately")
	}
	if c.Stats().TotalEntries != 0 {
		t.Error("expired entry must be evicted, not just skipped")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, durationPtr(time.Hour))

	current := time.Now()
	c.now = func() time.Time { return current }

	if err := c.Store(ctx, "wheel", []byte("fresh for an hour")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if _, hit, _ := c.Get(ctx, "wheel"); !hit {
		t.Fatal("entry must be live within its TTL")
	}

	current = current.Add(2 * time.Hour)

	if _, hit, _ := c.Get(ctx, "wheel"); hit {
		t.Error("entry must expire once its TTL elapses")
	}
	if _, hit, _ := c.Get(ctx, "wheel"); hit {
		t.Error("an evicted entry stays gone")
	}
}

func TestCache_CorruptionSelfHealing(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)

	if err := c.Store(ctx, "pkg:wheel", []byte("pristine content")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	entry, ok := c.index.Get("pkg:wheel")
	if !ok {
		t.Fatal("entry missing from index")
	}
	if err := os.WriteFile(entry.Path, []byte("scribbled over"), 0o644); err != nil {
		t.Fatalf("overwriting blob failed: %v", err)
	}

	data, hit, err := c.Get(ctx, "pkg:wheel")
	if err != nil {
		t.Fatalf("Get on corrupt blob returned an error: %v", err)
	}
	if hit || data != nil {
		t.Error("corrupt entry must read as a miss")
	}

	// The entry is purged, so the second read is an ordinary miss.
	if _, hit, err := c.Get(ctx, "pkg:wheel"); err != nil || hit {
		t.Errorf("second Get = (hit=%v, err=%v), want a clean miss", hit, err)
	}
	if c.Stats().TotalEntries != 0 {
		t.Error("corrupt entry must be removed from the index")
	}
}

func TestCache_HashMismatchDetected(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)

	if err := c.Store(ctx, "k", []byte("original")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// Replace the blob with a valid compressed frame of different content:
	// decompression succeeds, only the hash check can catch it.
	entry, _ := c.index.Get("k")
	if err := c.store.Store(ctx, entry.Hash, mustCompress(t, []byte("swapped"))); err != nil {
		t.Fatalf("overwriting blob failed: %v", err)
	}

	if _, hit, err := c.Get(ctx, "k"); err != nil || hit {
		t.Errorf("Get = (hit=%v, err=%v), want a miss on hash mismatch", hit, err)
	}
}

func TestCache_MissingBlobEvicts(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)

	if err := c.Store(ctx, "k", []byte("backed by a file")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	entry, _ := c.index.Get("k")
	if err := os.Remove(entry.Path); err != nil {
		t.Fatalf("removing blob failed: %v", err)
	}

	if _, hit, err := c.Get(ctx, "k"); err != nil || hit {
		t.Errorf("Get = (hit=%v, err=%v), want a miss for a vanished blob", hit, err)
	}
	if c.Stats().TotalEntries != 0 {
		t.Error("entry with no blob must be purged")
	}
}

func TestCache_Remove(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)

	if err := c.Store(ctx, "k", []byte("removable")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	entry, _ := c.index.Get("k")

	if err := c.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("removed key must miss")
	}
	if _, err := os.Stat(entry.Path); !os.IsNotExist(err) {
		t.Error("blob must be deleted with its last entry")
	}

	if err := c.Remove(ctx, "k"); err != nil {
		t.Errorf("removing an absent key should be a no-op, got %v", err)
	}
}

func TestCache_RemoveSparesSharedBlob(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)

	content := []byte("identical bytes stored twice")
	if err := c.Store(ctx, "a", content); err != nil {
		t.Fatal(err)
	}
	if err := c.Store(ctx, "b", content); err != nil {
		t.Fatal(err)
	}

	if err := c.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	got, hit, err := c.Get(ctx, "b")
	if err != nil || !hit {
		t.Fatalf("Get(b) = (hit=%v, err=%v) after removing a, want hit", hit, err)
	}
	if !bytes.Equal(got, content) {
		t.Error("shared blob content changed")
	}
}

func TestCache_StoreGarbageCollectsReplacedBlob(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)

	if err := c.Store(ctx, "env:default", []byte("version one")); err != nil {
		t.Fatal(err)
	}
	first, _ := c.index.Get("env:default")

	if err := c.Store(ctx, "env:default", []byte("version two")); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(first.Path); !os.IsNotExist(err) {
		t.Error("superseded unshared blob must be garbage-collected")
	}
	if got, hit, _ := c.Get(ctx, "env:default"); !hit || !bytes.Equal(got, []byte("version two")) {
		t.Error("key must resolve to the replacement content")
	}
}

func TestCache_ClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)

	for i := 0; i < 5; i++ {
		if err := c.Store(ctx, fmt.Sprintf("key-%d", i), []byte(fmt.Sprintf("payload-%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("second Clear failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, hit, err := c.Get(ctx, fmt.Sprintf("key-%d", i)); err != nil || hit {
			t.Errorf("key-%d survived Clear", i)
		}
	}
	if stats := c.Stats(); stats.TotalEntries != 0 || stats.CompressionRatio != 1.0 {
		t.Errorf("Stats after Clear = %+v, want empty", stats)
	}
}

func TestCache_Stats(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)

	if stats := c.Stats(); stats.CompressionRatio != 1.0 {
		t.Errorf("empty cache ratio = %f, want 1.0", stats.CompressionRatio)
	}

	// Highly repetitive content compresses well, so the ratio must drop
	// clearly below 1.
	if err := c.Store(ctx, "pkg:requests-2.28.2", bytes.Repeat([]byte{0x42}, 10000)); err != nil {
		t.Fatal(err)
	}

	stats := c.Stats()
	if stats.TotalEntries != 1 {
		t.Errorf("TotalEntries = %d, want 1", stats.TotalEntries)
	}
	if stats.TotalSize != 10000 {
		t.Errorf("TotalSize = %d, want 10000", stats.TotalSize)
	}
	if stats.TotalCompressedSize <= 0 || stats.TotalCompressedSize >= stats.TotalSize {
		t.Errorf("TotalCompressedSize = %d, want within (0, %d)", stats.TotalCompressedSize, stats.TotalSize)
	}
	if stats.CompressionRatio >= 0.5 {
		t.Errorf("CompressionRatio = %f, want well below 1 for repeated bytes", stats.CompressionRatio)
	}
}

func TestCache_IndexPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := config.NewDefault()
	cfg.CacheDir = dir

	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Store(ctx, "durable", []byte("outlives the process")); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("reopening cache failed: %v", err)
	}
	got, hit, err := reopened.Get(ctx, "durable")
	if err != nil || !hit {
		t.Fatalf("Get after reopen = (hit=%v, err=%v), want hit", hit, err)
	}
	if !bytes.Equal(got, []byte("outlives the process")) {
		t.Error("content changed across instances")
	}
}

func TestCache_Prune(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, durationPtr(time.Hour))

	current := time.Now()
	c.now = func() time.Time { return current }

	if err := c.Store(ctx, "old", []byte("stored first")); err != nil {
		t.Fatal(err)
	}

	current = current.Add(30 * time.Minute)
	if err := c.Store(ctx, "young", []byte("stored later")); err != nil {
		t.Fatal(err)
	}

	current = current.Add(45 * time.Minute)

	pruned, err := c.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("Prune removed %d entries, want 1", pruned)
	}
	if _, hit, _ := c.Get(ctx, "old"); hit {
		t.Error("expired entry survived Prune")
	}
	if _, hit, _ := c.Get(ctx, "young"); !hit {
		t.Error("live entry must survive Prune")
	}
}

func TestCache_PruneWithoutTTL(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)

	if err := c.Store(ctx, "k", []byte("no ttl configured")); err != nil {
		t.Fatal(err)
	}

	pruned, err := c.Prune(ctx)
	if err != nil || pruned != 0 {
		t.Errorf("Prune = (%d, %v) without a TTL, want (0, nil)", pruned, err)
	}
}

func TestCache_AccessedRefreshedOnGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, nil)

	current := time.Now()
	c.now = func() time.Time { return current }

	if err := c.Store(ctx, "k", []byte("touch me")); err != nil {
		t.Fatal(err)
	}
	stored, _ := c.index.Get("k")

	current = current.Add(time.Hour)
	if _, hit, _ := c.Get(ctx, "k"); !hit {
		t.Fatal("expected hit")
	}

	refreshed, _ := c.index.Get("k")
	if !refreshed.Accessed.After(stored.Accessed) {
		t.Error("a successful Get must refresh the accessed timestamp")
	}
	if !refreshed.Created.Equal(stored.Created) {
		t.Error("Get must not change the created timestamp")
	}
}

func TestNew_MetricsEnabled(t *testing.T) {
	ctx := context.Background()

	cfg := config.NewDefault()
	cfg.CacheDir = t.TempDir()
	cfg.Metrics.Enabled = true

	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	collector, ok := c.MetricsRecorder().(*metrics.Collector)
	if !ok {
		t.Fatalf("MetricsRecorder() = %T, want a *metrics.Collector when enabled", c.MetricsRecorder())
	}

	if err := c.Store(ctx, "k", bytes.Repeat([]byte{0x11}, 1000)); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "k"); !hit {
		t.Fatal("expected hit")
	}
	if _, hit, _ := c.Get(ctx, "absent"); hit {
		t.Fatal("expected miss")
	}

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"pycache_store_total 1",
		"pycache_hits_total 1",
		"pycache_misses_total 1",
		"pycache_entries 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition output missing %q, got:\n%s", want, body)
		}
	}
}

func TestNew_MetricsDisabled(t *testing.T) {
	c := newTestCache(t, nil)
	if c.MetricsRecorder() != nil {
		t.Error("MetricsRecorder() should be nil when metrics are disabled")
	}
}

func TestNew_BadConfig(t *testing.T) {
	cfg := config.NewDefault()
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	cfg.Compression.Level = "turbo"

	if _, err := New(cfg, nil); err == nil {
		t.Error("expected an error for an unknown compression level")
	}
}

func mustCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	out, err := storage.Compress(data, storage.CompressionDefault)
	if err != nil {
		t.Fatalf("compressing test payload failed: %v", err)
	}
	return out
}
