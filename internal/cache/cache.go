package cache

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/pycache/pycache/internal/config"
	"github.com/pycache/pycache/internal/metrics"
	"github.com/pycache/pycache/internal/storage"
	cacheerrors "github.com/pycache/pycache/pkg/errors"
	"github.com/pycache/pycache/pkg/types"
	"github.com/pycache/pycache/pkg/utils"
)

// Eviction reasons reported to the metrics recorder.
const (
	EvictionExpired     = "expired"
	EvictionCorrupted   = "corrupted"
	EvictionMissingBlob = "missing_blob"
)

// Cache is the top-level orchestrator. It hashes payloads, compresses them
// into a FileStorage, and tracks them by caller key in a persistent index.
// Expired or corrupt entries are purged on read and reported as misses, so
// callers only ever see "hit" or "miss", never stale or damaged bytes.
type Cache struct {
	store   *storage.FileStorage
	index   *CacheIndex
	level   storage.CompressionLevel
	ttl     *time.Duration
	logger  *slog.Logger
	metrics types.MetricsRecorder // fixed at construction, nil when disabled

	now func() time.Time
}

// New builds a Cache from settings. The cache directory is created if
// missing and the index file is loaded from it.
func New(cfg *config.Settings, logger *slog.Logger) (*Cache, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = utils.NewLogger(cfg.Logging.Level, os.Stderr)
	}
	logger = logger.With("component", "cache")

	level, err := storage.ParseCompressionLevel(cfg.Compression.Level)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewFileStorage(cfg.CacheDir, logger)
	if err != nil {
		return nil, err
	}

	index, err := LoadCacheIndex(store.Root())
	if err != nil {
		return nil, err
	}

	c := &Cache{
		store:  store,
		index:  index,
		level:  level,
		ttl:    cfg.TTL,
		logger: logger,
		now:    time.Now,
	}
	if cfg.Metrics.Enabled {
		c.metrics = metrics.NewCollector(cfg.Metrics.Namespace)
	}
	c.publishGauges()
	return c, nil
}

// MetricsRecorder returns the recorder attached at construction, nil when
// metrics are disabled.
func (c *Cache) MetricsRecorder() types.MetricsRecorder {
	return c.metrics
}

// Store compresses and persists data under key. A previous blob for the key
// is garbage-collected when its content changed and no other key still
// references it.
func (c *Cache) Store(ctx context.Context, key string, data []byte) error {
	hash := storage.HashBytes(data)
	compressed, err := storage.Compress(data, c.level)
	if err != nil {
		return err
	}

	if err := c.store.Store(ctx, hash, compressed); err != nil {
		return err
	}

	now := c.now()
	entry := CacheEntry{
		Hash:           hash,
		Size:           int64(len(data)),
		CompressedSize: int64(len(compressed)),
		Path:           c.store.AddressFor(hash),
		Created:        now,
		Accessed:       now,
	}

	prev, existed, prevShared, err := c.index.Replace(key, entry)
	if err != nil {
		return err
	}
	if existed && prev.Hash != hash && !prevShared {
		if err := c.store.Remove(ctx, prev.Hash); err != nil && !cacheerrors.IsNotFound(err) {
			c.logger.Warn("failed to remove superseded blob",
				"key", key, "digest", prev.Hash.String(), "error", err)
		}
	}

	if c.metrics != nil {
		c.metrics.RecordStore(entry.Size, entry.CompressedSize)
	}
	c.publishGauges()
	return nil
}

// Get returns the bytes stored under key. The boolean reports a hit; TTL
// expiry, a missing blob, a corrupt frame, and a hash mismatch all evict the
// entry and come back as a miss, not an error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok := c.index.Get(key)
	if !ok {
		c.recordMiss()
		return nil, false, nil
	}

	if c.expired(entry) {
		c.logger.Debug("entry expired", "key", key)
		if err := c.evict(ctx, key, EvictionExpired); err != nil {
			return nil, false, err
		}
		c.recordMiss()
		return nil, false, nil
	}

	compressed, err := c.store.Load(ctx, entry.Hash)
	if err != nil {
		if !cacheerrors.IsNotFound(err) {
			return nil, false, err
		}
		c.logger.Warn("blob missing for live entry", "key", key, "digest", entry.Hash.String())
		if err := c.evict(ctx, key, EvictionMissingBlob); err != nil {
			return nil, false, err
		}
		c.recordMiss()
		return nil, false, nil
	}

	data, err := storage.Decompress(compressed)
	if err != nil || storage.HashBytes(data) != entry.Hash {
		c.logger.Warn("corrupt blob detected", "key", key, "digest", entry.Hash.String())
		if err := c.evict(ctx, key, EvictionCorrupted); err != nil {
			return nil, false, err
		}
		c.recordMiss()
		return nil, false, nil
	}

	if err := c.index.Touch(key, c.now()); err != nil {
		return nil, false, err
	}
	if c.metrics != nil {
		c.metrics.RecordHit()
	}
	return data, true, nil
}

// Remove drops key and deletes its blob unless another key still shares it.
// Removing an absent key is a no-op.
func (c *Cache) Remove(ctx context.Context, key string) error {
	prev, existed, shared, err := c.index.Remove(key)
	if err != nil {
		return err
	}
	if existed && !shared {
		if err := c.store.Remove(ctx, prev.Hash); err != nil && !cacheerrors.IsNotFound(err) {
			return err
		}
	}
	c.publishGauges()
	return nil
}

// Clear empties the index and the blob store. Safe to call repeatedly.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.index.Clear(); err != nil {
		return err
	}
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.publishGauges()
	return nil
}

// Prune removes every expired entry and its unshared blobs. It is the
// proactive counterpart to the lazy expiry Get performs, and reports how
// many entries were dropped.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	if c.ttl == nil {
		return 0, nil
	}

	pruned := 0
	for key, entry := range c.index.Entries() {
		if !c.expired(entry) {
			continue
		}
		if err := c.evict(ctx, key, EvictionExpired); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// Stats summarizes the live entries. The ratio is compressed over raw
// bytes, 1.0 for an empty cache.
func (c *Cache) Stats() types.CacheStats {
	entries := c.index.Entries()

	stats := types.CacheStats{
		TotalEntries:     len(entries),
		CompressionRatio: 1.0,
	}
	for _, e := range entries {
		stats.TotalSize += e.Size
		stats.TotalCompressedSize += e.CompressedSize
	}
	if stats.TotalSize > 0 {
		stats.CompressionRatio = float64(stats.TotalCompressedSize) / float64(stats.TotalSize)
	}
	return stats
}

func (c *Cache) expired(entry CacheEntry) bool {
	if c.ttl == nil {
		return false
	}
	if *c.ttl <= 0 {
		return true
	}
	return c.now().Sub(entry.Created) > *c.ttl
}

// evict removes an entry and its unshared blob on behalf of the read path.
func (c *Cache) evict(ctx context.Context, key, reason string) error {
	prev, existed, shared, err := c.index.Remove(key)
	if err != nil {
		return err
	}
	if existed && !shared {
		if err := c.store.Remove(ctx, prev.Hash); err != nil && !cacheerrors.IsNotFound(err) {
			c.logger.Warn("failed to remove evicted blob",
				"key", key, "digest", prev.Hash.String(), "error", err)
		}
	}
	if c.metrics != nil {
		c.metrics.RecordEviction(reason)
	}
	c.publishGauges()
	return nil
}

func (c *Cache) recordMiss() {
	if c.metrics != nil {
		c.metrics.RecordMiss()
	}
}

func (c *Cache) publishGauges() {
	if c.metrics == nil {
		return
	}
	stats := c.Stats()
	c.metrics.SetEntryCount(stats.TotalEntries)
	c.metrics.SetTotalBytes(stats.TotalSize, stats.TotalCompressedSize)
}
