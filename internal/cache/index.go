package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"

	cacheerrors "github.com/pycache/pycache/pkg/errors"
)

// IndexFileName is the index file kept at the root of a cache directory.
const IndexFileName = "index.json"

// CacheEntry is the metadata the index keeps per caller key.
type CacheEntry struct {
	Hash           digest.Digest `json:"hash"`
	Size           int64         `json:"size"`
	CompressedSize int64         `json:"compressed_size"`
	Path           string        `json:"path"`
	Accessed       time.Time     `json:"accessed"`
	Created        time.Time     `json:"created"`
}

type indexFile struct {
	Entries map[string]CacheEntry `json:"entries"`
}

// CacheIndex is the durable key → CacheEntry table for one cache directory.
// It is loaded once at construction and written back after every mutation,
// so the file on disk always reflects the last completed operation.
type CacheIndex struct {
	path string

	mu      sync.RWMutex
	entries map[string]CacheEntry
}

// LoadCacheIndex reads the index at <dir>/index.json. A missing file yields
// an empty index; a malformed one is a serialization error so callers decide
// whether to reset or abort.
func LoadCacheIndex(dir string) (*CacheIndex, error) {
	idx := &CacheIndex{
		path:    filepath.Join(dir, IndexFileName),
		entries: make(map[string]CacheEntry),
	}

	raw, err := os.ReadFile(idx.path)
	if errors.Is(err, fs.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeIndexLoad, "failed to read index file").
			WithCause(err)
	}

	var file indexFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeIndexLoad, "index file is not valid JSON").
			WithCause(err)
	}
	if file.Entries != nil {
		idx.entries = file.Entries
	}
	return idx, nil
}

// Get returns the entry for key.
func (idx *CacheIndex) Get(key string) (CacheEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	entry, ok := idx.entries[key]
	return entry, ok
}

// Replace upserts the entry for key and persists. It returns the previous
// entry, whether it existed, and whether its hash is still referenced by any
// other entry, all decided under one lock so callers can garbage-collect the
// previous blob safely.
func (idx *CacheIndex) Replace(key string, entry CacheEntry) (prev CacheEntry, existed, prevShared bool, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	prev, existed = idx.entries[key]
	idx.entries[key] = entry
	if existed {
		prevShared = idx.hashSharedLocked(key, prev.Hash)
	}
	return prev, existed, prevShared, idx.saveLocked()
}

// Touch refreshes the accessed timestamp for key and persists.
func (idx *CacheIndex) Touch(key string, now time.Time) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entry, ok := idx.entries[key]
	if !ok {
		return nil
	}
	entry.Accessed = now
	idx.entries[key] = entry
	return idx.saveLocked()
}

// Remove drops the entry for key and persists. Like Replace, it reports
// whether the removed entry's hash is still referenced elsewhere.
func (idx *CacheIndex) Remove(key string) (prev CacheEntry, existed, shared bool, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	prev, existed = idx.entries[key]
	if !existed {
		return prev, false, false, nil
	}
	delete(idx.entries, key)
	shared = idx.hashSharedLocked(key, prev.Hash)
	return prev, true, shared, idx.saveLocked()
}

// Clear drops every entry and persists the empty table.
func (idx *CacheIndex) Clear() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = make(map[string]CacheEntry)
	return idx.saveLocked()
}

// Len returns the number of live entries.
func (idx *CacheIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Entries returns a snapshot of the table.
func (idx *CacheIndex) Entries() map[string]CacheEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[string]CacheEntry, len(idx.entries))
	for k, v := range idx.entries {
		out[k] = v
	}
	return out
}

// hashSharedLocked reports whether any entry other than excludeKey still
// references hash.
func (idx *CacheIndex) hashSharedLocked(excludeKey string, hash digest.Digest) bool {
	for k, e := range idx.entries {
		if k != excludeKey && e.Hash == hash {
			return true
		}
	}
	return false
}

// saveLocked writes the table as pretty-printed JSON via temp-file+rename,
// so a crash mid-write never leaves a truncated index.
func (idx *CacheIndex) saveLocked() error {
	raw, err := json.MarshalIndent(indexFile{Entries: idx.entries}, "", "  ")
	if err != nil {
		return cacheerrors.NewError(cacheerrors.ErrCodeIndexSave, "failed to encode index").
			WithCause(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(idx.path), ".index-*.json")
	if err != nil {
		return cacheerrors.NewError(cacheerrors.ErrCodeIndexSave, "failed to create temp index file").
			WithCause(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return cacheerrors.NewError(cacheerrors.ErrCodeIndexSave, "failed to write index file").
			WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return cacheerrors.NewError(cacheerrors.ErrCodeIndexSave, "failed to close index file").
			WithCause(err)
	}
	if err := os.Rename(tmpName, idx.path); err != nil {
		os.Remove(tmpName)
		return cacheerrors.NewError(cacheerrors.ErrCodeIndexSave, "failed to replace index file").
			WithCause(err)
	}
	return nil
}
