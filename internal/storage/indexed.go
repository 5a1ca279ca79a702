package storage

import (
	"context"
	"sync"

	"github.com/opencontainers/go-digest"

	cacheerrors "github.com/pycache/pycache/pkg/errors"
)

// IndexedStorage wraps an inner Storage with an in-memory mapping from
// arbitrary string keys to content digests. The mapping is not persisted by
// this decorator; durability of the key table is the persistent index's job.
//
// Key collisions follow last-write-wins: the previously referenced blob
// stays in the inner store but becomes unreachable through this key.
type IndexedStorage struct {
	inner Storage

	mu   sync.RWMutex
	keys map[string]digest.Digest
}

// NewIndexedStorage wraps inner with a key table.
func NewIndexedStorage(inner Storage) *IndexedStorage {
	return &IndexedStorage{
		inner: inner,
		keys:  make(map[string]digest.Digest),
	}
}

// StoreWithKey hashes data, writes the blob by digest, then records
// key → digest. It returns the digest the key now resolves to.
func (s *IndexedStorage) StoreWithKey(ctx context.Context, key string, data []byte) (digest.Digest, error) {
	dgst := HashBytes(data)
	if err := s.inner.Store(ctx, dgst, data); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.keys[key] = dgst
	s.mu.Unlock()
	return dgst, nil
}

// LoadByKey resolves key to a digest and loads the blob.
func (s *IndexedStorage) LoadByKey(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	dgst, ok := s.keys[key]
	s.mu.RUnlock()
	if !ok {
		return nil, cacheerrors.Errorf(cacheerrors.ErrCodeHashNotFound, "no digest recorded for key %q", key)
	}
	return s.inner.Load(ctx, dgst)
}

// RemoveByKey drops the mapping and deletes the blob it referenced.
func (s *IndexedStorage) RemoveByKey(ctx context.Context, key string) error {
	s.mu.Lock()
	dgst, ok := s.keys[key]
	if ok {
		delete(s.keys, key)
	}
	s.mu.Unlock()
	if !ok {
		return cacheerrors.Errorf(cacheerrors.ErrCodeHashNotFound, "no digest recorded for key %q", key)
	}
	return s.inner.Remove(ctx, dgst)
}

// Resolve returns the digest currently recorded for key.
func (s *IndexedStorage) Resolve(key string) (digest.Digest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dgst, ok := s.keys[key]
	return dgst, ok
}

// Store delegates to the inner backend without touching the key table.
func (s *IndexedStorage) Store(ctx context.Context, dgst digest.Digest, data []byte) error {
	return s.inner.Store(ctx, dgst, data)
}

// Load delegates to the inner backend.
func (s *IndexedStorage) Load(ctx context.Context, dgst digest.Digest) ([]byte, error) {
	return s.inner.Load(ctx, dgst)
}

// Remove delegates to the inner backend. Stale key mappings pointing at the
// removed digest are left in place and will surface as not-found on load.
func (s *IndexedStorage) Remove(ctx context.Context, dgst digest.Digest) error {
	return s.inner.Remove(ctx, dgst)
}

// Clear empties both the key table and the inner backend.
func (s *IndexedStorage) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.keys = make(map[string]digest.Digest)
	s.mu.Unlock()
	return s.inner.Clear(ctx)
}

// AddressFor delegates to the inner backend.
func (s *IndexedStorage) AddressFor(dgst digest.Digest) string {
	return s.inner.AddressFor(dgst)
}
