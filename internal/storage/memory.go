package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/opencontainers/go-digest"

	cacheerrors "github.com/pycache/pycache/pkg/errors"
)

// MemoryStorage is the volatile in-process backend. An optional per-item
// byte limit rejects oversized blobs; there is no aggregate budget.
type MemoryStorage struct {
	mu          sync.RWMutex
	items       map[digest.Digest][]byte
	maxItemSize int64
}

// NewMemoryStorage returns an in-process backend. maxItemSize <= 0 disables
// the per-item limit.
func NewMemoryStorage(maxItemSize int64) *MemoryStorage {
	return &MemoryStorage{
		items:       make(map[digest.Digest][]byte),
		maxItemSize: maxItemSize,
	}
}

// Store keeps a private copy of data so callers may reuse their buffer.
func (s *MemoryStorage) Store(ctx context.Context, dgst digest.Digest, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.maxItemSize > 0 && int64(len(data)) > s.maxItemSize {
		return cacheerrors.Errorf(cacheerrors.ErrCodeSizeLimit,
			"blob of %d bytes exceeds per-item limit of %d bytes", len(data), s.maxItemSize)
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.items[dgst] = buf
	s.mu.Unlock()
	return nil
}

// Load returns a copy so callers cannot mutate stored content.
func (s *MemoryStorage) Load(ctx context.Context, dgst digest.Digest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.items[dgst]
	s.mu.RUnlock()
	if !ok {
		return nil, errNotFound(dgst)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Remove deletes the blob for dgst.
func (s *MemoryStorage) Remove(ctx context.Context, dgst digest.Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[dgst]; !ok {
		return errNotFound(dgst)
	}
	delete(s.items, dgst)
	return nil
}

// Clear drops all blobs.
func (s *MemoryStorage) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.items = make(map[digest.Digest][]byte)
	s.mu.Unlock()
	return nil
}

// AddressFor returns an opaque identifier; memory blobs have no path.
func (s *MemoryStorage) AddressFor(dgst digest.Digest) string {
	return fmt.Sprintf("memory://%s", dgst)
}

// Len returns the number of stored blobs.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
