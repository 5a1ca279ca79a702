package storage

import (
	"container/list"
	"context"
	"log/slog"
	"sync"

	"github.com/opencontainers/go-digest"

	cacheerrors "github.com/pycache/pycache/pkg/errors"
)

// LRUStorage bounds an inner Storage to at most capacity blobs. Storing at
// capacity evicts the least recently used digest and removes its blob from
// the inner store.
//
// The tracker is a membership gate, not a pass-through cache: Load only
// succeeds for digests stored through this decorator, and pre-existing
// inner-store content stays invisible until re-stored through it.
//
// One shared mutex-guarded tracker is mutated in place for the duration of
// each call, so evictions from one call are observed by all later calls.
type LRUStorage struct {
	inner    Storage
	capacity int
	logger   *slog.Logger

	mu    sync.Mutex
	order *list.List // front = most recently used; values are digest.Digest
	items map[digest.Digest]*list.Element
}

// NewLRUStorage wraps inner with a bound of capacity blobs.
func NewLRUStorage(inner Storage, capacity int, logger *slog.Logger) (*LRUStorage, error) {
	if capacity <= 0 {
		return nil, cacheerrors.Errorf(cacheerrors.ErrCodeInvalidConfig,
			"lru capacity must be positive, got %d", capacity)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LRUStorage{
		inner:    inner,
		capacity: capacity,
		logger:   logger.With("component", "lru-storage"),
		order:    list.New(),
		items:    make(map[digest.Digest]*list.Element),
	}, nil
}

// Store records dgst as most recently used, evicting the LRU digest first
// when at capacity.
func (s *LRUStorage) Store(ctx context.Context, dgst digest.Digest, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[dgst]; ok {
		if err := s.inner.Store(ctx, dgst, data); err != nil {
			return err
		}
		s.order.MoveToFront(elem)
		return nil
	}

	if s.order.Len() >= s.capacity {
		s.evictOldestLocked(ctx)
	}

	if err := s.inner.Store(ctx, dgst, data); err != nil {
		return err
	}
	s.items[dgst] = s.order.PushFront(dgst)
	return nil
}

// Load succeeds only for digests tracked by this decorator and refreshes
// their recency.
func (s *LRUStorage) Load(ctx context.Context, dgst digest.Digest) ([]byte, error) {
	s.mu.Lock()
	elem, ok := s.items[dgst]
	if ok {
		s.order.MoveToFront(elem)
	}
	s.mu.Unlock()

	if !ok {
		return nil, errNotFound(dgst)
	}
	return s.inner.Load(ctx, dgst)
}

// Remove drops dgst from the tracker and deletes its blob.
func (s *LRUStorage) Remove(ctx context.Context, dgst digest.Digest) error {
	s.mu.Lock()
	elem, ok := s.items[dgst]
	if ok {
		s.order.Remove(elem)
		delete(s.items, dgst)
	}
	s.mu.Unlock()

	if !ok {
		return errNotFound(dgst)
	}
	return s.inner.Remove(ctx, dgst)
}

// Clear resets the tracker and empties the inner store.
func (s *LRUStorage) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.order.Init()
	s.items = make(map[digest.Digest]*list.Element)
	s.mu.Unlock()
	return s.inner.Clear(ctx)
}

// AddressFor delegates to the inner backend.
func (s *LRUStorage) AddressFor(dgst digest.Digest) string {
	return s.inner.AddressFor(dgst)
}

// Len returns the number of tracked digests.
func (s *LRUStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// evictOldestLocked removes the least recently used digest. Failure to
// delete the evicted blob does not abort the caller's store; the membership
// gate already hides the digest.
func (s *LRUStorage) evictOldestLocked(ctx context.Context) {
	back := s.order.Back()
	if back == nil {
		return
	}
	victim := back.Value.(digest.Digest)
	s.order.Remove(back)
	delete(s.items, victim)

	if err := s.inner.Remove(ctx, victim); err != nil && !cacheerrors.IsNotFound(err) {
		s.logger.Warn("failed to remove evicted blob", "digest", victim.String(), "error", err)
	}
}
