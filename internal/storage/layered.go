package storage

import (
	"context"
	"log/slog"

	"github.com/opencontainers/go-digest"

	cacheerrors "github.com/pycache/pycache/pkg/errors"
)

// LayeredStorage composes a fast tier and a durable tier into one Storage.
// Writes go through to both tiers; reads try the fast tier first and promote
// durable-tier hits back into it. The durable tier is authoritative
// throughout: its failures propagate, fast-tier failures never fail a call.
type LayeredStorage struct {
	fast    Storage
	durable Storage
	logger  *slog.Logger
}

// NewLayeredStorage composes fast and durable into one Storage.
func NewLayeredStorage(fast, durable Storage, logger *slog.Logger) *LayeredStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &LayeredStorage{
		fast:    fast,
		durable: durable,
		logger:  logger.With("component", "layered-storage"),
	}
}

// Store writes through to both tiers. Durability never depends on the fast
// tier surviving, so only durable-tier failures abort the call.
func (s *LayeredStorage) Store(ctx context.Context, dgst digest.Digest, data []byte) error {
	if err := s.durable.Store(ctx, dgst, data); err != nil {
		return err
	}
	if err := s.fast.Store(ctx, dgst, data); err != nil {
		s.logger.Warn("fast tier store failed", "digest", dgst.String(), "error", err)
	}
	return nil
}

// Load tries the fast tier first; on a miss it loads from the durable tier
// and opportunistically promotes the blob back into the fast tier.
func (s *LayeredStorage) Load(ctx context.Context, dgst digest.Digest) ([]byte, error) {
	data, err := s.fast.Load(ctx, dgst)
	if err == nil {
		return data, nil
	}
	if !cacheerrors.IsNotFound(err) {
		// A broken fast tier degrades to durable reads rather than failing.
		s.logger.Warn("fast tier load failed", "digest", dgst.String(), "error", err)
	}

	data, err = s.durable.Load(ctx, dgst)
	if err != nil {
		return nil, err
	}

	// Promotion never blocks or fails the read.
	if err := s.fast.Store(ctx, dgst, data); err != nil {
		s.logger.Debug("promotion to fast tier failed", "digest", dgst.String(), "error", err)
	}
	return data, nil
}

// Remove removes best-effort from the fast tier and authoritatively from
// the durable tier.
func (s *LayeredStorage) Remove(ctx context.Context, dgst digest.Digest) error {
	if err := s.fast.Remove(ctx, dgst); err != nil && !cacheerrors.IsNotFound(err) {
		s.logger.Debug("fast tier remove failed", "digest", dgst.String(), "error", err)
	}
	return s.durable.Remove(ctx, dgst)
}

// Clear empties both tiers. A fast-tier failure does not block the durable
// clear; a durable-tier failure propagates.
func (s *LayeredStorage) Clear(ctx context.Context) error {
	if err := s.fast.Clear(ctx); err != nil {
		s.logger.Warn("fast tier clear failed", "error", err)
	}
	return s.durable.Clear(ctx)
}

// AddressFor reports the durable tier's address, the one that outlives the
// process.
func (s *LayeredStorage) AddressFor(dgst digest.Digest) string {
	return s.durable.AddressFor(dgst)
}
