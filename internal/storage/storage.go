package storage

import (
	"context"

	"github.com/opencontainers/go-digest"

	cacheerrors "github.com/pycache/pycache/pkg/errors"
)

// Storage is the narrow contract every backend and decorator implements.
// Blobs are addressed exclusively by the digest of their uncompressed
// content; backends know nothing about logical names.
// Implementations must be safe for concurrent use by multiple goroutines.
type Storage interface {
	// Store writes data under dgst. Storing the same digest twice is an
	// idempotent overwrite.
	Store(ctx context.Context, dgst digest.Digest, data []byte) error

	// Load returns the bytes stored under dgst, or a HASH_NOT_FOUND error.
	Load(ctx context.Context, dgst digest.Digest) ([]byte, error)

	// Remove deletes the blob for dgst. Removing an absent digest is an
	// error.
	Remove(ctx context.Context, dgst digest.Digest) error

	// Clear removes every blob from the backend.
	Clear(ctx context.Context) error

	// AddressFor returns the deterministic location for dgst. Only file-like
	// backends produce a usable path; others return an opaque identifier.
	AddressFor(dgst digest.Digest) string
}

// HashBytes computes the content address for a payload.
func HashBytes(data []byte) digest.Digest {
	return digest.FromBytes(data)
}

func errNotFound(dgst digest.Digest) error {
	return cacheerrors.Errorf(cacheerrors.ErrCodeHashNotFound, "no blob for digest %s", dgst)
}
