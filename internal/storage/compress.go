package storage

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/opencontainers/go-digest"

	cacheerrors "github.com/pycache/pycache/pkg/errors"
)

// CompressionLevel selects the effort/ratio trade-off for compressed
// storage. The wire format is self-describing, so the level never needs to
// be recorded for decompression.
type CompressionLevel int

const (
	CompressionNone CompressionLevel = iota
	CompressionFast
	CompressionDefault
	CompressionMax
)

// ParseCompressionLevel maps a configuration string onto a level.
func ParseCompressionLevel(s string) (CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return CompressionNone, nil
	case "fast":
		return CompressionFast, nil
	case "", "default":
		return CompressionDefault, nil
	case "max", "maximum":
		return CompressionMax, nil
	default:
		return CompressionDefault, cacheerrors.Errorf(cacheerrors.ErrCodeInvalidConfig,
			"unknown compression level %q", s)
	}
}

// String returns the configuration name of the level.
func (l CompressionLevel) String() string {
	switch l {
	case CompressionNone:
		return "none"
	case CompressionFast:
		return "fast"
	case CompressionMax:
		return "max"
	default:
		return "default"
	}
}

func (l CompressionLevel) gzipLevel() int {
	switch l {
	case CompressionNone:
		return gzip.NoCompression
	case CompressionFast:
		return gzip.BestSpeed
	case CompressionMax:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

// Compress encodes data at the given level. Even CompressionNone wraps the
// payload in a stored-block frame so Decompress works uniformly.
func Compress(data []byte, level CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level.gzipLevel())
	if err != nil {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeEncodeFailed, "invalid compression level").
			WithCause(err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeEncodeFailed, "failed to compress payload").
			WithCause(err)
	}
	if err := w.Close(); err != nil {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeEncodeFailed, "failed to finish compression").
			WithCause(err)
	}
	return buf.Bytes(), nil
}

// Decompress decodes a payload produced by Compress at any level.
func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeDecodeFailed, "payload is not a valid compressed frame").
			WithCause(err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeDecodeFailed, "failed to decompress payload").
			WithCause(err)
	}
	return out, nil
}

// CompressedStorage wraps an inner Storage and transparently compresses
// blobs on the way in and decompresses them on the way out. Digests always
// address the original, uncompressed bytes, so the decorator never changes
// addressing.
type CompressedStorage struct {
	inner Storage
	level CompressionLevel
}

// NewCompressedStorage wraps inner with compression at the given level.
func NewCompressedStorage(inner Storage, level CompressionLevel) *CompressedStorage {
	return &CompressedStorage{inner: inner, level: level}
}

// Store compresses data before delegating to the inner backend.
func (s *CompressedStorage) Store(ctx context.Context, dgst digest.Digest, data []byte) error {
	compressed, err := Compress(data, s.level)
	if err != nil {
		return err
	}
	return s.inner.Store(ctx, dgst, compressed)
}

// Load retrieves and decompresses the blob for dgst.
func (s *CompressedStorage) Load(ctx context.Context, dgst digest.Digest) ([]byte, error) {
	compressed, err := s.inner.Load(ctx, dgst)
	if err != nil {
		return nil, err
	}
	return Decompress(compressed)
}

// Remove delegates to the inner backend.
func (s *CompressedStorage) Remove(ctx context.Context, dgst digest.Digest) error {
	return s.inner.Remove(ctx, dgst)
}

// Clear delegates to the inner backend.
func (s *CompressedStorage) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}

// AddressFor delegates to the inner backend; compression does not move blobs.
func (s *CompressedStorage) AddressFor(dgst digest.Digest) string {
	return s.inner.AddressFor(dgst)
}
