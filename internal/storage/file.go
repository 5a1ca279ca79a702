package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	cacheerrors "github.com/pycache/pycache/pkg/errors"
)

// FileStorage is the durable filesystem backend. Blobs live under the root
// directory sharded by the first two hex characters of their digest, which
// bounds per-directory fanout:
//
//	<root>/<hex[:2]>/<hex[2:]>
type FileStorage struct {
	root   string
	logger *slog.Logger
}

// NewFileStorage creates the root directory if needed and returns a backend
// over it.
func NewFileStorage(root string, logger *slog.Logger) (*FileStorage, error) {
	if root == "" {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeInvalidConfig, "storage root must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to create storage root").
			WithComponent("file-storage").WithCause(err)
	}

	return &FileStorage{
		root:   abs,
		logger: logger.With("component", "file-storage"),
	}, nil
}

// Root returns the backend's root directory.
func (s *FileStorage) Root() string {
	return s.root
}

// AddressFor returns the sharded on-disk path for dgst.
func (s *FileStorage) AddressFor(dgst digest.Digest) string {
	hex := dgst.Encoded()
	return filepath.Join(s.root, hex[:2], hex[2:])
}

// Store writes data atomically: a temp file in the shard directory followed
// by a rename, so readers never observe a partial blob.
func (s *FileStorage) Store(ctx context.Context, dgst digest.Digest, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := dgst.Validate(); err != nil {
		return cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "invalid digest").WithCause(err)
	}

	path := s.AddressFor(dgst)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to create shard directory").
			WithComponent("file-storage").WithCause(err)
	}

	tmp, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to create temp file").
			WithComponent("file-storage").WithCause(err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = os.Remove(tmpName)
		return cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to write blob").
			WithComponent("file-storage").WithCause(writeErr)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to commit blob").
			WithComponent("file-storage").WithCause(err)
	}

	return nil
}

// Load reads the blob for dgst.
func (s *FileStorage) Load(ctx context.Context, dgst digest.Digest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := dgst.Validate(); err != nil {
		return nil, errNotFound(dgst)
	}

	data, err := os.ReadFile(s.AddressFor(dgst))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errNotFound(dgst)
		}
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeStorageRead, "failed to read blob").
			WithComponent("file-storage").WithCause(err)
	}
	return data, nil
}

// Remove deletes the blob for dgst and prunes its shard directory when that
// was the last blob in it.
func (s *FileStorage) Remove(ctx context.Context, dgst digest.Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := dgst.Validate(); err != nil {
		return errNotFound(dgst)
	}

	path := s.AddressFor(dgst)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errNotFound(dgst)
		}
		return cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to remove blob").
			WithComponent("file-storage").WithCause(err)
	}

	// Empty shard directories are noise for directory walkers; drop them
	// opportunistically. Remove fails on non-empty directories, which is
	// exactly the condition for leaving them alone.
	_ = os.Remove(filepath.Dir(path))

	return nil
}

// Clear removes every blob, descending into shard subdirectories.
func (s *FileStorage) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to enumerate storage root").
			WithComponent("file-storage").WithCause(err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || !isShardName(entry.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			return cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to clear shard directory").
				WithComponent("file-storage").WithCause(err)
		}
	}

	return nil
}

// isShardName reports whether name looks like a two-character hex shard
// directory. The index file and other root-level files are left alone.
func isShardName(name string) bool {
	if len(name) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		c := name[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
