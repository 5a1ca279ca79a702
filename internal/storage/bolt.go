package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"
	bolt "go.etcd.io/bbolt"

	cacheerrors "github.com/pycache/pycache/pkg/errors"
)

var blobBucket = []byte("blobs")

// BoltStorage stores blobs in a single bbolt database file. It trades the
// file backend's one-file-per-blob layout for one mmap'd B+tree, which
// suits caches holding many small blobs (resolved dependency sets,
// environment snapshots).
type BoltStorage struct {
	db   *bolt.DB
	path string
}

// OpenBoltStorage opens or creates the database at path.
func OpenBoltStorage(path string) (*BoltStorage, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to open bolt database").
			WithComponent("bolt-storage").WithCause(err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blobBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to create blob bucket").
			WithComponent("bolt-storage").WithCause(err)
	}

	return &BoltStorage{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

// Store writes data under dgst in one transaction.
func (s *BoltStorage) Store(ctx context.Context, dgst digest.Digest, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(blobBucket).Put([]byte(dgst), data)
	})
	if err != nil {
		return cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to store blob").
			WithComponent("bolt-storage").WithCause(err)
	}
	return nil
}

// Load returns the blob for dgst.
func (s *BoltStorage) Load(ctx context.Context, dgst digest.Digest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(blobBucket).Get([]byte(dgst))
		if v == nil {
			return errNotFound(dgst)
		}
		// The slice is only valid inside the transaction.
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		if cacheerrors.IsNotFound(err) {
			return nil, err
		}
		return nil, cacheerrors.NewError(cacheerrors.ErrCodeStorageRead, "failed to load blob").
			WithComponent("bolt-storage").WithCause(err)
	}
	return data, nil
}

// Remove deletes the blob for dgst.
func (s *BoltStorage) Remove(ctx context.Context, dgst digest.Digest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(blobBucket)
		if b.Get([]byte(dgst)) == nil {
			return errNotFound(dgst)
		}
		return b.Delete([]byte(dgst))
	})
	if err != nil {
		if cacheerrors.IsNotFound(err) {
			return err
		}
		return cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to remove blob").
			WithComponent("bolt-storage").WithCause(err)
	}
	return nil
}

// Clear drops and recreates the blob bucket.
func (s *BoltStorage) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(blobBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(blobBucket)
		return err
	})
	if err != nil {
		return cacheerrors.NewError(cacheerrors.ErrCodeStorageWrite, "failed to clear blob bucket").
			WithComponent("bolt-storage").WithCause(err)
	}
	return nil
}

// AddressFor returns an opaque identifier; bolt blobs share one file.
func (s *BoltStorage) AddressFor(dgst digest.Digest) string {
	return fmt.Sprintf("bolt://%s#%s", s.path, dgst)
}
