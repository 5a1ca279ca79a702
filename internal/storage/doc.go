/*
Package storage implements the content-addressed storage layer behind the
pycache cache.

Every backend and decorator implements one narrow Storage contract keyed by
SHA-256 content digests. Backends hold bytes (FileStorage on disk with
two-level path sharding, MemoryStorage in process, BoltStorage in a bbolt
file, s3.ObjectStorage in an object store); decorators wrap any Storage to
add one orthogonal behavior while preserving the interface:

	CompressedStorage  compress on write, decompress on read
	IndexedStorage     string key → digest mapping
	LRUStorage         bounded membership with LRU eviction
	LayeredStorage     fast tier over durable tier, write-through with
	                   read promotion

Decorators compose freely, e.g. an LRU-bounded memory tier over a
compressed file tier:

	fast, _ := storage.NewLRUStorage(storage.NewMemoryStorage(0), 1024, nil)
	durable, _ := storage.NewFileStorage("/var/cache/pycache", nil)
	tiered := storage.NewLayeredStorage(
		fast,
		storage.NewCompressedStorage(durable, storage.CompressionDefault),
		nil,
	)

Content addressing makes blobs logically immutable: a digest always refers
to the same uncompressed bytes, and storing identical content twice
deduplicates implicitly.
*/
package storage
