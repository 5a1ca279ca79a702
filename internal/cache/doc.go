// Package cache provides the top-level caching layer: a generic in-process
// TTL+LRU cache, the persistent key → metadata index, and the Cache
// orchestrator that ties hashing, compression, and durable blob storage
// together behind a store/get/remove/clear surface.
package cache
