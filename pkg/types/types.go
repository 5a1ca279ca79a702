package types

// CacheStats represents aggregate statistics for the persistent cache.
type CacheStats struct {
	TotalEntries        int     `json:"total_entries"`
	TotalSize           int64   `json:"total_size"`
	TotalCompressedSize int64   `json:"total_compressed_size"`
	CompressionRatio    float64 `json:"compression_ratio"`
}

// MemoryCacheStats represents performance counters for an in-memory cache.
type MemoryCacheStats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	HitRate   float64 `json:"hit_rate"`
}
