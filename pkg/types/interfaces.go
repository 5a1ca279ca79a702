package types

// MetricsRecorder defines the metrics hooks the cache layer emits into.
// Implementations must tolerate being called from concurrent goroutines.
// A nil recorder is valid and disables collection.
type MetricsRecorder interface {
	RecordStore(rawSize, compressedSize int64)
	RecordHit()
	RecordMiss()
	RecordEviction(reason string)
	SetEntryCount(n int)
	SetTotalBytes(raw, compressed int64)
}
