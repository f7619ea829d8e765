package db

// LevelMetrics reports the file count and total size of one LSM level.
type LevelMetrics struct {
	Level     int
	FileCount int
	Bytes     uint64
}

// MetricsSnapshot is a point-in-time view of an open database's internal
// counters and gauges. It is a plain struct, not a Prometheus type, so
// callers never need to import prometheus themselves; a database that
// wants to expose these over /metrics can still reach the underlying
// registry separately.
type MetricsSnapshot struct {
	MemTableBytes uint64
	Levels        []LevelMetrics

	CacheHits   uint64
	CacheMisses uint64

	FlushesTotal          uint64
	FlushErrorsTotal      uint64
	CompactionsTotal      uint64
	CompactionErrorsTotal uint64

	CompactionBytesRead    uint64
	CompactionBytesWritten uint64

	WALBytesSynced uint64
}
