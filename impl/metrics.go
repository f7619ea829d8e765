package impl

import (
	"sync/atomic"

	"github.com/augurdb/augur/db"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for one open database, plus a
// plain atomic counter mirroring each of the flush, compaction-count,
// compaction-byte and WAL counters (the compaction-duration histogram and
// the cache hit/miss counters have no mirror). Each dbImpl gets its own
// registry rather than the global default one, since a test binary may
// open many databases in the same process and Prometheus panics on
// duplicate registration of the same metric name.
//
// The atomic counters exist so DB.Metrics() can return a plain Go struct
// (db.MetricsSnapshot) without reaching into Prometheus internals; a host
// process that wants to scrape these over its own /metrics endpoint still
// has Registry() for that.
type Metrics struct {
	Registry *prometheus.Registry

	flushesTotal           prometheus.Counter
	flushErrorsTotal       prometheus.Counter
	compactionsTotal       prometheus.Counter
	compactionErrorsTotal  prometheus.Counter
	compactionBytesRead    prometheus.Counter
	compactionBytesWritten prometheus.Counter
	compactionSeconds      prometheus.Histogram
	walBytesSynced         prometheus.Counter
	cacheHits              prometheus.Counter
	cacheMisses            prometheus.Counter

	flushesTotalVal           atomic.Uint64
	flushErrorsTotalVal       atomic.Uint64
	compactionsTotalVal       atomic.Uint64
	compactionErrorsTotalVal  atomic.Uint64
	compactionBytesReadVal    atomic.Uint64
	compactionBytesWrittenVal atomic.Uint64
	walBytesSyncedVal         atomic.Uint64
}

func newMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		flushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "augur_flushes_total",
			Help: "Memtable flushes to level 0 that completed.",
		}),
		flushErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "augur_flush_errors_total",
			Help: "Memtable flushes that failed.",
		}),
		compactionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "augur_compactions_total",
			Help: "Background compactions that completed, including trivial moves.",
		}),
		compactionErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "augur_compaction_errors_total",
			Help: "Background compactions that failed.",
		}),
		compactionBytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "augur_compaction_bytes_read_total",
			Help: "Bytes of sstable input read by non-trivial compactions.",
		}),
		compactionBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "augur_compaction_bytes_written_total",
			Help: "Bytes of sstable output written by non-trivial compactions.",
		}),
		compactionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "augur_compaction_duration_seconds",
			Help:    "Wall time spent in non-trivial compaction runs.",
			Buckets: prometheus.DefBuckets,
		}),
		walBytesSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "augur_wal_bytes_synced_total",
			Help: "Bytes appended to the write-ahead log under a synchronous write.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "augur_cache_hits_total",
			Help: "Block and table cache lookups that found their entry.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "augur_cache_misses_total",
			Help: "Block and table cache lookups that missed.",
		}),
	}

	m.Registry.MustRegister(
		m.flushesTotal,
		m.flushErrorsTotal,
		m.compactionsTotal,
		m.compactionErrorsTotal,
		m.compactionBytesRead,
		m.compactionBytesWritten,
		m.compactionSeconds,
		m.walBytesSynced,
		m.cacheHits,
		m.cacheMisses,
	)

	return m
}

func (m *Metrics) incFlushes(err error) {
	if err != nil {
		m.flushErrorsTotal.Inc()
		m.flushErrorsTotalVal.Add(1)
	} else {
		m.flushesTotal.Inc()
		m.flushesTotalVal.Add(1)
	}
}

func (m *Metrics) incCompactions(err error) {
	if err != nil {
		m.compactionErrorsTotal.Inc()
		m.compactionErrorsTotalVal.Add(1)
	} else {
		m.compactionsTotal.Inc()
		m.compactionsTotalVal.Add(1)
	}
}

func (m *Metrics) addCompactionBytesRead(n uint64) {
	m.compactionBytesRead.Add(float64(n))
	m.compactionBytesReadVal.Add(n)
}

func (m *Metrics) addCompactionBytesWritten(n uint64) {
	m.compactionBytesWritten.Add(float64(n))
	m.compactionBytesWrittenVal.Add(n)
}

func (m *Metrics) observeCompactionSeconds(seconds float64) {
	m.compactionSeconds.Observe(seconds)
}

func (m *Metrics) addWALBytesSynced(n uint64) {
	m.walBytesSynced.Add(float64(n))
	m.walBytesSyncedVal.Add(n)
}

// Registry exposes the Prometheus registry scoped to this database, for a
// host process that wants to serve it under its own /metrics endpoint.
func (d *dbImpl) Registry() *prometheus.Registry {
	return d.metrics.Registry
}

// Metrics returns a point-in-time snapshot of the database's internal
// counters and gauges as a plain Go struct, so callers never need to
// import prometheus themselves.
func (d *dbImpl) Metrics() db.MetricsSnapshot {
	d.mu.Lock()
	memBytes := uint64(d.mem.ApproximateMemoryUsage())
	levels := d.versions.LevelMetrics()
	d.mu.Unlock()

	var cacheHits, cacheMisses uint64
	if d.bcache != nil {
		cacheHits += d.bcache.Hits()
		cacheMisses += d.bcache.Misses()
	}
	cacheHits += d.tableCache.Hits()
	cacheMisses += d.tableCache.Misses()

	return db.MetricsSnapshot{
		MemTableBytes: memBytes,
		Levels:        levels,

		CacheHits:   cacheHits,
		CacheMisses: cacheMisses,

		FlushesTotal:          d.metrics.flushesTotalVal.Load(),
		FlushErrorsTotal:      d.metrics.flushErrorsTotalVal.Load(),
		CompactionsTotal:      d.metrics.compactionsTotalVal.Load(),
		CompactionErrorsTotal: d.metrics.compactionErrorsTotalVal.Load(),

		CompactionBytesRead:    d.metrics.compactionBytesReadVal.Load(),
		CompactionBytesWritten: d.metrics.compactionBytesWrittenVal.Load(),

		WALBytesSynced: d.metrics.walBytesSyncedVal.Load(),
	}
}
