package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes cache activity as Prometheus metrics. It satisfies
// types.MetricsRecorder and owns its own registry so embedding applications
// never collide with it.
type Collector struct {
	registry *prometheus.Registry

	storeCounter    prometheus.Counter
	hitCounter      prometheus.Counter
	missCounter     prometheus.Counter
	evictionCounter *prometheus.CounterVec

	entryCount      prometheus.Gauge
	rawBytes        prometheus.Gauge
	compressedBytes prometheus.Gauge

	storedRawBytes        prometheus.Counter
	storedCompressedBytes prometheus.Counter
}

// NewCollector builds a collector under the given namespace; empty defaults
// to "pycache".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "pycache"
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		storeCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_total",
			Help:      "Total number of store operations.",
		}),
		hitCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Total number of cache hits.",
		}),
		missCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "misses_total",
			Help:      "Total number of cache misses.",
		}),
		evictionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Total number of evictions by reason.",
		}, []string{"reason"}),
		entryCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entries",
			Help:      "Number of live cache entries.",
		}),
		rawBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "raw_bytes",
			Help:      "Total uncompressed size of live entries.",
		}),
		compressedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "compressed_bytes",
			Help:      "Total compressed size of live entries.",
		}),
		storedRawBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stored_raw_bytes_total",
			Help:      "Cumulative uncompressed bytes written.",
		}),
		storedCompressedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stored_compressed_bytes_total",
			Help:      "Cumulative compressed bytes written.",
		}),
	}

	registry.MustRegister(
		c.storeCounter,
		c.hitCounter,
		c.missCounter,
		c.evictionCounter,
		c.entryCount,
		c.rawBytes,
		c.compressedBytes,
		c.storedRawBytes,
		c.storedCompressedBytes,
	)
	return c
}

// RecordStore counts one store operation and its byte volumes.
func (c *Collector) RecordStore(rawSize, compressedSize int64) {
	c.storeCounter.Inc()
	c.storedRawBytes.Add(float64(rawSize))
	c.storedCompressedBytes.Add(float64(compressedSize))
}

// RecordHit counts one cache hit.
func (c *Collector) RecordHit() {
	c.hitCounter.Inc()
}

// RecordMiss counts one cache miss.
func (c *Collector) RecordMiss() {
	c.missCounter.Inc()
}

// RecordEviction counts one eviction under its reason label.
func (c *Collector) RecordEviction(reason string) {
	c.evictionCounter.WithLabelValues(reason).Inc()
}

// SetEntryCount publishes the live entry count.
func (c *Collector) SetEntryCount(n int) {
	c.entryCount.Set(float64(n))
}

// SetTotalBytes publishes the live raw and compressed byte totals.
func (c *Collector) SetTotalBytes(raw, compressed int64) {
	c.rawBytes.Set(float64(raw))
	c.compressedBytes.Set(float64(compressed))
}

// Registry exposes the underlying registry for callers that aggregate
// several collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler serving the metrics in exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
