package buffer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricHits        = "hits_total"
	MetricMisses      = "misses_total"
	MetricEvictions   = "evictions_total"
	MetricFlushes     = "flushes_total"
	MetricFlushErrors = "flush_errors_total"
	MetricResident    = "resident_pages"
	MetricPinned      = "pinned_pages"
)

// Metrics are the prometheus collectors a BufferPool updates.
type Metrics struct {
	Hits        prometheus.Counter
	Misses      prometheus.Counter
	Evictions   prometheus.Counter
	Flushes     prometheus.Counter
	FlushErrors prometheus.Counter
	Resident    prometheus.Gauge
	Pinned      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arraydb",
			Subsystem: "bufferpool",
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arraydb",
			Subsystem: "bufferpool",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		Hits:        counter(MetricHits, "Page requests served from a resident frame."),
		Misses:      counter(MetricMisses, "Page requests that needed a free or evicted frame."),
		Evictions:   counter(MetricEvictions, "Pages evicted to make room."),
		Flushes:     counter(MetricFlushes, "Dirty pages written to the page store."),
		FlushErrors: counter(MetricFlushErrors, "Failed page store writes."),
		Resident:    gauge(MetricResident, "Pages currently resident."),
		Pinned:      gauge(MetricPinned, "Resident pages with a non-zero pin count."),
	}
	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Evictions, m.Flushes, m.FlushErrors, m.Resident, m.Pinned)
	}
	return m
}
