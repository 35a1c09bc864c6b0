// Package instrument holds the run's in-process instrumentation
// counters: extraction memoization hits/misses, diagram template cache
// hits/misses, and walk volume. Counters are Prometheus collectors on
// a private registry that is never served over HTTP — a run opens no
// sockets.
// Snapshot exposes the counters read-only for the run summary.
package instrument

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter a run maintains. One value is created
// per run and threaded through the orchestrator; there is no ambient
// singleton.
type Metrics struct {
	registry *prometheus.Registry

	ExtractionCacheHits   prometheus.Counter
	ExtractionCacheMisses prometheus.Counter
	DiagramCacheHits      prometheus.Counter
	DiagramCacheMisses    prometheus.Counter
	FilesWalked           prometheus.Counter
	ExtractionSeconds     prometheus.Histogram
}

// New creates the per-run metric set on a fresh private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ExtractionCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codetrail_extraction_cache_hits_total",
			Help: "Extractor event blobs reused from the content-addressed cache.",
		}),
		ExtractionCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codetrail_extraction_cache_misses_total",
			Help: "Files reparsed because no cached event blob matched their digest.",
		}),
		DiagramCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codetrail_diagram_cache_hits_total",
			Help: "Diagram templates reused from a prior run by cache key.",
		}),
		DiagramCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codetrail_diagram_cache_misses_total",
			Help: "Diagram templates regenerated this run.",
		}),
		FilesWalked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codetrail_files_walked_total",
			Help: "Files the walker emitted as FileRecords this run.",
		}),
		ExtractionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codetrail_extraction_duration_seconds",
			Help:    "Wall-clock time spent extracting entities per file.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.ExtractionCacheHits,
		m.ExtractionCacheMisses,
		m.DiagramCacheHits,
		m.DiagramCacheMisses,
		m.FilesWalked,
		m.ExtractionSeconds,
	)

	return m
}

// Snapshot gathers every counter into a sorted name→value map for the
// run summary. Histograms contribute their sample count.
func (m *Metrics) Snapshot() ([]string, map[string]float64) {
	out := make(map[string]float64)

	families, err := m.registry.Gather()
	if err != nil {
		return nil, out
	}

	for _, fam := range families {
		for _, metric := range fam.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				out[fam.GetName()] = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				out[fam.GetName()+"_count"] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	names := make([]string, 0, len(out))
	for name := range out {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, out
}
