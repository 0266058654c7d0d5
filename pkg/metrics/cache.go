package metrics

import "sync/atomic"

// CacheMetric counts hits and misses of a cache-like component.
type CacheMetric struct {
	name   string
	hits   int64
	misses int64
}

func newCacheMetric(name string) *CacheMetric {
	return &CacheMetric{name: name}
}

// Hit records a request served from shared work.
func (m *CacheMetric) Hit() {
	if enabled {
		atomic.AddInt64(&m.hits, 1)
	}
}

// Miss records a request that did its own work.
func (m *CacheMetric) Miss() {
	if enabled {
		atomic.AddInt64(&m.misses, 1)
	}
}

// Name returns the metric name.
func (m *CacheMetric) Name() string { return m.name }

// Hits returns the number of hits.
func (m *CacheMetric) Hits() int64 { return atomic.LoadInt64(&m.hits) }

// Misses returns the number of misses.
func (m *CacheMetric) Misses() int64 { return atomic.LoadInt64(&m.misses) }

// HitRate returns hits/(hits+misses), or 0 with no data.
func (m *CacheMetric) HitRate() float64 {
	h, mi := m.Hits(), m.Misses()
	if h+mi == 0 {
		return 0
	}
	return float64(h) / float64(h+mi)
}

// Reset clears the counters.
func (m *CacheMetric) Reset() {
	atomic.StoreInt64(&m.hits, 0)
	atomic.StoreInt64(&m.misses, 0)
}

// PageFetch tracks coalesced child page queries in the data source.
var PageFetch = newCacheMetric("page_fetch")

// AllCacheMetrics returns all registered cache metrics.
func AllCacheMetrics() []*CacheMetric {
	return []*CacheMetric{PageFetch}
}
