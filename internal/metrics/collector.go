// Package metrics implements the gateway's counter and latency collector
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Well-known counter names used across the gateway.
const (
	CounterTotalRequests = "total_requests"
	CounterCacheHits     = "cache_hits"
	CounterCacheMisses   = "cache_misses"
	CounterCacheErrors   = "cache_errors"
	CounterAuthFailures  = "auth_failures"
	CounterFallbackCalls = "fallback_calls"
	CounterExhausted     = "all_backends_exhausted"
)

// Backend labels for duration samples and per-backend counters.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Percentiles summarizes the recent latency window of one backend
type Percentiles struct {
	P50     int64 `json:"p50_ms"`
	P95     int64 `json:"p95_ms"`
	P99     int64 `json:"p99_ms"`
	Samples int   `json:"samples"`
}

// Snapshot is the full queryable metrics state
type Snapshot struct {
	Counters            map[string]int64       `json:"counters"`
	Percentiles         map[string]Percentiles `json:"percentiles"`
	CacheHitRate        float64                `json:"cache_hit_rate"`
	TierDistribution    map[string]float64     `json:"tier_distribution"`
	BackendDistribution map[string]float64     `json:"backend_distribution"`
	Uptime              string                 `json:"uptime"`
}

// Collector tracks named counters and bounded per-backend latency windows.
// Percentiles and ratios are computed at snapshot time from raw counters so
// incremental drift cannot accumulate.
type Collector struct {
	mutex      sync.RWMutex
	counters   map[string]int64
	samples    map[string][]time.Duration
	windowSize int
	startTime  time.Time
}

// NewCollector creates a collector with the given latency window size per
// backend label (default 100).
func NewCollector(windowSize int) *Collector {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &Collector{
		counters:   make(map[string]int64),
		samples:    make(map[string][]time.Duration),
		windowSize: windowSize,
		startTime:  time.Now(),
	}
}

// Increment adds amount to a named counter
func (c *Collector) Increment(name string, amount int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.counters[name] += amount
}

// Get returns the current value of a counter
func (c *Collector) Get(name string) int64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.counters[name]
}

// RecordDuration appends a latency sample for a backend label, evicting the
// oldest sample once the window is full.
func (c *Collector) RecordDuration(backend string, d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	window := c.samples[backend]
	window = append(window, d)
	if len(window) > c.windowSize {
		window = window[len(window)-c.windowSize:]
	}
	c.samples[backend] = window
	c.counters["backend_requests."+backend]++
}

// RecordTier counts a classification outcome
func (c *Collector) RecordTier(tier string) {
	c.Increment("tier."+tier, 1)
}

// RecordBackendError counts a failed backend invocation
func (c *Collector) RecordBackendError(backend string) {
	c.Increment("backend_errors."+backend, 1)
}

// Snapshot computes the full metrics view
func (c *Collector) Snapshot() Snapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	counters := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		counters[k] = v
	}

	percentiles := make(map[string]Percentiles, len(c.samples))
	for backend, window := range c.samples {
		percentiles[backend] = computePercentiles(window)
	}

	return Snapshot{
		Counters:            counters,
		Percentiles:         percentiles,
		CacheHitRate:        ratio(counters[CounterCacheHits], counters[CounterCacheHits]+counters[CounterCacheMisses]),
		TierDistribution:    distribution(counters, "tier."),
		BackendDistribution: distribution(counters, "backend_requests."),
		Uptime:              time.Since(c.startTime).Round(time.Second).String(),
	}
}

func computePercentiles(window []time.Duration) Percentiles {
	if len(window) == 0 {
		return Percentiles{}
	}

	sorted := make([]time.Duration, len(window))
	copy(sorted, window)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return Percentiles{
		P50:     percentile(sorted, 0.50).Milliseconds(),
		P95:     percentile(sorted, 0.95).Milliseconds(),
		P99:     percentile(sorted, 0.99).Milliseconds(),
		Samples: len(sorted),
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func ratio(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

func distribution(counters map[string]int64, prefix string) map[string]float64 {
	var total int64
	for name, v := range counters {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			total += v
		}
	}

	dist := make(map[string]float64)
	if total == 0 {
		return dist
	}
	for name, v := range counters {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			dist[name[len(prefix):]] = float64(v) / float64(total)
		}
	}
	return dist
}
