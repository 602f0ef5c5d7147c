package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/jdm7dv/zentity-security/pkg/cache"
	"github.com/jdm7dv/zentity-security/pkg/cache/memorycache"
)

// Collector collects and aggregates metrics for the security engine.
type Collector struct {
	// Per-operation metrics
	opRequests sync.Map // map[string]*uint64 - operation -> count
	opErrors   sync.Map // map[string]*uint64 - operation -> error count
	opDuration sync.Map // map[string]*durationValue - operation -> total duration in seconds

	// Authorize decision outcomes
	decisionsAllowed uint64
	decisionsDenied  uint64

	// Cache reference (optional, for querying directory cache metrics)
	cache cache.Cache
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds directory cache performance metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	Evictions   uint64
}

// OperationMetrics holds per-operation request metrics.
type OperationMetrics struct {
	RequestCounts        map[string]uint64
	ErrorCounts          map[string]uint64
	TotalDurationSeconds map[string]float64
}

// DecisionMetrics holds authorize outcome counts.
type DecisionMetrics struct {
	Allowed uint64
	Denied  uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache instance for collecting cache metrics.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// RecordRequest records a facade operation call.
func (c *Collector) RecordRequest(operation string) {
	counter := c.getOrCreateCounter(&c.opRequests, operation)
	atomic.AddUint64(counter, 1)
}

// RecordError records a facade operation error.
func (c *Collector) RecordError(operation string) {
	counter := c.getOrCreateCounter(&c.opErrors, operation)
	atomic.AddUint64(counter, 1)
}

// RecordDuration records the duration of an operation in seconds.
func (c *Collector) RecordDuration(operation string, durationSeconds float64) {
	val, _ := c.opDuration.LoadOrStore(operation, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RecordDecision records an authorize outcome. Denials are normal outcomes,
// not errors; they are counted separately from operation errors.
func (c *Collector) RecordDecision(allowed bool) {
	if allowed {
		atomic.AddUint64(&c.decisionsAllowed, 1)
	} else {
		atomic.AddUint64(&c.decisionsDenied, 1)
	}
}

// GetDecisionMetrics returns current authorize outcome counts.
func (c *Collector) GetDecisionMetrics() *DecisionMetrics {
	return &DecisionMetrics{
		Allowed: atomic.LoadUint64(&c.decisionsAllowed),
		Denied:  atomic.LoadUint64(&c.decisionsDenied),
	}
}

// GetCacheMetrics returns current directory cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	metrics := c.cache.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	result := &CacheMetrics{
		Hits:      metrics.Hits,
		Misses:    metrics.Misses,
		HitRate:   metrics.HitRate(),
		Evictions: metrics.KeysEvicted,
	}

	if memCache, ok := c.cache.(*memorycache.Cache); ok {
		result.KeysCurrent = int64(memCache.Len())
	}

	return result
}

// GetOperationMetrics returns current per-operation metrics.
func (c *Collector) GetOperationMetrics() *OperationMetrics {
	result := &OperationMetrics{
		RequestCounts:        make(map[string]uint64),
		ErrorCounts:          make(map[string]uint64),
		TotalDurationSeconds: make(map[string]float64),
	}

	c.opRequests.Range(func(key, value interface{}) bool {
		result.RequestCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})

	c.opErrors.Range(func(key, value interface{}) bool {
		result.ErrorCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})

	c.opDuration.Range(func(key, value interface{}) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
