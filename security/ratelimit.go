package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMaxTrackedIdentifiers bounds the number of limiters kept in
	// memory; least recently used entries are evicted beyond it.
	DefaultMaxTrackedIdentifiers = 10000

	// limiterCleanupInterval is how often idle limiters are pruned.
	limiterCleanupInterval = 5 * time.Minute

	// limiterIdleTimeout is how long a limiter may sit unused before pruning.
	limiterIdleTimeout = 30 * time.Minute
)

// bucketEntry tracks one identifier's token bucket and its last use.
type bucketEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier rate limiting using a token bucket,
// with LRU eviction to keep memory bounded under distributed abuse.
type RateLimiter struct {
	mu       sync.RWMutex
	buckets  map[string]*list.Element
	lru      *list.List // of *bucketEntry, front = most recent
	rate     int
	burst    int
	maxSize  int
	logger   *slog.Logger
	stop     chan struct{}
	stopOnce sync.Once

	evictions int64
	cleanups  int64
}

// NewRateLimiter creates a rate limiter allowing requestsPerSecond sustained
// and burst peak per identifier, tracking at most
// DefaultMaxTrackedIdentifiers identifiers.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(requestsPerSecond, burst, DefaultMaxTrackedIdentifiers, logger)
}

// NewRateLimiterWithConfig creates a rate limiter with a custom identifier
// capacity. maxEntries of 0 means unlimited, which is not recommended outside
// tests. A background goroutine prunes idle limiters until Stop is called.
func NewRateLimiterWithConfig(requestsPerSecond, burst, maxEntries int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries < 0 {
		logger.Warn("Negative maxEntries, using default", "default", DefaultMaxTrackedIdentifiers)
		maxEntries = DefaultMaxTrackedIdentifiers
	}

	rl := &RateLimiter{
		buckets: make(map[string]*list.Element),
		lru:     list.New(),
		rate:    requestsPerSecond,
		burst:   burst,
		maxSize: maxEntries,
		logger:  logger,
		stop:    make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether a request from identifier may proceed now.
func (rl *RateLimiter) Allow(identifier string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.buckets[identifier]; ok {
		rl.lru.MoveToFront(elem)
		entry := elem.Value.(*bucketEntry)
		entry.lastAccess = now
		return entry.limiter.Allow()
	}

	if rl.maxSize > 0 && len(rl.buckets) >= rl.maxSize {
		rl.evictOldest()
	}

	entry := &bucketEntry{
		identifier: identifier,
		limiter:    rate.NewLimiter(rate.Limit(rl.rate), rl.burst),
		lastAccess: now,
	}
	rl.buckets[identifier] = rl.lru.PushFront(entry)

	return entry.limiter.Allow()
}

// evictOldest drops the least recently used entry. Caller holds the lock.
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}

	entry := elem.Value.(*bucketEntry)
	delete(rl.buckets, entry.identifier)
	rl.lru.Remove(elem)
	rl.evictions++

	rl.logger.Debug("Rate limiter LRU eviction",
		"identifier", entry.identifier,
		"total_evictions", rl.evictions,
		"current_entries", len(rl.buckets))
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(limiterIdleTimeout)
		case <-rl.stop:
			return
		}
	}
}

// Cleanup removes limiters that have not been used for maxIdleTime.
func (rl *RateLimiter) Cleanup(maxIdleTime time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	removed := 0

	var next *list.Element
	for elem := rl.lru.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*bucketEntry)

		if now.Sub(entry.lastAccess) > maxIdleTime {
			delete(rl.buckets, entry.identifier)
			rl.lru.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		rl.cleanups++
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.buckets),
			"total_cleanups", rl.cleanups)
	}
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
}

// Stats holds rate limiter statistics for monitoring.
type Stats struct {
	CurrentEntries int
	MaxEntries     int
	TotalEvictions int64
	TotalCleanups  int64
}

// GetStats returns current statistics, useful for sizing maxEntries.
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return Stats{
		CurrentEntries: len(rl.buckets),
		MaxEntries:     rl.maxSize,
		TotalEvictions: rl.evictions,
		TotalCleanups:  rl.cleanups,
	}
}
