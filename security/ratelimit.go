package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiterEntry tracks a limiter and its last access time.
type rateLimiterEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier token-bucket rate limiting with LRU
// eviction so tracking many distinct identifiers cannot grow memory without
// bound. Identifiers are typically client IPs.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*list.Element // identifier -> element in lruList
	lruList  *list.List               // front = most recently used

	rate       int
	burst      int
	maxEntries int

	logger          *slog.Logger
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// DefaultMaxRateLimiterEntries bounds the number of identifiers tracked at
// once. Beyond it, the least recently used identifier is evicted.
const DefaultMaxRateLimiterEntries = 10000

// NewRateLimiter creates a rate limiter allowing requestsPerSecond sustained
// requests per identifier with the given burst. A background goroutine
// discards identifiers idle for longer than an hour; call Stop to end it.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	rl := &RateLimiter{
		limiters:        make(map[string]*list.Element),
		lruList:         list.New(),
		rate:            requestsPerSecond,
		burst:           burst,
		maxEntries:      DefaultMaxRateLimiterEntries,
		logger:          logger,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether a request from the identifier is within its limit.
func (rl *RateLimiter) Allow(identifier string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.limiters[identifier]; ok {
		rl.lruList.MoveToFront(elem)
		entry := elem.Value.(*rateLimiterEntry)
		entry.lastAccess = now
		return entry.limiter.Allow()
	}

	if rl.maxEntries > 0 && len(rl.limiters) >= rl.maxEntries {
		rl.evictOldest()
	}

	entry := &rateLimiterEntry{
		identifier: identifier,
		limiter:    rate.NewLimiter(rate.Limit(rl.rate), rl.burst),
		lastAccess: now,
	}
	rl.limiters[identifier] = rl.lruList.PushFront(entry)

	return entry.limiter.Allow()
}

// evictOldest removes the least recently used entry. Caller holds the mutex.
func (rl *RateLimiter) evictOldest() {
	elem := rl.lruList.Back()
	if elem == nil {
		return
	}

	entry := elem.Value.(*rateLimiterEntry)
	delete(rl.limiters, entry.identifier)
	rl.lruList.Remove(elem)

	rl.logger.Debug("Rate limiter LRU eviction",
		"identifier", entry.identifier,
		"current_entries", len(rl.limiters))
}

// Stop ends the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.removeIdle(time.Hour)
		case <-rl.stopCleanup:
			return
		}
	}
}

// removeIdle discards identifiers that have not been seen for maxIdle.
func (rl *RateLimiter) removeIdle(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for elem := rl.lruList.Back(); elem != nil; {
		entry := elem.Value.(*rateLimiterEntry)
		if entry.lastAccess.After(cutoff) {
			// The list is in access order; everything further forward
			// is newer.
			break
		}
		prev := elem.Prev()
		delete(rl.limiters, entry.identifier)
		rl.lruList.Remove(elem)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.logger.Debug("Cleaned up idle rate limiters",
			"removed", removed,
			"current_entries", len(rl.limiters))
	}
}
