package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMaxRegistrationsPerWindow is the default limit for client
	// registrations per caller identifier per window
	DefaultMaxRegistrationsPerWindow = 10

	// DefaultRegistrationWindow is the default time window for rate limiting (1 hour)
	DefaultRegistrationWindow = time.Hour

	// DefaultRegistrationCleanupInterval is how often the cleanup goroutine runs
	DefaultRegistrationCleanupInterval = 15 * time.Minute

	// DefaultMaxRegistrationEntries is the maximum number of identifiers to track
	DefaultMaxRegistrationEntries = 10000
)

// registrationEntry tracks registration timestamps for a caller identifier
type registrationEntry struct {
	identifier    string
	registrations []time.Time
	lastAccess    time.Time
}

// RegistrationRateLimiter provides time-windowed rate limiting for dynamic
// client registration to prevent registry exhaustion through repeated
// registrations. The identifier is supplied by the caller (typically the
// remote address or an API key of the registering party).
type RegistrationRateLimiter struct {
	entries         map[string]*list.Element // identifier -> list element
	lruList         *list.List               // LRU list of *registrationEntry
	mu              sync.RWMutex
	maxPerWindow    int
	window          time.Duration
	maxEntries      int
	logger          *slog.Logger
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	totalBlocked int64
	totalAllowed int64
}

// NewRegistrationRateLimiter creates a registration rate limiter with default settings
func NewRegistrationRateLimiter(logger *slog.Logger) *RegistrationRateLimiter {
	return NewRegistrationRateLimiterWithConfig(
		DefaultMaxRegistrationsPerWindow,
		DefaultRegistrationWindow,
		DefaultMaxRegistrationEntries,
		logger,
	)
}

// NewRegistrationRateLimiterWithConfig creates a registration rate limiter with custom configuration
func NewRegistrationRateLimiterWithConfig(maxPerWindow int, window time.Duration, maxEntries int, logger *slog.Logger) *RegistrationRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPerWindow <= 0 {
		maxPerWindow = DefaultMaxRegistrationsPerWindow
	}
	if window <= 0 {
		window = DefaultRegistrationWindow
	}
	if maxEntries < 0 {
		maxEntries = DefaultMaxRegistrationEntries
	}

	rl := &RegistrationRateLimiter{
		entries:         make(map[string]*list.Element),
		lruList:         list.New(),
		maxPerWindow:    maxPerWindow,
		window:          window,
		maxEntries:      maxEntries,
		logger:          logger,
		cleanupInterval: DefaultRegistrationCleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow checks if a registration from the given identifier is allowed.
// Returns true if allowed, false if the rate limit is exceeded.
func (rl *RegistrationRateLimiter) Allow(identifier string) bool {
	now := time.Now()
	windowStart := now.Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, exists := rl.entries[identifier]; exists {
		rl.lruList.MoveToFront(elem)
		entry := elem.Value.(*registrationEntry)
		entry.lastAccess = now

		// Drop timestamps outside the window (in-place filtering)
		n := 0
		for _, t := range entry.registrations {
			if t.After(windowStart) {
				entry.registrations[n] = t
				n++
			}
		}
		entry.registrations = entry.registrations[:n]

		if len(entry.registrations) >= rl.maxPerWindow {
			rl.totalBlocked++
			rl.logger.Warn("Client registration rate limit exceeded",
				"identifier", identifier,
				"registrations_in_window", len(entry.registrations),
				"max_per_window", rl.maxPerWindow,
				"window", rl.window)
			return false
		}

		entry.registrations = append(entry.registrations, now)
		rl.totalAllowed++
		return true
	}

	if rl.maxEntries > 0 && len(rl.entries) >= rl.maxEntries {
		rl.evictLRU()
	}

	entry := &registrationEntry{
		identifier:    identifier,
		registrations: []time.Time{now},
		lastAccess:    now,
	}

	elem := rl.lruList.PushFront(entry)
	rl.entries[identifier] = elem

	rl.totalAllowed++
	return true
}

// evictLRU removes the least recently used entry.
// Must be called with mutex locked.
func (rl *RegistrationRateLimiter) evictLRU() {
	elem := rl.lruList.Back()
	if elem != nil {
		entry := elem.Value.(*registrationEntry)
		delete(rl.entries, entry.identifier)
		rl.lruList.Remove(elem)
	}
}

// cleanupLoop periodically removes inactive entries to prevent memory leaks
func (rl *RegistrationRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// Cleanup removes entries that haven't been accessed in 2x the window duration
func (rl *RegistrationRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	maxIdleTime := rl.window * 2

	var next *list.Element
	for elem := rl.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*registrationEntry)

		if now.Sub(entry.lastAccess) > maxIdleTime {
			delete(rl.entries, entry.identifier)
			rl.lruList.Remove(elem)
		}
	}
}

// Stop gracefully stops the cleanup goroutine.
// Safe to call multiple times concurrently.
func (rl *RegistrationRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
