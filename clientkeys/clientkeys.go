// Package clientkeys resolves public keys registered by OAuth clients.
//
// Clients provide key material either as a jwks_uri pointing at a hosted JWK
// Set or as an inline jwks document in their registration metadata. The Cache
// resolves both through a single interface and keeps fetched sets for a short
// TTL so assertion verification and response encryption do not hit the
// client's JWKS endpoint on every request.
package clientkeys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/giantswarm/oidc-core/instrumentation"
	"github.com/giantswarm/oidc-core/internal/util"
)

const (
	// DefaultTTL is how long a fetched JWK Set is served from the cache.
	DefaultTTL = 5 * time.Minute

	// maxJWKSResponseSize caps the size of a fetched JWKS document (1 MB).
	// Protects against malicious or misconfigured endpoints.
	maxJWKSResponseSize = 1 << 20
)

// cacheEntry holds a parsed JWK Set and when it was fetched.
type cacheEntry struct {
	set       jwk.Set
	fetchedAt time.Time
}

// Cache fetches and caches client JWK Sets, keyed by source.
//
// A source is either an HTTPS URL (the client's jwks_uri) or an inline JWKS
// JSON document. Expired entries are refetched; a stale entry is never served,
// so a client key rotation takes effect within the TTL.
type Cache struct {
	httpClient *http.Client
	ttl        time.Duration
	logger     *slog.Logger
	metrics    *instrumentation.Metrics

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewCache creates a client key cache. A nil httpClient falls back to a
// client with a 10-second timeout; ttl <= 0 falls back to DefaultTTL.
func NewCache(httpClient *http.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		httpClient: httpClient,
		ttl:        ttl,
		logger:     logger,
		entries:    make(map[string]*cacheEntry),
	}
}

// SetMetrics attaches instrumentation for cache lookup metrics.
func (c *Cache) SetMetrics(metrics *instrumentation.Metrics) {
	c.metrics = metrics
}

// Get returns the JWK Set for the given source, fetching it if the cached
// copy is missing or older than the TTL. Inline JSON documents (sources
// starting with "{") are parsed rather than fetched.
func (c *Cache) Get(ctx context.Context, source string) (jwk.Set, error) {
	if source == "" {
		return nil, fmt.Errorf("no JWKS source")
	}

	c.mu.Lock()
	entry, ok := c.entries[source]
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		set := entry.set
		c.mu.Unlock()
		c.metrics.RecordJWKSCacheLookup(ctx, "hit")
		return set, nil
	}
	c.mu.Unlock()

	set, err := c.load(ctx, source)
	if err != nil {
		c.metrics.RecordJWKSCacheLookup(ctx, "error")
		return nil, err
	}
	c.metrics.RecordJWKSCacheLookup(ctx, "miss")

	c.mu.Lock()
	c.entries[source] = &cacheEntry{set: set, fetchedAt: time.Now()}
	c.mu.Unlock()

	return set, nil
}

// Invalidate drops the cached entry for a source, forcing a refetch on the
// next Get. Called when a client updates its registered key material.
func (c *Cache) Invalidate(source string) {
	c.mu.Lock()
	delete(c.entries, source)
	c.mu.Unlock()
}

// load fetches or parses the JWK Set depending on the source form.
func (c *Cache) load(ctx context.Context, source string) (jwk.Set, error) {
	if strings.HasPrefix(strings.TrimSpace(source), "{") {
		set, err := jwk.Parse([]byte(source))
		if err != nil {
			return nil, fmt.Errorf("failed to parse inline JWKS: %w", err)
		}
		return set, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close JWKS response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS response: %w", err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWKS from %s: %w", util.SafeTruncate(source, 64), err)
	}

	c.logger.Debug("fetched client JWKS",
		"source", util.SafeTruncate(source, 64),
		"keys", set.Len(),
	)

	return set, nil
}
