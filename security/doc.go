// Package security provides cross-cutting security functionality for the
// OpenID Provider core: audit logging with PII hashing, per-identifier rate
// limiting, and clock-skew-aware expiry checks.
//
// # Audit logging
//
// The Auditor records security-relevant events (token issuance, client
// authentication failures, logout notifications) through slog. User
// identifiers are hashed before logging so audit trails never contain raw
// PII. Auditing is opt-in; a disabled Auditor is a no-op.
//
// # Rate limiting
//
// RateLimiter throttles per identifier using token buckets
// (golang.org/x/time/rate) with LRU eviction. RegistrationRateLimiter applies
// a time-windowed count for dynamic client registration, which has a much
// lower legitimate rate than token requests.
//
// Both limiters run a background cleanup goroutine; call Stop when done.
package security
