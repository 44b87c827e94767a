// Package memory provides an in-memory implementation of the OpenID Provider
// storage interfaces.
//
// This package implements CodeStore, TokenStore, ClientStore, and SessionStore
// using Go's built-in maps with mutex protection for thread safety. It is
// suitable for development, testing, and single-process deployments where
// persistence is not required.
//
// Features:
//   - Thread-safe operations using sync.RWMutex
//   - Atomic authorization code consumption under the write lock
//   - Automatic cleanup of expired codes and tokens
//   - Configurable cleanup intervals
//   - OpenTelemetry spans and metrics via SetInstrumentation
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, _ := server.New(store, store, store, store, km, config, logger)
package memory
