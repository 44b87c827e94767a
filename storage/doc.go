// Package storage provides interfaces and types for OpenID Provider persistence.
//
// The storage package defines the core storage interfaces used throughout the
// oidc-core library:
//   - CodeStore: one-time authorization codes with atomic consumption
//   - TokenStore: access and refresh token metadata for introspection/revocation
//   - ClientStore: registered clients (relying parties)
//   - SessionStore: read-only access to authenticated session claims
//
// Implementations are provided in subpackages:
//   - storage/memory: in-memory storage for development, testing, and
//     single-process deployments
//
// Production deployments spanning multiple processes must supply a shared,
// externally consistent implementation; the atomicity contract on
// CodeStore.ConsumeAuthorizationCode is the critical requirement.
package storage
