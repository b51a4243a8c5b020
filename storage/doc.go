// Package storage defines the persistence interfaces for the authorization
// server: authorization codes, refresh tokens, consents, and resource owners.
//
// Implementations must provide per-key atomicity for the two compound
// operations (code consumption and refresh-token consumption) so that
// concurrent redemption of the same secret can never succeed twice. See the
// interface documentation in storage.go for the exact contracts.
//
// Available backends:
//   - memory: mutex-guarded maps, for development and tests
//   - sqlite: modernc.org/sqlite, single-node durable storage
//   - postgres: lib/pq, shared storage for multi-instance deployments
package storage
