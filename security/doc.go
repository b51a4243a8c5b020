// Package security provides the cross-cutting security facilities of the
// authorization server: audit logging with hashed PII, per-identifier rate
// limiting, client IP extraction, request IDs, and response security headers.
//
// The package is independent of the protocol engine; it only deals in
// identifiers and HTTP primitives.
package security
