// Package instrumentation provides OpenTelemetry instrumentation for the
// authorization server: counters and histograms for the HTTP layer, the
// protocol flows, and security events.
//
// When disabled (the default), no-op providers are used and recording has
// zero overhead. Enable it and plug an exporter through Config.Resource and
// the returned providers.
//
// Available metrics:
//
//	auth.http.requests.total{method, route, status}
//	auth.http.request.duration{route}
//	auth.authorization.requests{client_id}
//	auth.code.issued{client_id}
//	auth.code.exchanged{client_id}
//	auth.token.refreshed{client_id}
//	auth.token.revoked{client_id}
//	auth.user.registered
//	auth.rate_limit.exceeded
//	auth.pkce.validation_failed{client_id}
//	auth.login.failed
//
// Cardinality note: client_id labels are bounded by the static client
// registry, so per-client series stay small.
package instrumentation
