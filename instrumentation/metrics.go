package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments for the authorization server.
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Protocol flows
	AuthorizationRequests metric.Int64Counter
	CodeIssued            metric.Int64Counter
	CodeExchanged         metric.Int64Counter
	TokenRefreshed        metric.Int64Counter
	TokenRevoked          metric.Int64Counter
	UserRegistered        metric.Int64Counter

	// Security
	RateLimitExceeded    metric.Int64Counter
	PKCEValidationFailed metric.Int64Counter
	LoginFailed          metric.Int64Counter
}

// newMetrics creates all metric instruments against the current provider.
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}
	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")

	var err error
	m.HTTPRequestsTotal, err = httpMeter.Int64Counter(
		"auth.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http.requests.total counter: %w", err)
	}

	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"auth.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http.request.duration histogram: %w", err)
	}

	m.AuthorizationRequests, err = serverMeter.Int64Counter(
		"auth.authorization.requests",
		metric.WithDescription("Number of authorization requests received"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create authorization.requests counter: %w", err)
	}

	m.CodeIssued, err = serverMeter.Int64Counter(
		"auth.code.issued",
		metric.WithDescription("Number of authorization codes issued"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create code.issued counter: %w", err)
	}

	m.CodeExchanged, err = serverMeter.Int64Counter(
		"auth.code.exchanged",
		metric.WithDescription("Number of authorization codes exchanged for tokens"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create code.exchanged counter: %w", err)
	}

	m.TokenRefreshed, err = serverMeter.Int64Counter(
		"auth.token.refreshed",
		metric.WithDescription("Number of refresh token rotations"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create token.refreshed counter: %w", err)
	}

	m.TokenRevoked, err = serverMeter.Int64Counter(
		"auth.token.revoked",
		metric.WithDescription("Number of refresh tokens revoked"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create token.revoked counter: %w", err)
	}

	m.UserRegistered, err = serverMeter.Int64Counter(
		"auth.user.registered",
		metric.WithDescription("Number of resource owners registered"),
		metric.WithUnit("{user}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create user.registered counter: %w", err)
	}

	m.RateLimitExceeded, err = securityMeter.Int64Counter(
		"auth.rate_limit.exceeded",
		metric.WithDescription("Number of rate limit violations"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rate_limit.exceeded counter: %w", err)
	}

	m.PKCEValidationFailed, err = securityMeter.Int64Counter(
		"auth.pkce.validation_failed",
		metric.WithDescription("Number of PKCE verification failures"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pkce.validation_failed counter: %w", err)
	}

	m.LoginFailed, err = securityMeter.Int64Counter(
		"auth.login.failed",
		metric.WithDescription("Number of failed resource owner logins"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create login.failed counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records one served request with its duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, durationMs,
		metric.WithAttributes(attribute.String("route", route)))
}

// RecordFlowEvent adds one to a flow counter with the client_id attribute.
func (m *Metrics) RecordFlowEvent(ctx context.Context, counter metric.Int64Counter, clientID string) {
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}
