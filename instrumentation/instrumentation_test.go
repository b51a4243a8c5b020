package instrumentation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	inst, err := New(Config{})
	require.NoError(t, err)

	require.NotNil(t, inst.Metrics())
	require.NotNil(t, inst.MeterProvider())
	require.NotNil(t, inst.TracerProvider())
	require.Equal(t, "authcore", inst.config.ServiceName)
	require.Equal(t, DefaultServiceVersion, inst.config.ServiceVersion)
}

func TestMetricsInstrumentsCreated(t *testing.T) {
	inst, err := New(Config{ServiceName: "test", ServiceVersion: "0.0.1"})
	require.NoError(t, err)

	m := inst.Metrics()
	require.NotNil(t, m.HTTPRequestsTotal)
	require.NotNil(t, m.HTTPRequestDuration)
	require.NotNil(t, m.AuthorizationRequests)
	require.NotNil(t, m.CodeIssued)
	require.NotNil(t, m.CodeExchanged)
	require.NotNil(t, m.TokenRefreshed)
	require.NotNil(t, m.TokenRevoked)
	require.NotNil(t, m.RateLimitExceeded)
	require.NotNil(t, m.PKCEValidationFailed)

	// Recording against the no-op provider must not panic.
	m.RecordHTTPRequest(context.Background(), "GET", "/healthz", 200, 1.5)
	m.RecordFlowEvent(context.Background(), m.CodeIssued, "client-1")
}

func TestShutdownRunsOnce(t *testing.T) {
	inst, err := New(Config{})
	require.NoError(t, err)

	calls := 0
	inst.OnShutdown(func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, inst.Shutdown(context.Background()))
	require.NoError(t, inst.Shutdown(context.Background()))
	require.Equal(t, 1, calls)
}

func TestShutdownReturnsFirstError(t *testing.T) {
	inst, err := New(Config{})
	require.NoError(t, err)

	first := fmt.Errorf("exporter flush failed")
	inst.OnShutdown(func(context.Context) error { return first })
	inst.OnShutdown(func(context.Context) error { return fmt.Errorf("second") })

	require.ErrorIs(t, inst.Shutdown(context.Background()), first)
}

func TestMeterAndTracerScopes(t *testing.T) {
	inst, err := New(Config{})
	require.NoError(t, err)

	require.NotNil(t, inst.Meter("http"))
	require.NotNil(t, inst.Tracer("server"))
}
