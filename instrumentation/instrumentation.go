package instrumentation

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceVersion is used when no version is provided.
const DefaultServiceVersion = "unknown"

// instrumentationScope prefixes meter and tracer names.
const instrumentationScope = "github.com/driftsec/authcore/"

// Config holds instrumentation configuration.
type Config struct {
	// ServiceName identifies this deployment in exported telemetry.
	ServiceName string

	// ServiceVersion is the running version.
	ServiceVersion string

	// Enabled controls whether instrumentation is active. When false,
	// no-op providers are used and recording costs nothing.
	Enabled bool

	// Resource allows custom resource attributes. If nil, a resource with
	// service name and version is created.
	Resource *resource.Resource
}

// Instrumentation holds the telemetry providers and the pre-created metric
// instruments.
type Instrumentation struct {
	config   Config
	resource *resource.Resource

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	metrics *Metrics

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

// New creates an instrumentation instance.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = "authcore"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = DefaultServiceVersion
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		config:         config,
		resource:       res,
		meterProvider:  noop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}

	var err error
	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	return inst, nil
}

// SetMeterProvider installs a real meter provider (for example an SDK
// provider with a Prometheus or OTLP exporter) and re-creates the metric
// instruments against it. Call before serving traffic.
func (i *Instrumentation) SetMeterProvider(mp metric.MeterProvider) error {
	if mp == nil {
		return fmt.Errorf("meter provider is required")
	}
	i.meterProvider = mp

	metrics, err := newMetrics(i)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}
	i.metrics = metrics
	return nil
}

// SetTracerProvider installs a real tracer provider.
func (i *Instrumentation) SetTracerProvider(tp trace.TracerProvider) {
	if tp != nil {
		i.tracerProvider = tp
	}
}

// OnShutdown registers a function run during Shutdown. Not safe for
// concurrent use with Shutdown; register everything during startup.
func (i *Instrumentation) OnShutdown(fn func(context.Context) error) {
	i.shutdownFuncs = append(i.shutdownFuncs, fn)
}

// Shutdown runs all registered shutdown functions once and returns the
// first error.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error

	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})

	return shutdownErr
}

// Meter returns a named meter for the given scope ("http", "server",
// "security").
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(instrumentationScope + scope)
}

// Tracer returns a named tracer for the given scope.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(instrumentationScope + scope)
}

// Metrics returns the metric instruments for recording.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}

// MeterProvider returns the underlying meter provider.
func (i *Instrumentation) MeterProvider() metric.MeterProvider {
	return i.meterProvider
}

// TracerProvider returns the underlying tracer provider.
func (i *Instrumentation) TracerProvider() trace.TracerProvider {
	return i.tracerProvider
}
