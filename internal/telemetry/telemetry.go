// Package telemetry initializes the OpenTelemetry metrics exporter.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options configures Init.
type Options struct {
	Endpoint    string
	Insecure    bool
	AuthToken   string
	ServiceName string
	Version     string
	Interval    time.Duration
}

// Shutdown flushes and stops the exporter.
type Shutdown func(ctx context.Context) error

// Init installs a global meter provider exporting over OTLP/HTTP. With an
// empty endpoint nothing is installed and instruments stay no-op, which is
// the normal case for a short-lived CLI invocation.
func Init(ctx context.Context, opts Options) (Shutdown, error) {
	if opts.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opts.ServiceName),
			semconv.ServiceVersionKey.String(opts.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	expOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(opts.Endpoint),
	}
	if opts.Insecure {
		expOpts = append(expOpts, otlpmetrichttp.WithInsecure())
	}
	if opts.AuthToken != "" {
		expOpts = append(expOpts, otlpmetrichttp.WithHeaders(map[string]string{
			"Authorization": "Bearer " + opts.AuthToken,
		}))
	}
	exp, err := otlpmetrichttp.New(ctx, expOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp,
				sdkmetric.WithInterval(opts.Interval),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}
