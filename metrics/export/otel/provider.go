package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const scopeName = "github.com/pipelinedash/authcore"

// PushConfig describes where engine metrics are pushed.
type PushConfig struct {
	ServiceName string
	// EndpointURL is the OTLP/HTTP base URL, e.g. http://collector:4318.
	// The /v1/metrics path is appended when missing.
	EndpointURL string
	Interval    time.Duration
}

// Start pushes source's metrics over OTLP/HTTP every Interval. With no
// endpoint it does nothing. The returned function flushes and stops the
// provider.
func Start(ctx context.Context, cfg PushConfig, source Source) (func(context.Context) error, error) {
	if cfg.EndpointURL == "" {
		return func(context.Context) error { return nil }, nil
	}
	if source == nil {
		return nil, ErrNilSource
	}

	endpoint, err := metricsURL(cfg.EndpointURL)
	if err != nil {
		return nil, err
	}
	exporter, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	var readerOpts []metric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, metric.WithInterval(cfg.Interval))
	}
	provider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, readerOpts...)),
		metric.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		)),
	)

	engineExporter, err := NewExporterFromSource(provider.Meter(scopeName), source)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	return func(ctx context.Context) error {
		// Shutdown runs a last collection, so the callback must still be registered.
		return errors.Join(provider.Shutdown(ctx), engineExporter.Close())
	}, nil
}

func metricsURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid otlp endpoint %q", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/metrics"
	}
	return u.String(), nil
}
