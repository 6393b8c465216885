// Package tracing exports spans over OTLP and instruments inbound and outbound HTTP.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"next2play/internal/config"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "next2play"

var ErrSampleRatio = errors.New("sample ratio must be between 0 and 1")

// Provider owns the SDK tracer provider. With export disabled it holds nothing
// and spans go to the global no-op provider.
type Provider struct {
	sdk *sdktrace.TracerProvider
}

func Setup(ctx context.Context, log *slog.Logger, cfg config.Tracing) (*Provider, error) {
	const op = "tracing.Setup"

	if cfg.Endpoint == "" {
		log.Info("span export disabled", slog.String("operation", op))
		return &Provider{}, nil
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("%s: %v: %w", op, cfg.SampleRatio, ErrSampleRatio)
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: otlp exporter: %w", op, err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName(instrumentation)))
	if err != nil {
		return nil, fmt.Errorf("%s: resource: %w", op, err)
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(sdk)

	log.Info("exporting spans",
		slog.String("operation", op),
		slog.String("endpoint", cfg.Endpoint),
		slog.Float64("sample_ratio", cfg.SampleRatio))

	return &Provider{sdk: sdk}, nil
}

// Shutdown flushes buffered spans. It is a no-op when export is disabled.
func (p *Provider) Shutdown(ctx context.Context) error {
	const op = "tracing.Shutdown"

	if p.sdk == nil {
		return nil
	}
	if err := p.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation).Start(ctx, name, opts...)
}

// Middleware opens a server span per request.
func Middleware(operation string) func(http.Handler) http.Handler {
	return otelhttp.NewMiddleware(operation)
}

// NewHTTPClient returns a client whose requests carry client spans.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
