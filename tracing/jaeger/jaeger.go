package jaeger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"

	"github.com/pure-golang/smtpmail/tracing"
)

var _ tracing.Provider = (*Provider)(nil)

// Config describes the OTLP/HTTP collector, usually Jaeger. Tracing is off
// while EndPoint is empty.
type Config struct {
	EndPoint    string        `envconfig:"TRACING_ENDPOINT"` // http://jaeger:4318/v1/traces
	ServiceName string        `envconfig:"SERVICE_NAME" default:"smtpsend"`
	AppVersion  string        `envconfig:"APP_VERSION" default:"dev"`
	Timeout     time.Duration `envconfig:"TRACING_TIMEOUT" default:"5s"`
}

func (c Config) Enabled() bool {
	return c.EndPoint != ""
}

// Provider extends tracesdk.TraceProvider based on an OTLP exporter.
type Provider struct {
	*tracesdk.TracerProvider
	timeout time.Duration
}

// Close flushes buffered spans and shuts the exporter down. A CLI exits
// right after, so spans not flushed here are lost.
func (j *Provider) Close() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	if err := j.ForceFlush(ctx); err != nil {
		// Ensure shutdown is called even if ForceFlush fails
		shutdownErr := j.TracerProvider.Shutdown(ctx)
		if shutdownErr != nil {
			return errors.Wrap(err, "jaeger force flush failed (also shutdown failed)")
		}
		return errors.Wrap(err, "jaeger force flush failed")
	}
	err := j.TracerProvider.Shutdown(ctx)

	return errors.Wrap(err, "shutdown jaeger")
}

func NewProviderBuilder(conf Config) tracing.ProviderBuilder {
	return func() (tracing.Provider, error) {
		if conf.EndPoint == "" {
			return nil, errors.New("empty connection string")
		}
		if conf.ServiceName == "" {
			return nil, errors.New("service name is empty")
		}

		opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(conf.EndPoint)}
		if conf.Timeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(conf.Timeout))
		}
		exp, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create jaeger instance")
		}

		tp := tracesdk.NewTracerProvider(
			tracesdk.WithBatcher(exp),
			tracesdk.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceNameKey.String(conf.ServiceName),
				semconv.ServiceVersionKey.String(conf.AppVersion),
			)),
			tracesdk.WithSampler(tracesdk.AlwaysSample()),
		)

		return &Provider{TracerProvider: tp, timeout: conf.Timeout}, nil
	}
}
