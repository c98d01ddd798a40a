package telemetry

import (
	"context"
	"log"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	ServiceName string
	Environment string
	SampleRatio float64
}

// Setup installs an OTLP trace exporter when OTEL_EXPORTER_OTLP_ENDPOINT is
// set and returns its shutdown func. Without an endpoint tracing is a no-op.
func Setup(ctx context.Context, cfg Config) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return noop
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true" {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		log.Printf("telemetry exporter service=%s error=%v", cfg.ServiceName, err)
		return noop
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName), semconv.ServiceNamespace("tosti")}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		log.Printf("telemetry resource service=%s error=%v", cfg.ServiceName, err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return provider.Shutdown
}

// Sampler samples every trace for ratios outside (0, 1) and otherwise keeps
// the parent's decision, sampling new roots by trace id.
func Sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

var routeParams = []struct {
	segment, param, key string
}{
	{"/shifts/{id}", "id", "tosti.shift.id"},
	{"/orders/{oid}", "oid", "tosti.order.id"},
	{"/players/{slug}", "slug", "tosti.player.slug"},
	{"/venues/{slug}", "slug", "tosti.venue.slug"},
	{"/products/{id}", "id", "tosti.product.id"},
	{"/reservations/{id}", "id", "tosti.reservation.id"},
	{"/borrel/{id}", "id", "tosti.borrel.id"},
}

// RouteAttributes names the matched route and the shift, order, player and
// similar ids its path carries. pattern is a ServeMux pattern, optionally
// prefixed with a method.
func RouteAttributes(pattern string, value func(string) string) []attribute.KeyValue {
	if pattern == "" {
		return nil
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		pattern = path
	}
	attrs := []attribute.KeyValue{semconv.HTTPRoute(pattern)}
	for _, p := range routeParams {
		if !strings.Contains(pattern, p.segment) {
			continue
		}
		if v := value(p.param); v != "" {
			attrs = append(attrs, attribute.String(p.key, v))
		}
	}
	return attrs
}

// Annotate adds attributes to the span carried by ctx, if any.
func Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
