package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown := Setup(context.Background(), Config{ServiceName: "tosti-test", Environment: "test", SampleRatio: 0.5})
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSampler(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
	}
	for _, tt := range cases {
		if got := Sampler(tt.ratio).Description(); got != tt.want {
			t.Fatalf("ratio %v: expected %s, got %s", tt.ratio, tt.want, got)
		}
	}
	if got := Sampler(0.25).Description(); got == "AlwaysOnSampler" {
		t.Fatalf("ratio 0.25 should not sample everything, got %s", got)
	}
}

func TestRouteAttributes(t *testing.T) {
	values := map[string]string{"id": "12", "oid": "7", "slug": "marietje"}
	lookup := func(name string) string { return values[name] }

	cases := []struct {
		pattern string
		want    map[attribute.Key]string
	}{
		{"", nil},
		{"GET /shifts/{id}", map[attribute.Key]string{"http.route": "/shifts/{id}", "tosti.shift.id": "12"}},
		{"PATCH /shifts/{id}/orders/{oid}", map[attribute.Key]string{"http.route": "/shifts/{id}/orders/{oid}", "tosti.shift.id": "12", "tosti.order.id": "7"}},
		{"GET /players/{slug}/queue", map[attribute.Key]string{"http.route": "/players/{slug}/queue", "tosti.player.slug": "marietje"}},
		{"/healthz", map[attribute.Key]string{"http.route": "/healthz"}},
	}
	for _, tt := range cases {
		t.Run(tt.pattern, func(t *testing.T) {
			attrs := RouteAttributes(tt.pattern, lookup)
			if len(attrs) != len(tt.want) {
				t.Fatalf("expected %d attributes, got %v", len(tt.want), attrs)
			}
			for _, attr := range attrs {
				if want, ok := tt.want[attr.Key]; !ok || attr.Value.AsString() != want {
					t.Fatalf("unexpected attribute %s=%s", attr.Key, attr.Value.Emit())
				}
			}
		})
	}
}
