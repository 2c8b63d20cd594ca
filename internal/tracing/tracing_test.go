package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.False(t, p.Enabled())
	_, span := p.Tracer().Start(context.Background(), "x")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.Error(t, Config{Exporter: "file"}.Validate())
	require.Error(t, Config{SampleRate: 2}.Validate())

	_, err := NewProvider(context.Background(), Config{Enabled: true, Exporter: "carrier-pigeon"})
	require.ErrorContains(t, err, "unsupported exporter")
}

func TestInMemoryExporterRecordsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p := NewWithExporter(exp)
	_, span := p.Tracer().Start(context.Background(), "registry.save_generated")
	span.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "registry.save_generated", spans[0].Name)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNilProviderIsSafe(t *testing.T) {
	var p *Provider
	require.False(t, p.Enabled())
	_, span := p.Tracer().Start(context.Background(), "x")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}
