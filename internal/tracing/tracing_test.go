package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewWithExporter_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	p, err := NewWithExporter("test", exporter)
	require.NoError(t, err)

	_, span := p.Tracer("formflow-test").Start(context.Background(), "engine.send_action")
	span.End()

	// Spans are exported on End; the in-memory exporter drops them on shutdown.
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "engine.send_action", spans[0].Name)
	assert.Contains(t, spans[0].Resource.Attributes(), serviceNameAttr())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestSetup_Stdout(t *testing.T) {
	var buf bytes.Buffer
	p, err := Setup(true, "test", &buf)
	require.NoError(t, err)

	_, span := p.Tracer("formflow-test").Start(context.Background(), "engine.mark_opened")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "engine.mark_opened")
}

func TestSetup_Disabled(t *testing.T) {
	var buf bytes.Buffer
	p, err := Setup(false, "test", &buf)
	require.NoError(t, err)

	_, span := p.Tracer("formflow-test").Start(context.Background(), "engine.create_instance")
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, span.SpanContext().IsValid())
	assert.Empty(t, buf.String())
}

func serviceNameAttr() attribute.KeyValue {
	return attribute.String("service.name", ServiceName)
}
