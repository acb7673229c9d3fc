package tracing

import (
	"context"
	"testing"

	"alertmanager/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabledIsNop(t *testing.T) {
	t.Parallel()

	provider, shutdown, err := NewProvider(context.Background(), config.TracingConfig{}, nil)
	require.NoError(t, err)
	_, span := provider.Tracer("x").Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))
}

func TestEndpointParts(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "otel:4318", endpointHost("http://otel:4318/v1/traces"))
	assert.Equal(t, "/v1/traces", endpointPath("http://otel:4318/v1/traces"))
	assert.Equal(t, "otel:4318", endpointHost("otel:4318"))
	assert.Equal(t, "", endpointPath("https://otel:4318/"))
}
