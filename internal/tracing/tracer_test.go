package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Tracer())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderNoneExporter(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, Exporter: "none", ServiceName: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	assert.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "test-span")
	span.End()
}

func TestNewProviderUnsupportedExporter(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter")
}
