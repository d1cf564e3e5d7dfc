package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	d := Defaults()

	assert.Equal(t, "ticket_processing", d.QueueName)
	assert.Equal(t, "ticket_processing_dlx", d.DLXName)
	assert.Equal(t, 1, d.PrefetchCount)
	assert.Equal(t, 3, d.MaxRetries)
	assert.Equal(t, 300, d.StaleProcessingThresholdSeconds)
	assert.Equal(t, 60, d.LLMTimeoutSeconds)
	assert.Equal(t, 2, d.LLMMaxRetries)
	assert.True(t, d.UseAgentWorkflow)
}

func TestLoadWithoutConfigFile(t *testing.T) {
	v := viper.New()
	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, Defaults().QueueName, cfg.QueueName)
	assert.Equal(t, Defaults().WorkerID, cfg.WorkerID)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
worker_id: worker-test-7
max_retries: 5
use_agent_workflow: false
tracing:
  enabled: true
  exporter: none
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	cfg, err := Load(v, path)
	require.NoError(t, err)

	assert.Equal(t, "worker-test-7", cfg.WorkerID)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.False(t, cfg.UseAgentWorkflow)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "none", cfg.Tracing.Exporter)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, Defaults().QueueName, cfg.QueueName)
	assert.Equal(t, Defaults().PrefetchCount, cfg.PrefetchCount)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TICKETFLOW_QUEUE_NAME", "tickets_env")
	t.Setenv("TICKETFLOW_PREFETCH_COUNT", "2")

	v := viper.New()
	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, "tickets_env", cfg.QueueName)
	assert.Equal(t, 2, cfg.PrefetchCount)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "5m0s", cfg.StaleProcessingThreshold().String())
	assert.Equal(t, "30s", cfg.HeartbeatInterval().String())
	assert.Equal(t, "1m0s", cfg.LLMTimeout().String())
}
