package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochoaughini/Cognition-Lattice/logging"
	"github.com/ochoaughini/Cognition-Lattice/supervisor"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lattice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "inmem", cfg.Broker.Kind)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Broker.URL)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Runtime.TaskTimeout)
	assert.Equal(t, 16, cfg.Engine.MaxConcurrent)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := writeFile(t, `
broker:
  kind: nats
  url: nats://broker:4222
runtime:
  task_timeout: 5s
  task_retries: 3
  retry_backoff: exponential
log:
  level: debug
  format: text
schedules:
  - name: beat
    cron: "*/5 * * * *"
    intent:
      intent: echo
      args: {beat: true}
`)
	t.Setenv("BROKER_URL", "nats://override:4222")
	t.Setenv("LATTICE_MAX_CONCURRENT", "4")
	t.Setenv("LATTICE_OPENAI_ENABLED", "true")
	t.Setenv("LATTICE_OPENAI_MODEL", "gpt-4o")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats", cfg.Broker.Kind)
	assert.Equal(t, "nats://override:4222", cfg.Broker.URL)
	assert.Equal(t, 5*time.Second, cfg.Runtime.TaskTimeout)
	assert.Equal(t, 4, cfg.Engine.MaxConcurrent)
	assert.True(t, cfg.Models.OpenAI.Enabled)
	assert.Equal(t, "gpt-4o", cfg.Models.OpenAI.Model)
	require.Len(t, cfg.Schedules, 1)
	assert.Equal(t, "echo", cfg.Schedules[0].Intent["intent"])

	policy := cfg.RetryPolicy()
	assert.Equal(t, 3, policy.Attempts)
	assert.Equal(t, supervisor.BackoffExponential, policy.Backoff)
	assert.Equal(t, 5*time.Second, policy.AttemptTimeout)

	assert.Equal(t, logging.LogLevelDebug, cfg.Logger().Level())
}

func TestLoadGatewayAuth(t *testing.T) {
	path := writeFile(t, `
gateway:
  api_key: from-file
  allowed_origins: [https://app.example]
`)
	t.Setenv("LATTICE_GATEWAY_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Gateway.APIKey)
	assert.Equal(t, []string{"https://app.example"}, cfg.Gateway.AllowedOrigins)
}

func TestLoadNormalizesBrokerKind(t *testing.T) {
	t.Setenv("MESSAGE_BROKER", "memory")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "inmem", cfg.Broker.Kind)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeFile(t, "broker: [1, 2"))
	assert.ErrorContains(t, err, "parse config")

	t.Setenv("LATTICE_TASK_RETRIES", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "parse environment")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Broker.Kind = "kafka"
	cfg.Runtime.TaskRetries = 0
	cfg.Runtime.RetryBackoff = "linear"
	cfg.Engine.MaxConcurrent = 0
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"
	cfg.Schedules = []Schedule{{Cron: "not a cron", Intent: map[string]any{}}}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown message broker "kafka"`,
		"task_retries",
		"retry_backoff",
		"max_concurrent",
		"log.level",
		"log.format",
		"invalid cron expression",
		"intent type is required",
	} {
		assert.ErrorContains(t, err, want)
	}
}
