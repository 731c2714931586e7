package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LATTICE_METRICS_ENABLED", "false")
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIntentCommand(t *testing.T) {
	out, err := execute(t, "intent", "echo", "hello", "world")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "ok", res["status"])
	assert.Equal(t, "hello world", res["echo"])
}

func TestIntentCommandJSONArgs(t *testing.T) {
	out, err := execute(t, "intent", "echo", "--args", `{"n":1}`, "--id", "fixed")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, map[string]any{"n": float64(1)}, res["echo"])
	assert.Equal(t, "fixed", res["intent_id"])
}

func TestIntentCommandFailure(t *testing.T) {
	out, err := execute(t, "intent", "verify")
	require.Error(t, err)
	assert.Contains(t, out, "Verification failed")
}

func TestWorkflowCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saga.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: saga
steps:
  - intent: plan
  - intent: act
    payload:
      simulate_failure: true
  - intent: verify
`), 0o600))

	out, err := execute(t, "workflow", path)
	require.Error(t, err)

	var report workflowReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "FAILED", report.State)
	assert.Equal(t, []string{"plan"}, report.Completed)
	assert.Equal(t, []string{"plan"}, report.RolledBack)
	assert.Len(t, report.Results, 2)
}

func TestHealthcheckCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out, err := execute(t, "healthcheck", "--url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	_, err = execute(t, "healthcheck", "--url", down.URL)
	assert.Error(t, err)
}

func TestGatewayURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080", gatewayURL(":8080"))
	assert.Equal(t, "http://node:9000", gatewayURL("node:9000"))
}
