package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

func TestPredict(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-sonnet-20241022",
			"content": [{"type": "text", "text": "po"}, {"type": "text", "text": "ng"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 1}
		}`)
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL + "/"
		o.RequestOptions = []option.RequestOption{option.WithMaxRetries(0)}
	})

	out, err := c.Predict(context.Background(), map[string]any{"prompt": "ping", "system": "terse"})
	require.NoError(t, err)
	assert.Equal(t, "pong", out["text"])
	assert.Equal(t, "end_turn", out["finish_reason"])
	assert.Equal(t, "claude-3-5-sonnet-20241022", out["model"])

	require.NotNil(t, body)
	assert.EqualValues(t, 4096, body["max_tokens"])
	assert.NotNil(t, body["system"])
}

func TestPredictRequiresPrompt(t *testing.T) {
	c := NewClient(func(o *Options) { o.APIKey = "test" })
	_, err := c.Predict(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, "anthropic", c.Info().Provider)
}
