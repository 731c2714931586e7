//go:build integration

package natsbroker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

func connect(t *testing.T) *Broker {
	t.Helper()
	url := os.Getenv("LATTICE_NATS_URL")
	if url == "" {
		t.Skip("LATTICE_NATS_URL not set")
	}
	subject := "lattice.test." + core.NewID()
	b, err := Connect(context.Background(), func(o *Options) {
		o.URL = url
		o.IntentSubject = subject + ".intents"
		o.ResponseSubject = subject + ".responses"
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestIntentRoundTrip(t *testing.T) {
	b := connect(t)
	ctx := context.Background()

	in := core.NewIntent("echo", map[string]any{"message": "hi"})
	require.NoError(t, b.SendIntent(ctx, in))

	got, err := b.ReceiveIntents(ctx, 200*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, in.ID(), got[0].ID())
	assert.Equal(t, 1, b.Pending())

	require.NoError(t, b.AcknowledgeIntent(ctx, got[0]))
	assert.Equal(t, 0, b.Pending())
}

func TestResponseRoundTrip(t *testing.T) {
	b := connect(t)
	ctx := context.Background()

	require.NoError(t, b.PublishResponse(ctx, core.Result{"status": "ok", "intent_id": "abc"}))
	got, err := b.ReceiveResponses(ctx, 200*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].IntentID())
}
