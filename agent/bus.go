package agent

import (
	"context"
	"time"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// BusEchoName is the source name BusEcho reports in its replies.
const BusEchoName = "echo_agent"

// BusEcho answers INTENT messages with their payload. Other message types get
// no reply.
func BusEcho(_ context.Context, msg core.Message) (map[string]any, error) {
	if msg.Type != core.MessageTypeIntent {
		return nil, nil
	}
	return map[string]any{
		"original_payload": core.CloneMap(msg.Payload),
		"processed_by":     BusEchoName,
		"timestamp":        msg.Timestamp.UTC().Format(time.RFC3339Nano),
	}, nil
}
