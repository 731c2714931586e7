package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ochoaughini/Cognition-Lattice/bus"
	"github.com/ochoaughini/Cognition-Lattice/core"
)

// BusHandler answers one bus message. A nil payload means no reply.
type BusHandler func(ctx context.Context, msg core.Message) (map[string]any, error)

// BusAgent is a handler living on the in-process bus rather than behind the
// broker. It receives every message matching one of its Patterns.
type BusAgent struct {
	Name     string
	Patterns []string
	Handle   BusHandler
}

// Mount adds a bus agent. Agents mounted while the engine runs are
// subscribed immediately; the rest are subscribed by Start.
func (e *Engine) Mount(a BusAgent) error {
	if a.Name == "" || a.Handle == nil || len(a.Patterns) == 0 {
		return fmt.Errorf("mount bus agent %q: name, patterns and handler are required", a.Name)
	}
	if e.bus == nil {
		return fmt.Errorf("mount bus agent %q: engine has no bus", a.Name)
	}
	for _, p := range a.Patterns {
		if err := bus.ValidatePattern(p); err != nil {
			return fmt.Errorf("mount bus agent %q: %w", a.Name, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.agents = append(e.agents, a)
	if e.running {
		return e.startAgent(e.runCtx, a)
	}
	return nil
}

func (e *Engine) serveAgent(ctx context.Context, a BusAgent, sub *bus.Subscription) {
	defer sub.Cancel()
	e.logger.Info("bus agent started", "agent", a.Name, "patterns", a.Patterns)
	for msg := range sub.Messages(ctx) {
		payload, err := e.handleBusMessage(ctx, a, msg)
		switch {
		case err != nil:
			e.logger.Warn("bus agent failed", "agent", a.Name, "message_id", msg.MessageID, "error", err)
			reply := core.NewMessage(core.MessageTypeError, a.Name,
				map[string]any{core.KeyMessage: err.Error(), core.KeyErrorKind: core.ErrorKind(err)},
				core.WithTarget(msg.Source),
				core.WithCorrelationID(msg.MessageID),
			)
			if perr := e.bus.Publish(ctx, bus.ResponseTopic(msg.MessageID), reply); perr != nil && !errors.Is(perr, context.Canceled) {
				e.logger.Warn("bus agent reply failed", "agent", a.Name, "error", perr)
			}
		case payload != nil:
			if perr := e.bus.Respond(ctx, msg, payload); perr != nil && !errors.Is(perr, context.Canceled) {
				e.logger.Warn("bus agent reply failed", "agent", a.Name, "error", perr)
			}
		}
	}
	e.logger.Info("bus agent stopped", "agent", a.Name)
}

func (e *Engine) handleBusMessage(ctx context.Context, a BusAgent, msg core.Message) (payload map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.ExecutionError{IntentType: a.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return a.Handle(ctx, msg)
}
