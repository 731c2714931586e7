// Package engine runs the lattice as a long lived process.
//
// The Engine connects the pieces that the rest of the module keeps
// independent: a core.Broker that carries intents between processes, a
// Dispatcher that routes each intent to its handler, a ResponseStore that
// keeps terminal results for callers that poll, and the in-process bus on
// which mesh agents talk to each other.
//
// # Core Responsibilities
//
// Intake:
//   - Poll the broker for batches with Broker.ReceiveIntents
//   - Throttle accepted intents with a token bucket (golang.org/x/time/rate)
//   - Dispatch with bounded concurrency (golang.org/x/sync/errgroup)
//   - Publish every result and acknowledge the intent it answers
//
// Mesh agents:
//   - Subscribe each mounted BusAgent to its topic patterns
//   - Reply to intents on the requester's response topic
//   - Turn handler failures and panics into ERROR replies
//
// Background work:
//   - Submit cron scheduled intents (github.com/adhocore/gronx)
//   - Sweep expired memory entries
//
// # Architecture
//
//	┌───────────────┐   SendIntent    ┌──────────────┐
//	│ gateway / CLI │ ──────────────▶ │    Broker    │
//	└───────────────┘                 └──────┬───────┘
//	        ▲                                │ ReceiveIntents
//	        │ Get / Wait                     ▼
//	┌───────┴───────┐   Add     ┌─────────────────────────┐
//	│ ResponseStore │ ◀──────── │  Engine intake workers  │
//	└───────────────┘           │   Dispatcher.Dispatch   │
//	                            └─────────────────────────┘
//
// # Lifecycle
//
// Start launches the loop in the background and returns once bus agents
// are subscribed; Stop cancels it and waits for in-flight intents. Run is
// the blocking form for callers that manage their own goroutines.
//
//	eng := engine.New(brk, disp, func(o *engine.Options) {
//	    o.Bus = b
//	    o.Logger = logger
//	})
//	_ = eng.Mount(engine.BusAgent{
//	    Name:     "echo_agent",
//	    Patterns: []string{"agent.echo"},
//	    Handle:   agent.BusEcho,
//	})
//	if err := eng.Start(ctx); err != nil {
//	    return err
//	}
//	defer eng.Stop()
//
//	id, _ := eng.Submit(ctx, core.Intent{"intent": "echo", "args": "hi"})
//	res, _ := eng.Responses().Wait(ctx, id)
//
// # Delivery Semantics
//
// An intent is acknowledged only after its result has been published, so a
// broker with redelivery gives at-least-once processing. The in-memory
// broker and the NATS broker do not redeliver, which makes delivery
// at-most-once in practice.
package engine
