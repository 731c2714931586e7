// Package core provides the foundational domain types and interfaces shared
// by every lattice component. It defines the core abstractions for:
//
//   - Messages (immutable envelopes routed by the bus and brokers)
//   - Intents and Results (the structured maps handlers consume and produce)
//   - Handlers and the optional Compensator capability used for SAGA rollback
//   - Brokers (pluggable transports that move intents between processes)
//   - The error taxonomy reported across component boundaries
//
// The package keeps implementation concerns (routing, supervision, resource
// arbitration, workflow execution) out of scope, exposing small interfaces so
// transports and handlers can be swapped freely.
package core
