// Package agent provides the built-in intent handlers.
//
//	echo     returns its args
//	plan     records a plan step, compensable
//	act      performs a step, fails on simulate_failure, compensable
//	verify   always fails; used to exercise workflow rollback
//	predict  calls a registered model while holding one CPU slot
//	memory.* reads and writes a memory.Store
//
// RegisterBuiltins installs the stateless ones on a registry. Predict and
// Memory need collaborators and are registered with RegisterAgent.
//
// BusEcho is a bus responder rather than a Handler: it answers INTENT
// messages published on the in-process bus.
package agent
