// Package harmonizer executes multi-step workflows with SAGA compensation.
//
// A run moves through PENDING, RUNNING and then either COMPLETED or
// COMPENSATING followed by FAILED. Steps execute strictly in order. The first
// step that fails, by returning an error or a result whose status is
// "error", halts the run; every step that completed before it is rolled back
// in reverse completion order. Rollback is best effort: a compensator that
// fails is logged and the sweep continues. The failing step is never rolled
// back.
//
// Two execution modes exist. When the input intent carries a "workflow"
// list, each step is resolved to its own handler before anything runs, and
// an unknown step type fails the run without executing any step. Without a
// list the harmonizer falls back to the legacy mode, which passes the same
// input to every configured handler in order.
//
// Workflows can be written in YAML:
//
//	name: provision
//	steps:
//	  - intent: plan
//	  - intent: act
//	    payload:
//	      simulate_failure: true
//	    timeout: 5s
//	  - intent: verify
//
// A bare list of steps is accepted as well.
package harmonizer
