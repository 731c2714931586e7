// Package metric exposes the Prometheus collectors recorded by the lattice:
// intent dispatch counters and latency, supervisor task activity, resource
// pool headroom, bus traffic and workflow outcomes.
//
// All recording methods are safe to call on a nil *Metrics so components can
// run without instrumentation.
package metric
