// Package resource detects and arbitrates finite compute resources.
//
// A Manager owns base resources (a CPU pool sized by the logical core count
// and any detected accelerators) and two bounded executors, "io" and "cpu".
// Allocate carves a slice from the base resource of the requested type with
// the most headroom; Release returns it, never pushing a base above its
// capacity. All reads and writes of available capacity happen under one lock.
package resource
