// Package registry maps intent types to handler factories.
//
// Registrations replace earlier ones for the same type. Reload swaps the
// whole table at once, so a concurrent Lookup sees either the old or the new
// mapping and never a mix of both.
package registry
