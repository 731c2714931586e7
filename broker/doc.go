// Package broker selects a core.Broker variant from configuration.
//
// The orchestration core only sees core.Broker; which transport backs it is
// decided once at startup by Open.
package broker
