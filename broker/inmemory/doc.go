// Package inmemory is a process-local core.Broker backed by bounded channel
// queues. It is the default transport and the one used in tests.
package inmemory
