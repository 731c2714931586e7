// Package natsbroker is a core.Broker over NATS core subjects.
//
// Intents are published on an intent subject and consumed through a queue
// group, so several orchestrators can share the load; each intent reaches one
// of them. Responses are published on a response subject that every
// subscriber sees. Payloads are JSON.
//
// NATS core offers at-most-once delivery, so AcknowledgeIntent only tracks
// local bookkeeping. Durability across restarts is not provided.
package natsbroker
