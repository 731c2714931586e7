// Package model defines the provider-agnostic model client used by the
// predict agent, a registry of named clients, and a mock for tests.
//
// A Client takes a structured input map and returns a structured output map.
// Text generation clients read "prompt" and the optional "system",
// "temperature" and "max_tokens" inputs and return "text", "model",
// "finish_reason" and, when the provider reports it, "usage".
//
// Providers live in subpackages (openai, anthropic) so callers that do not
// use them do not link their SDKs.
package model
