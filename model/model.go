package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// Input and output keys shared by text generation clients.
const (
	InputPrompt      = "prompt"
	InputSystem      = "system"
	InputTemperature = "temperature"
	InputMaxTokens   = "max_tokens"

	OutputText         = "text"
	OutputModel        = "model"
	OutputFinishReason = "finish_reason"
	OutputUsage        = "usage"
)

// ErrModelNotFound is returned by Registry.Get for an unknown name.
var ErrModelNotFound = errors.New("model not found")

// Info describes a client.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Client is a model that maps inputs to outputs.
type Client interface {
	Predict(ctx context.Context, inputs map[string]any) (map[string]any, error)
	Info() Info
}

// TextInput is the parsed form of a text generation request.
type TextInput struct {
	Prompt      string
	System      string
	Temperature *float64
	MaxTokens   int64
}

// ParseTextInput reads the text generation keys from inputs. A prompt is
// required.
func ParseTextInput(inputs map[string]any) (TextInput, error) {
	var in TextInput
	in.Prompt, _ = inputs[InputPrompt].(string)
	if in.Prompt == "" {
		return in, &core.ValidationError{Field: InputPrompt, Reason: "is required"}
	}
	in.System, _ = inputs[InputSystem].(string)
	if v, ok := number(inputs[InputTemperature]); ok {
		in.Temperature = &v
	}
	if v, ok := number(inputs[InputMaxTokens]); ok && v > 0 {
		in.MaxTokens = int64(v)
	}
	return in, nil
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// Registry holds named clients. The first registered client is the default
// unless SetDefault says otherwise.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	def     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds or replaces a client.
func (r *Registry) Register(name string, c Client) error {
	if name == "" || c == nil {
		return fmt.Errorf("register model %q: name and client are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = c
	if r.def == "" {
		r.def = name
	}
	return nil
}

// SetDefault selects the client returned for an empty name.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[name]; !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	r.def = name
	return nil
}

// Default returns the default client name.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// Get returns the client registered as name, or the default for "".
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.def
	}
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotFound, name)
	}
	return c, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for n := range r.clients {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
