package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntentAccessors(t *testing.T) {
	i := Intent{"intent": "act", "intent_id": "42", "args": "x", "simulate_failure": true}

	assert.Equal(t, "act", i.Type())
	assert.Equal(t, "42", i.ID())
	assert.Equal(t, "x", i.Args())
	assert.True(t, i.Bool("simulate_failure"))
	assert.False(t, i.Bool("missing"))
	assert.False(t, Intent{"f": "false"}.Bool("f"))
}

func TestNewIntentHasID(t *testing.T) {
	i := NewIntent("echo", "hi")
	assert.Equal(t, "echo", i.Type())
	assert.NotEmpty(t, i.ID())
}

func TestResultHelpers(t *testing.T) {
	r := OK(map[string]any{"echo": "hi"})
	assert.Equal(t, StatusOK, r.Status())
	assert.False(t, r.IsError())
	assert.Equal(t, "hi", r["echo"])
}
