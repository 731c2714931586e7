package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ochoaughini/Cognition-Lattice/core"
	tu "github.com/ochoaughini/Cognition-Lattice/internal/testutil"
)

func TestHookManagerStopsAtFirstError(t *testing.T) {
	m := NewHookManager()
	var ran []int
	m.Register(NewFunctionHook(HookBeforeDispatch, func(context.Context, *HookContext) error {
		ran = append(ran, 1)
		return errors.New("stop")
	}))
	m.Register(NewFunctionHook(HookBeforeDispatch, func(context.Context, *HookContext) error {
		ran = append(ran, 2)
		return nil
	}))

	err := m.Run(context.Background(), &HookContext{Type: HookBeforeDispatch})
	assert.EqualError(t, err, "stop")
	assert.Equal(t, []int{1}, ran)
	assert.Equal(t, 2, m.Len(HookBeforeDispatch))
	assert.NoError(t, m.Run(context.Background(), &HookContext{Type: HookAfterDispatch}))
}

func TestLoggingHook(t *testing.T) {
	log := tu.NewRecordingLogger()
	h := NewLoggingHook(HookAfterDispatch, log)
	assert.Equal(t, HookAfterDispatch, h.Type())

	err := h.Execute(context.Background(), &HookContext{
		Type:   HookAfterDispatch,
		Intent: core.Intent{core.KeyIntent: "echo", core.KeyIntentID: "1"},
		Result: core.OK(nil),
	})
	assert.NoError(t, err)
	entries := log.Find("dispatch hook")
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "ok", entries[0].Field("status"))
	}
}
