package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/dispatch"
	"github.com/ochoaughini/Cognition-Lattice/harmonizer"
	"github.com/ochoaughini/Cognition-Lattice/internal/testutil"
	"github.com/ochoaughini/Cognition-Lattice/registry"
)

func TestEcho(t *testing.T) {
	res, err := Echo{}.Execute(context.Background(), testutil.NewIntentBuilder("echo").Args(map[string]any{"a": 1}).Build())
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status())
	assert.Equal(t, map[string]any{"a": 1}, res["echo"])
}

func TestPlanActVerify(t *testing.T) {
	ctx := context.Background()

	p := &Plan{}
	res, err := p.Execute(ctx, testutil.NewIntentBuilder("plan").ID("p-1").Build())
	require.NoError(t, err)
	assert.Equal(t, core.Result{"status": "planned", "id": "p-1"}, res)
	require.NoError(t, p.Rollback(ctx, nil))
	assert.True(t, p.RolledBack())

	a := &Act{}
	res, err = a.Execute(ctx, testutil.NewIntentBuilder("act").ID("a-1").Build())
	require.NoError(t, err)
	assert.Equal(t, "acted", res.Status())

	_, err = a.Execute(ctx, testutil.NewIntentBuilder("act").Set("simulate_failure", true).Build())
	assert.ErrorIs(t, err, ErrActionFailed)
	assert.False(t, a.RolledBack())

	_, err = Verify{}.Execute(ctx, core.Intent{})
	assert.EqualError(t, err, "Verification failed")
}

func TestRegisterBuiltins(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterBuiltins(reg))
	assert.Equal(t, []string{"act", "echo", "plan", "verify"}, reg.Types())

	h1, err := reg.Lookup("plan")
	require.NoError(t, err)
	h2, err := reg.Lookup("plan")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
}

func TestBuiltinsThroughDispatcher(t *testing.T) {
	reg := registry.New()
	require.NoError(t, RegisterBuiltins(reg))
	d := dispatch.New(reg, nil)

	res := d.Dispatch(context.Background(), core.Intent{"intent": "echo", "intent_id": "e-1", "args": "hi"})
	assert.Equal(t, "ok", res.Status())
	assert.Equal(t, "hi", res["echo"])
	assert.Equal(t, "e-1", res.IntentID())

	res = d.Dispatch(context.Background(), core.Intent{"intent": "verify"})
	assert.True(t, res.IsError())
	assert.Contains(t, res.Message(), "Verification failed")
}

func TestPlanActVerifyWorkflowRollsBack(t *testing.T) {
	plan, act := &Plan{}, &Act{}
	reg := registry.New()
	require.NoError(t, reg.RegisterHandler("plan", plan))
	require.NoError(t, reg.RegisterHandler("act", act))
	require.NoError(t, reg.RegisterAgent(func() core.Handler { return Verify{} }))

	h := harmonizer.New(reg)
	intent := testutil.NewIntentBuilder("workflow").
		Step("plan").
		Step("act").
		Step("verify").
		Build()

	results := h.Run(context.Background(), intent)
	require.Len(t, results, 3)
	assert.Equal(t, "planned", results[0].Status())
	assert.Equal(t, "acted", results[1].Status())
	assert.True(t, results[2].IsError())
	assert.True(t, plan.RolledBack())
	assert.True(t, act.RolledBack())
}

func TestActFailureRollsBackPlanOnly(t *testing.T) {
	plan, act := &Plan{}, &Act{}
	reg := registry.New()
	require.NoError(t, reg.RegisterHandler("plan", plan))
	require.NoError(t, reg.RegisterHandler("act", act))

	h := harmonizer.New(reg)
	intent := testutil.NewIntentBuilder("workflow").
		Step("plan").
		Step("act", "simulate_failure", true).
		Build()

	results := h.Run(context.Background(), intent)
	require.Len(t, results, 2)
	assert.True(t, results[1].IsError())
	assert.True(t, plan.RolledBack())
	assert.False(t, act.RolledBack())
}

func TestBusEcho(t *testing.T) {
	msg := testutil.NewMessageBuilder().Type(core.MessageTypeIntent).Source("cli").Payload("text", "hi").Build()
	out, err := BusEcho(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "hi"}, out["original_payload"])
	assert.Equal(t, "echo_agent", out["processed_by"])
	assert.NotEmpty(t, out["timestamp"])

	out, err = BusEcho(context.Background(), testutil.NewMessageBuilder().Type(core.MessageTypeEvent).Build())
	require.NoError(t, err)
	assert.Nil(t, out)
}
