package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/model"
	"github.com/ochoaughini/Cognition-Lattice/resource"
)

func newPredict(t *testing.T, capacity float64) (*Predict, *model.MockClient, *resource.Manager) {
	t.Helper()
	models := model.NewRegistry()
	mock := model.NewMockClient("mock")
	mock.AddResponse("2+2?", "4")
	require.NoError(t, models.Register("mock", mock))

	rm := resource.NewManager(func(o *resource.Options) {
		o.Detectors = []resource.Detector{resource.StaticDetector{
			{Type: resource.CPU, ID: "cpu:0", Capacity: capacity, Available: capacity},
		}}
	})
	return NewPredict(models, rm), mock, rm
}

func TestPredictAllocatesAndReleases(t *testing.T) {
	p, mock, rm := newPredict(t, 1)

	res, err := p.Execute(context.Background(), core.Intent{"intent": "predict", "args": map[string]any{"prompt": "2+2?", "model": "mock"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status())
	assert.Equal(t, "4", res["text"])
	assert.Equal(t, "mock", res["provider"])
	assert.Contains(t, res["resource"], "cpu:0:")

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0], "model")

	rs := rm.Resources()
	require.Len(t, rs, 1)
	assert.Equal(t, 1.0, rs[0].Available)
}

func TestPredictStringArgsAndDefaultModel(t *testing.T) {
	p, _, _ := newPredict(t, 2)
	res, err := p.Execute(context.Background(), core.Intent{"intent": "predict", "args": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello", res["text"])
}

func TestPredictErrors(t *testing.T) {
	p, mock, rm := newPredict(t, 1)
	ctx := context.Background()

	_, err := p.Execute(ctx, core.Intent{"intent": "predict", "args": map[string]any{"prompt": "x", "model": "nope"}})
	assert.ErrorIs(t, err, core.ErrValidation)

	mock.FailWith(errors.New("upstream down"))
	_, err = p.Execute(ctx, core.Intent{"intent": "predict", "args": map[string]any{"prompt": "x"}})
	assert.ErrorContains(t, err, "upstream down")
	assert.Equal(t, 1.0, rm.Resources()[0].Available)

	held, err := rm.Allocate(ctx, resource.CPU, 1, nil)
	require.NoError(t, err)
	defer rm.Release(held...)
	_, err = p.Execute(ctx, core.Intent{"intent": "predict", "args": map[string]any{"prompt": "x"}})
	assert.ErrorIs(t, err, core.ErrResourceAllocation)
}

func TestPredictRendersVars(t *testing.T) {
	p, mock, _ := newPredict(t, 1)

	_, err := p.Execute(context.Background(), core.Intent{"intent": "predict", "args": map[string]any{
		"prompt": "Summarize {{ .topic | upper }} for {{ default \"everyone\" .audience }}",
		"system": "plain",
		"vars":   map[string]any{"topic": "sagas"},
	}})
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Summarize SAGAS for everyone", calls[0]["prompt"])
	assert.Equal(t, "plain", calls[0]["system"])
	assert.NotContains(t, calls[0], "vars")
}

func TestPredictRejectsBadTemplate(t *testing.T) {
	p, _, _ := newPredict(t, 1)

	_, err := p.Execute(context.Background(), core.Intent{"intent": "predict", "args": map[string]any{
		"prompt": "{{ .unclosed",
		"vars":   map[string]any{},
	}})
	assert.ErrorIs(t, err, core.ErrValidation)
}
