package harmonizer

import (
	"context"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// IntentWorkflow is the intent type served by Handler.
const IntentWorkflow = "workflow"

// Handler exposes the harmonizer as a handler for "workflow" intents, so a
// workflow submitted through a broker or the gateway is orchestrated like
// any other intent. The returned result carries every step result under
// "results". A failed run yields its final error result, which the
// dispatcher counts as a failure.
func (h *Harmonizer) Handler() core.Handler {
	return &workflowHandler{h: h}
}

type workflowHandler struct {
	h *Harmonizer
}

func (w *workflowHandler) IntentTypes() []string { return []string{IntentWorkflow} }

func (w *workflowHandler) Execute(ctx context.Context, intent core.Intent) (core.Result, error) {
	if _, ok := intent[core.KeyWorkflow]; !ok {
		return core.ErrorResult(&core.ValidationError{Field: core.KeyWorkflow, Reason: "is required"}), nil
	}
	run := w.h.RunDetailed(ctx, intent)

	results := make([]any, len(run.Results))
	for i, r := range run.Results {
		results[i] = map[string]any(r)
	}

	var out core.Result
	if run.State() == StateCompleted {
		out = core.OK(nil)
	} else {
		out = core.Result(core.CloneMap(run.Final()))
		if t, ok := out[core.KeyIntent]; ok {
			out["failed_intent"] = t
		}
	}
	out[KeyWorkflowID] = run.ID
	out[KeyResults] = results
	out["state"] = string(run.State())
	if run.Workflow != "" {
		out["name"] = run.Workflow
	}
	return out, nil
}
