package agent

import (
	"context"
	"fmt"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
	"github.com/ochoaughini/Cognition-Lattice/model"
	"github.com/ochoaughini/Cognition-Lattice/resource"
)

// IntentPredict is served by Predict.
const IntentPredict = "predict"

// PredictOptions configure Predict.
type PredictOptions struct {
	// CPUSlots is the CPU amount held for the duration of a call. Zero skips
	// allocation.
	CPUSlots float64
	Logger   logging.Logger
}

// Predict runs a registered model. The model is chosen by the "model" param,
// falling back to the registry default; the remaining args are the model
// inputs.
type Predict struct {
	models    *model.Registry
	resources *resource.Manager
	opts      PredictOptions
}

// NewPredict creates a Predict handler. resources may be nil.
func NewPredict(models *model.Registry, resources *resource.Manager, optFns ...func(o *PredictOptions)) *Predict {
	opts := PredictOptions{CPUSlots: 1, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Predict{models: models, resources: resources, opts: opts}
}

func (*Predict) IntentTypes() []string { return []string{IntentPredict} }

func (p *Predict) Execute(ctx context.Context, intent core.Intent) (core.Result, error) {
	name := stringParam(intent, "model")
	client, err := p.models.Get(name)
	if err != nil {
		return nil, &core.ValidationError{Field: "model", Reason: err.Error()}
	}

	inputs := map[string]any{}
	if args, ok := intent.Args().(map[string]any); ok {
		inputs = core.CloneMap(args)
	} else if s, ok := intent.Args().(string); ok {
		inputs[model.InputPrompt] = s
	}
	delete(inputs, "model")
	if vars, ok := inputs[KeyVars].(map[string]any); ok {
		for _, key := range []string{model.InputPrompt, model.InputSystem} {
			text, ok := inputs[key].(string)
			if !ok {
				continue
			}
			if inputs[key], err = renderPrompt(key, text, vars); err != nil {
				return nil, &core.ValidationError{Field: key, Reason: err.Error()}
			}
		}
	}
	delete(inputs, KeyVars)

	var slot string
	if p.resources != nil && p.opts.CPUSlots > 0 {
		allocs, err := p.resources.Allocate(ctx, resource.CPU, p.opts.CPUSlots, nil)
		if err != nil {
			return nil, err
		}
		defer p.resources.Release(allocs...)
		slot = allocs[0].ID
	}

	out, err := client.Predict(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("predict with %s: %w", client.Info().Name, err)
	}
	p.opts.Logger.Debug("model prediction", "model", client.Info().Name, "provider", client.Info().Provider, "slot", slot)

	res := core.OK(out)
	res["provider"] = client.Info().Provider
	if slot != "" {
		res["resource"] = slot
	}
	return res, nil
}
