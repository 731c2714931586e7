package harmonizer

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// Step is one unit of a workflow.
type Step struct {
	Intent  string         `json:"intent" yaml:"intent"`
	Payload map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
	// Timeout overrides the harmonizer's step timeout when positive.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Workflow is an ordered list of steps. Step order is commit order.
type Workflow struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Validate checks that the workflow has steps and that each names an intent.
func (w *Workflow) Validate() error {
	if w == nil || len(w.Steps) == 0 {
		return &core.ValidationError{Field: core.KeyWorkflow, Reason: "has no steps"}
	}
	for i, s := range w.Steps {
		if s.Intent == "" {
			return &core.ValidationError{Field: fmt.Sprintf("workflow[%d].intent", i), Reason: "is required"}
		}
	}
	return nil
}

// Types returns the step intent types in order.
func (w *Workflow) Types() []string {
	out := make([]string, len(w.Steps))
	for i, s := range w.Steps {
		out[i] = s.Intent
	}
	return out
}

// ToValue renders the workflow in the shape accepted under the "workflow"
// key of an intent.
func (w *Workflow) ToValue() []any {
	out := make([]any, 0, len(w.Steps))
	for _, s := range w.Steps {
		m := map[string]any{core.KeyIntent: s.Intent}
		if len(s.Payload) > 0 {
			m["payload"] = core.CloneMap(s.Payload)
		}
		if s.Timeout > 0 {
			m["timeout"] = s.Timeout.String()
		}
		out = append(out, m)
	}
	return out
}

// ParseWorkflow decodes a YAML workflow document. The document is either a
// mapping with name and steps or a bare list of steps.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	return FromValue(raw)
}

// LoadWorkflow reads and parses a YAML workflow file.
func LoadWorkflow(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	wf, err := ParseWorkflow(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wf, nil
}

// FromValue converts a decoded workflow value, as found in an intent or a
// YAML document, into a Workflow. Step keys other than intent, payload and
// timeout are merged into the payload.
func FromValue(v any) (*Workflow, error) {
	wf := &Workflow{}
	var steps any
	switch t := v.(type) {
	case *Workflow:
		return t, t.Validate()
	case Workflow:
		return &t, t.Validate()
	case []any, []map[string]any:
		steps = t
	case map[string]any:
		wf.Name, _ = t["name"].(string)
		steps = t["steps"]
	case nil:
		return nil, &core.ValidationError{Field: core.KeyWorkflow, Reason: "is empty"}
	default:
		return nil, &core.ValidationError{Field: core.KeyWorkflow, Reason: fmt.Sprintf("unsupported shape %T", v)}
	}

	var list []any
	switch t := steps.(type) {
	case []any:
		list = t
	case []map[string]any:
		for _, m := range t {
			list = append(list, m)
		}
	default:
		return nil, &core.ValidationError{Field: "workflow.steps", Reason: "must be a list"}
	}

	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			if s, isStr := item.(string); isStr {
				m = map[string]any{core.KeyIntent: s}
			} else {
				return nil, &core.ValidationError{Field: fmt.Sprintf("workflow[%d]", i), Reason: "must be a mapping"}
			}
		}
		step, err := stepFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("workflow[%d]: %w", i, err)
		}
		wf.Steps = append(wf.Steps, step)
	}
	return wf, wf.Validate()
}

func stepFromMap(m map[string]any) (Step, error) {
	s := Step{}
	s.Intent, _ = m[core.KeyIntent].(string)
	for k, v := range m {
		switch k {
		case core.KeyIntent:
		case "payload":
			p, ok := v.(map[string]any)
			if !ok && v != nil {
				return s, &core.ValidationError{Field: "payload", Reason: "must be a mapping"}
			}
			if s.Payload == nil {
				s.Payload = map[string]any{}
			}
			for pk, pv := range p {
				s.Payload[pk] = core.CloneValue(pv)
			}
		case "timeout":
			d, err := parseTimeout(v)
			if err != nil {
				return s, err
			}
			s.Timeout = d
		default:
			if s.Payload == nil {
				s.Payload = map[string]any{}
			}
			s.Payload[k] = core.CloneValue(v)
		}
	}
	return s, nil
}

func parseTimeout(v any) (time.Duration, error) {
	switch t := v.(type) {
	case string:
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, &core.ValidationError{Field: "timeout", Reason: err.Error()}
		}
		return d, nil
	case int:
		return time.Duration(t) * time.Second, nil
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	case time.Duration:
		return t, nil
	case nil:
		return 0, nil
	default:
		return 0, &core.ValidationError{Field: "timeout", Reason: fmt.Sprintf("unsupported value %v", v)}
	}
}

// FromIntent extracts the workflow carried by intent. ok is false when the
// intent carries none, in which case the legacy mode applies.
func FromIntent(intent core.Intent) (wf *Workflow, ok bool, err error) {
	v, present := intent[core.KeyWorkflow]
	if !present {
		return nil, false, nil
	}
	wf, err = FromValue(v)
	if err != nil {
		var ve *core.ValidationError
		if !errors.As(err, &ve) {
			err = &core.ValidationError{Field: core.KeyWorkflow, Reason: err.Error()}
		}
		return nil, true, err
	}
	return wf, true, nil
}
