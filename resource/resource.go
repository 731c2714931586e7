package resource

import (
	"fmt"

	"github.com/ochoaughini/Cognition-Lattice/core"
)

// Type enumerates resource kinds.
type Type string

// Resource kinds.
const (
	CPU    Type = "cpu"
	CUDA   Type = "cuda"
	ROCm   Type = "rocm"
	OpenCL Type = "opencl"
	TPU    Type = "tpu"
	Ray    Type = "ray"
	Dask   Type = "dask"
)

// ParseType maps a string to a known Type.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case CPU, CUDA, ROCm, OpenCL, TPU, Ray, Dask:
		return t, nil
	default:
		return "", fmt.Errorf("unknown resource type %q", s)
	}
}

// Resource is either a base pool or an allocation carved from one.
// Invariant: 0 <= Available <= Capacity.
type Resource struct {
	Type      Type           `json:"type"`
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Capacity  float64        `json:"capacity"`
	Available float64        `json:"available"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	// BaseID is set on allocations and names the base they came from.
	BaseID string `json:"base_id,omitempty"`
}

// IsAllocation reports whether r was produced by Allocate.
func (r *Resource) IsAllocation() bool { return r.BaseID != "" }

func (r *Resource) clone() Resource {
	c := *r
	c.Metadata = core.CloneMap(r.Metadata)
	return c
}

func (r *Resource) satisfies(requirements map[string]any) bool {
	for k, want := range requirements {
		got, ok := r.Metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
