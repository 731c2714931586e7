package resource

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// Detector discovers base resources on the host.
type Detector interface {
	Detect(ctx context.Context) ([]*Resource, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context) ([]*Resource, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context) ([]*Resource, error) { return f(ctx) }

// CPUDetector reports one CPU pool with one unit of capacity per logical core.
type CPUDetector struct{}

// Detect implements Detector.
func (CPUDetector) Detect(context.Context) ([]*Resource, error) {
	cores := runtime.NumCPU()
	return []*Resource{{
		Type:      CPU,
		ID:        "cpu:0",
		Name:      "Main CPU",
		Capacity:  float64(cores),
		Available: float64(cores),
		Metadata: map[string]any{
			"logical_cores": cores,
			"gomaxprocs":    runtime.GOMAXPROCS(0),
			"arch":          runtime.GOARCH,
		},
	}}, nil
}

// NvidiaDetector lists CUDA devices through nvidia-smi. A host without the
// binary yields no resources and no error.
type NvidiaDetector struct {
	// Binary defaults to "nvidia-smi".
	Binary string
}

// Detect implements Detector.
func (d NvidiaDetector) Detect(ctx context.Context) ([]*Resource, error) {
	bin := d.Binary
	if bin == "" {
		bin = "nvidia-smi"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, nil
	}
	out, err := exec.CommandContext(ctx, bin, "-L").Output()
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi -L: %w", err)
	}
	resources := ParseNvidiaList(string(out))
	for i, r := range resources {
		mem, err := exec.CommandContext(ctx, bin,
			"--query-gpu=memory.total,memory.used,memory.free",
			"--format=csv,noheader,nounits",
			"--id="+strconv.Itoa(i),
		).Output()
		if err == nil {
			r.Metadata["memory"] = parseNvidiaMemory(string(mem))
		}
	}
	return resources, nil
}

// ParseNvidiaList parses `nvidia-smi -L` output such as
// "GPU 0: NVIDIA A100-SXM4-40GB (UUID: GPU-...)".
func ParseNvidiaList(out string) []*Resource {
	var resources []*Resource
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		_, rest, ok := strings.Cut(line, ":")
		if !ok || !strings.HasPrefix(line, "GPU") {
			continue
		}
		name, uuid, _ := strings.Cut(rest, "(")
		name = strings.TrimSpace(name)
		md := map[string]any{"name": name}
		if u := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(uuid), "UUID:"), ")")); u != "" {
			md["uuid"] = u
		}
		idx := len(resources)
		resources = append(resources, &Resource{
			Type:      CUDA,
			ID:        fmt.Sprintf("cuda:%d", idx),
			Name:      name + " (CUDA)",
			Capacity:  1,
			Available: 1,
			Metadata:  md,
		})
	}
	return resources
}

func parseNvidiaMemory(out string) map[string]any {
	fields := strings.Split(strings.TrimSpace(out), ",")
	if len(fields) != 3 {
		return map[string]any{"total_mb": 0.0, "used_mb": 0.0, "free_mb": 0.0}
	}
	vals := make([]float64, 3)
	for i, f := range fields {
		vals[i], _ = strconv.ParseFloat(strings.TrimSpace(f), 64)
	}
	util := 0.0
	if vals[0] > 0 {
		util = vals[1] / vals[0] * 100
	}
	return map[string]any{"total_mb": vals[0], "used_mb": vals[1], "free_mb": vals[2], "utilization": util}
}

// StaticDetector returns a fixed set of resources. Useful for configuration
// declared pools such as ray or dask clusters.
type StaticDetector []*Resource

// Detect implements Detector.
func (s StaticDetector) Detect(context.Context) ([]*Resource, error) {
	out := make([]*Resource, 0, len(s))
	for _, r := range s {
		c := r.clone()
		out = append(out, &c)
	}
	return out, nil
}
