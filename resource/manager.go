package resource

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ochoaughini/Cognition-Lattice/core"
	"github.com/ochoaughini/Cognition-Lattice/logging"
	"github.com/ochoaughini/Cognition-Lattice/metric"
)

// Executor names served by GetExecutor.
const (
	ExecutorIO  = "io"
	ExecutorCPU = "cpu"
)

// Options configures a Manager.
type Options struct {
	// Detectors discover base resources. Defaults to CPU and NVIDIA detection.
	Detectors []Detector
	// IOWorkers defaults to min(32, cores*5).
	IOWorkers int
	// CPUWorkers defaults to the logical core count.
	CPUWorkers int
	Logger     logging.Logger
	Metrics    *metric.Metrics
}

// Usage is a snapshot of resources and executors.
type Usage struct {
	Resources []Resource               `json:"resources"`
	Executors map[string]ExecutorStats `json:"executors"`
}

// Manager owns base resources and executors.
type Manager struct {
	opts    Options
	logger  logging.Logger
	metrics *metric.Metrics

	initMu      sync.Mutex
	initialized atomic.Bool

	mu        sync.Mutex
	resources []*Resource
	executors map[string]*Executor

	seq atomic.Uint64
}

// NewManager creates a Manager. Detection is deferred to Initialize.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{
		Detectors: []Detector{CPUDetector{}, NvidiaDetector{}},
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Manager{
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		executors: make(map[string]*Executor),
	}
}

// Initialize detects resources and builds executors. Only the first caller
// performs detection; concurrent and later calls return once it is done.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.initialized.Load() {
		return nil
	}
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.initialized.Load() {
		return nil
	}

	var found []*Resource
	seen := make(map[string]struct{})
	for _, d := range m.opts.Detectors {
		rs, err := d.Detect(ctx)
		if err != nil {
			m.logger.Debug("resource detection failed", "detector", fmt.Sprintf("%T", d), "error", err)
			continue
		}
		for _, r := range rs {
			key := string(r.Type) + "/" + r.ID
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			found = append(found, r)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("initialize resources: %w", err)
	}

	cores := runtime.NumCPU()
	ioWorkers := m.opts.IOWorkers
	if ioWorkers <= 0 {
		ioWorkers = min(32, cores*5)
	}
	cpuWorkers := m.opts.CPUWorkers
	if cpuWorkers <= 0 {
		cpuWorkers = cores
	}

	m.mu.Lock()
	m.resources = found
	m.executors = map[string]*Executor{
		ExecutorIO:  NewExecutor(ExecutorIO, ioWorkers),
		ExecutorCPU: NewExecutor(ExecutorCPU, cpuWorkers),
	}
	for _, r := range found {
		m.metrics.SetAvailable(string(r.Type), r.ID, r.Available)
	}
	m.mu.Unlock()

	m.initialized.Store(true)
	m.logger.Info("resource manager initialized", "resources", len(found), "io_workers", ioWorkers, "cpu_workers", cpuWorkers)
	return nil
}

// Initialized reports whether Initialize has completed.
func (m *Manager) Initialized() bool { return m.initialized.Load() }

// Allocate grants amount of resourceType from the matching base resource with
// the most headroom. Every requirement key must equal the base's metadata
// value. Ties go to the first detected base.
func (m *Manager) Allocate(ctx context.Context, resourceType Type, amount float64, requirements map[string]any) ([]*Resource, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		m.metrics.RecordAllocation(string(resourceType), false)
		return nil, &core.ResourceAllocationError{Type: string(resourceType), Amount: amount, Reason: "amount must be greater than 0"}
	}
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Resource
	for _, r := range m.resources {
		if r.Type != resourceType || r.Available < amount || !r.satisfies(requirements) {
			continue
		}
		if best == nil || r.Available > best.Available {
			best = r
		}
	}
	if best == nil {
		m.metrics.RecordAllocation(string(resourceType), false)
		return nil, &core.ResourceAllocationError{
			Type:   string(resourceType),
			Amount: amount,
			Reason: fmt.Sprintf("no available %s resources with %g capacity", resourceType, amount),
		}
	}

	best.Available -= amount
	alloc := &Resource{
		Type:      best.Type,
		ID:        fmt.Sprintf("%s:%x", best.ID, m.seq.Add(1)),
		Name:      best.Name + " (allocated)",
		Capacity:  amount,
		Available: amount,
		Metadata:  core.CloneMap(best.Metadata),
		BaseID:    best.ID,
	}
	m.metrics.RecordAllocation(string(resourceType), true)
	m.metrics.SetAvailable(string(best.Type), best.ID, best.Available)
	m.logger.Debug("allocated resource", "resource", best.ID, "amount", amount, "remaining", best.Available)
	return []*Resource{alloc}, nil
}

// Release returns allocations to their base resources. A base is never
// raised above its capacity. Unknown allocations are ignored.
func (m *Manager) Release(allocs ...*Resource) {
	if len(allocs) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range allocs {
		if a == nil {
			continue
		}
		base := m.baseFor(a)
		if base == nil {
			m.logger.Warn("release of unknown allocation", "resource", a.ID, "type", a.Type)
			continue
		}
		base.Available = min(base.Available+a.Capacity, base.Capacity)
		m.metrics.SetAvailable(string(base.Type), base.ID, base.Available)
		m.logger.Debug("released resource", "resource", base.ID, "amount", a.Capacity, "available", base.Available)
	}
}

func (m *Manager) baseFor(a *Resource) *Resource {
	for _, r := range m.resources {
		if r.Type != a.Type {
			continue
		}
		if a.BaseID != "" {
			if r.ID == a.BaseID {
				return r
			}
			continue
		}
		if strings.HasPrefix(a.ID, r.ID+":") {
			return r
		}
	}
	return nil
}

// GetExecutor returns the "io" or "cpu" executor, initializing the manager
// if needed.
func (m *Manager) GetExecutor(ctx context.Context, kind string) (*Executor, error) {
	if err := m.Initialize(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ex, ok := m.executors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownExecutor, kind)
	}
	return ex, nil
}

// Resources returns copies of the base resources.
func (m *Manager) Resources() []Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Resource, 0, len(m.resources))
	for _, r := range m.resources {
		out = append(out, r.clone())
	}
	return out
}

// Usage returns a snapshot of base resources and executor counters.
func (m *Manager) Usage(ctx context.Context) (Usage, error) {
	if err := m.Initialize(ctx); err != nil {
		return Usage{}, err
	}
	u := Usage{Resources: m.Resources(), Executors: map[string]ExecutorStats{}}
	m.mu.Lock()
	names := make([]string, 0, len(m.executors))
	for name := range m.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		u.Executors[name] = m.executors[name].Stats()
	}
	m.mu.Unlock()
	return u, nil
}

// Cleanup shuts down executors and clears all resource state. It is safe to
// call on a manager that was never initialized.
func (m *Manager) Cleanup() {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	executors := m.executors
	m.executors = make(map[string]*Executor)
	m.resources = nil
	m.mu.Unlock()

	for name, ex := range executors {
		m.logger.Debug("shutting down executor", "executor", name)
		ex.Shutdown(false)
	}
	m.initialized.Store(false)
}
