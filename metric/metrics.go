package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lattice"

// Metrics contains every collector recorded by lattice components.
type Metrics struct {
	// Dispatch metrics
	IntentsReceived *prometheus.CounterVec
	IntentsSuccess  *prometheus.CounterVec
	IntentsFailure  *prometheus.CounterVec
	IntentDuration  *prometheus.HistogramVec

	// Supervisor metrics
	TasksActive  prometheus.Gauge
	TaskTimeouts prometheus.Counter
	TaskRetries  prometheus.Counter

	// Resource metrics
	ResourceAvailable   *prometheus.GaugeVec
	ResourceAllocations *prometheus.CounterVec

	// Bus metrics
	BusPublished     prometheus.Counter
	BusDelivered     prometheus.Counter
	BusSubscriptions prometheus.Gauge

	// Workflow metrics
	WorkflowRuns          *prometheus.CounterVec
	WorkflowCompensations prometheus.Counter
}

// NewMetrics creates a new Metrics instance. Collectors are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		IntentsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intents_received_total",
				Help: "Total intents received",
			},
			[]string{"intent_type"},
		),
		IntentsSuccess: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intents_success_total",
				Help: "Total intents processed successfully",
			},
			[]string{"intent_type"},
		),
		IntentsFailure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intents_failure_total",
				Help: "Total intents failed",
			},
			[]string{"intent_type"},
		),
		IntentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "intent_execution_duration_seconds",
				Help:    "Intent execution time",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"intent_type"},
		),

		TasksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "tasks_active",
			Help:      "Number of live supervised tasks",
		}),
		TaskTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "timeouts_total",
			Help:      "Total supervised tasks that exceeded their deadline",
		}),
		TaskRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "retries_total",
			Help:      "Total retry attempts after a failed attempt",
		}),

		ResourceAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resource",
				Name:      "available",
				Help:      "Available capacity per base resource",
			},
			[]string{"type", "id"},
		),
		ResourceAllocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resource",
				Name:      "allocations_total",
				Help:      "Allocation attempts by outcome",
			},
			[]string{"type", "outcome"},
		),

		BusPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "published_total",
			Help:      "Total messages published on the bus",
		}),
		BusDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "delivered_total",
			Help:      "Total message copies enqueued to subscribers",
		}),
		BusSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "subscriptions",
			Help:      "Active bus subscriptions",
		}),

		WorkflowRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "runs_total",
				Help:      "Workflow runs by final state",
			},
			[]string{"state"},
		),
		WorkflowCompensations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "compensations_total",
			Help:      "Rollback calls issued during compensation",
		}),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.IntentsReceived, m.IntentsSuccess, m.IntentsFailure, m.IntentDuration,
		m.TasksActive, m.TaskTimeouts, m.TaskRetries,
		m.ResourceAvailable, m.ResourceAllocations,
		m.BusPublished, m.BusDelivered, m.BusSubscriptions,
		m.WorkflowRuns, m.WorkflowCompensations,
	}
}

// RecordIntent records a dispatched intent and its outcome.
func (m *Metrics) RecordIntent(intentType string, dur time.Duration, success bool) {
	if m == nil {
		return
	}
	m.IntentsReceived.WithLabelValues(intentType).Inc()
	m.IntentDuration.WithLabelValues(intentType).Observe(dur.Seconds())
	if success {
		m.IntentsSuccess.WithLabelValues(intentType).Inc()
	} else {
		m.IntentsFailure.WithLabelValues(intentType).Inc()
	}
}

// TaskStarted increments the live task gauge.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.TasksActive.Inc()
}

// TaskFinished decrements the live task gauge.
func (m *Metrics) TaskFinished() {
	if m == nil {
		return
	}
	m.TasksActive.Dec()
}

// TaskTimedOut counts a deadline overrun.
func (m *Metrics) TaskTimedOut() {
	if m == nil {
		return
	}
	m.TaskTimeouts.Inc()
}

// TaskRetried counts a retry.
func (m *Metrics) TaskRetried() {
	if m == nil {
		return
	}
	m.TaskRetries.Inc()
}

// SetAvailable records the headroom of a base resource.
func (m *Metrics) SetAvailable(resourceType, id string, available float64) {
	if m == nil {
		return
	}
	m.ResourceAvailable.WithLabelValues(resourceType, id).Set(available)
}

// RecordAllocation counts an allocation attempt.
func (m *Metrics) RecordAllocation(resourceType string, ok bool) {
	if m == nil {
		return
	}
	outcome := "granted"
	if !ok {
		outcome = "rejected"
	}
	m.ResourceAllocations.WithLabelValues(resourceType, outcome).Inc()
}

// RecordPublish counts a publish and the copies it enqueued.
func (m *Metrics) RecordPublish(deliveries int) {
	if m == nil {
		return
	}
	m.BusPublished.Inc()
	m.BusDelivered.Add(float64(deliveries))
}

// SetSubscriptions records the number of active subscriptions.
func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.BusSubscriptions.Set(float64(n))
}

// RecordWorkflow counts a finished workflow run.
func (m *Metrics) RecordWorkflow(state string, compensations int) {
	if m == nil {
		return
	}
	m.WorkflowRuns.WithLabelValues(state).Inc()
	m.WorkflowCompensations.Add(float64(compensations))
}
