package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics tracks Store Adapter operation outcomes.
type StoreMetrics struct {
	OpsTotal     *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	ErrorsByKind *prometheus.CounterVec
}

func newStoreMetrics(ns string) *StoreMetrics {
	return &StoreMetrics{
		OpsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "store", Name: "ops_total",
			Help: "Store operations attempted, by op.",
		}, []string{"op"}),
		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "store", Name: "op_duration_seconds",
			Help: "Store operation latency, by op.",
		}, []string{"op"}),
		ErrorsByKind: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "store", Name: "errors_total",
			Help: "Store operation failures, by op and error kind.",
		}, []string{"op", "kind"}),
	}
}

// LockMetrics tracks lock manager contention.
type LockMetrics struct {
	AcquireAttemptsTotal *prometheus.CounterVec
	BusyTotal            prometheus.Counter
	AcquireDuration       prometheus.Histogram
}

func newLockMetrics(ns string) *LockMetrics {
	return &LockMetrics{
		AcquireAttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "lock", Name: "acquire_attempts_total",
			Help: "Lock acquire attempts, by outcome.",
		}, []string{"outcome"}),
		BusyTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "lock", Name: "busy_total",
			Help: "Lock acquisitions that exhausted every retry.",
		}),
		AcquireDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "lock", Name: "acquire_duration_seconds",
			Help: "Time spent acquiring the service info lock.",
		}),
	}
}

// EngineMetrics tracks refresh-engine outcomes.
type EngineMetrics struct {
	RefreshTotal   *prometheus.CounterVec
	RefreshErrors  prometheus.Counter
	NotifyTotal    prometheus.Counter
}

func newEngineMetrics(ns string) *EngineMetrics {
	return &EngineMetrics{
		RefreshTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "engine", Name: "refresh_total",
			Help: "Refresh calls, by whether any mutation flag fired.",
		}, []string{"mutated"}),
		RefreshErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "engine", Name: "refresh_errors_total",
			Help: "Refresh calls that failed.",
		}),
		NotifyTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "engine", Name: "status_notify_total",
			Help: "Refresh calls that reported a status-change notification.",
		}),
	}
}

// LivenessMetrics tracks the liveness monitor's eviction activity.
type LivenessMetrics struct {
	EvictionsTotal   prometheus.Counter
	ScanDuration     prometheus.Histogram
}

func newLivenessMetrics(ns string) *LivenessMetrics {
	return &LivenessMetrics{
		EvictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "liveness", Name: "evictions_total",
			Help: "Instances evicted for a stale heartbeat.",
		}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "liveness", Name: "scan_duration_seconds",
			Help: "Time spent scanning every group's heartbeat set.",
		}),
	}
}

// PropagateMetrics tracks the change propagator's queues and fan-out.
type PropagateMetrics struct {
	ChangeQueueDepth      prometheus.Gauge
	AlertQueueDepth       prometheus.Gauge
	FanOutTotal           *prometheus.CounterVec
	HelloProbeFailures    prometheus.Counter
	OriginEvictionsTotal  prometheus.Counter
}

func newPropagateMetrics(ns string) *PropagateMetrics {
	return &PropagateMetrics{
		ChangeQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "propagate", Name: "change_queue_depth",
			Help: "Current backlog of the change notification queue.",
		}),
		AlertQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "propagate", Name: "alert_queue_depth",
			Help: "Current backlog of the lifecycle alert queue.",
		}),
		FanOutTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "propagate", Name: "fanout_total",
			Help: "Dependent notify attempts, by outcome.",
		}, []string{"outcome"}),
		HelloProbeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "propagate", Name: "hello_probe_failures_total",
			Help: "Hello probes that failed during fan-out.",
		}),
		OriginEvictionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "propagate", Name: "origin_evictions_total",
			Help: "Origins evicted after failing their own Hello probe.",
		}),
	}
}

// DependencyMetrics tracks the dependency coverage monitor.
type DependencyMetrics struct {
	AlertsEmittedTotal     prometheus.Counter
	UnsatisfiedGauge       *prometheus.GaugeVec
	TickDuration           prometheus.Histogram
}

func newDependencyMetrics(ns string) *DependencyMetrics {
	return &DependencyMetrics{
		AlertsEmittedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "dependency", Name: "alerts_emitted_total",
			Help: "Dependency coverage gap alerts emitted.",
		}),
		UnsatisfiedGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "dependency", Name: "unsatisfied",
			Help: "Whether some (group, rely_type) demand currently has no Online satisfier (1) or not (0).",
		}, []string{"group", "rely_type"}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "dependency", Name: "tick_duration_seconds",
			Help: "Time spent re-deriving the demand/supply graph for every group.",
		}),
	}
}
